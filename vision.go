package lagosai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/catchmeifyoucaan/lagosai/conversation"
	"github.com/catchmeifyoucaan/lagosai/models"
	"github.com/catchmeifyoucaan/lagosai/personas"
	"github.com/catchmeifyoucaan/lagosai/reconcile"
	"github.com/catchmeifyoucaan/lagosai/stores"
)

const (
	Vision_System_Label     = "Vision Guide System"
	Vision_Pending_Content  = "Analyzing scene..."
	Vision_Missing_Content  = "⚠️ Gemini API not configured for Vision Guide."
	Default_Frame_MIME_Type = "image/jpeg"

	Vision_Scene_Query = "Describe this scene for a visually impaired user. Focus on objects, potential hazards, people, text, and overall layout. Provide a concise, clear, and actionable description to help with navigation or understanding the environment."
)

var (
	ErrInvalidFrame      = errors.New("frame must be non-empty image data")
	ErrVisionUnavailable = errors.New("gemini is not configured for the vision guide")
)

// Vision_Label is the provider label of a scene description.
func Vision_Label() string {
	return models.Display_Name(models.Provider_Gemini) + " (Vision Guide)"
}

// Analyze_Frame asks Gemini to describe one camera frame into the current
// conversation. It behaves like Send: the description streams into a new
// assistant message, failures become its content and a success is spoken.
func (o *Oracle) Analyze_Frame(ctx context.Context, data []byte, mimeType string) (*reconcile.Reconciler, error) {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = Default_Frame_MIME_Type
	}
	if len(data) == 0 || !strings.HasPrefix(mimeType, "image/") {
		return nil, ErrInvalidFrame
	}

	o.mu.Lock()
	prefs, creds, available := o.prefs, o.creds, o.availability[models.Provider_Gemini]
	o.mu.Unlock()

	conv := o.store.Ensure_Current(prefs.Persona_Key)
	if !available {
		o.store.Append_Message(conv.ID, stores.Message{
			ID:            conversation.Next_Message_ID(),
			Role:          stores.RoleAssistant,
			Content:       Vision_Missing_Content,
			CreatedAt:     time.Now(),
			ProviderLabel: Vision_System_Label,
			Outcome:       stores.OutcomeError,
		})
		return nil, ErrVisionUnavailable
	}
	o.Stop(conv.ID)

	personaKey := conv.PersonaKey
	if !personas.Valid(personaKey) {
		personaKey = prefs.Persona_Key
	}
	placeholder := stores.Message{
		ID:            conversation.Next_Message_ID(),
		Role:          stores.RoleAssistant,
		Content:       Vision_Pending_Content,
		CreatedAt:     time.Now(),
		ProviderLabel: Vision_Label(),
		Outcome:       stores.OutcomePending,
		PersonaKey:    personaKey,
	}

	o.store.Append_Message(conv.ID, placeholder)

	genCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := reconcile.New(o.store, conv.ID, placeholder.ID, reconcile.Options{
		Provider:        models.Provider_Gemini,
		Provider_Name:   models.Display_Name(models.Provider_Gemini),
		Label:           placeholder.ProviderLabel,
		On_Success:      func(content string) { o.speak(placeholder.ID, content) },
		Failure_Content: reconcile.Vision_Error_Content,
		Cancel:          cancel,
		Logger:          o.logger,
	})
	o.swap(r)
	o.logger.Printf("Analyzing %d byte %s frame in %s", len(data), mimeType, conv.ID)

	deltas, errs := o.chat_Stream(genCtx, models.Provider_Gemini, creds, models.Chat_Request{
		Query:         Vision_Scene_Query,
		System_Prompt: personas.Vision_Guide_Prompt(),
		Images:        []models.Image_Part{{MIME_Type: mimeType, Data: data}},
	})
	go r.Run(deltas, errs)
	o.track(r, cancel)
	return r, nil
}
