package lagosai

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/catchmeifyoucaan/lagosai/conversation"
	"github.com/catchmeifyoucaan/lagosai/export"
	"github.com/catchmeifyoucaan/lagosai/stores"
	"github.com/catchmeifyoucaan/lagosai/syncbridge"
)

const (
	Share_Failed_Content = "⚠️ Failed to create share link."
	Share_Label          = "System"
)

// Attach_Sync starts mirroring the store with uid's remote documents. The
// bridge outlives ctx; Detach_Sync ends it.
func (o *Oracle) Attach_Sync(ctx context.Context, uid string) error {
	if o.cfg.Remote == nil {
		return ErrSyncUnavailable
	}
	if uid == "" {
		return fmt.Errorf("sync needs a user id")
	}

	o.syncMu.Lock()
	defer o.syncMu.Unlock()

	o.mu.Lock()
	current := o.bridge
	o.mu.Unlock()
	if current != nil {
		if current.UID() == uid {
			return nil
		}
		o.detach()
	}

	b := syncbridge.New(o.store, o.cfg.Remote, uid, syncbridge.Options{
		Debounce: o.cfg.Sync_Debounce,
		Logger:   o.logger,
	})
	if err := b.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	o.mu.Lock()
	o.bridge = b
	o.mu.Unlock()
	return nil
}

// Detach_Sync stops the bridge after flushing pending writes. Local state is kept.
func (o *Oracle) Detach_Sync() {
	o.syncMu.Lock()
	defer o.syncMu.Unlock()
	o.detach()
}

func (o *Oracle) detach() {
	o.mu.Lock()
	b := o.bridge
	o.bridge = nil
	o.mu.Unlock()
	if b != nil {
		b.Stop()
	}
}

// Sync_UID returns the attached identity, or "" when sync is off.
func (o *Oracle) Sync_UID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bridge == nil {
		return ""
	}
	return o.bridge.UID()
}

// Share publishes the current conversation and appends the link to it.
func (o *Oracle) Share(ctx context.Context) (string, error) {
	o.mu.Lock()
	b := o.bridge
	o.mu.Unlock()
	if b == nil {
		return "", ErrSyncRequired
	}

	conv, ok := o.store.Current()
	if !ok {
		return "", ErrUnknownConversation
	}

	token, err := b.Share(ctx, conv.ID)
	if err != nil {
		o.logger.Printf("Failed to share %s: %v", conv.ID, err)
		o.system_Message(conv.ID, Share_Failed_Content, stores.OutcomeError)
		return "", err
	}
	link := o.cfg.Public_URL + "/#/share/" + token
	o.system_Message(conv.ID, "🔗 Share link:\n"+link, stores.OutcomeSuccess)
	return link, nil
}

func (o *Oracle) system_Message(conversationID, content string, outcome stores.Outcome) {
	o.store.Append_Message(conversationID, stores.Message{
		ID:            conversation.Next_Message_ID(),
		Role:          stores.RoleAssistant,
		Content:       content,
		CreatedAt:     time.Now(),
		ProviderLabel: Share_Label,
		Outcome:       outcome,
	})
}

// Shared reads a share document. It works without an attached identity.
func (o *Oracle) Shared(ctx context.Context, token string) (stores.SharedConversation, error) {
	if o.cfg.Remote == nil {
		return stores.SharedConversation{}, ErrSyncUnavailable
	}
	return o.cfg.Remote.GetShared(ctx, token)
}

func (o *Oracle) Export_Library(w io.Writer) error {
	return export.Write_Library(w, o.store.List(), o.store.Current_ID())
}

// Import_Library replaces every conversation with the file's. A file that
// fails validation leaves the store untouched.
func (o *Oracle) Import_Library(r io.Reader) (int, error) {
	lib, err := export.Read_Library(r)
	if err != nil {
		return 0, err
	}

	o.stopAll()
	o.store.Replace_All(lib.Conversations, lib.Current(), conversation.Change_Imported)
	if len(lib.Conversations) == 0 {
		o.New_Conversation()
	}
	o.logger.Printf("Imported %d conversations", len(lib.Conversations))
	return len(lib.Conversations), nil
}

// Export_Chat writes the current conversation with the active settings.
func (o *Oracle) Export_Chat(w io.Writer) error {
	conv, ok := o.store.Current()
	if !ok {
		return ErrUnknownConversation
	}
	p := o.Preferences()
	return export.Write_Chat(w, export.Chat_Settings{
		SelectedAI:         string(p.Provider),
		ImageStyle:         string(p.Image_Style),
		DarkMode:           p.Dark_Mode,
		SoundEnabled:       p.Sound_Enabled,
		SelectedPersonaKey: p.Persona_Key,
	}, conv.Messages)
}
