// Package lagosai routes chat, image and video requests to AI providers,
// reconciles their streamed replies into a conversation store and keeps that
// store in step with an optional remote copy.
package lagosai

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/catchmeifyoucaan/lagosai/conversation"
	"github.com/catchmeifyoucaan/lagosai/models"
	"github.com/catchmeifyoucaan/lagosai/personas"
	"github.com/catchmeifyoucaan/lagosai/reconcile"
	"github.com/catchmeifyoucaan/lagosai/routing"
	"github.com/catchmeifyoucaan/lagosai/sessions"
	"github.com/catchmeifyoucaan/lagosai/speech"
	"github.com/catchmeifyoucaan/lagosai/stores"
	"github.com/catchmeifyoucaan/lagosai/syncbridge"
)

const (
	Creative_Engine_Label = "Lagos Oracle Creative Engine"
	System_Label          = "Lagos Oracle System"
	Placeholder_Content   = "..."

	speechTimeout = 2 * time.Minute
)

const Welcome_Content = "🌟 **Lagos Oracle Ultra is LIVE!** 🌟\n\nWetin dey happen, Lagos! I be your AI companion with Lagos expertise.\n\n✨ **Features:**\n• Image generation (DALL-E 3 or Imagen)\n• Video generation (Veo)\n• Lagos cultural knowledge (powered by the selected AI)\n• Multiple AI models (Gemini, OpenAI, Claude, Perplexity)\n• Selectable AI Personas! (Try the 🎭 icon)\n\nPlease enter your API keys in the settings panel (⚙️) to enable full functionality for all AI models.\n\nLet's chat! 🚀"

var (
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrInvalidTitle        = errors.New("title must not be empty")
	ErrSyncUnavailable     = errors.New("no remote store configured")
	ErrSyncRequired        = errors.New("sync is not attached")
)

// Oracle owns the conversation store and everything that mutates it.
type Oracle struct {
	cfg    *Config
	store  *conversation.Store
	logger *log.Logger

	mu           sync.Mutex
	creds        models.Credentials
	availability models.Availability
	prefs        Preferences
	active       map[string]*reconcile.Reconciler
	bridge       *syncbridge.Bridge

	// syncMu serializes Attach_Sync and Detach_Sync.
	syncMu sync.Mutex

	watchMu   sync.Mutex
	watchers  map[int]func(sessions.Push)
	nextWatch int

	unsubscribe func()
	background  sync.WaitGroup
}

// New_Oracle opens whatever cfg does not already carry and loads the
// persisted state. A nil cfg gives an in-memory Oracle.
func New_Oracle(cfg *Config) (*Oracle, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.open(); err != nil {
		return nil, err
	}

	o := &Oracle{
		cfg:      cfg,
		store:    conversation.New_Store(cfg.Cache).With_Logger(cfg.Logger),
		logger:   cfg.Logger,
		active:   make(map[string]*reconcile.Reconciler),
		watchers: make(map[int]func(sessions.Push)),
	}
	o.store.Load()
	o.prefs = load_Preferences(cfg.Cache, o.logger)
	o.creds = merge_Credentials(load_Credentials(cfg.Cache, o.logger), cfg.Credentials)
	o.availability = models.Compute_Availability(o.creds)

	if len(o.store.List()) == 0 {
		o.New_Conversation()
	} else {
		o.store.Ensure_Current(o.prefs.Persona_Key)
	}
	o.unsubscribe = o.store.Subscribe(o.onChange)
	return o, nil
}

// merge_Credentials prefers stored keys and falls back to the environment.
func merge_Credentials(stored, env models.Credentials) models.Credentials {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	return models.Credentials{
		OpenAI:     pick(stored.OpenAI, env.OpenAI),
		Gemini:     pick(stored.Gemini, env.Gemini),
		Claude:     pick(stored.Claude, env.Claude),
		Perplexity: pick(stored.Perplexity, env.Perplexity),
	}.Trimmed()
}

func (o *Oracle) Store() *conversation.Store { return o.store }
func (o *Oracle) Config() *Config            { return o.cfg }

// Watch registers fn for every push: conversation changes, forwarded
// reconciler events and speech audio. fn must not block.
func (o *Oracle) Watch(fn func(sessions.Push)) (unwatch func()) {
	o.watchMu.Lock()
	id := o.nextWatch
	o.nextWatch++
	o.watchers[id] = fn
	o.watchMu.Unlock()
	return func() {
		o.watchMu.Lock()
		delete(o.watchers, id)
		o.watchMu.Unlock()
	}
}

func (o *Oracle) publish(p sessions.Push) {
	o.watchMu.Lock()
	fns := make([]func(sessions.Push), 0, len(o.watchers))
	for _, fn := range o.watchers {
		fns = append(fns, fn)
	}
	o.watchMu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (o *Oracle) onChange(c conversation.Change) {
	o.publish(sessions.Push{Type: sessions.Push_Conversation, Change: &c})
}

// Forward publishes every event of r to the watchers. It returns when r is done.
func (o *Oracle) Forward(r *reconcile.Reconciler) {
	for ev := range r.Events() {
		ev := ev
		o.publish(sessions.Push{Type: sessions.Push_Reconcile, Event: &ev})
	}
}

// Send appends the user's query to the current conversation and starts the
// reply. Provider failures never surface here; they end up as the content of
// the reply message. The reply keeps running after ctx ends; use Stop.
func (o *Oracle) Send(ctx context.Context, query string) (*reconcile.Reconciler, error) {
	return o.send(ctx, query, false)
}

// Send_Once is Send with a single non-streaming provider call. It waits for
// the reply and returns the final message; ctx ending stops the reply.
func (o *Oracle) Send_Once(ctx context.Context, query string) (stores.Message, error) {
	r, err := o.send(ctx, query, true)
	if err != nil {
		return stores.Message{}, err
	}
	select {
	case <-r.Done():
	case <-ctx.Done():
		r.Cancel()
		<-r.Done()
	}
	msg, ok := o.message(r.Conversation_ID(), r.Message_ID())
	if !ok {
		return stores.Message{}, ErrUnknownConversation
	}
	return msg, nil
}

func (o *Oracle) send(ctx context.Context, query string, once bool) (*reconcile.Reconciler, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.ErrEmptyQuery
	}

	o.mu.Lock()
	prefs, creds, availability := o.prefs, o.creds, o.availability
	o.mu.Unlock()

	conv := o.store.Ensure_Current(prefs.Persona_Key)
	personaKey := conv.PersonaKey
	if !personas.Valid(personaKey) {
		personaKey = prefs.Persona_Key
	}
	history := conversation.Build_History(conv.Messages, conversation.Default_History_Limit)

	now := time.Now()
	o.store.Append_Message(conv.ID, stores.Message{
		ID:         conversation.Next_Message_ID(),
		Role:       stores.RoleUser,
		Content:    query,
		CreatedAt:  now,
		Outcome:    stores.OutcomeSuccess,
		PersonaKey: personaKey,
	})
	o.Stop(conv.ID)

	decision := routing.Route(query, availability, prefs.Provider)
	genCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	providerName := models.Display_Name(decision.Provider)
	opts := reconcile.Options{
		Provider:      decision.Provider,
		Provider_Name: providerName,
		Persona_Name:  personas.Lookup(personaKey).Short_Name(),
		Cancel:        cancel,
		Logger:        o.logger,
	}
	placeholder := stores.Message{
		ID:         conversation.Next_Message_ID(),
		Role:       stores.RoleAssistant,
		CreatedAt:  now,
		Outcome:    stores.OutcomePending,
		PersonaKey: personaKey,
	}

	media := decision.Modality == routing.Modality_Image || decision.Modality == routing.Modality_Video
	if media {
		opts.Media_Kind = string(decision.Modality)
		opts.Label = Creative_Engine_Label
		placeholder.Content = reconcile.Media_Pending_Content(opts.Media_Kind)
	} else {
		opts.Label = personas.Label(providerName, personaKey)
		opts.On_Success = func(content string) { o.speak(placeholder.ID, content) }
		placeholder.Content = Placeholder_Content
	}
	placeholder.ProviderLabel = opts.Label

	o.store.Append_Message(conv.ID, placeholder)
	r := reconcile.New(o.store, conv.ID, placeholder.ID, opts)
	o.swap(r)
	o.logger.Printf("Routing %s query to %s as %s", decision.Intent, decision.Provider, decision.Modality)

	if media {
		go r.Run_Media(o.media_Func(genCtx, decision, creds, models.Media_Request{Prompt: query, Style: string(prefs.Image_Style)}))
	} else {
		request := models.Chat_Request{
			Query:         query,
			System_Prompt: personas.System_Prompt(decision.Intent, personaKey),
			History:       history,
		}
		var deltas <-chan string
		var errs <-chan error
		if once {
			deltas, errs = o.chat_Once(genCtx, decision.Provider, creds, request)
		} else {
			deltas, errs = o.chat_Stream(genCtx, decision.Provider, creds, request)
		}
		go r.Run(deltas, errs)
	}

	o.track(r, cancel)
	return r, nil
}

// track releases the transport and the active slot once r is done.
func (o *Oracle) track(r *reconcile.Reconciler, cancel context.CancelFunc) {
	go func() {
		<-r.Done()
		cancel()
		o.mu.Lock()
		if o.active[r.Conversation_ID()] == r {
			delete(o.active, r.Conversation_ID())
		}
		o.mu.Unlock()
	}()
}

func (o *Oracle) message(conversationID string, id int64) (stores.Message, bool) {
	conv, ok := o.store.Get(conversationID)
	if !ok {
		return stores.Message{}, false
	}
	for _, m := range conv.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return stores.Message{}, false
}

func failed_Stream(err error) (<-chan string, <-chan error) {
	respChan := make(chan string)
	errChan := make(chan error, 1)
	errChan <- err
	close(errChan)
	close(respChan)
	return respChan, errChan
}

func (o *Oracle) chat_Stream(ctx context.Context, provider models.Provider_ID, creds models.Credentials, request models.Chat_Request) (<-chan string, <-chan error) {
	model, err := o.cfg.Factory.Chat_Model(provider, creds)
	if err != nil {
		return failed_Stream(models.Wrap_Error(provider, models.Not_Configured, err))
	}
	return model.Stream_Chat(ctx, request)
}

// chat_Once feeds one Chat result to a reconciler as a single delta.
func (o *Oracle) chat_Once(ctx context.Context, provider models.Provider_ID, creds models.Credentials, request models.Chat_Request) (<-chan string, <-chan error) {
	model, err := o.cfg.Factory.Chat_Model(provider, creds)
	if err != nil {
		return failed_Stream(models.Wrap_Error(provider, models.Not_Configured, err))
	}

	respChan := make(chan string, 1)
	errChan := make(chan error, 1)
	go func() {
		defer close(respChan)
		defer close(errChan)
		res := model.Chat(ctx, request)
		if res.Kind == models.Result_Error && res.Err != nil {
			errChan <- res.Err
			return
		}
		respChan <- res.Text
	}()
	return respChan, errChan
}

func (o *Oracle) media_Func(ctx context.Context, decision routing.Decision, creds models.Credentials, request models.Media_Request) func() (models.Media_Result, error) {
	return func() (models.Media_Result, error) {
		if decision.Modality == routing.Modality_Video {
			model, err := o.cfg.Factory.Video_Model(decision.Provider, creds)
			if err != nil {
				return models.Media_Result{}, models.Wrap_Error(decision.Provider, models.Not_Configured, err)
			}
			return model.Generate_Video(ctx, request)
		}
		model, err := o.cfg.Factory.Image_Model(decision.Provider, creds)
		if err != nil {
			return models.Media_Result{}, models.Wrap_Error(decision.Provider, models.Not_Configured, err)
		}
		return model.Generate_Image(ctx, request)
	}
}

// swap makes r the active reply of its conversation, stopping the previous one.
func (o *Oracle) swap(r *reconcile.Reconciler) {
	o.mu.Lock()
	prev := o.active[r.Conversation_ID()]
	o.active[r.Conversation_ID()] = r
	o.mu.Unlock()
	if prev != nil && prev != r {
		prev.Cancel()
	}
}

// Stop cancels the active reply of a conversation. It reports whether there
// was one; stopping twice is harmless.
func (o *Oracle) Stop(conversationID string) bool {
	o.mu.Lock()
	r := o.active[conversationID]
	delete(o.active, conversationID)
	o.mu.Unlock()
	if r == nil {
		return false
	}
	r.Cancel()
	return true
}

// Active returns the running reply of a conversation, if any.
func (o *Oracle) Active(conversationID string) (*reconcile.Reconciler, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.active[conversationID]
	return r, ok
}

func (o *Oracle) stopAll() {
	o.mu.Lock()
	active := o.active
	o.active = make(map[string]*reconcile.Reconciler)
	o.mu.Unlock()
	for _, r := range active {
		r.Cancel()
	}
}

func (o *Oracle) speak(messageID int64, content string) {
	o.mu.Lock()
	enabled := o.prefs.Sound_Enabled
	o.mu.Unlock()
	if !enabled || o.cfg.Speaker == nil {
		return
	}

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), speechTimeout)
		defer cancel()

		chunks, errs := o.cfg.Speaker.Speak(ctx, strconv.FormatInt(messageID, 10), content)
		for chunk := range chunks {
			chunk := chunk
			o.publish(sessions.Push{Type: sessions.Push_Audio, Audio: &chunk})
		}
		for err := range errs {
			if err != nil && !errors.Is(err, speech.ErrNothingToSay) {
				o.logger.Printf("Speech failed for message %d: %v", messageID, err)
			}
		}
	}()
}

// New_Conversation creates a conversation with the welcome message and makes it current.
func (o *Oracle) New_Conversation() stores.Conversation {
	o.mu.Lock()
	personaKey := o.prefs.Persona_Key
	o.mu.Unlock()

	conv := o.store.Create_Conversation(personaKey)
	o.store.Append_Message(conv.ID, stores.Message{
		ID:            conversation.Next_Message_ID(),
		Role:          stores.RoleAssistant,
		Content:       Welcome_Content,
		CreatedAt:     time.Now(),
		ProviderLabel: System_Label,
		Outcome:       stores.OutcomeSuccess,
	})
	conv, _ = o.store.Get(conv.ID)
	return conv
}

func (o *Oracle) Switch(id string) error {
	if !o.store.Set_Current(id) {
		return ErrUnknownConversation
	}
	return nil
}

// Delete removes a conversation. Deleting the current one selects the next,
// or creates a fresh conversation when none remain.
func (o *Oracle) Delete(id string) error {
	if _, ok := o.store.Get(id); !ok {
		return ErrUnknownConversation
	}
	o.Stop(id)
	if !o.store.Delete_Conversation(id) {
		return nil
	}
	if rest := o.store.List(); len(rest) > 0 {
		o.store.Set_Current(rest[0].ID)
	} else {
		o.New_Conversation()
	}
	return nil
}

func (o *Oracle) Rename(id, title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrInvalidTitle
	}
	if !o.store.Rename(id, title) {
		return ErrUnknownConversation
	}
	return nil
}

func (o *Oracle) Availability() models.Availability {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(models.Availability, len(o.availability))
	for k, v := range o.availability {
		out[k] = v
	}
	return out
}

func (o *Oracle) Credentials() models.Credentials {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.creds
}

// Set_Credentials persists new keys and recomputes availability.
func (o *Oracle) Set_Credentials(creds models.Credentials) models.Availability {
	creds = creds.Trimmed()
	if err := stores.PutJSON(o.cfg.Cache, stores.KeyCredentials, creds); err != nil {
		o.logger.Printf("Failed to persist credentials: %v", err)
	}
	o.mu.Lock()
	o.creds = creds
	o.availability = models.Compute_Availability(creds)
	o.mu.Unlock()
	return o.Availability()
}

func (o *Oracle) Preferences() Preferences {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.prefs
}

// Set_Preferences stores p. A persona change also applies to the current conversation.
func (o *Oracle) Set_Preferences(p Preferences) Preferences {
	p = p.Normalized()
	if err := save_Preferences(o.cfg.Cache, p); err != nil {
		o.logger.Printf("Failed to persist preferences: %v", err)
	}
	o.mu.Lock()
	personaChanged := o.prefs.Persona_Key != p.Persona_Key
	o.prefs = p
	o.mu.Unlock()

	if personaChanged {
		if id := o.store.Current_ID(); id != "" {
			o.store.Set_Persona(id, p.Persona_Key)
		}
	}
	return p
}

// Close stops every reply and sync, then closes the stores.
func (o *Oracle) Close() error {
	o.stopAll()
	o.Detach_Sync()
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	o.background.Wait()

	var errs []error
	if o.cfg.Remote != nil {
		errs = append(errs, o.cfg.Remote.Close())
	}
	errs = append(errs, o.cfg.Cache.Close())
	return errors.Join(errs...)
}
