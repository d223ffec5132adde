// Package reconcile drives one assistant message from placeholder to a
// terminal outcome while a provider streams into it.
package reconcile

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/catchmeifyoucaan/lagosai/conversation"
	"github.com/catchmeifyoucaan/lagosai/models"
	"github.com/catchmeifyoucaan/lagosai/stores"
)

type State string

const (
	State_Pending   State = "pending"
	State_Streaming State = "streaming"
	State_Success   State = "success"
	State_Error     State = "error"
	State_Cancelled State = "cancelled"
)

func (s State) Terminal() bool {
	return s == State_Success || s == State_Error || s == State_Cancelled
}

type Event_Kind string

const (
	Event_Delta Event_Kind = "delta"
	Event_State Event_Kind = "state"
	Event_Done  Event_Kind = "done"
)

// Event is one observable step of a reconciler.
type Event struct {
	Kind            Event_Kind      `json:"kind"`
	Conversation_ID string          `json:"conversationId"`
	Message_ID      int64           `json:"messageId"`
	Text            string          `json:"text,omitempty"`
	State           State           `json:"state,omitempty"`
	Message         *stores.Message `json:"message,omitempty"`
}

// Error_Label_Suffix is appended to the provider label of a failed message.
const Error_Label_Suffix = " (Error)"

const Default_Event_Buffer = 256

// Target is where the reconciled message lives. *conversation.Store satisfies it.
type Target interface {
	Update_Message(conversationID string, messageID int64, patch conversation.Patch) bool
	Get(id string) (stores.Conversation, bool)
}

type Options struct {
	Provider      models.Provider_ID
	Provider_Name string
	Persona_Name  string
	// Label is the provider label already on the placeholder.
	Label string
	// Media_Kind is "image" or "video" for Run_Media.
	Media_Kind string
	// On_Success receives the final content once, after a successful stream.
	On_Success func(content string)
	// Failure_Content replaces the apology of a failed text reply.
	Failure_Content func(err error) string
	// Cancel aborts the provider transport.
	Cancel       context.CancelFunc
	Event_Buffer int
	Logger       *log.Logger
}

type Reconciler struct {
	mu        sync.Mutex
	state     State
	cancelled bool
	content   strings.Builder
	deltas    int

	target         Target
	conversationID string
	messageID      int64
	opts           Options
	logger         *log.Logger

	events      chan Event
	done        chan struct{}
	successOnce sync.Once
}

// New attaches a reconciler to a placeholder message that already exists
// with a pending outcome.
func New(target Target, conversationID string, messageID int64, opts Options) *Reconciler {
	size := opts.Event_Buffer
	if size <= 0 {
		size = Default_Event_Buffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[reconcile] ", log.LstdFlags)
	}
	return &Reconciler{
		state:          State_Pending,
		target:         target,
		conversationID: conversationID,
		messageID:      messageID,
		opts:           opts,
		logger:         logger,
		events:         make(chan Event, size),
		done:           make(chan struct{}),
	}
}

func (r *Reconciler) Conversation_ID() string { return r.conversationID }
func (r *Reconciler) Message_ID() int64       { return r.messageID }

// Events is closed once the reconciler reaches a terminal state. Deltas may
// be dropped for a slow reader; state and done events are not.
func (r *Reconciler) Events() <-chan Event { return r.events }

// Done is closed at the terminal state.
func (r *Reconciler) Done() <-chan struct{} { return r.done }

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Content returns the text accumulated from deltas so far.
func (r *Reconciler) Content() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content.String()
}

// Run consumes a provider stream until both channels are closed. Deltas that
// arrive after a terminal state are discarded.
func (r *Reconciler) Run(deltas <-chan string, errs <-chan error) {
	var streamErr error
	for deltas != nil || errs != nil {
		select {
		case d, ok := <-deltas:
			if !ok {
				deltas = nil
				continue
			}
			r.append(d)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && streamErr == nil {
				streamErr = err
				r.fail(err)
			}
		}
	}
	if streamErr == nil {
		r.succeed()
	}
}

// Run_Media waits for a single media result. fn should honour the
// reconciler's transport context so Cancel can stop it.
func (r *Reconciler) Run_Media(fn func() (models.Media_Result, error)) {
	res, err := fn()
	if err != nil {
		r.fail(err)
		return
	}

	r.mu.Lock()
	if r.state.Terminal() || r.cancelled {
		r.mu.Unlock()
		return
	}
	content := media_Success_Content(r.opts.Media_Kind)
	outcome := stores.OutcomeSuccess
	att := stores.Attachment{ImageURL: res.ImageURL, VideoURL: res.VideoURL, Model: res.Model}
	r.finishLocked(State_Success, conversation.Patch{Content: &content, Outcome: &outcome, Attachment: &att})
	r.mu.Unlock()
}

// Cancel stops the stream and keeps whatever text already arrived. It is
// idempotent and a no-op after a terminal state.
func (r *Reconciler) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked()
}

func (r *Reconciler) cancelLocked() {
	if r.state.Terminal() {
		return
	}
	r.cancelled = true
	if r.opts.Cancel != nil {
		r.opts.Cancel()
	}
	outcome := stores.OutcomeCancelled
	patch := conversation.Patch{Outcome: &outcome}
	if r.deltas == 0 {
		content := conversation.Stopped_Content
		patch.Content = &content
	}
	r.finishLocked(State_Cancelled, patch)
}

func (r *Reconciler) append(d string) {
	if d == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled || r.state.Terminal() {
		return
	}
	r.content.WriteString(d)
	r.deltas++
	if r.state == State_Pending {
		r.setStateLocked(State_Streaming)
	}
	// The whole buffer is written each time so a stale remote echo of a
	// shorter prefix is overwritten by the next delta.
	content := r.content.String()
	r.target.Update_Message(r.conversationID, r.messageID, conversation.Patch{Content: &content})
	r.emitDeltaLocked(d)
}

func (r *Reconciler) succeed() {
	r.mu.Lock()
	if r.cancelled || r.state.Terminal() {
		r.mu.Unlock()
		return
	}
	if r.deltas == 0 {
		r.mu.Unlock()
		r.fail(models.New_Error(r.opts.Provider, models.Malformed_Response, "empty response"))
		return
	}
	content := r.content.String()
	outcome := stores.OutcomeSuccess
	r.finishLocked(State_Success, conversation.Patch{Content: &content, Outcome: &outcome})
	r.mu.Unlock()

	if r.opts.On_Success != nil {
		r.successOnce.Do(func() { r.opts.On_Success(content) })
	}
}

func (r *Reconciler) fail(err error) {
	pe := models.As_Provider_Error(r.opts.Provider, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled || r.state.Terminal() {
		return
	}
	// A transport cancelled from outside (shutdown, client gone) counts as a stop.
	if pe.Kind == models.Cancelled {
		r.cancelLocked()
		return
	}

	r.logger.Printf("Provider %s failed for message %d: %v", r.opts.Provider, r.messageID, pe)
	var content string
	switch {
	case r.opts.Media_Kind != "":
		content = Media_Error_Content(r.opts.Media_Kind, pe)
	case r.opts.Failure_Content != nil:
		content = r.opts.Failure_Content(pe)
	default:
		content = Format_Error(r.opts.Provider_Name, r.opts.Persona_Name, pe)
	}
	outcome := stores.OutcomeError
	label := r.opts.Label
	if !strings.HasSuffix(label, Error_Label_Suffix) {
		label += Error_Label_Suffix
	}
	r.finishLocked(State_Error, conversation.Patch{Content: &content, Outcome: &outcome, ProviderLabel: &label})
}

// finishLocked applies the terminal patch, emits state and done, and
// closes the event channel. Callers hold r.mu.
func (r *Reconciler) finishLocked(state State, patch conversation.Patch) {
	r.target.Update_Message(r.conversationID, r.messageID, patch)
	r.setStateLocked(state)

	ev := Event{Kind: Event_Done, Conversation_ID: r.conversationID, Message_ID: r.messageID, State: state}
	if conv, ok := r.target.Get(r.conversationID); ok {
		for i := range conv.Messages {
			if conv.Messages[i].ID == r.messageID {
				m := conv.Messages[i]
				ev.Message = &m
				break
			}
		}
	}
	r.emitLocked(ev)
	close(r.events)
	close(r.done)
}

func (r *Reconciler) setStateLocked(state State) {
	r.state = state
	r.emitLocked(Event{Kind: Event_State, Conversation_ID: r.conversationID, Message_ID: r.messageID, State: state})
}

func (r *Reconciler) emitDeltaLocked(text string) {
	select {
	case r.events <- Event{Kind: Event_Delta, Conversation_ID: r.conversationID, Message_ID: r.messageID, Text: text}:
	default:
	}
}

// emitLocked never blocks: when the buffer is full the oldest event is
// dropped to make room.
func (r *Reconciler) emitLocked(ev Event) {
	for {
		select {
		case r.events <- ev:
			return
		default:
		}
		select {
		case <-r.events:
		default:
		}
	}
}
