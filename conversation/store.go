package conversation

import (
	"log"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/catchmeifyoucaan/lagosai/stores"
)

const (
	Default_Title    = "New chat"
	Title_Max_Length = 60
)

type Change_Kind string

const (
	Change_Created  Change_Kind = "created"
	Change_Deleted  Change_Kind = "deleted"
	Change_Renamed  Change_Kind = "renamed"
	Change_Persona  Change_Kind = "persona"
	Change_Switched Change_Kind = "switched"
	Change_Appended Change_Kind = "appended"
	Change_Updated  Change_Kind = "updated"
	Change_Replaced Change_Kind = "replaced"
	Change_Imported Change_Kind = "imported"
)

// Change describes one store mutation to subscribers.
type Change struct {
	Kind             Change_Kind `json:"kind"`
	Conversation_ID  string      `json:"conversationId,omitempty"`
	Messages_Changed bool        `json:"messagesChanged"`
}

// Patch is a partial update to a message. Nil fields are left alone.
type Patch struct {
	Content       *string
	Outcome       *stores.Outcome
	ProviderLabel *string
	Attachment    *stores.Attachment
}

// Store is the single authoritative conversation list. Every mutation is
// written through to the local cache; subscribers are notified after the
// lock is released.
type Store struct {
	mu            sync.Mutex
	conversations []stores.Conversation
	currentID     string

	cache  stores.Cache
	logger *log.Logger
	now    func() time.Time

	subMu     sync.Mutex
	listeners map[int]func(Change)
	nextSub   int
}

func New_Store(cache stores.Cache) *Store {
	if cache == nil {
		cache = stores.NewMemoryCache()
	}
	return &Store{
		cache:     cache,
		logger:    log.New(os.Stdout, "[conversations] ", log.LstdFlags),
		now:       time.Now,
		listeners: make(map[int]func(Change)),
	}
}

// With_Logger replaces the default stdout logger.
func (s *Store) With_Logger(logger *log.Logger) *Store {
	s.logger = logger
	return s
}

// Load reads the persisted collection. Missing or corrupt data gives an empty list.
func (s *Store) Load() {
	var convs []stores.Conversation
	if _, err := stores.GetJSON(s.cache, stores.KeyConversations, &convs); err != nil {
		s.logger.Printf("Ignoring stored conversations: %v", err)
		convs = nil
	}
	var current string
	if _, err := stores.GetJSON(s.cache, stores.KeyCurrentConvID, &current); err != nil {
		s.logger.Printf("Ignoring stored current conversation: %v", err)
		current = ""
	}

	s.mu.Lock()
	s.conversations = convs
	s.currentID = current
	if s.indexOf(current) < 0 {
		s.currentID = ""
		if len(s.conversations) > 0 {
			s.currentID = s.conversations[0].ID
		}
	}
	s.mu.Unlock()
}

// Subscribe registers fn for change notifications and returns a function
// that unregisters it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.listeners, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// persist writes the collection and the current id. Callers hold s.mu.
// Failures are logged and swallowed; the in-memory state stays authoritative.
func (s *Store) persist() {
	if err := stores.PutJSON(s.cache, stores.KeyConversations, s.conversations); err != nil {
		s.logger.Printf("Failed to persist conversations: %v", err)
	}
	if err := stores.PutJSON(s.cache, stores.KeyCurrentConvID, s.currentID); err != nil {
		s.logger.Printf("Failed to persist current conversation: %v", err)
	}
}

// Create_Conversation prepends a fresh conversation and makes it current.
func (s *Store) Create_Conversation(personaKey string) stores.Conversation {
	now := s.now()
	conv := stores.Conversation{
		ID:         New_Conversation_ID(),
		Title:      Default_Title,
		PersonaKey: personaKey,
		CreatedAt:  now,
		UpdatedAt:  now,
		Messages:   []stores.Message{},
	}

	s.mu.Lock()
	s.conversations = append([]stores.Conversation{conv}, s.conversations...)
	s.currentID = conv.ID
	s.persist()
	s.mu.Unlock()

	s.notify(Change{Kind: Change_Created, Conversation_ID: conv.ID})
	return conv.Clone()
}

// Ensure_Current guarantees a current conversation exists, creating one if needed.
func (s *Store) Ensure_Current(personaKey string) stores.Conversation {
	s.mu.Lock()
	if i := s.indexOf(s.currentID); i >= 0 {
		conv := s.conversations[i].Clone()
		s.mu.Unlock()
		return conv
	}
	if len(s.conversations) > 0 {
		s.currentID = s.conversations[0].ID
		conv := s.conversations[0].Clone()
		s.persist()
		s.mu.Unlock()
		s.notify(Change{Kind: Change_Switched, Conversation_ID: conv.ID})
		return conv
	}
	s.mu.Unlock()
	return s.Create_Conversation(personaKey)
}

// Append_Message adds msg to a conversation. The title is derived from the
// first user message unless the conversation was renamed.
func (s *Store) Append_Message(conversationID string, msg stores.Message) bool {
	s.mu.Lock()
	i := s.indexOf(conversationID)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Printf("Append to unknown conversation %s ignored", conversationID)
		return false
	}
	conv := &s.conversations[i]
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = s.now()
	if !conv.Renamed {
		conv.Title = derive_Title(conv.Messages)
	}
	s.persist()
	s.mu.Unlock()

	s.notify(Change{Kind: Change_Appended, Conversation_ID: conversationID, Messages_Changed: true})
	return true
}

// Update_Message merges patch into a message. Unknown ids are a no-op.
// An attachment, once set, is never replaced.
func (s *Store) Update_Message(conversationID string, messageID int64, patch Patch) bool {
	s.mu.Lock()
	i := s.indexOf(conversationID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	conv := &s.conversations[i]
	found := false
	for j := range conv.Messages {
		m := &conv.Messages[j]
		if m.ID != messageID {
			continue
		}
		if patch.Content != nil {
			m.Content = *patch.Content
		}
		if patch.Outcome != nil {
			m.Outcome = *patch.Outcome
		}
		if patch.ProviderLabel != nil {
			m.ProviderLabel = *patch.ProviderLabel
		}
		if patch.Attachment != nil && m.Attachment == nil {
			a := *patch.Attachment
			m.Attachment = &a
		}
		found = true
		break
	}
	if !found {
		s.mu.Unlock()
		return false
	}
	conv.UpdatedAt = s.now()
	s.persist()
	s.mu.Unlock()

	s.notify(Change{Kind: Change_Updated, Conversation_ID: conversationID, Messages_Changed: true})
	return true
}

// Delete_Conversation removes a conversation and reports whether it was
// current. It never creates a replacement.
func (s *Store) Delete_Conversation(id string) (wasCurrent bool) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.conversations = append(s.conversations[:i:i], s.conversations[i+1:]...)
	wasCurrent = s.currentID == id
	if wasCurrent {
		s.currentID = ""
	}
	s.persist()
	s.mu.Unlock()

	s.notify(Change{Kind: Change_Deleted, Conversation_ID: id})
	return wasCurrent
}

// Rename sets an explicit title. A blank title is ignored.
func (s *Store) Rename(id, title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.conversations[i].Title = title
	s.conversations[i].Renamed = true
	s.conversations[i].UpdatedAt = s.now()
	s.persist()
	s.mu.Unlock()

	s.notify(Change{Kind: Change_Renamed, Conversation_ID: id})
	return true
}

func (s *Store) Set_Persona(id, personaKey string) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.conversations[i].PersonaKey = personaKey
	s.persist()
	s.mu.Unlock()

	s.notify(Change{Kind: Change_Persona, Conversation_ID: id})
	return true
}

// Set_Current switches the current conversation. Unknown ids are rejected.
func (s *Store) Set_Current(id string) bool {
	s.mu.Lock()
	if s.indexOf(id) < 0 {
		s.mu.Unlock()
		return false
	}
	changed := s.currentID != id
	s.currentID = id
	if changed {
		s.persist()
	}
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: Change_Switched, Conversation_ID: id})
	}
	return true
}

// Current returns a copy of the current conversation.
func (s *Store) Current() (stores.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(s.currentID)
	if i < 0 {
		return stores.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

func (s *Store) Current_ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Get returns a copy of one conversation.
func (s *Store) Get(id string) (stores.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return stores.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

// List returns copies of every conversation in display order.
func (s *Store) List() []stores.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stores.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

// Replace_All swaps in a whole collection, e.g. from a remote snapshot or an
// import. current is kept when present in convs; otherwise the local current
// id survives if still present, else the first conversation becomes current.
func (s *Store) Replace_All(convs []stores.Conversation, current string, kind Change_Kind) {
	cp := make([]stores.Conversation, len(convs))
	for i, c := range convs {
		cp[i] = c.Clone()
	}

	s.mu.Lock()
	s.conversations = cp
	switch {
	case current != "" && s.indexOf(current) >= 0:
		s.currentID = current
	case s.indexOf(s.currentID) >= 0:
	case len(s.conversations) > 0:
		s.currentID = s.conversations[0].ID
	default:
		s.currentID = ""
	}
	s.persist()
	s.mu.Unlock()

	if kind == "" {
		kind = Change_Replaced
	}
	s.notify(Change{Kind: kind, Messages_Changed: true})
}

// Merge_Remote applies a remote snapshot under the store lock. For every
// local conversation where keep reports true the local copy wins, whether or
// not the snapshot carries it. current is resolved as in Replace_All.
func (s *Store) Merge_Remote(convs []stores.Conversation, current string, keep func(local stores.Conversation) bool) {
	s.mu.Lock()
	local := make(map[string]stores.Conversation, len(s.conversations))
	for _, c := range s.conversations {
		local[c.ID] = c
	}

	merged := make([]stores.Conversation, 0, len(convs))
	seen := make(map[string]bool, len(convs))
	for _, c := range convs {
		seen[c.ID] = true
		if l, ok := local[c.ID]; ok && keep(l) {
			merged = append(merged, l)
			continue
		}
		merged = append(merged, c.Clone())
	}
	for _, c := range s.conversations {
		if !seen[c.ID] && keep(c) {
			merged = append(merged, c)
		}
	}
	s.conversations = merged
	switch {
	case current != "" && s.indexOf(current) >= 0:
		s.currentID = current
	case s.indexOf(s.currentID) >= 0:
	case len(s.conversations) > 0:
		s.currentID = s.conversations[0].ID
	default:
		s.currentID = ""
	}
	s.persist()
	s.mu.Unlock()

	s.notify(Change{Kind: Change_Replaced, Messages_Changed: true})
}

// derive_Title is the first user message cut to Title_Max_Length runes.
func derive_Title(msgs []stores.Message) string {
	for _, m := range msgs {
		if m.Role != stores.RoleUser {
			continue
		}
		t := strings.TrimSpace(m.Content)
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > Title_Max_Length {
			t = string([]rune(t)[:Title_Max_Length])
		}
		return t
	}
	return Default_Title
}
