package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryUser struct {
	conversations map[string]Conversation
	meta          *Meta
	subscribers   map[int]chan Snapshot
}

// MemoryRemote is a push-based RemoteStore. Every write is delivered to the
// user's subscribers synchronously, which makes it a deterministic stand-in
// for a hosted document store in tests.
type MemoryRemote struct {
	mu     sync.Mutex
	users  map[string]*memoryUser
	shared map[string]SharedConversation
	nextID int

	failWrites bool
	writes     int
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		users:  make(map[string]*memoryUser),
		shared: make(map[string]SharedConversation),
	}
}

// SetFailWrites makes every subsequent write fail with ErrRemoteWrite.
func (r *MemoryRemote) SetFailWrites(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWrites = fail
}

// Writes counts write attempts, failed ones included.
func (r *MemoryRemote) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// Conversation returns the stored document, for assertions.
func (r *MemoryRemote) Conversation(uid, id string) (Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uid]
	if !ok {
		return Conversation{}, false
	}
	c, ok := u.conversations[id]
	return c.Clone(), ok
}

// Meta returns the stored meta document, for assertions.
func (r *MemoryRemote) Meta(uid string) (Meta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[uid]; ok && u.meta != nil {
		return *u.meta, true
	}
	return Meta{}, false
}

// Subscribers counts the live subscriptions of uid, for assertions.
func (r *MemoryRemote) Subscribers(uid string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[uid]; ok {
		return len(u.subscribers)
	}
	return 0
}

func (r *MemoryRemote) user(uid string) *memoryUser {
	u, ok := r.users[uid]
	if !ok {
		u = &memoryUser{
			conversations: make(map[string]Conversation),
			subscribers:   make(map[int]chan Snapshot),
		}
		r.users[uid] = u
	}
	return u
}

// write runs fn under the lock and then notifies subscribers.
func (r *MemoryRemote) write(uid string, fn func(u *memoryUser)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.failWrites {
		return fmt.Errorf("%w: remote unavailable", ErrRemoteWrite)
	}
	u := r.user(uid)
	fn(u)
	snap := u.snapshot()
	for _, ch := range u.subscribers {
		deliverLatest(ch, snap)
	}
	return nil
}

func (r *MemoryRemote) PutConversation(ctx context.Context, uid string, conv Conversation) error {
	return r.write(uid, func(u *memoryUser) {
		u.conversations[conv.ID] = conv.Clone()
	})
}

func (r *MemoryRemote) DeleteConversation(ctx context.Context, uid, conversationID string) error {
	return r.write(uid, func(u *memoryUser) {
		delete(u.conversations, conversationID)
	})
}

func (r *MemoryRemote) PutMeta(ctx context.Context, uid string, meta Meta) error {
	return r.write(uid, func(u *memoryUser) {
		m := meta
		u.meta = &m
	})
}

// Seed replaces a user's documents without counting as a client write, as if
// another device had written them.
func (r *MemoryRemote) Seed(uid string, convs []Conversation, meta *Meta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.user(uid)
	u.conversations = make(map[string]Conversation, len(convs))
	for _, c := range convs {
		u.conversations[c.ID] = c.Clone()
	}
	if meta != nil {
		m := *meta
		u.meta = &m
	}
	snap := u.snapshot()
	for _, ch := range u.subscribers {
		deliverLatest(ch, snap)
	}
}

func (r *MemoryRemote) Subscribe(ctx context.Context, uid string) (<-chan Snapshot, error) {
	r.mu.Lock()
	u := r.user(uid)
	id := r.nextID
	r.nextID++
	ch := make(chan Snapshot, 8)
	u.subscribers[id] = ch
	ch <- u.snapshot()
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(u.subscribers, id)
		close(ch)
		r.mu.Unlock()
	}()
	return ch, nil
}

func (r *MemoryRemote) PutShared(ctx context.Context, doc SharedConversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.failWrites {
		return fmt.Errorf("%w: remote unavailable", ErrRemoteWrite)
	}
	if _, exists := r.shared[doc.Token]; exists {
		return fmt.Errorf("%w: share token %s already exists", ErrRemoteWrite, doc.Token)
	}
	doc.Conversation = doc.Conversation.Clone()
	r.shared[doc.Token] = doc
	return nil
}

func (r *MemoryRemote) GetShared(ctx context.Context, token string) (SharedConversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.shared[token]
	if !ok {
		return SharedConversation{}, ErrNotFound
	}
	doc.Conversation = doc.Conversation.Clone()
	return doc, nil
}

func (r *MemoryRemote) Close() error { return nil }

// snapshot orders conversations newest first, as the hosted store query does.
func (u *memoryUser) snapshot() Snapshot {
	convs := make([]Conversation, 0, len(u.conversations))
	for _, c := range u.conversations {
		convs = append(convs, c.Clone())
	}
	sortConversations(convs)
	snap := Snapshot{Conversations: convs}
	if u.meta != nil {
		m := *u.meta
		snap.Meta = &m
	}
	return snap
}

func sortConversations(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
}

// deliverLatest never blocks: when the buffer is full the oldest pending
// snapshot is dropped, since only the latest state matters.
func deliverLatest(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
