// Package syncbridge mirrors the conversation store to a remote document
// store for one identity and applies remote snapshots back.
package syncbridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/catchmeifyoucaan/lagosai/conversation"
	"github.com/catchmeifyoucaan/lagosai/stores"
)

const (
	Default_Debounce = 800 * time.Millisecond
	flushTimeout     = 10 * time.Second
)

var ErrUnknownConversation = errors.New("unknown conversation")

type Options struct {
	Debounce time.Duration
	Logger   *log.Logger
	Now      func() time.Time
}

// Bridge keeps one identity's remote documents and the local store in step.
// Remote snapshots replace local state; local changes are written back,
// message edits through a single debounce timer, everything else at once.
type Bridge struct {
	store  *conversation.Store
	remote stores.RemoteStore
	uid    string

	debounce time.Duration
	logger   *log.Logger
	now      func() time.Time

	mu          sync.Mutex
	cursors     map[string]string
	applied     bool
	dirty       map[string]bool
	inflight    map[string]int
	timer       *time.Timer
	pendingMeta string

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	loopDone    chan struct{}
	writes      sync.WaitGroup
}

func New(store *conversation.Store, remote stores.RemoteStore, uid string, opts Options) *Bridge {
	b := &Bridge{
		store:    store,
		remote:   remote,
		uid:      uid,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		now:      opts.Now,
		cursors:  make(map[string]string),
		dirty:    make(map[string]bool),
		inflight: make(map[string]int),
	}
	if b.debounce <= 0 {
		b.debounce = Default_Debounce
	}
	if b.logger == nil {
		b.logger = log.New(os.Stdout, "[sync] ", log.LstdFlags)
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func (b *Bridge) UID() string { return b.uid }

// Start subscribes to the remote collection and begins mirroring.
func (b *Bridge) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	snaps, err := b.remote.Subscribe(ctx, b.uid)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to remote store: %w", err)
	}

	b.mu.Lock()
	b.ctx = ctx
	b.cancel = cancel
	b.loopDone = make(chan struct{})
	b.mu.Unlock()

	b.unsubscribe = b.store.Subscribe(b.onChange)
	go b.loop(snaps)
	b.logger.Printf("Sync started for %s", b.uid)
	return nil
}

// Stop ends the subscription and flushes any pending debounced write. A
// flush that already fired finishes before the remote context is cancelled.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	loopDone := b.loopDone
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.cancel = nil
	b.mu.Unlock()
	if cancel == nil {
		return
	}

	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.writes.Wait()

	b.mu.Lock()
	pending := len(b.dirty) > 0
	b.mu.Unlock()
	if pending {
		ctx, done := context.WithTimeout(context.Background(), flushTimeout)
		b.flushWith(ctx)
		done()
	}
	cancel()
	<-loopDone
	b.logger.Printf("Sync stopped for %s", b.uid)
}

func (b *Bridge) loop(snaps <-chan stores.Snapshot) {
	defer close(b.loopDone)
	first := true
	for snap := range snaps {
		snap = latest(snaps, snap)
		if first {
			first = false
			if len(snap.Conversations) == 0 && len(b.store.List()) > 0 {
				b.migrate()
				continue
			}
		}
		b.apply(snap)
	}
}

// latest drains queued snapshots so only the newest state is applied.
func latest(snaps <-chan stores.Snapshot, snap stores.Snapshot) stores.Snapshot {
	for {
		select {
		case next, ok := <-snaps:
			if !ok {
				return snap
			}
			snap = next
		default:
			return snap
		}
	}
}

// migrate pushes every local conversation to an empty remote. The snapshot
// that triggered it is not applied; the echo of these writes is.
func (b *Bridge) migrate() {
	convs := b.store.List()
	current := b.store.Current_ID()
	if current == "" && len(convs) > 0 {
		current = convs[0].ID
	}
	b.logger.Printf("Migrating %d local conversations for %s", len(convs), b.uid)

	b.mu.Lock()
	b.pendingMeta = current
	b.applied = true
	ctx := b.ctx
	b.mu.Unlock()

	for _, conv := range convs {
		b.pushConversation(ctx, conv)
	}
	b.pushMeta(ctx, current)
}

func (b *Bridge) apply(snap stores.Snapshot) {
	b.mu.Lock()
	target := ""
	if b.pendingMeta != "" {
		target = b.pendingMeta
		if snap.Meta != nil && snap.Meta.CurrentConversationID == b.pendingMeta {
			b.pendingMeta = ""
		}
	} else if snap.Meta != nil {
		target = snap.Meta.CurrentConversationID
	}
	protected := make(map[string]bool, len(b.dirty)+len(b.inflight))
	for id := range b.dirty {
		protected[id] = true
	}
	for id := range b.inflight {
		protected[id] = true
	}
	var prev map[string]string
	if b.applied {
		prev = make(map[string]string, len(b.cursors))
		for id, h := range b.cursors {
			prev[id] = h
		}
	}
	b.mu.Unlock()

	// A local edit still waiting for its own write outranks the remote copy.
	// After the first snapshot, so does local content that was never pushed.
	keep := func(local stores.Conversation) bool {
		if protected[local.ID] {
			return true
		}
		if prev == nil {
			return false
		}
		hash, ok := prev[local.ID]
		return !ok || hash != Content_Hash(local.Messages)
	}
	b.store.Merge_Remote(snap.Conversations, target, keep)

	cursors := make(map[string]string, len(snap.Conversations))
	for _, conv := range snap.Conversations {
		cursors[conv.ID] = Content_Hash(conv.Messages)
	}
	b.mu.Lock()
	b.cursors = cursors
	b.applied = true
	b.mu.Unlock()
}

func (b *Bridge) onChange(c conversation.Change) {
	b.mu.Lock()
	ctx := b.ctx
	active := b.cancel != nil
	b.mu.Unlock()
	if !active {
		return
	}

	switch c.Kind {
	case conversation.Change_Replaced:
		return
	case conversation.Change_Appended, conversation.Change_Updated:
		b.schedule(c.Conversation_ID)
	case conversation.Change_Created:
		b.async(func() {
			if conv, ok := b.store.Get(c.Conversation_ID); ok {
				b.pushConversation(ctx, conv)
			}
			b.selectCurrent(ctx, c.Conversation_ID)
		})
	case conversation.Change_Renamed, conversation.Change_Persona:
		b.async(func() {
			if conv, ok := b.store.Get(c.Conversation_ID); ok {
				b.pushConversation(ctx, conv)
			}
		})
	case conversation.Change_Switched:
		b.async(func() { b.selectCurrent(ctx, c.Conversation_ID) })
	case conversation.Change_Deleted:
		b.mu.Lock()
		delete(b.dirty, c.Conversation_ID)
		delete(b.cursors, c.Conversation_ID)
		b.mu.Unlock()
		b.async(func() {
			if err := b.remote.DeleteConversation(ctx, b.uid, c.Conversation_ID); err != nil {
				b.logger.Printf("RemoteWriteFailure deleting %s: %v", c.Conversation_ID, err)
			}
			if current := b.store.Current_ID(); current != "" {
				b.selectCurrent(ctx, current)
			}
		})
	case conversation.Change_Imported:
		convs := b.store.List()
		current := b.store.Current_ID()
		b.async(func() {
			for _, conv := range convs {
				b.pushConversation(ctx, conv)
			}
			b.selectCurrent(ctx, current)
		})
	}
}

// async runs fn as a tracked write. Nothing starts once Stop has begun.
func (b *Bridge) async(fn func()) {
	b.mu.Lock()
	if b.cancel == nil {
		b.mu.Unlock()
		return
	}
	b.writes.Add(1)
	b.mu.Unlock()
	go func() {
		defer b.writes.Done()
		fn()
	}()
}

// schedule marks a conversation dirty and re-arms the debounce timer, unless
// its content already matches what was last pushed.
func (b *Bridge) schedule(conversationID string) {
	conv, ok := b.store.Get(conversationID)
	if !ok {
		return
	}
	hash := Content_Hash(conv.Messages)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cursors[conversationID] == hash {
		return
	}
	b.dirty[conversationID] = true
	if b.cancel == nil {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.debounce, b.flush)
}

// flush is the debounce timer's callback. It counts as a tracked write so
// Stop waits for it.
func (b *Bridge) flush() {
	b.mu.Lock()
	ctx := b.ctx
	active := b.cancel != nil
	if active {
		b.writes.Add(1)
	}
	b.mu.Unlock()
	if !active {
		return
	}
	defer b.writes.Done()
	b.flushWith(ctx)
}

// flushWith pushes every dirty conversation once. Failures are logged and
// dropped; the next local edit schedules another attempt.
func (b *Bridge) flushWith(ctx context.Context) {
	b.mu.Lock()
	ids := make([]string, 0, len(b.dirty))
	for id := range b.dirty {
		ids = append(ids, id)
		b.inflight[id]++
	}
	b.dirty = make(map[string]bool)
	b.mu.Unlock()

	pushed := false
	for _, id := range ids {
		// Re-read right before writing so no stale copy is pushed.
		if conv, ok := b.store.Get(id); ok {
			b.mu.Lock()
			same := b.cursors[id] == Content_Hash(conv.Messages)
			b.mu.Unlock()
			if !same && b.pushConversation(ctx, conv) {
				pushed = true
			}
		}
		b.mu.Lock()
		if b.inflight[id]--; b.inflight[id] <= 0 {
			delete(b.inflight, id)
		}
		b.mu.Unlock()
	}
	if pushed {
		if current := b.store.Current_ID(); current != "" {
			b.pushMeta(ctx, current)
		}
	}
}

func (b *Bridge) pushConversation(ctx context.Context, conv stores.Conversation) bool {
	if err := b.remote.PutConversation(ctx, b.uid, conv); err != nil {
		b.logger.Printf("RemoteWriteFailure pushing %s: %v", conv.ID, err)
		return false
	}
	b.mu.Lock()
	b.cursors[conv.ID] = Content_Hash(conv.Messages)
	b.mu.Unlock()
	return true
}

// selectCurrent records a local selection and writes it to the meta record.
// Until the remote echoes it back, remote meta values are not applied.
func (b *Bridge) selectCurrent(ctx context.Context, id string) {
	b.mu.Lock()
	b.pendingMeta = id
	b.mu.Unlock()
	b.pushMeta(ctx, id)
}

func (b *Bridge) pushMeta(ctx context.Context, current string) {
	meta := stores.Meta{CurrentConversationID: current, UpdatedAt: b.now()}
	if err := b.remote.PutMeta(ctx, b.uid, meta); err != nil {
		b.logger.Printf("RemoteWriteFailure writing meta: %v", err)
		b.mu.Lock()
		if b.pendingMeta == current {
			b.pendingMeta = ""
		}
		b.mu.Unlock()
	}
}

// Share writes a read-only copy of a conversation under a new random token.
func (b *Bridge) Share(ctx context.Context, conversationID string) (string, error) {
	conv, ok := b.store.Get(conversationID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}
	token := New_Share_Token()
	doc := stores.SharedConversation{Token: token, Conversation: conv, SharedAt: b.now()}
	if err := b.remote.PutShared(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to create share link: %w", err)
	}
	return token, nil
}

// Shared reads a share document back.
func (b *Bridge) Shared(ctx context.Context, token string) (stores.SharedConversation, error) {
	return b.remote.GetShared(ctx, token)
}

// New_Share_Token returns a random URL-safe token.
func New_Share_Token() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Content_Hash fingerprints a message list for redundant-write suppression.
func Content_Hash(msgs []stores.Message) string {
	if msgs == nil {
		msgs = []stores.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
