package stores

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Cache.Get and RemoteStore reads for a missing key.
	ErrNotFound = errors.New("not found")
	// ErrLocalWrite wraps failures writing the local durable cache.
	ErrLocalWrite = errors.New("local write failure")
	// ErrRemoteWrite wraps failures writing the remote synchronized store.
	ErrRemoteWrite = errors.New("remote write failure")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Outcome is the terminal state of an assistant message. User messages
// always carry OutcomeSuccess.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// Attachment references generated media on an assistant message.
type Attachment struct {
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Message is one entry of a conversation.
type Message struct {
	ID            int64       `json:"id"`
	Role          Role        `json:"role"`
	Content       string      `json:"content"`
	CreatedAt     time.Time   `json:"timestamp"`
	ProviderLabel string      `json:"aiModel,omitempty"`
	Outcome       Outcome     `json:"outcome,omitempty"`
	Attachment    *Attachment `json:"attachment,omitempty"`
	PersonaKey    string      `json:"persona,omitempty"`
}

// Conversation is the unit of persistence, locally and remotely.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	PersonaKey string    `json:"persona"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"timestamp"`
	Messages   []Message `json:"messages"`
	Renamed    bool      `json:"renamed,omitempty"`
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Attachment != nil {
			a := *m.Attachment
			m.Attachment = &a
		}
		out.Messages[i] = m
	}
	return out
}

// Meta is the per-identity record holding the current conversation id.
type Meta struct {
	CurrentConversationID string    `json:"currentConversationId"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Snapshot is one state of a user's remote documents.
type Snapshot struct {
	Conversations []Conversation `json:"conversations"`
	Meta          *Meta          `json:"meta,omitempty"`
}

// SharedConversation is the read-only document behind a share link.
type SharedConversation struct {
	Token        string       `json:"token"`
	Conversation Conversation `json:"conversation"`
	SharedAt     time.Time    `json:"sharedAt"`
}

// Cache is the local durable key-value store. Values are JSON documents.
type Cache interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// RemoteStore is the per-identity synchronized document store.
type RemoteStore interface {
	PutConversation(ctx context.Context, uid string, conv Conversation) error
	DeleteConversation(ctx context.Context, uid, conversationID string) error
	PutMeta(ctx context.Context, uid string, meta Meta) error

	// Subscribe delivers the current snapshot immediately and a new one on
	// every change, until ctx ends. The channel is then closed.
	Subscribe(ctx context.Context, uid string) (<-chan Snapshot, error)

	// PutShared writes a share document once. Existing tokens are never overwritten.
	PutShared(ctx context.Context, doc SharedConversation) error
	GetShared(ctx context.Context, token string) (SharedConversation, error)

	Close() error
}

// StoreConfig holds configuration for the remote store.
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres", "memory"
	Connection string            `json:"connection"` // connection string
	Options    map[string]string `json:"options"`    // additional options, e.g. "poll_interval"
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
