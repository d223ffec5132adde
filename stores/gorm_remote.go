package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPollInterval is how often a subscription re-reads the tables.
const DefaultPollInterval = 2 * time.Second

// ConversationRecord is users/{uid}/conversations/{id}.
type ConversationRecord struct {
	UserID         string `gorm:"primaryKey;size:128"`
	ConversationID string `gorm:"primaryKey;size:64"`
	Title          string `gorm:"type:text"`
	PersonaKey     string `gorm:"size:64"`
	Renamed        bool
	Messages       datatypes.JSON
	StartedAt      time.Time
	LastActivity   time.Time `gorm:"index"`
}

// MetaRecord is users/{uid}/meta.
type MetaRecord struct {
	UserID                string `gorm:"primaryKey;size:128"`
	CurrentConversationID string `gorm:"size:64"`
	UpdatedAt             time.Time
}

// SharedRecord is shared/{token}. Rows are inserted once and never updated.
type SharedRecord struct {
	Token        string `gorm:"primaryKey;size:64"`
	Conversation datatypes.JSON
	SharedAt     time.Time
}

// GormRemote implements RemoteStore on a SQL database. Subscriptions poll
// on a cron schedule and emit only when the user's documents changed.
type GormRemote struct {
	db           *gorm.DB
	pollInterval time.Duration
	cron         *cron.Cron
	logger       *log.Logger
}

func newGormRemote(db *gorm.DB, config *StoreConfig) (*GormRemote, error) {
	if err := db.AutoMigrate(&ConversationRecord{}, &MetaRecord{}, &SharedRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	interval := DefaultPollInterval
	if v := config.Options["poll_interval"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid poll_interval %q: %w", v, err)
		}
		interval = d
	}

	r := &GormRemote{
		db:           db,
		pollInterval: interval,
		cron:         cron.New(cron.WithSeconds()),
		logger:       log.New(os.Stdout, "[remote] ", log.LstdFlags),
	}
	r.cron.Start()
	return r, nil
}

func toRecord(uid string, conv Conversation) (ConversationRecord, error) {
	msgs := conv.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return ConversationRecord{}, err
	}
	return ConversationRecord{
		UserID:         uid,
		ConversationID: conv.ID,
		Title:          conv.Title,
		PersonaKey:     conv.PersonaKey,
		Renamed:        conv.Renamed,
		Messages:       datatypes.JSON(raw),
		StartedAt:      conv.CreatedAt,
		LastActivity:   conv.UpdatedAt,
	}, nil
}

func fromRecord(rec ConversationRecord) (Conversation, error) {
	conv := Conversation{
		ID:         rec.ConversationID,
		Title:      rec.Title,
		PersonaKey: rec.PersonaKey,
		Renamed:    rec.Renamed,
		CreatedAt:  rec.StartedAt,
		UpdatedAt:  rec.LastActivity,
		Messages:   []Message{},
	}
	if len(rec.Messages) > 0 {
		if err := json.Unmarshal(rec.Messages, &conv.Messages); err != nil {
			return Conversation{}, fmt.Errorf("corrupt messages for %s: %w", rec.ConversationID, err)
		}
	}
	return conv, nil
}

func (r *GormRemote) PutConversation(ctx context.Context, uid string, conv Conversation) error {
	rec, err := toRecord(uid, conv)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal messages: %v", ErrRemoteWrite, err)
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

func (r *GormRemote) DeleteConversation(ctx context.Context, uid, conversationID string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", uid, conversationID).
		Delete(&ConversationRecord{}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

func (r *GormRemote) PutMeta(ctx context.Context, uid string, meta Meta) error {
	rec := MetaRecord{UserID: uid, CurrentConversationID: meta.CurrentConversationID, UpdatedAt: meta.UpdatedAt}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

func (r *GormRemote) PutShared(ctx context.Context, doc SharedConversation) error {
	raw, err := json.Marshal(doc.Conversation)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal shared conversation: %v", ErrRemoteWrite, err)
	}
	rec := SharedRecord{Token: doc.Token, Conversation: datatypes.JSON(raw), SharedAt: doc.SharedAt}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

func (r *GormRemote) GetShared(ctx context.Context, token string) (SharedConversation, error) {
	var rec SharedRecord
	err := r.db.WithContext(ctx).Where("token = ?", token).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SharedConversation{}, ErrNotFound
	}
	if err != nil {
		return SharedConversation{}, fmt.Errorf("failed to read shared conversation: %w", err)
	}
	doc := SharedConversation{Token: rec.Token, SharedAt: rec.SharedAt}
	if err := json.Unmarshal(rec.Conversation, &doc.Conversation); err != nil {
		return SharedConversation{}, fmt.Errorf("corrupt shared conversation %s: %w", token, err)
	}
	return doc, nil
}

// load reads all of a user's documents as one snapshot.
func (r *GormRemote) load(ctx context.Context, uid string) (Snapshot, error) {
	var recs []ConversationRecord
	if err := r.db.WithContext(ctx).Where("user_id = ?", uid).Order("last_activity DESC").Find(&recs).Error; err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	snap := Snapshot{Conversations: make([]Conversation, 0, len(recs))}
	for _, rec := range recs {
		conv, err := fromRecord(rec)
		if err != nil {
			r.logger.Printf("Skipping conversation: %v", err)
			continue
		}
		snap.Conversations = append(snap.Conversations, conv)
	}
	sortConversations(snap.Conversations)

	var meta MetaRecord
	err := r.db.WithContext(ctx).Where("user_id = ?", uid).Take(&meta).Error
	switch {
	case err == nil:
		snap.Meta = &Meta{CurrentConversationID: meta.CurrentConversationID, UpdatedAt: meta.UpdatedAt}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Snapshot{}, fmt.Errorf("failed to fetch meta: %w", err)
	}
	return snap, nil
}

func fingerprint(snap Snapshot) string {
	raw, _ := json.Marshal(snap)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Subscribe emits the initial snapshot, then polls every pollInterval.
func (r *GormRemote) Subscribe(ctx context.Context, uid string) (<-chan Snapshot, error) {
	first, err := r.load(ctx, uid)
	if err != nil {
		return nil, err
	}

	ch := make(chan Snapshot, 1)
	ch <- first
	last := fingerprint(first)

	ticks := make(chan struct{}, 1)
	entryID, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.pollInterval), func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule poller: %w", err)
	}

	go func() {
		defer close(ch)
		defer r.cron.Remove(entryID)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
			}

			snap, err := r.load(ctx, uid)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Printf("Poll failed for %s: %v", uid, err)
				}
				continue
			}
			fp := fingerprint(snap)
			if fp == last {
				continue
			}
			last = fp
			deliverLatest(ch, snap)
		}
	}()
	return ch, nil
}

func (r *GormRemote) Close() error {
	<-r.cron.Stop().Done()
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (r *GormRemote) Ping() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
