// Package export reads and writes the conversation library and single-chat
// JSON files.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/catchmeifyoucaan/lagosai/stores"
)

const Library_Version = 1

// ErrInvalidLibrary is returned when an import file is not a library.
var ErrInvalidLibrary = errors.New("invalid library file")

// Library is the bulk export format.
type Library struct {
	Conversations         []stores.Conversation `json:"conversations"`
	CurrentConversationID string                `json:"currentConversationId,omitempty"`
	Version               int                   `json:"version"`
}

// Chat_Settings is the preference block recorded with a single-chat export.
type Chat_Settings struct {
	SelectedAI         string `json:"selectedAI"`
	ImageStyle         string `json:"imageStyle"`
	DarkMode           bool   `json:"darkMode"`
	SoundEnabled       bool   `json:"soundEnabled"`
	SelectedPersonaKey string `json:"selectedPersonaKey"`
}

// Chat is the single-conversation export format.
type Chat struct {
	Timestamp time.Time        `json:"timestamp"`
	Settings  Chat_Settings    `json:"settings"`
	Messages  []stores.Message `json:"messages"`
}

func Write_Library(w io.Writer, convs []stores.Conversation, currentID string) error {
	if convs == nil {
		convs = []stores.Conversation{}
	}
	return writeIndented(w, Library{Conversations: convs, CurrentConversationID: currentID, Version: Library_Version})
}

// Read_Library decodes a library file. The whole document is validated
// before it is returned, so a rejected file never reaches the store.
func Read_Library(r io.Reader) (Library, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Library{}, fmt.Errorf("failed to read library: %w", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Library{}, fmt.Errorf("%w: %v", ErrInvalidLibrary, err)
	}
	raw, ok := probe["conversations"]
	if !ok {
		return Library{}, fmt.Errorf("%w: missing conversations", ErrInvalidLibrary)
	}
	if raw = bytes.TrimSpace(raw); len(raw) == 0 || raw[0] != '[' {
		return Library{}, fmt.Errorf("%w: conversations is not an array", ErrInvalidLibrary)
	}

	var lib Library
	if err := json.Unmarshal(data, &lib); err != nil {
		return Library{}, fmt.Errorf("%w: %v", ErrInvalidLibrary, err)
	}
	seen := make(map[string]bool, len(lib.Conversations))
	for i := range lib.Conversations {
		id := lib.Conversations[i].ID
		if id == "" {
			return Library{}, fmt.Errorf("%w: conversation %d has no id", ErrInvalidLibrary, i)
		}
		if seen[id] {
			return Library{}, fmt.Errorf("%w: duplicate conversation id %q", ErrInvalidLibrary, id)
		}
		seen[id] = true
		if lib.Conversations[i].Messages == nil {
			lib.Conversations[i].Messages = []stores.Message{}
		}
	}
	return lib, nil
}

// Current resolves which conversation should be current after an import:
// the file's choice when it names a conversation in the file, else the first.
func (l Library) Current() string {
	for _, c := range l.Conversations {
		if c.ID == l.CurrentConversationID {
			return c.ID
		}
	}
	if len(l.Conversations) > 0 {
		return l.Conversations[0].ID
	}
	return ""
}

func Write_Chat(w io.Writer, settings Chat_Settings, messages []stores.Message) error {
	if messages == nil {
		messages = []stores.Message{}
	}
	return writeIndented(w, Chat{Timestamp: time.Now().UTC(), Settings: settings, Messages: messages})
}

func Library_File_Name(now time.Time) string {
	return fmt.Sprintf("lagos-oracle-library-%d.json", now.UnixMilli())
}

func Chat_File_Name(now time.Time) string {
	return fmt.Sprintf("lagos-oracle-chat-%d.json", now.UnixMilli())
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}
