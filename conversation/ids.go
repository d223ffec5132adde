package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	idMu   sync.Mutex
	lastID int64
)

// Next_Message_ID returns a millisecond timestamp, bumped so that ids are
// strictly increasing within the process even when the clock stalls or steps back.
func Next_Message_ID() int64 {
	idMu.Lock()
	defer idMu.Unlock()
	id := time.Now().UnixMilli()
	if id <= lastID {
		id = lastID + 1
	}
	lastID = id
	return id
}

// New_Conversation_ID returns a random UUID.
func New_Conversation_ID() string {
	return uuid.NewString()
}
