package sessions

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/catchmeifyoucaan/lagosai/conversation"
	"github.com/catchmeifyoucaan/lagosai/reconcile"
	"github.com/catchmeifyoucaan/lagosai/speech"
)

// SSEWriter handles Server-Sent Events writing
type SSEWriter interface {
	WriteSSE(event, data string) error
	WriteSSEError(err error) error
	Flush()
}

type Push_Kind string

const (
	Push_Conversation Push_Kind = "conversation"
	Push_Reconcile    Push_Kind = "reconcile"
	Push_Audio        Push_Kind = "audio"
	Push_Error        Push_Kind = "error"
	Push_Pong         Push_Kind = "pong"
)

// Push is one server-to-client websocket message.
type Push struct {
	Type   Push_Kind            `json:"type"`
	Change *conversation.Change `json:"change,omitempty"`
	Event  *reconcile.Event     `json:"event,omitempty"`
	Audio  *speech.Audio_Chunk  `json:"audio,omitempty"`
	Error  string               `json:"error,omitempty"`
}

type Command_Kind string

const (
	Command_Stop Command_Kind = "stop"
	Command_Ping Command_Kind = "ping"
)

// Command is one client-to-server websocket message.
type Command struct {
	Type            Command_Kind `json:"type"`
	Conversation_ID string       `json:"conversationId,omitempty"`
}

// WebSocketWriter serializes writes to one connection.
type WebSocketWriter struct {
	Conn   *websocket.Conn
	Logger *log.Logger
	mu     sync.Mutex
}

func (w *WebSocketWriter) WriteResponse(resp interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.Conn.WriteJSON(resp)
}

func (w *WebSocketWriter) WriteError(message string) error {
	return w.WriteResponse(Push{Type: Push_Error, Error: message})
}

func (w *WebSocketWriter) WritePing() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
