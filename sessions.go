package lagosai

import (
	"github.com/catchmeifyoucaan/lagosai/sessions"
	"github.com/gorilla/websocket"
)

// Re-export session types so callers only need the root package.
type SSEWriter = sessions.SSEWriter
type GinSSEWriter = sessions.GinSSEWriter
type WebSocketWriter = sessions.WebSocketWriter
type Hub = sessions.Hub
type Client = sessions.Client
type Push = sessions.Push
type Command = sessions.Command

func NewHub() *Hub {
	return sessions.NewHub()
}

// Serve_Client registers conn with hub and relays its stop commands to o.
// It blocks until the connection ends.
func (o *Oracle) Serve_Client(hub *Hub, conn *websocket.Conn) {
	hub.Serve(conn, func(c *sessions.Client, cmd sessions.Command) {
		switch cmd.Type {
		case sessions.Command_Stop:
			id := cmd.Conversation_ID
			if id == "" {
				id = o.store.Current_ID()
			}
			o.Stop(id)
		default:
			c.Writer.WriteError("unknown command " + string(cmd.Type))
		}
	})
}

// Broadcast_To wires every push of o into hub. The returned func unhooks it.
func (o *Oracle) Broadcast_To(hub *Hub) func() {
	return o.Watch(hub.Broadcast)
}
