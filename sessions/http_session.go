package sessions

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/catchmeifyoucaan/lagosai/reconcile"
)

// GinSSEWriter implements SSEWriter for a gin context.
type GinSSEWriter struct {
	Context *gin.Context
}

func (w *GinSSEWriter) WriteSSE(event, data string) error {
	w.Context.SSEvent(event, data)
	return nil
}

func (w *GinSSEWriter) WriteSSEError(err error) error {
	w.Context.SSEvent("error", err.Error())
	return nil
}

func (w *GinSSEWriter) Flush() {
	w.Context.Writer.Flush()
}

// Prepare_SSE sets the event-stream headers on a gin response.
func Prepare_SSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// Stream_Reconciler writes every reconciler event as one SSE event named by
// its kind, until the reconciler finishes or the client goes away. A client
// disconnect does not stop generation; the message still completes in the store.
func Stream_Reconciler(ctx context.Context, r *reconcile.Reconciler, writer SSEWriter, logger *log.Logger) error {
	events := r.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				logger.Printf("SSE stream finished.")
				return nil
			}

			jsonData, err := json.Marshal(ev)
			if err != nil {
				logger.Printf("Error marshalling event: %v", err)
				continue
			}
			if err := writer.WriteSSE(string(ev.Kind), string(jsonData)); err != nil {
				logger.Printf("Error writing to SSE stream: %v", err)
				return err
			}
			writer.Flush()

		case <-ctx.Done():
			logger.Printf("SSE client disconnected")
			return ctx.Err()
		}
	}
}
