package sessions

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/catchmeifyoucaan/lagosai/conversation"
	"github.com/catchmeifyoucaan/lagosai/reconcile"
	"github.com/catchmeifyoucaan/lagosai/stores"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newReconciler(t *testing.T) *reconcile.Reconciler {
	t.Helper()
	store := conversation.New_Store(stores.NewMemoryCache())
	conv := store.Create_Conversation("default")
	id := conversation.Next_Message_ID()
	store.Append_Message(conv.ID, stores.Message{ID: id, Role: stores.RoleAssistant, Content: "...", Outcome: stores.OutcomePending})
	return reconcile.New(store, conv.ID, id, reconcile.Options{Label: "Gemini Flash (Lagos Oracle)", Logger: log.New(io.Discard, "", 0)})
}

func TestStreamReconcilerWritesEvents(t *testing.T) {
	r := newReconciler(t)
	respChan := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		defer close(respChan)
		defer close(errChan)
		respChan <- "Eko "
		respChan <- "oni baje"
	}()
	r.Run(respChan, errChan)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	err := Stream_Reconciler(context.Background(), r, &GinSSEWriter{Context: c}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	body := w.Body.String()
	for _, want := range []string{"event:delta", "event:state", "event:done", `"text":"Eko "`, `"state":"success"`} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in SSE body, got %s", want, body)
		}
	}
	if strings.Index(body, "event:done") < strings.LastIndex(body, "event:delta") {
		t.Errorf("Expected done after every delta, got %s", body)
	}
}

func TestStreamReconcilerClientGone(t *testing.T) {
	r := newReconciler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	err := Stream_Reconciler(ctx, r, &GinSSEWriter{Context: c}, log.New(io.Discard, "", 0))
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if r.State().Terminal() {
		t.Errorf("Expected generation to keep going, got %s", r.State())
	}
}

func TestHubBroadcastAndCommands(t *testing.T) {
	hub := NewHub()
	commands := make(chan Command, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, func(_ *Client, cmd Command) { commands <- cmd })
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Expected dial to succeed, got %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for registration")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(Push{Type: Push_Conversation, Change: &conversation.Change{Kind: conversation.Change_Created, Conversation_ID: "c1"}})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Push
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("Expected a push, got %v", err)
	}
	if got.Type != Push_Conversation || got.Change == nil || got.Change.Conversation_ID != "c1" {
		t.Errorf("Unexpected push %+v", got)
	}

	conn.WriteJSON(Command{Type: Command_Ping})
	if err := conn.ReadJSON(&got); err != nil || got.Type != Push_Pong {
		t.Errorf("Expected pong, got %+v (%v)", got, err)
	}

	conn.WriteJSON(Command{Type: Command_Stop, Conversation_ID: "c1"})
	select {
	case cmd := <-commands:
		if cmd.Type != Command_Stop || cmd.Conversation_ID != "c1" {
			t.Errorf("Unexpected command %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected stop command to reach the handler")
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for unregister")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
