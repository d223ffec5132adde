package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/catchmeifyoucaan/lagosai"
	"github.com/catchmeifyoucaan/lagosai/conversation"
	"github.com/catchmeifyoucaan/lagosai/models"
	"github.com/catchmeifyoucaan/lagosai/sessions"
	"github.com/catchmeifyoucaan/lagosai/stores"
)

var quiet = log.New(io.Discard, "", 0)

type fakeChat struct {
	deltas []string
}

func (f *fakeChat) Chat(ctx context.Context, request models.Chat_Request) models.Result {
	return models.Text_Result(strings.Join(f.deltas, ""))
}

func (f *fakeChat) Stream_Chat(ctx context.Context, request models.Chat_Request) (<-chan string, <-chan error) {
	respChan := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		defer close(respChan)
		defer close(errChan)
		for _, d := range f.deltas {
			select {
			case respChan <- d:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()
	return respChan, errChan
}

type fakeFactory struct{}

func (fakeFactory) Chat_Model(id models.Provider_ID, creds models.Credentials) (models.Chat_Model, error) {
	return &fakeChat{deltas: []string{"Eko ", "o ni baje"}}, nil
}

func (fakeFactory) Image_Model(id models.Provider_ID, creds models.Credentials) (models.Image_Model, error) {
	return nil, models.ErrNotConfigured
}

func (fakeFactory) Video_Model(id models.Provider_ID, creds models.Credentials) (models.Video_Model, error) {
	return nil, models.ErrNotConfigured
}

type testServer struct {
	oracle *lagosai.Oracle
	hub    *sessions.Hub
	router *gin.Engine
}

func newTestServer(t *testing.T, remote stores.RemoteStore) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := lagosai.NewConfig().
		WithCache(stores.NewMemoryCache()).
		WithCredentials(models.Credentials{Gemini: "AIzaTest"}).
		WithFactory(fakeFactory{}).
		WithLogger(quiet)
	if remote != nil {
		cfg.WithRemote(remote)
	}
	oracle, err := lagosai.New_Oracle(cfg)
	if err != nil {
		t.Fatalf("Expected oracle, got %v", err)
	}
	hub := sessions.NewHub()
	t.Cleanup(func() {
		hub.Close()
		oracle.Close()
	})
	return &testServer{
		oracle: oracle,
		hub:    hub,
		router: NewRouter(NewHandler(oracle, hub, quiet)),
	}
}

func (s *testServer) do(method, path string, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, Base_Path+path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Expected JSON body, got %q: %v", w.Body.String(), err)
	}
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp Error_Response
	decode(t, w, &resp)
	return resp.Error
}

func TestChatStreamsSSE(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(http.MethodPost, "/chat", `{"query":"Wetin dey happen for Lekki?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Expected event stream, got %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"event:delta", "event:done", "Eko "} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in stream, got %s", want, body)
		}
	}

	conv, _ := s.oracle.Store().Current()
	last := conv.Messages[len(conv.Messages)-1]
	if last.Content != "Eko o ni baje" || last.Outcome != stores.OutcomeSuccess {
		t.Errorf("Expected completed reply, got %q (%s)", last.Content, last.Outcome)
	}
}

func TestChatRejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/chat", `{"query":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if msg := errorOf(t, w); msg != models.ErrEmptyQuery.Error() {
		t.Errorf("Expected empty query error, got %q", msg)
	}

	w = s.do(http.MethodPost, "/chat", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing query, got %d", w.Code)
	}
}

func TestChatWebsocketDelivery(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(http.MethodPost, "/chat?delivery=ws", `{"query":"hello"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}
	var accepted Chat_Accepted
	decode(t, w, &accepted)
	if accepted.Conversation_ID != s.oracle.Store().Current_ID() || accepted.Message_ID == 0 {
		t.Errorf("Unexpected response %+v", accepted)
	}
}

func TestChatJSONDelivery(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(http.MethodPost, "/chat?delivery=json", `{"query":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var msg stores.Message
	decode(t, w, &msg)
	if msg.Content != "Eko o ni baje" || msg.Outcome != stores.OutcomeSuccess {
		t.Errorf("Expected final reply, got %q (%s)", msg.Content, msg.Outcome)
	}
}

func TestVisionStreamsSSE(t *testing.T) {
	s := newTestServer(t, nil)
	jpeg := "\xff\xd8\xff\xe0\x00\x10JFIF\x00"

	w := s.do(http.MethodPost, "/vision", jpeg, "Content-Type", "application/octet-stream")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "event:done") {
		t.Errorf("Expected done event, got %s", w.Body.String())
	}
	conv, _ := s.oracle.Store().Current()
	last := conv.Messages[len(conv.Messages)-1]
	if last.ProviderLabel != lagosai.Vision_Label() || last.Content != "Eko o ni baje" {
		t.Errorf("Expected scene description, got %q from %q", last.Content, last.ProviderLabel)
	}
}

func TestVisionRejectsBadFrames(t *testing.T) {
	s := newTestServer(t, nil)

	if w := s.do(http.MethodPost, "/vision", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty frame, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/vision", "just text", "Content-Type", "text/plain"); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for text, got %d", w.Code)
	}

	s.oracle.Set_Credentials(models.Credentials{})
	w := s.do(http.MethodPost, "/vision", "frame", "Content-Type", "image/jpeg")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 without Gemini, got %d", w.Code)
	}
	if msg := errorOf(t, w); msg != lagosai.ErrVisionUnavailable.Error() {
		t.Errorf("Expected vision unavailable, got %q", msg)
	}
}

func TestStopWithoutReply(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(http.MethodPost, "/chat/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp struct {
		Stopped bool `json:"stopped"`
	}
	decode(t, w, &resp)
	if resp.Stopped {
		t.Error("Expected nothing to stop")
	}
}

func TestConversationRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	first := s.oracle.Store().Current_ID()

	w := s.do(http.MethodPost, "/conversations", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	var created stores.Conversation
	decode(t, w, &created)
	if created.ID == "" || s.oracle.Store().Current_ID() != created.ID {
		t.Errorf("Expected created conversation to be current")
	}

	var list struct {
		Conversations []stores.Conversation `json:"conversations"`
		Current       string                `json:"currentConversationId"`
	}
	decode(t, s.do(http.MethodGet, "/conversations", ""), &list)
	if len(list.Conversations) != 2 || list.Current != created.ID {
		t.Errorf("Expected 2 conversations with %s current, got %d (%s)", created.ID, len(list.Conversations), list.Current)
	}

	if w := s.do(http.MethodPut, "/conversations/"+first+"/current", ""); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if s.oracle.Store().Current_ID() != first {
		t.Errorf("Expected %s current, got %s", first, s.oracle.Store().Current_ID())
	}

	w = s.do(http.MethodPatch, "/conversations/"+first, `{"title":"Lekki plans"}`)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if conv, _ := s.oracle.Store().Get(first); conv.Title != "Lekki plans" {
		t.Errorf("Expected renamed conversation, got %q", conv.Title)
	}
	if w := s.do(http.MethodPatch, "/conversations/"+first, `{"title":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for blank title, got %d", w.Code)
	}
	if w := s.do(http.MethodPatch, "/conversations/missing", `{"title":"x"}`); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	var msgs struct {
		Messages []stores.Message `json:"messages"`
	}
	decode(t, s.do(http.MethodGet, "/conversations/"+first+"/messages", ""), &msgs)
	if len(msgs.Messages) != 1 || msgs.Messages[0].Content != lagosai.Welcome_Content {
		t.Errorf("Expected welcome message, got %+v", msgs.Messages)
	}
	if w := s.do(http.MethodGet, "/conversations/missing/messages", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	if w := s.do(http.MethodDelete, "/conversations/"+first, ""); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if _, ok := s.oracle.Store().Get(first); ok {
		t.Error("Expected conversation deleted")
	}
	if w := s.do(http.MethodDelete, "/conversations/"+first, ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", w.Code)
	}
}

func TestSearchRoute(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(http.MethodPost, "/chat", `{"query":"Where is Balogun market?"}`)

	var resp struct {
		Hits []conversation.Hit `json:"hits"`
	}
	decode(t, s.do(http.MethodGet, "/search?q=balogun", ""), &resp)
	if len(resp.Hits) != 1 || !resp.Hits[0].Current || !strings.Contains(resp.Hits[0].Snippet, "**Balogun**") {
		t.Errorf("Expected one current hit, got %+v", resp.Hits)
	}

	w := s.do(http.MethodGet, "/search", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"hits":[]}` {
		t.Errorf("Expected empty hits, got %d %s", w.Code, w.Body.String())
	}
}

func TestSettingsMaskCredentials(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPut, "/settings", `{"credentials":{"openai":"sk-secret1234"},"preferences":{"darkMode":false,"selectedPersonaKey":"nope"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp Settings_Response
	decode(t, w, &resp)
	if resp.Credentials.OpenAI != "••••1234" {
		t.Errorf("Expected masked key, got %q", resp.Credentials.OpenAI)
	}
	if !resp.Availability[models.Provider_OpenAI] {
		t.Error("Expected OpenAI available")
	}
	if resp.Preferences.Dark_Mode || !resp.Preferences.Sound_Enabled {
		t.Errorf("Expected only dark mode changed, got %+v", resp.Preferences)
	}
	if resp.Preferences.Persona_Key != "default" {
		t.Errorf("Expected unknown persona normalized, got %q", resp.Preferences.Persona_Key)
	}

	// Echoing the masked form back keeps the stored key.
	s.do(http.MethodPut, "/settings", `{"credentials":{"openai":"••••1234"}}`)
	if got := s.oracle.Credentials().OpenAI; got != "sk-secret1234" {
		t.Errorf("Expected stored key kept, got %q", got)
	}
	if got := s.oracle.Credentials().Gemini; got != "AIzaTest" {
		t.Errorf("Expected untouched key kept, got %q", got)
	}

	if w := s.do(http.MethodPut, "/settings", `{"preferences":"dark"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	var avail models.Availability
	decode(t, s.do(http.MethodGet, "/availability", ""), &avail)
	if !avail[models.Provider_Gemini] || !avail[models.Provider_OpenAI] || avail[models.Provider_Claude] {
		t.Errorf("Unexpected availability %+v", avail)
	}
}

func TestSyncRoutesWithoutRemote(t *testing.T) {
	s := newTestServer(t, nil)
	if w := s.do(http.MethodPost, "/sync/attach", "", User_Header, "u1"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/share", ""); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestShareRoutes(t *testing.T) {
	remote := stores.NewMemoryRemote()
	s := newTestServer(t, remote)

	if w := s.do(http.MethodPost, "/sync/attach", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without user header, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/sync/attach", "", User_Header, "u1"); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w := s.do(http.MethodPost, "/share", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Link string `json:"link"`
	}
	decode(t, w, &resp)
	i := strings.LastIndex(resp.Link, "/")
	token := resp.Link[i+1:]

	w = s.do(http.MethodGet, "/shared/"+token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var doc stores.SharedConversation
	decode(t, w, &doc)
	if doc.Token != token {
		t.Errorf("Expected token %s, got %s", token, doc.Token)
	}
	if w := s.do(http.MethodGet, "/shared/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	if w := s.do(http.MethodDelete, "/sync", ""); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if s.oracle.Sync_UID() != "" {
		t.Error("Expected sync detached")
	}
}

func TestLibraryRoutes(t *testing.T) {
	src := newTestServer(t, nil)
	src.oracle.New_Conversation()

	w := src.do(http.MethodGet, "/library/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Errorf("Expected attachment, got %q", cd)
	}
	exported := w.Body.String()

	dst := newTestServer(t, nil)
	w = dst.do(http.MethodPost, "/library/import", exported)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Imported int `json:"imported"`
	}
	decode(t, w, &resp)
	if resp.Imported != 2 || len(dst.oracle.Store().List()) != 2 {
		t.Errorf("Expected 2 imported conversations, got %d", resp.Imported)
	}

	before := len(dst.oracle.Store().List())
	if w := dst.do(http.MethodPost, "/library/import", `{"conversations":"nope"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if len(dst.oracle.Store().List()) != before {
		t.Error("Expected store untouched by a rejected import")
	}

	w = dst.do(http.MethodGet, "/library/schema", "")
	if w.Code != http.StatusOK || !json.Valid(w.Body.Bytes()) {
		t.Errorf("Expected schema document, got %d", w.Code)
	}

	w = dst.do(http.MethodGet, "/chat/export", "")
	var chat struct {
		Settings map[string]any   `json:"settings"`
		Messages []stores.Message `json:"messages"`
	}
	decode(t, w, &chat)
	if chat.Settings == nil || len(chat.Messages) == 0 {
		t.Errorf("Expected settings and messages, got %s", w.Body.String())
	}
}

func TestSwaggerDoc(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var doc struct {
		BasePath string         `json:"basePath"`
		Paths    map[string]any `json:"paths"`
	}
	decode(t, w, &doc)
	if doc.BasePath != Base_Path {
		t.Errorf("Expected base path %s, got %s", Base_Path, doc.BasePath)
	}
	for _, path := range []string{"/chat", "/vision", "/search"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Errorf("Expected %s documented", path)
		}
	}
}

func TestWebsocketReceivesChanges(t *testing.T) {
	s := newTestServer(t, nil)
	unwatch := s.oracle.Broadcast_To(s.hub)
	defer unwatch()

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + Base_Path + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Expected dial, got %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if w := s.do(http.MethodPost, "/conversations", ""); w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var push sessions.Push
	if err := conn.ReadJSON(&push); err != nil {
		t.Fatalf("Expected a push, got %v", err)
	}
	if push.Type != sessions.Push_Conversation || push.Change == nil {
		t.Errorf("Expected a conversation change, got %+v", push)
	}
}

func TestMaskKey(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"abc":           "••••",
		"sk-secret1234": "••••1234",
	}
	for in, want := range cases {
		if got := mask_Key(in); got != want {
			t.Errorf("mask_Key(%q): expected %q, got %q", in, want, got)
		}
	}

	stored := models.Credentials{OpenAI: "sk-secret1234", Gemini: "AIzaOld0000"}
	next := unmask_Credentials(models.Credentials{OpenAI: "••••1234", Gemini: "AIzaNew1111"}, stored)
	if next.OpenAI != stored.OpenAI || next.Gemini != "AIzaNew1111" {
		t.Errorf("Unexpected unmasked credentials %+v", next)
	}
}
