package lagosai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/catchmeifyoucaan/lagosai/conversation"
	"github.com/catchmeifyoucaan/lagosai/models"
	"github.com/catchmeifyoucaan/lagosai/personas"
	"github.com/catchmeifyoucaan/lagosai/reconcile"
	"github.com/catchmeifyoucaan/lagosai/sessions"
	"github.com/catchmeifyoucaan/lagosai/speech"
	"github.com/catchmeifyoucaan/lagosai/stores"
)

var quiet = log.New(io.Discard, "", 0)

// fakeChat streams its deltas, then optionally waits on hold before ending.
type fakeChat struct {
	deltas []string
	hold   chan struct{}
	err    error

	mu       sync.Mutex
	requests []models.Chat_Request
	once     int
}

func (f *fakeChat) Chat(ctx context.Context, request models.Chat_Request) models.Result {
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.once++
	f.mu.Unlock()
	if f.err != nil {
		return models.Error_Result(models.As_Provider_Error(models.Provider_Gemini, f.err))
	}
	return models.Text_Result(strings.Join(f.deltas, ""))
}

func (f *fakeChat) Stream_Chat(ctx context.Context, request models.Chat_Request) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.mu.Unlock()

	respChan := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		defer close(respChan)
		defer close(errChan)
		for _, d := range f.deltas {
			select {
			case respChan <- d:
			case <-ctx.Done():
				errChan <- models.Wrap_Error(models.Provider_Gemini, models.Cancelled, ctx.Err())
				return
			}
		}
		if f.hold != nil {
			select {
			case <-f.hold:
			case <-ctx.Done():
				errChan <- models.Wrap_Error(models.Provider_Gemini, models.Cancelled, ctx.Err())
				return
			}
		}
		if f.err != nil {
			errChan <- f.err
		}
	}()
	return respChan, errChan
}

func (f *fakeChat) last() models.Chat_Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeFactory struct {
	chat *fakeChat
}

func (f *fakeFactory) Chat_Model(id models.Provider_ID, creds models.Credentials) (models.Chat_Model, error) {
	return f.chat, nil
}

func (f *fakeFactory) Image_Model(id models.Provider_ID, creds models.Credentials) (models.Image_Model, error) {
	return nil, fmt.Errorf("no images")
}

func (f *fakeFactory) Video_Model(id models.Provider_ID, creds models.Credentials) (models.Video_Model, error) {
	return nil, fmt.Errorf("no videos")
}

type fakeSpeaker struct{}

func (fakeSpeaker) Speak(ctx context.Context, contextID, text string) (<-chan speech.Audio_Chunk, <-chan error) {
	chunkChan := make(chan speech.Audio_Chunk, 2)
	errChan := make(chan error, 1)
	chunkChan <- speech.Audio_Chunk{Context_ID: contextID, Audio_B64: "QUJD"}
	chunkChan <- speech.Audio_Chunk{Context_ID: contextID, Final: true}
	close(chunkChan)
	close(errChan)
	return chunkChan, errChan
}

func newOracle(t *testing.T, cfg *Config) *Oracle {
	t.Helper()
	if cfg == nil {
		cfg = NewConfig()
	}
	if cfg.Cache == nil {
		cfg.WithCache(stores.NewMemoryCache())
	}
	cfg.WithLogger(quiet)
	o, err := New_Oracle(cfg)
	if err != nil {
		t.Fatalf("Expected oracle, got %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

func waitDone(t *testing.T, r *reconcile.Reconciler) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for the reply")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func reply(t *testing.T, o *Oracle, r *reconcile.Reconciler) stores.Message {
	t.Helper()
	conv, ok := o.Store().Get(r.Conversation_ID())
	if !ok {
		t.Fatalf("Expected conversation %s", r.Conversation_ID())
	}
	for _, m := range conv.Messages {
		if m.ID == r.Message_ID() {
			return m
		}
	}
	t.Fatalf("Expected message %d", r.Message_ID())
	return stores.Message{}
}

func TestNewOracleStartsWithWelcome(t *testing.T) {
	o := newOracle(t, nil)
	conv, ok := o.Store().Current()
	if !ok {
		t.Fatal("Expected a current conversation")
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != Welcome_Content {
		t.Errorf("Expected the welcome message, got %+v", conv.Messages)
	}
}

func TestSendImageWithOnlyImageProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("Expected images path, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1,"data":[{"url":"https://img.example/sunset.png"}]}`)
	}))
	defer srv.Close()

	cfg := NewConfig().
		WithCredentials(models.Credentials{OpenAI: "sk-test"}).
		WithFactory(&Default_Factory{Base_URLs: map[models.Provider_ID]string{models.Provider_OpenAI: srv.URL + "/v1"}})
	o := newOracle(t, cfg)

	r, err := o.Send(context.Background(), "draw a lagos sunset")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	waitDone(t, r)

	msg := reply(t, o, r)
	if msg.Outcome != stores.OutcomeSuccess {
		t.Errorf("Expected success, got %s (%s)", msg.Outcome, msg.Content)
	}
	if msg.Attachment == nil || msg.Attachment.ImageURL != "https://img.example/sunset.png" {
		t.Errorf("Expected image attachment, got %+v", msg.Attachment)
	}
	if msg.ProviderLabel != Creative_Engine_Label {
		t.Errorf("Expected creative engine label, got %q", msg.ProviderLabel)
	}
}

func TestSendWithoutProvidersBecomesErrorMessage(t *testing.T) {
	o := newOracle(t, nil)

	r, err := o.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Expected no error to escape, got %v", err)
	}
	waitDone(t, r)

	msg := reply(t, o, r)
	if msg.Outcome != stores.OutcomeError {
		t.Errorf("Expected error outcome, got %s", msg.Outcome)
	}
	if !strings.Contains(msg.Content, "API key") || !strings.Contains(msg.Content, "Gemini Flash") {
		t.Errorf("Expected an API key hint naming the provider, got %q", msg.Content)
	}
	if !strings.HasSuffix(msg.ProviderLabel, reconcile.Error_Label_Suffix) {
		t.Errorf("Expected error label, got %q", msg.ProviderLabel)
	}
}

func TestSendEmptyQuery(t *testing.T) {
	o := newOracle(t, nil)
	before, _ := o.Store().Current()
	if _, err := o.Send(context.Background(), "   "); err != models.ErrEmptyQuery {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
	after, _ := o.Store().Current()
	if len(after.Messages) != len(before.Messages) {
		t.Errorf("Expected no message appended, got %d", len(after.Messages))
	}
}

func TestSendStreamsAndSpeaks(t *testing.T) {
	chat := &fakeChat{deltas: []string{"Eko ", "o ni baje"}}
	o := newOracle(t, NewConfig().
		WithCredentials(models.Credentials{Gemini: "AIzaTest"}).
		WithFactory(&fakeFactory{chat: chat}).
		WithSpeaker(fakeSpeaker{}))

	var mu sync.Mutex
	var audio []speech.Audio_Chunk
	o.Watch(func(p sessions.Push) {
		if p.Type == sessions.Push_Audio {
			mu.Lock()
			audio = append(audio, *p.Audio)
			mu.Unlock()
		}
	})

	r, err := o.Send(context.Background(), "Wetin dey happen for Lekki?")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	waitDone(t, r)

	msg := reply(t, o, r)
	if msg.Content != "Eko o ni baje" || msg.Outcome != stores.OutcomeSuccess {
		t.Errorf("Expected streamed content, got %q (%s)", msg.Content, msg.Outcome)
	}
	if msg.ProviderLabel != "Gemini Flash (Lagos Oracle)" {
		t.Errorf("Unexpected label %q", msg.ProviderLabel)
	}
	if req := chat.last(); req.System_Prompt == "" || req.Query != "Wetin dey happen for Lekki?" {
		t.Errorf("Unexpected request %+v", req)
	}

	waitFor(t, "audio", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(audio) == 2
	})
}

func TestSendPassesHistory(t *testing.T) {
	chat := &fakeChat{deltas: []string{"Fine"}}
	o := newOracle(t, NewConfig().WithFactory(&fakeFactory{chat: chat}))

	r, _ := o.Send(context.Background(), "How far?")
	waitDone(t, r)
	r, _ = o.Send(context.Background(), "And traffic?")
	waitDone(t, r)

	history := chat.last().History
	if len(history) != 2 || history[0].Content != "How far?" || history[1].Content != "Fine" {
		t.Errorf("Expected the first exchange as history, got %+v", history)
	}
}

func TestSendOnceUsesSingleCall(t *testing.T) {
	chat := &fakeChat{deltas: []string{"Traffic ", "don clear"}}
	o := newOracle(t, NewConfig().
		WithCredentials(models.Credentials{Gemini: "AIzaTest"}).
		WithFactory(&fakeFactory{chat: chat}))

	msg, err := o.Send_Once(context.Background(), "How Third Mainland Bridge be?")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if msg.Content != "Traffic don clear" || msg.Outcome != stores.OutcomeSuccess {
		t.Errorf("Expected one-shot reply, got %q (%s)", msg.Content, msg.Outcome)
	}
	if chat.once != 1 {
		t.Errorf("Expected one Chat call, got %d", chat.once)
	}
	waitFor(t, "the active slot to clear", func() bool {
		_, ok := o.Active(o.Store().Current_ID())
		return !ok
	})
	if _, err := o.Send_Once(context.Background(), " "); err != models.ErrEmptyQuery {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
}

func TestSendOnceFailureBecomesApology(t *testing.T) {
	chat := &fakeChat{err: models.Status_Error(models.Provider_Gemini, 429, "quota exceeded")}
	o := newOracle(t, NewConfig().
		WithCredentials(models.Credentials{Gemini: "AIzaTest"}).
		WithFactory(&fakeFactory{chat: chat}))

	msg, err := o.Send_Once(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Expected no error to escape, got %v", err)
	}
	if msg.Outcome != stores.OutcomeError || !strings.Contains(msg.Content, "quota exceeded") {
		t.Errorf("Expected apology with gist, got %q (%s)", msg.Content, msg.Outcome)
	}
}

func TestAnalyzeFrameDescribesScene(t *testing.T) {
	chat := &fakeChat{deltas: []string{"A yellow danfo ", "is parked ahead."}}
	o := newOracle(t, NewConfig().
		WithCredentials(models.Credentials{Gemini: "AIzaTest"}).
		WithFactory(&fakeFactory{chat: chat}).
		WithSpeaker(fakeSpeaker{}))

	var mu sync.Mutex
	var audio []speech.Audio_Chunk
	o.Watch(func(p sessions.Push) {
		if p.Type == sessions.Push_Audio {
			mu.Lock()
			audio = append(audio, *p.Audio)
			mu.Unlock()
		}
	})
	before, _ := o.Store().Current()

	frame := []byte{0x89, 'P', 'N', 'G'}
	r, err := o.Analyze_Frame(context.Background(), frame, "image/png")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	waitDone(t, r)

	msg := reply(t, o, r)
	if msg.Content != "A yellow danfo is parked ahead." || msg.Outcome != stores.OutcomeSuccess {
		t.Errorf("Expected streamed description, got %q (%s)", msg.Content, msg.Outcome)
	}
	if msg.ProviderLabel != "Gemini Flash (Vision Guide)" {
		t.Errorf("Unexpected label %q", msg.ProviderLabel)
	}
	after, _ := o.Store().Current()
	if len(after.Messages) != len(before.Messages)+1 {
		t.Errorf("Expected only the description appended, got %d messages", len(after.Messages))
	}

	req := chat.last()
	if req.Query != Vision_Scene_Query || req.System_Prompt != personas.Vision_Guide_Prompt() {
		t.Errorf("Unexpected vision request %+v", req)
	}
	if len(req.History) != 0 {
		t.Errorf("Expected no history, got %+v", req.History)
	}
	if len(req.Images) != 1 || req.Images[0].MIME_Type != "image/png" || !bytes.Equal(req.Images[0].Data, frame) {
		t.Errorf("Expected the frame as an image part, got %+v", req.Images)
	}

	waitFor(t, "audio", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(audio) == 2
	})
}

func TestAnalyzeFrameFailure(t *testing.T) {
	chat := &fakeChat{err: models.Status_Error(models.Provider_Gemini, 400, "image too large")}
	o := newOracle(t, NewConfig().
		WithCredentials(models.Credentials{Gemini: "AIzaTest"}).
		WithFactory(&fakeFactory{chat: chat}))

	r, err := o.Analyze_Frame(context.Background(), []byte("jpeg"), "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	waitDone(t, r)

	msg := reply(t, o, r)
	if msg.Content != "⚠️ Vision Analysis Failed: image too large" || msg.Outcome != stores.OutcomeError {
		t.Errorf("Expected vision failure, got %q (%s)", msg.Content, msg.Outcome)
	}
	if msg.ProviderLabel != Vision_Label()+reconcile.Error_Label_Suffix {
		t.Errorf("Expected error label, got %q", msg.ProviderLabel)
	}
	if got := chat.last().Images[0].MIME_Type; got != Default_Frame_MIME_Type {
		t.Errorf("Expected default MIME type, got %q", got)
	}
}

func TestAnalyzeFrameNeedsGemini(t *testing.T) {
	chat := &fakeChat{deltas: []string{"unused"}}
	o := newOracle(t, NewConfig().
		WithCredentials(models.Credentials{OpenAI: "sk-test"}).
		WithFactory(&fakeFactory{chat: chat}))

	if _, err := o.Analyze_Frame(context.Background(), []byte("jpeg"), "image/jpeg"); err != ErrVisionUnavailable {
		t.Fatalf("Expected ErrVisionUnavailable, got %v", err)
	}
	conv, _ := o.Store().Current()
	last := conv.Messages[len(conv.Messages)-1]
	if last.Content != Vision_Missing_Content || last.ProviderLabel != Vision_System_Label || last.Outcome != stores.OutcomeError {
		t.Errorf("Unexpected notice %+v", last)
	}
	if len(chat.requests) != 0 {
		t.Errorf("Expected no provider call, got %d", len(chat.requests))
	}
}

func TestAnalyzeFrameRejectsBadFrame(t *testing.T) {
	o := newOracle(t, NewConfig().WithCredentials(models.Credentials{Gemini: "AIzaTest"}))
	before, _ := o.Store().Current()

	if _, err := o.Analyze_Frame(context.Background(), nil, "image/jpeg"); err != ErrInvalidFrame {
		t.Errorf("Expected ErrInvalidFrame for empty frame, got %v", err)
	}
	if _, err := o.Analyze_Frame(context.Background(), []byte("hello"), "text/plain"); err != ErrInvalidFrame {
		t.Errorf("Expected ErrInvalidFrame for text, got %v", err)
	}
	after, _ := o.Store().Current()
	if len(after.Messages) != len(before.Messages) {
		t.Errorf("Expected no message appended, got %d", len(after.Messages))
	}
}

func TestStopKeepsPartialReply(t *testing.T) {
	chat := &fakeChat{deltas: []string{"Third Mainland ", "Bridge is"}, hold: make(chan struct{})}
	o := newOracle(t, NewConfig().WithFactory(&fakeFactory{chat: chat}))

	r, err := o.Send(context.Background(), "Tell me about the bridge")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	waitFor(t, "partial content", func() bool { return r.Content() == "Third Mainland Bridge is" })

	if !o.Stop(r.Conversation_ID()) {
		t.Error("Expected an active reply to stop")
	}
	if o.Stop(r.Conversation_ID()) {
		t.Error("Expected the second stop to be a no-op")
	}
	waitDone(t, r)
	close(chat.hold)

	msg := reply(t, o, r)
	if msg.Outcome != stores.OutcomeCancelled || msg.Content != "Third Mainland Bridge is" {
		t.Errorf("Expected cancelled partial reply, got %q (%s)", msg.Content, msg.Outcome)
	}
}

func TestNewSendCancelsPreviousReply(t *testing.T) {
	chat := &fakeChat{deltas: []string{"partial"}, hold: make(chan struct{})}
	o := newOracle(t, NewConfig().WithFactory(&fakeFactory{chat: chat}))

	first, _ := o.Send(context.Background(), "first")
	waitFor(t, "first delta", func() bool { return first.Content() == "partial" })
	second, _ := o.Send(context.Background(), "second")

	waitDone(t, first)
	if first.State() != reconcile.State_Cancelled {
		t.Errorf("Expected first reply cancelled, got %s", first.State())
	}
	if active, ok := o.Active(second.Conversation_ID()); !ok || active != second {
		t.Error("Expected the second reply to be active")
	}
	close(chat.hold)
	waitDone(t, second)
}

func TestDeleteCurrentSelectsOrCreates(t *testing.T) {
	o := newOracle(t, nil)
	first, _ := o.Store().Current()
	second := o.New_Conversation()

	if err := o.Delete(second.ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if o.Store().Current_ID() != first.ID {
		t.Errorf("Expected %s to become current, got %s", first.ID, o.Store().Current_ID())
	}

	if err := o.Delete(first.ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	list := o.Store().List()
	if len(list) != 1 || list[0].ID == first.ID || o.Store().Current_ID() != list[0].ID {
		t.Errorf("Expected a fresh current conversation, got %+v", list)
	}
	if err := o.Delete("missing"); err != ErrUnknownConversation {
		t.Errorf("Expected ErrUnknownConversation, got %v", err)
	}
}

func TestRenameAndSwitch(t *testing.T) {
	o := newOracle(t, nil)
	conv, _ := o.Store().Current()
	if err := o.Rename(conv.ID, "  "); err != ErrInvalidTitle {
		t.Errorf("Expected ErrInvalidTitle, got %v", err)
	}
	if err := o.Rename(conv.ID, "Lekki plans"); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := o.Switch("missing"); err != ErrUnknownConversation {
		t.Errorf("Expected ErrUnknownConversation, got %v", err)
	}
	if other := o.New_Conversation(); o.Store().Current_ID() != other.ID {
		t.Errorf("Expected new conversation %s to be current", other.ID)
	}
	if err := o.Switch(conv.ID); err != nil || o.Store().Current_ID() != conv.ID {
		t.Errorf("Expected switch back to %s, got %s (%v)", conv.ID, o.Store().Current_ID(), err)
	}
}

func TestLibraryRoundTrip(t *testing.T) {
	src := newOracle(t, nil)
	src.New_Conversation()
	var buf bytes.Buffer
	if err := src.Export_Library(&buf); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	dst := newOracle(t, nil)
	n, err := dst.Import_Library(bytes.NewReader(buf.Bytes()))
	if err != nil || n != 2 {
		t.Fatalf("Expected 2 imported conversations, got %d (%v)", n, err)
	}
	if dst.Store().Current_ID() != src.Store().Current_ID() {
		t.Errorf("Expected current %s, got %s", src.Store().Current_ID(), dst.Store().Current_ID())
	}
}

func TestImportRejectsBadFileWithoutTouchingStore(t *testing.T) {
	o := newOracle(t, nil)
	before := o.Store().List()
	if _, err := o.Import_Library(strings.NewReader(`{"conversations":{}}`)); err == nil {
		t.Error("Expected an error")
	}
	after := o.Store().List()
	if len(after) != len(before) || after[0].ID != before[0].ID {
		t.Errorf("Expected store untouched, got %+v", after)
	}
}

func TestImportEmptyLibraryCreatesConversation(t *testing.T) {
	o := newOracle(t, nil)
	if _, err := o.Import_Library(strings.NewReader(`{"conversations":[],"version":1}`)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if list := o.Store().List(); len(list) != 1 || o.Store().Current_ID() != list[0].ID {
		t.Errorf("Expected one fresh conversation, got %+v", list)
	}
}

func TestExportChatCarriesSettings(t *testing.T) {
	o := newOracle(t, nil)
	o.Set_Preferences(Preferences{Persona_Key: "femi", Provider: models.Provider_Claude, Image_Style: models.Style_Anime, Sound_Enabled: false})
	var buf bytes.Buffer
	if err := o.Export_Chat(&buf); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for _, want := range []string{`"selectedAI": "claude"`, `"imageStyle": "anime"`, `"selectedPersonaKey": "femi"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Expected %s in %s", want, buf.String())
		}
	}
}

func TestShareNeedsSync(t *testing.T) {
	o := newOracle(t, nil)
	if _, err := o.Share(context.Background()); err != ErrSyncRequired {
		t.Errorf("Expected ErrSyncRequired, got %v", err)
	}
	if err := o.Attach_Sync(context.Background(), "u1"); err != ErrSyncUnavailable {
		t.Errorf("Expected ErrSyncUnavailable, got %v", err)
	}
}

func TestShareAppendsLink(t *testing.T) {
	remote := stores.NewMemoryRemote()
	o := newOracle(t, NewConfig().WithRemote(remote).WithPublicURL("https://oracle.example"))
	if err := o.Attach_Sync(context.Background(), "u1"); err != nil {
		t.Fatalf("Expected attach, got %v", err)
	}
	if o.Sync_UID() != "u1" {
		t.Errorf("Expected uid u1, got %q", o.Sync_UID())
	}

	link, err := o.Share(context.Background())
	if err != nil {
		t.Fatalf("Expected share link, got %v", err)
	}
	if !strings.HasPrefix(link, "https://oracle.example/#/share/") {
		t.Errorf("Unexpected link %s", link)
	}
	token := strings.TrimPrefix(link, "https://oracle.example/#/share/")
	doc, err := o.Shared(context.Background(), token)
	if err != nil || doc.Conversation.ID != o.Store().Current_ID() {
		t.Errorf("Expected shared current conversation, got %+v (%v)", doc, err)
	}

	conv, _ := o.Store().Current()
	last := conv.Messages[len(conv.Messages)-1]
	if !strings.Contains(last.Content, link) {
		t.Errorf("Expected the link appended, got %q", last.Content)
	}

	remote.SetFailWrites(true)
	if _, err := o.Share(context.Background()); err == nil {
		t.Error("Expected share to fail")
	}
	conv, _ = o.Store().Current()
	if last := conv.Messages[len(conv.Messages)-1]; last.Content != Share_Failed_Content {
		t.Errorf("Expected failure message, got %q", last.Content)
	}
	o.Detach_Sync()
	if o.Sync_UID() != "" {
		t.Error("Expected sync detached")
	}
}

func TestConcurrentAttachKeepsOneBridge(t *testing.T) {
	remote := stores.NewMemoryRemote()
	o := newOracle(t, NewConfig().WithRemote(remote))

	uids := []string{"ada", "bola"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			if err := o.Attach_Sync(context.Background(), uid); err != nil {
				t.Errorf("Expected attach, got %v", err)
			}
		}(uids[i%2])
	}
	wg.Wait()

	attached := o.Sync_UID()
	if attached != "ada" && attached != "bola" {
		t.Fatalf("Expected one attached identity, got %q", attached)
	}
	waitFor(t, "one live subscription", func() bool {
		return remote.Subscribers("ada")+remote.Subscribers("bola") == 1
	})

	o.Detach_Sync()
	waitFor(t, "no live subscriptions", func() bool {
		return remote.Subscribers("ada")+remote.Subscribers("bola") == 0
	})
}

func TestPreferencesPersistAndDegrade(t *testing.T) {
	cache := stores.NewMemoryCache()
	o := newOracle(t, NewConfig().WithCache(cache))
	o.Set_Preferences(Preferences{Dark_Mode: false, Sound_Enabled: false, Persona_Key: "anita", Provider: "perplexity", Image_Style: "cyberpunk"})
	if conv, _ := o.Store().Current(); conv.PersonaKey != "anita" {
		t.Errorf("Expected persona applied to current conversation, got %q", conv.PersonaKey)
	}

	got := load_Preferences(cache, quiet)
	want := Preferences{Dark_Mode: false, Sound_Enabled: false, Persona_Key: "anita", Provider: models.Provider_Perplexity, Image_Style: models.Style_Cyberpunk}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	cache.Put(stores.KeyDarkMode, []byte("{not json"))
	cache.Put(stores.KeySelectedPersona, []byte(`"nobody"`))
	got = load_Preferences(cache, quiet)
	if !got.Dark_Mode || got.Persona_Key != "default" {
		t.Errorf("Expected defaults for corrupt entries, got %+v", got)
	}
}

func TestSetCredentialsRecomputesAvailability(t *testing.T) {
	cache := stores.NewMemoryCache()
	o := newOracle(t, NewConfig().WithCache(cache))
	if o.Availability().Any() {
		t.Error("Expected nothing available")
	}
	avail := o.Set_Credentials(models.Credentials{Claude: " sk-ant-key "})
	if !avail[models.Provider_Claude] || avail[models.Provider_OpenAI] {
		t.Errorf("Unexpected availability %+v", avail)
	}
	if got := load_Credentials(cache, quiet); got.Claude != "sk-ant-key" {
		t.Errorf("Expected trimmed key persisted, got %q", got.Claude)
	}
}

func TestStoredCredentialsWinOverEnvironment(t *testing.T) {
	got := merge_Credentials(models.Credentials{OpenAI: "sk-stored"}, models.Credentials{OpenAI: "sk-env", Gemini: "AIzaEnv"})
	if got.OpenAI != "sk-stored" || got.Gemini != "AIzaEnv" {
		t.Errorf("Unexpected merge %+v", got)
	}
}

func TestForwardPublishesEvents(t *testing.T) {
	chat := &fakeChat{deltas: []string{"a", "b"}}
	o := newOracle(t, NewConfig().WithFactory(&fakeFactory{chat: chat}))
	var mu sync.Mutex
	var kinds []reconcile.Event_Kind
	o.Watch(func(p sessions.Push) {
		if p.Type == sessions.Push_Reconcile {
			mu.Lock()
			kinds = append(kinds, p.Event.Kind)
			mu.Unlock()
		}
	})

	r, _ := o.Send(context.Background(), "hi")
	o.Forward(r)

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) == 0 || kinds[len(kinds)-1] != reconcile.Event_Done {
		t.Errorf("Expected events ending in done, got %v", kinds)
	}
}

func TestStoreChangesArePublished(t *testing.T) {
	o := newOracle(t, nil)
	changes := make(chan conversation.Change, 8)
	unwatch := o.Watch(func(p sessions.Push) {
		if p.Type == sessions.Push_Conversation {
			changes <- *p.Change
		}
	})
	defer unwatch()

	conv := o.New_Conversation()
	c := <-changes
	if c.Kind != conversation.Change_Created || c.Conversation_ID != conv.ID {
		t.Errorf("Expected created change, got %+v", c)
	}
}

func TestLibrarySchemaIsEmbedded(t *testing.T) {
	schema, err := Library_Schema()
	if err != nil {
		t.Fatalf("Expected schema, got %v", err)
	}
	if !bytes.Contains(schema, []byte(`"currentConversationId"`)) {
		t.Errorf("Expected library properties in schema, got %s", schema)
	}
	if _, err := Schema("missing"); err == nil {
		t.Error("Expected an error for an unknown schema")
	}
}
