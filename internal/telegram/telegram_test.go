package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"voxmail/internal/bot"
)

// fakeAPI answers the handful of Bot API methods the transport uses and records sent texts.
type fakeAPI struct {
	mu    sync.Mutex
	sent  []map[string]string
	calls []string
	// updates is served once as the getUpdates result; later polls come back empty.
	updates string
	served  bool
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m["text"])
	}
	return out
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/file/") {
		fmt.Fprint(w, "OggS-voice-bytes")
		return
	}
	_ = r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()

	var result string
	switch method {
	case "getMe":
		result = `{"id":1,"is_bot":true,"first_name":"vox","username":"voxmail_bot"}`
	case "getFile":
		result = `{"file_id":"` + r.Form.Get("file_id") + `","file_path":"voice/file_7.oga"}`
	case "sendChatAction", "deleteWebhook":
		result = `true`
	case "getUpdates":
		f.mu.Lock()
		result = "[]"
		if !f.served && f.updates != "" {
			result, f.served = f.updates, true
		}
		f.mu.Unlock()
		if result == "[]" {
			time.Sleep(20 * time.Millisecond)
		}
	case "sendMessage":
		f.mu.Lock()
		f.sent = append(f.sent, map[string]string{
			"chat_id":             r.Form.Get("chat_id"),
			"text":                r.Form.Get("text"),
			"reply_to_message_id": r.Form.Get("reply_to_message_id"),
		})
		f.mu.Unlock()
		result = `{"message_id":99,"date":0,"chat":{"id":` + r.Form.Get("chat_id") + `,"type":"private"}}`
	default:
		http.Error(w, `{"ok":false,"error_code":404,"description":"Not Found"}`, http.StatusNotFound)
		return
	}
	fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
}

func newTransport(t *testing.T) (*Transport, *fakeAPI) {
	t.Helper()
	return newTransportWith(t, &fakeAPI{})
}

func newTransportWith(t *testing.T, api *fakeAPI) (*Transport, *fakeAPI) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	tr, err := New(Config{
		Token:        "TOKEN",
		Endpoint:     srv.URL + "/bot%s/%s",
		FileEndpoint: srv.URL + "/file/bot%s/%s",
		HTTPClient:   srv.Client(),
	})
	require.NoError(t, err)
	require.Equal(t, "voxmail_bot", tr.Username())
	return tr, api
}

type stubHandler struct {
	ev      bot.Event
	replies []string
	audio   string
}

func (s *stubHandler) Handle(ctx context.Context, ev bot.Event) []string {
	s.ev = ev
	if ev.Audio != nil {
		var buf bytes.Buffer
		if err := ev.Audio.Fetch(ctx, &buf); err != nil {
			return []string{"fetch failed: " + err.Error()}
		}
		s.audio = buf.String()
	}
	return s.replies
}

func chatMessage(id int) *tgbotapi.Message {
	return &tgbotapi.Message{MessageID: id, Chat: &tgbotapi.Chat{ID: 42}}
}

func TestTextMessageRepliesInChunks(t *testing.T) {
	tr, api := newTransport(t)
	h := &stubHandler{replies: []string{"part one", "part two"}}

	m := chatMessage(5)
	m.Text = "/lang en"
	tr.handleMessage(context.Background(), m, h)

	require.Equal(t, bot.Event{UserID: "tg:42", Text: "/lang en"}, h.ev)
	require.Equal(t, []map[string]string{
		{"chat_id": "42", "text": "part one", "reply_to_message_id": "5"},
		{"chat_id": "42", "text": "part two", "reply_to_message_id": ""},
	}, api.sent)
	require.Contains(t, api.calls, "sendChatAction")
}

func TestVoiceMessageIsDownloaded(t *testing.T) {
	tr, _ := newTransport(t)
	h := &stubHandler{replies: []string{"ok"}}

	m := chatMessage(6)
	m.Voice = &tgbotapi.Voice{FileID: "voice-1", MimeType: "audio/ogg"}
	m.Caption = "/start"
	tr.handleMessage(context.Background(), m, h)

	require.Equal(t, "OggS-voice-bytes", h.audio)
	require.Equal(t, ".oga", h.ev.Audio.Ext())
	require.Equal(t, "/start", h.ev.Text)
}

func TestNonAudioDocumentGetsHint(t *testing.T) {
	tr, api := newTransport(t)
	h := &stubHandler{}

	m := chatMessage(7)
	m.Document = &tgbotapi.Document{FileID: "doc", FileName: "report.pdf", MimeType: "application/pdf"}
	tr.handleMessage(context.Background(), m, h)

	require.Empty(t, h.ev.UserID)
	require.Len(t, api.sent, 1)
	require.Contains(t, api.sent[0]["text"], "Please send voice or audio")
}

func TestStickerIsIgnored(t *testing.T) {
	tr, api := newTransport(t)
	m := chatMessage(8)
	m.Sticker = &tgbotapi.Sticker{FileID: "st"}
	tr.handleMessage(context.Background(), m, &stubHandler{})
	require.Empty(t, api.sent)
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	tr, _ := newTransport(t)
	m := chatMessage(9)
	m.Text = "boom"
	require.NotPanics(t, func() {
		tr.handleMessage(context.Background(), m, panicHandler{})
	})
}

type panicHandler struct{}

func (panicHandler) Handle(context.Context, bot.Event) []string { panic("boom") }

func TestExtension(t *testing.T) {
	tests := []struct {
		name, mime, want string
	}{
		{"memo.MP3", "", ".mp3"},
		{"", "audio/mpeg", ".mp3"},
		{"", "video/mp4", ".mp4"},
		{"", "audio/x-m4a", ".m4a"},
		{"", "", ".oga"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, extension(tt.name, tt.mime), "%q %q", tt.name, tt.mime)
	}
}

func TestIsAudioMime(t *testing.T) {
	for _, m := range []string{"audio/ogg", "Audio/MPEG", "application/ogg", "video/mp4"} {
		require.True(t, isAudioMime(m), m)
	}
	for _, m := range []string{"", "application/pdf", "video/webm", "image/png"} {
		require.False(t, isAudioMime(m), m)
	}
}

func TestFetchFailsOnMissingFile(t *testing.T) {
	tr, _ := newTransport(t)
	tr.cfg.FileEndpoint = tr.cfg.FileEndpoint[:strings.Index(tr.cfg.FileEndpoint, "/file/")] + "/missing/%s/%s"

	err := tr.file("voice-1", ".oga").Fetch(context.Background(), io.Discard)
	require.Error(t, err)
}

func textUpdate(id, msgID int, text string) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":0,"chat":{"id":42,"type":"private"},"text":%q}}`,
		id, msgID, text)
}

// orderedHandler records the texts it saw; the first event is slow.
type orderedHandler struct {
	mu   sync.Mutex
	seen []string
}

func (o *orderedHandler) Handle(_ context.Context, ev bot.Event) []string {
	o.mu.Lock()
	first := len(o.seen) == 0
	o.mu.Unlock()
	if first {
		time.Sleep(100 * time.Millisecond)
	}
	o.mu.Lock()
	o.seen = append(o.seen, ev.Text)
	o.mu.Unlock()
	return []string{"ok: " + ev.Text}
}

func TestRunHandlesOneChatInOrder(t *testing.T) {
	api := &fakeAPI{updates: "[" + textUpdate(1, 10, "/lang en") + "," + textUpdate(2, 11, "hello") + "]"}
	tr, _ := newTransportWith(t, api)
	h := &orderedHandler{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, h) }()

	require.Eventually(t, func() bool { return len(api.texts()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, []string{"/lang en", "hello"}, h.seen)
	require.Equal(t, []string{"ok: /lang en", "ok: hello"}, api.texts())
}

// gateHandler blocks until released and reports whether its context survived shutdown.
type gateHandler struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (g *gateHandler) Handle(ctx context.Context, _ bot.Event) []string {
	close(g.started)
	<-g.release
	g.ctxErr <- ctx.Err()
	return []string{"draft"}
}

func TestRunFinishesInFlightUpdateOnShutdown(t *testing.T) {
	api := &fakeAPI{updates: "[" + textUpdate(1, 12, "hello") + "]"}
	tr, _ := newTransportWith(t, api)
	h := &gateHandler{started: make(chan struct{}), release: make(chan struct{}), ctxErr: make(chan error, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, h) }()

	select {
	case <-h.started:
	case <-time.After(2 * time.Second):
		t.Fatal("update never reached the handler")
	}
	cancel()
	close(h.release)

	require.NoError(t, <-done)
	require.NoError(t, <-h.ctxErr)
	require.Equal(t, []string{"draft"}, api.texts())
}

func TestRepliesDroppedAfterGraceExpires(t *testing.T) {
	tr, api := newTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := chatMessage(13)
	m.Text = "hello"
	tr.handleMessage(ctx, m, &stubHandler{replies: []string{"Sorry, please try again."}})

	require.Empty(t, api.texts())
}

func TestBotLoggerRoutesToSlog(t *testing.T) {
	var buf bytes.Buffer
	l := botLogger{log.New(log.NewTextHandler(&buf, nil))}

	l.Println("Failed to get updates, retrying in 3 seconds...")
	l.Printf("Endpoint: %s", "getMe")

	out := buf.String()
	require.Contains(t, out, "level=WARN")
	require.Contains(t, out, `msg="Failed to get updates, retrying in 3 seconds..."`)
	require.Contains(t, out, `msg="Endpoint: getMe"`)
	require.Contains(t, out, "component=tgbotapi")
}
