// Package telegram runs the long-polling Telegram transport.
package telegram

import (
	"context"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"voxmail/internal/bot"
	"voxmail/internal/domain"
	"voxmail/internal/format"
	"voxmail/internal/logging"
)

type Handler interface {
	Handle(ctx context.Context, ev bot.Event) []string
}

type Config struct {
	Token string
	// Endpoint and FileEndpoint are format strings as in tgbotapi; empty means api.telegram.org.
	Endpoint     string
	FileEndpoint string
	PollTimeout  int
	DropPending  bool
	// Grace keeps in-flight updates running after shutdown starts.
	Grace      time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

type Transport struct {
	api    *tgbotapi.BotAPI
	cfg    Config
	client *http.Client
	log    *log.Logger
	seq    *bot.Sequencer
}

// New authenticates with getMe, so a bad token fails here.
func New(cfg Config) (*Transport, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	if err := tgbotapi.SetLogger(botLogger{cfg.Logger}); err != nil {
		cfg.Logger.Warn("Failed to install telegram logger", "err", err)
	}

	return &Transport{
		api:    api,
		cfg:    cfg,
		client: cfg.HTTPClient,
		log:    cfg.Logger,
		seq:    bot.NewSequencer(),
	}, nil
}

func (t *Transport) Username() string { return t.api.Self.UserName }

// Run polls until ctx is done. Chats are handled in parallel, the updates of one chat in order.
// In-flight updates get Grace to finish after ctx is done.
func (t *Transport) Run(ctx context.Context, h Handler) error {
	hctx, cancel := bot.Graceful(ctx, t.cfg.Grace)
	defer cancel()
	defer t.seq.Wait()

	if t.cfg.DropPending {
		if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
			t.log.Warn("Failed to drop pending updates", "err", err)
		}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.cfg.PollTimeout
	updates := t.api.GetUpdatesChan(u)
	t.log.Info("Polling Telegram", "bot", t.Username())

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message == nil {
				continue
			}
			m := upd.Message
			t.seq.Submit(string(UserID(m.Chat.ID)), func() { t.handleMessage(hctx, m, h) })
		}
	}
}

func (t *Transport) handleMessage(ctx context.Context, m *tgbotapi.Message, h Handler) {
	ctx, l := logging.WithEvent(ctx, t.log, "transport", "telegram", "chat", m.Chat.ID)
	defer func() {
		if r := recover(); r != nil {
			l.Error("Update handler panicked", "panic", r)
		}
	}()

	ev, kind := t.event(m)
	switch kind {
	case msgIgnored:
		return
	case msgUnsupported:
		t.reply(ctx, m, []string{format.UnsupportedMedia()})
		return
	}

	t.typing(m.Chat.ID)
	replies := h.Handle(ctx, ev)
	if ctx.Err() != nil {
		// grace ran out; the replies are only cancellation apologies
		l.Warn("Dropping replies during shutdown", "count", len(replies))
		return
	}
	t.reply(ctx, m, replies)
}

type msgKind int

const (
	msgIgnored msgKind = iota
	msgUnsupported
	msgText
	msgAudio
)

func (t *Transport) event(m *tgbotapi.Message) (bot.Event, msgKind) {
	ev := bot.Event{UserID: UserID(m.Chat.ID)}

	switch {
	case m.Voice != nil:
		ev.Audio = t.file(m.Voice.FileID, extension("", m.Voice.MimeType))
	case m.Audio != nil:
		ev.Audio = t.file(m.Audio.FileID, extension(m.Audio.FileName, m.Audio.MimeType))
	case m.Document != nil:
		if !isAudioMime(m.Document.MimeType) {
			return ev, msgUnsupported
		}
		ev.Audio = t.file(m.Document.FileID, extension(m.Document.FileName, m.Document.MimeType))
	case m.Text != "":
		ev.Text = m.Text
		return ev, msgText
	default:
		return ev, msgIgnored
	}

	ev.Text = m.Caption
	return ev, msgAudio
}

func UserID(chatID int64) domain.UserID {
	return domain.UserID(fmt.Sprintf("tg:%d", chatID))
}

func (t *Transport) typing(chatID int64) {
	if _, err := t.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		t.log.Debug("Chat action failed", "err", err)
	}
}

// reply quotes the original message with the first chunk only.
func (t *Transport) reply(ctx context.Context, m *tgbotapi.Message, texts []string) {
	l := logging.From(ctx)
	for i, text := range texts {
		msg := tgbotapi.NewMessage(m.Chat.ID, text)
		if i == 0 {
			msg.ReplyToMessageID = m.MessageID
		}
		if _, err := t.api.Send(msg); err != nil {
			l.Error("Failed to send reply", "chunk", i, "err", err)
			return
		}
	}
}

func isAudioMime(mime string) bool {
	mime = strings.ToLower(mime)
	return strings.HasPrefix(mime, "audio/") || mime == "application/ogg" || mime == "video/mp4"
}

var mimeExt = map[string]string{
	"audio/ogg":       ".oga",
	"audio/opus":      ".opus",
	"application/ogg": ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/mp4":       ".m4a",
	"audio/x-m4a":     ".m4a",
	"video/mp4":       ".mp4",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/webm":      ".webm",
}

// extension prefers the file name, then the MIME type; voice notes default to Ogg/Opus.
func extension(name, mime string) string {
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		return ext
	}
	if ext, ok := mimeExt[strings.ToLower(mime)]; ok {
		return ext
	}
	return ".oga"
}

type file struct {
	t      *Transport
	fileID string
	ext    string
}

func (t *Transport) file(id, ext string) file {
	return file{t: t, fileID: id, ext: ext}
}

func (f file) Ext() string { return f.ext }

func (f file) Fetch(ctx context.Context, w io.Writer) error {
	tf, err := f.t.api.GetFile(tgbotapi.FileConfig{FileID: f.fileID})
	if err != nil {
		return fmt.Errorf("get file: %w", err)
	}

	url := fmt.Sprintf(f.t.cfg.FileEndpoint, f.t.cfg.Token, tf.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.t.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: status %s", resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// botLogger routes the library's retry messages into slog.
type botLogger struct{ l *log.Logger }

func (b botLogger) Println(v ...interface{}) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintln(v...)), "component", "tgbotapi")
}

func (b botLogger) Printf(format string, v ...interface{}) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "tgbotapi")
}
