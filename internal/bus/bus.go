// Package bus connects the bot to a websocket message hub. Frames addressed to the bot are
// handled like chat messages and answered with reply frames.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"voxmail/internal/bot"
	"voxmail/internal/domain"
	"voxmail/internal/input"
	"voxmail/internal/logging"
)

const (
	KindText  = "text"
	KindAudio = "audio"
	KindReply = "reply"
)

type Frame struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	Audio   []byte `json:"audio,omitempty"`
	Ext     string `json:"ext,omitempty"`
}

// Event maps the frame onto a bot event. Frames carrying audio are voice input.
func (f Frame) Event() bot.Event {
	ev := bot.Event{UserID: domain.UserID("bus:" + f.From), Text: f.Content}
	if len(f.Audio) > 0 {
		ev.Audio = input.Bytes{Data: f.Audio, Extension: f.Ext}
	}
	return ev
}

type Handler interface {
	Handle(ctx context.Context, ev bot.Event) []string
}

type Config struct {
	URL    string
	Name   string
	Reconn time.Duration
	// MaxFrame caps one incoming frame in bytes. Audio arrives base64-encoded inside it.
	MaxFrame int64
	// Grace keeps in-flight events running after shutdown starts.
	Grace time.Duration
	// ReplyWait bounds how long a reply waits for the hub to come back.
	ReplyWait time.Duration
	Logger    *log.Logger
}

// 25 MiB of audio after base64 plus the JSON envelope.
const DefaultMaxFrame = 34 << 20

type Bus struct {
	cfg    Config
	dialer *ws.Dialer
	seq    *bot.Sequencer

	mu    sync.Mutex
	conn  *ws.Conn
	ready chan struct{} // closed and replaced on every new connection

	writeMu sync.Mutex
}

func New(cfg Config) *Bus {
	if cfg.Reconn <= 0 {
		cfg.Reconn = 3 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "voxmail"
	}
	if cfg.MaxFrame <= 0 {
		cfg.MaxFrame = DefaultMaxFrame
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 20 * time.Second
	}
	if cfg.ReplyWait <= 0 {
		cfg.ReplyWait = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Bus{
		cfg:    cfg,
		dialer: &ws.Dialer{HandshakeTimeout: 10 * time.Second},
		seq:    bot.NewSequencer(),
		ready:  make(chan struct{}),
	}
}

// Run reads frames until ctx is done, reconnecting whenever the hub drops the connection.
// Replies always go out on the newest connection.
func (b *Bus) Run(ctx context.Context, h Handler) error {
	hctx, cancel := bot.Graceful(ctx, b.cfg.Grace)
	defer cancel()
	defer b.setConn(nil)
	defer b.seq.Wait()

	for {
		conn, err := b.connect(ctx)
		if err != nil {
			return nil // ctx done
		}
		conn.SetReadLimit(b.cfg.MaxFrame)
		b.setConn(conn)
		b.cfg.Logger.Info("Connected to bus", "url", b.cfg.URL, "name", b.cfg.Name)

		err = b.readLoop(ctx, hctx, conn, h)
		if ctx.Err() != nil {
			return nil
		}
		conn.Close()
		if IsClosed(err) {
			b.cfg.Logger.Info("Hub closed the connection, reconnecting", "url", b.cfg.URL)
		} else {
			b.cfg.Logger.Warn("Bus connection lost, reconnecting", "url", b.cfg.URL, "err", err)
		}
	}
}

// setConn swaps the live connection, closing the previous one, and wakes pending replies.
func (b *Bus) setConn(conn *ws.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && b.conn != conn {
		b.conn.Close()
	}
	b.conn = conn
	close(b.ready)
	b.ready = make(chan struct{})
}

func (b *Bus) current() (*ws.Conn, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn, b.ready
}

func (b *Bus) connect(ctx context.Context) (*ws.Conn, error) {
	for {
		conn, _, err := b.dialer.DialContext(ctx, b.cfg.URL, nil)
		if err == nil {
			return conn, nil
		}
		b.cfg.Logger.Debug("Bus dial failed", "url", b.cfg.URL, "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.cfg.Reconn):
		}
	}
}

// readLoop stops reading when ctx is done but leaves conn open so in-flight replies still go out.
func (b *Bus) readLoop(ctx, hctx context.Context, conn *ws.Conn, h Handler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			b.cfg.Logger.Warn("Failed to parse frame", "err", err)
			continue
		}
		if !b.accepts(f) {
			continue
		}

		b.seq.Submit(f.From, func() { b.handle(hctx, f, h) })
	}
}

func (b *Bus) accepts(f Frame) bool {
	if f.From == "" || f.From == b.cfg.Name {
		return false
	}
	if f.To != "" && f.To != b.cfg.Name {
		return false
	}
	return f.Kind == KindText || f.Kind == KindAudio || f.Kind == ""
}

func (b *Bus) handle(ctx context.Context, f Frame, h Handler) {
	ctx, l := logging.WithEvent(ctx, b.cfg.Logger, "transport", "bus", "from", f.From)
	defer func() {
		if r := recover(); r != nil {
			l.Error("Frame handler panicked", "panic", r)
		}
	}()

	for _, text := range h.Handle(ctx, f.Event()) {
		reply := Frame{From: b.cfg.Name, To: f.From, Kind: KindReply, Content: text}
		if err := b.send(ctx, reply); err != nil {
			l.Error("Failed to send reply", "err", err)
			return
		}
	}
}

var errNoHub = errors.New("bus hub unreachable")

// send writes on the live connection. When that fails it waits for the next connection
// and tries again, up to ReplyWait.
func (b *Bus) send(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	timeout := time.NewTimer(b.cfg.ReplyWait)
	defer timeout.Stop()

	for {
		conn, ready := b.current()
		if conn != nil {
			if err = b.write(conn, data); err == nil {
				return nil
			}
			logging.From(ctx).Debug("Reply write failed, waiting for the hub", "err", err)
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return errors.Join(errNoHub, err)
		}
	}
}

// gorilla connections allow one concurrent writer.
func (b *Bus) write(conn *ws.Conn, data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return conn.WriteMessage(ws.TextMessage, data)
}

func IsClosed(err error) bool {
	return errors.Is(err, ws.ErrCloseSent) || ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
