// Package input turns an incoming message, typed or spoken, into plain text.
package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"strings"

	"voxmail/internal/domain"
)

// Audio is a media attachment that the transport can fetch on demand.
type Audio interface {
	// Ext is the file extension including the dot, e.g. ".oga".
	Ext() string
	Fetch(ctx context.Context, w io.Writer) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Content is either Text or Audio. Audio wins when both are set.
type Content struct {
	Text  string
	Audio Audio
}

type Result struct {
	Text       string
	Transcript bool
}

type Normalizer struct {
	stt    Transcriber
	tmpDir string
}

// NewNormalizer stores downloads under tmpDir; "" means os.TempDir.
func NewNormalizer(stt Transcriber, tmpDir string) *Normalizer {
	return &Normalizer{stt: stt, tmpDir: tmpDir}
}

func (n *Normalizer) Normalize(ctx context.Context, c Content) (Result, error) {
	if c.Audio == nil {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			return Result{}, &domain.UserInputError{Msg: "Send a voice message, an audio file or some text."}
		}
		return Result{Text: text}, nil
	}

	text, err := n.transcribe(ctx, c.Audio)
	if err != nil {
		return Result{}, &domain.TranscriptionError{Err: err}
	}
	return Result{Text: text, Transcript: true}, nil
}

func (n *Normalizer) transcribe(ctx context.Context, a Audio) (string, error) {
	ext := a.Ext()
	if ext == "" {
		ext = ".oga"
	}

	f, err := os.CreateTemp(n.tmpDir, "voxmail-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to remove media", "path", path, "err", err)
		}
	}()

	err = a.Fetch(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}

	text, err := n.stt.Transcribe(ctx, path)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyTranscript
	}
	return text, nil
}

// Bytes is an in-memory Audio.
type Bytes struct {
	Data      []byte
	Extension string
}

func (b Bytes) Ext() string { return b.Extension }

func (b Bytes) Fetch(_ context.Context, w io.Writer) error {
	_, err := w.Write(b.Data)
	return err
}
