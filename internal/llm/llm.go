// Package llm wraps the OpenAI-compatible providers used for drafting and speech-to-text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voxmail/internal/domain"
)

type Client interface {
	Name() string
	// Complete runs one chat completion with a system and a user message.
	Complete(ctx context.Context, system, user string) (string, error)
	// Transcribe sends the audio file at path to the provider's speech-to-text model.
	Transcribe(ctx context.Context, path string) (string, error)
}

type Config struct {
	Provider        string // openai, groq
	APIKey          string
	BaseURL         string
	ChatModel       string
	TranscribeModel string
	Temperature     float64
	Timeout         time.Duration
	HTTPClient      *http.Client
}

func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key not set", cfg.Provider)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "groq":
		return NewGroq(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// quotaError marks err with domain.ErrQuotaExceeded when the provider answered 429
// or reported an exhausted quota.
func quotaError(status int, err error) error {
	if status == http.StatusTooManyRequests || strings.Contains(err.Error(), "insufficient_quota") {
		return fmt.Errorf("%w: %w", domain.ErrQuotaExceeded, err)
	}
	return err
}

var errNoChoices = errors.New("no choices in response")
