package llm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// Groq talks to Groq's OpenAI-compatible endpoint.
type Groq struct {
	client          *openai.Client
	chatModel       string
	transcribeModel string
	cfg             Config
}

func NewGroq(cfg Config) *Groq {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = groqBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = cfg.HTTPClient

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = "llama-3.1-8b-instant"
	}
	transcribeModel := cfg.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = "whisper-large-v3"
	}

	return &Groq{
		client:          openai.NewClientWithConfig(clientCfg),
		chatModel:       chatModel,
		transcribeModel: transcribeModel,
		cfg:             cfg,
	}
}

func (c *Groq) Name() string { return "groq" }

func (c *Groq) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: float32(c.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", groqError(err))
	}

	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}

	log.Debug("Chat usage",
		"provider", c.Name(),
		"prompt", resp.Usage.PromptTokens,
		"completion", resp.Usage.CompletionTokens)

	return resp.Choices[0].Message.Content, nil
}

func (c *Groq) Transcribe(ctx context.Context, path string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcribeModel,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", groqError(err))
	}

	return resp.Text, nil
}

func groqError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return quotaError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return quotaError(reqErr.HTTPStatusCode, err)
	}
	return err
}
