package llm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"os"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type OpenAI struct {
	api             openai.Client
	chatModel       string
	transcribeModel string
	cfg             Config
}

func NewOpenAI(cfg Config) *OpenAI {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	transcribeModel := cfg.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = "whisper-1"
	}

	return &OpenAI{
		api:             openai.NewClient(opts...),
		chatModel:       chatModel,
		transcribeModel: transcribeModel,
		cfg:             cfg,
	}
}

func (c *OpenAI) Name() string { return "openai" }

func (c *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       openai.ChatModel(c.chatModel),
		Temperature: openai.Float(c.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", openAIError(err))
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

func (c *OpenAI) Transcribe(ctx context.Context, path string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	tr, err := c.api.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(c.transcribeModel),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", openAIError(err))
	}

	return tr.Text, nil
}

func openAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return quotaError(apiErr.StatusCode, err)
	}
	return err
}
