package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxmail/internal/domain"
)

const chatResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "draft"}}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
}`

const quotaResponse = `{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"}}`

type chatBody struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newChatServer(t *testing.T, status int, body string, seen *chatBody) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTranscriptionServer(t *testing.T, wantModel string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, wantModel, r.FormValue("model"))
		_, _, err := r.FormFile("file")
		assert.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text": "przesuń spotkanie"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voice.oga")
	require.NoError(t, os.WriteFile(path, []byte("OggS-fake"), 0o600))
	return path
}

func clients(baseURL string, httpClient *http.Client) map[string]Client {
	cfg := Config{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Temperature: 0.3,
		Timeout:     5 * time.Second,
		HTTPClient:  httpClient,
	}
	return map[string]Client{
		"openai": NewOpenAI(cfg),
		"groq":   NewGroq(cfg),
	}
}

func TestCompleteSendsSystemAndUserMessages(t *testing.T) {
	var seen chatBody
	srv := newChatServer(t, http.StatusOK, chatResponse, &seen)

	for name, client := range clients(srv.URL, srv.Client()) {
		t.Run(name, func(t *testing.T) {
			out, err := client.Complete(context.Background(), "be brief", "Language: Polish")
			require.NoError(t, err)
			require.Equal(t, "draft", out)

			require.Len(t, seen.Messages, 2)
			require.Equal(t, "system", seen.Messages[0].Role)
			require.Equal(t, "be brief", seen.Messages[0].Content)
			require.Equal(t, "user", seen.Messages[1].Role)
			require.Equal(t, "Language: Polish", seen.Messages[1].Content)
		})
	}
}

func TestDefaultModels(t *testing.T) {
	var seen chatBody
	srv := newChatServer(t, http.StatusOK, chatResponse, &seen)
	cs := clients(srv.URL, srv.Client())

	_, err := cs["openai"].Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", seen.Model)

	_, err = cs["groq"].Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	require.Equal(t, "llama-3.1-8b-instant", seen.Model)
}

func TestCompleteMarksQuotaErrors(t *testing.T) {
	srv := newChatServer(t, http.StatusTooManyRequests, quotaResponse, nil)

	for name, client := range clients(srv.URL, srv.Client()) {
		t.Run(name, func(t *testing.T) {
			_, err := client.Complete(context.Background(), "s", "u")
			require.Error(t, err)
			require.ErrorIs(t, err, domain.ErrQuotaExceeded)
		})
	}
}

func TestCompleteServerErrorIsNotQuota(t *testing.T) {
	srv := newChatServer(t, http.StatusInternalServerError, `{"error": {"message": "boom", "type": "server_error"}}`, nil)

	for name, client := range clients(srv.URL, srv.Client()) {
		t.Run(name, func(t *testing.T) {
			_, err := client.Complete(context.Background(), "s", "u")
			require.Error(t, err)
			require.NotErrorIs(t, err, domain.ErrQuotaExceeded)
		})
	}
}

func TestTranscribeOpenAI(t *testing.T) {
	srv := newTranscriptionServer(t, "whisper-1")
	client := clients(srv.URL, srv.Client())["openai"]

	text, err := client.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)
	require.Equal(t, "przesuń spotkanie", text)
}

func TestTranscribeGroq(t *testing.T) {
	srv := newTranscriptionServer(t, "whisper-large-v3")
	client := clients(srv.URL, srv.Client())["groq"]

	text, err := client.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)
	require.Equal(t, "przesuń spotkanie", text)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Provider: "openai"})
	require.ErrorContains(t, err, "api key not set")

	_, err = New(Config{Provider: "claude", APIKey: "k"})
	require.ErrorContains(t, err, "unsupported provider")

	c, err := New(Config{Provider: "groq", APIKey: "k"})
	require.NoError(t, err)
	require.Equal(t, "groq", c.Name())
}
