package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-bot/api/internal/llm"
)

func TestComplete_SendsSystemAndPrompt(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"questions\": []}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	e := New("sk-test", "gpt-4o-mini", srv.URL+"/v1")
	out, err := e.Complete(context.Background(), llm.Request{
		Prompt:      "make questions",
		System:      "you are an interviewer",
		Temperature: 0.9,
		MaxTokens:   2048,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"questions": []}`, out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.9, got.Temperature, 1e-6)
	assert.Equal(t, 2048, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "make questions", got.Messages[1].Content)
}

func TestComplete_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	e := New("sk-test", "gpt-4o-mini", srv.URL+"/v1")
	_, err := e.Complete(context.Background(), llm.Request{Prompt: "x"})
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestComplete_MissingKey(t *testing.T) {
	_, err := New("", "m", "").Complete(context.Background(), llm.Request{Prompt: "x"})
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}
