package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGroq(t *testing.T, handler http.HandlerFunc) *GroqClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewGroqClient("test-key", "llama-3.3-70b-versatile")
	c.url = srv.URL
	return c
}

func TestGroqClient_GenerateContent(t *testing.T) {
	var got groqRequest
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{
			"model": "llama-3.3-70b-versatile",
			"choices": [{"message": {"role": "assistant", "content": "{\"a\":1}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 34, "total_tokens": 46}
		}`))
	})

	resp, err := c.GenerateContent(context.Background(), Request{
		SystemMessage: "sys",
		UserMessage:   "user",
		Temperature:   0.7,
		MaxTokens:     100,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, resp.Content)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 34, resp.Usage.CompletionTokens)
	assert.Equal(t, 46, resp.Usage.TotalTokens)
	assert.Equal(t, "llama-3.3-70b-versatile", resp.Usage.Model)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Content)
	assert.Equal(t, float32(0.7), got.Temperature)
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestGroqClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		})
		_, err := c.GenerateContent(context.Background(), Request{UserMessage: "x"})
		require.Error(t, err)
		assert.Equal(t, tt.transient, IsTransient(err), "status %d", tt.status)
		assert.Equal(t, !tt.transient, IsFatal(err), "status %d", tt.status)
	}
}

func TestGroqClient_EmptyChoices(t *testing.T) {
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	_, err := c.GenerateContent(context.Background(), Request{UserMessage: "x"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
