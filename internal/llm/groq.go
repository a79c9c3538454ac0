package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-cycle-planner/internal/shared"

	"github.com/tidwall/gjson"
)

const groqAPIURL = "https://api.groq.com/openai/v1/chat/completions"

// GroqClient is a client for the Groq OpenAI-compatible API.
type GroqClient struct {
	apiKey       string
	defaultModel string
	url          string
	httpClient   *http.Client
}

// NewGroqClient creates a new Groq API client.
func NewGroqClient(apiKey, defaultModel string) *GroqClient {
	return &GroqClient{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		url:          groqAPIURL,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqRequest struct {
	Model          string            `json:"model"`
	Messages       []groqMessage     `json:"messages"`
	Temperature    float32           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
}

// GenerateContent sends the request to Groq and returns the generated text.
func (c *GroqClient) GenerateContent(ctx context.Context, req Request) (ContentResponse, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]groqMessage, 0, 2)
	if req.SystemMessage != "" {
		messages = append(messages, groqMessage{Role: "system", Content: req.SystemMessage})
	}
	messages = append(messages, groqMessage{Role: "user", Content: req.UserMessage})

	jsonBody, err := json.Marshal(groqRequest{
		Model:          model,
		Messages:       messages,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return ContentResponse{}, NewFatalError(fmt.Errorf("failed to marshal request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return ContentResponse{}, NewFatalError(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ContentResponse{}, NewTransientError(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ContentResponse{}, NewTransientError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return ContentResponse{}, classifyStatus(resp.StatusCode,
			fmt.Errorf("groq api error: status=%d body=%s", resp.StatusCode, string(body)))
	}

	if !gjson.ValidBytes(body) {
		return ContentResponse{}, NewTransientError(fmt.Errorf("groq returned invalid JSON envelope"))
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.String() == "" {
		return ContentResponse{}, NewTransientError(fmt.Errorf("no content generated"))
	}

	usage := shared.TokenUsage{
		Model:            model,
		PromptTokens:     int(gjson.GetBytes(body, "usage.prompt_tokens").Int()),
		CompletionTokens: int(gjson.GetBytes(body, "usage.completion_tokens").Int()),
		TotalTokens:      int(gjson.GetBytes(body, "usage.total_tokens").Int()),
	}
	if m := gjson.GetBytes(body, "model"); m.Exists() && m.String() != "" {
		usage.Model = m.String()
	}

	return ContentResponse{Content: content.String(), Usage: usage}, nil
}
