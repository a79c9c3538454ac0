package llm

import (
	"context"
	"errors"
	"fmt"

	"ai-cycle-planner/internal/shared"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// GeminiClient is a client for the Google Gemini API.
type GeminiClient struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey, defaultModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, defaultModel: defaultModel}, nil
}

// GenerateContent sends the request to Gemini and returns the generated text.
func (c *GeminiClient) GenerateContent(ctx context.Context, req Request) (ContentResponse, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.defaultModel
	}

	model := c.client.GenerativeModel(modelName)
	if req.SystemMessage != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemMessage)}}
	}
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(req.UserMessage))
	if err != nil {
		return ContentResponse{}, classifyGeminiError(fmt.Errorf("failed to generate content: %w", err))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ContentResponse{}, NewTransientError(fmt.Errorf("no content generated"))
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	if text == "" {
		return ContentResponse{}, NewFatalError(fmt.Errorf("generated content is not text"))
	}

	usage := shared.TokenUsage{Model: modelName}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return ContentResponse{Content: text, Usage: usage}, nil
}

// classifyGeminiError marks quota, availability and deadline errors as
// transient. Other API errors are fatal; unknown errors (network) are transient.
func classifyGeminiError(err error) error {
	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) {
		return NewTransientError(err)
	}
	if code := apiErr.HTTPCode(); code > 0 {
		return classifyStatus(code, err)
	}
	if st := apiErr.GRPCStatus(); st != nil {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			return NewTransientError(err)
		}
	}
	return NewFatalError(err)
}

// Close closes the underlying Gemini client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}
