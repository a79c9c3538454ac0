package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
	}{
		{name: "plain object", input: `{"week": 1}`, wantKey: "week"},
		{name: "fenced", input: "```json\n{\"week\": 1}\n```", wantKey: "week"},
		{name: "fenced without language", input: "```\n{\"week\": 1}\n```", wantKey: "week"},
		{name: "prose around", input: "Here is your plan:\n{\"week\": 1}\nEnjoy!", wantKey: "week"},
		{name: "comments and trailing commas", input: "{\n  \"days\": [\n    \"monday\", // first\n    \"tuesday\",\n  ],\n}", wantKey: "days"},
		{name: "url in string kept", input: `{"link": "https://example.com/a"}`, wantKey: "link"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ExtractJSON(tt.input)
			var parsed map[string]any
			if assert.NoError(t, json.Unmarshal([]byte(out), &parsed), out) {
				assert.Contains(t, parsed, tt.wantKey)
			}
		})
	}
}

func TestExtractJSON_NoObject(t *testing.T) {
	assert.Empty(t, ExtractJSON(""))
	assert.Empty(t, ExtractJSON("I cannot help with that."))
	assert.Empty(t, ExtractJSON("} backwards {"))
}

func TestExtractJSON_KeepsURLWhenCommentFollows(t *testing.T) {
	out := ExtractJSON("{\"link\": \"https://example.com\"} // trailing")
	assert.Equal(t, `{"link": "https://example.com"}`, out)
}

func TestExtractJSON_KeepsCommasInsideStrings(t *testing.T) {
	out := ExtractJSON(`{"message":"Rest today, ]then walk", "tags": ["a", "b",],}`)
	assert.Equal(t, `{"message":"Rest today, ]then walk", "tags": ["a", "b"]}`, out)
}

func TestExtractJSON_FirstFencedBlockWins(t *testing.T) {
	input := "Plan:\n```json\n{\"a\": {\"n\": 1}}\n```\nAlternative:\n```json\n{\"b\": 2}\n```"
	assert.Equal(t, `{"a": {"n": 1}}`, ExtractJSON(input))
}
