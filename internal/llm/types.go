package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Roles used on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrMalformedResponse is returned when a body is not an OpenAI-style
// chat completion.
var ErrMalformedResponse = errors.New("malformed completion response")

// Message is one entry of a chat completion request.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a decoded completion. Raw keeps the body as received.
type Response struct {
	ID        string
	Created   int64
	Content   string
	Reasoning string
	Model     string
	Usage     Usage
	Raw       json.RawMessage
}

type wireResponse struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role             string  `json:"role"`
			Content          *string `json:"content"`
			ReasoningContent string  `json:"reasoning_content"`
			Reasoning        string  `json:"reasoning"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// DecodeResponse reads choices[0].message from an OpenAI-style body. The
// reasoning text comes from reasoning_content, or from reasoning when the
// former is empty.
func DecodeResponse(raw []byte) (Response, error) {
	var w wireResponse
	if err := json.Unmarshal(raw, &w); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if w.Error != nil {
		return Response{}, fmt.Errorf("provider error: %s", w.Error.Message)
	}
	if len(w.Choices) == 0 || w.Choices[0].Message.Content == nil {
		return Response{}, fmt.Errorf("%w: no message content", ErrMalformedResponse)
	}

	msg := w.Choices[0].Message
	reasoning := msg.ReasoningContent
	if reasoning == "" {
		reasoning = msg.Reasoning
	}
	return Response{
		ID:        w.ID,
		Created:   w.Created,
		Content:   *msg.Content,
		Reasoning: reasoning,
		Model:     w.Model,
		Usage:     w.Usage,
		Raw:       append(json.RawMessage(nil), raw...),
	}, nil
}
