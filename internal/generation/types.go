// Package generation is the client for the Dify-compatible text generation backend.
package generation

import (
	"context"
	"encoding/json"
	"errors"
)

// Generation failure kinds. Wrapped errors match these with errors.Is.
var (
	ErrTimeout           = errors.New("generation timeout")
	ErrRateLimited       = errors.New("generation rate limited")
	ErrMalformedResponse = errors.New("malformed generation response")
	ErrUpstream          = errors.New("generation upstream error")
)

// KindOf returns the taxonomy tag of a generation error, or "" for nil.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrMalformedResponse):
		return "MalformedResponse"
	default:
		return "UpstreamError"
	}
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Request is one blocking generation call.
type Request struct {
	Prompt         string
	Inputs         map[string]any
	User           string
	ConversationID string
	Files          []File
}

// Result is a successful completion.
type Result struct {
	Text           string
	Raw            string
	TokensUsed     int
	MessageID      string
	ConversationID string
	Usage          Usage
}

// File is an attachment forwarded to the backend.
type File struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url,omitempty"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
}

// chatRequest is the wire body of POST /chat-messages.
type chatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Files          []File         `json:"files,omitempty"`
}

// Usage is the backend's token accounting.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	TotalPrice       string  `json:"total_price,omitempty"`
	Currency         string  `json:"currency,omitempty"`
	Latency          float64 `json:"latency"`
}

// chatResponse is the wire body of a blocking chat-messages reply.
type chatResponse struct {
	Event          string `json:"event"`
	TaskID         string `json:"task_id"`
	ID             string `json:"id"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Mode           string `json:"mode"`
	Answer         string `json:"answer"`
	Metadata       struct {
		Usage              Usage             `json:"usage"`
		RetrieverResources []json.RawMessage `json:"retriever_resources"`
	} `json:"metadata"`
	CreatedAt int64 `json:"created_at"`
}

// errorResponse is the backend's error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}
