// Package provider abstracts language-model backends behind one call
// shape. Variants are selected by configuration name, never by runtime
// type inspection; swapping providers must not change caller-visible
// behavior beyond latency and quality.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/thebtf/tabletalk/pkg/models"
)

// Role values for conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolParam describes one argument of a tool.
type ToolParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "integer", "number", "object", "array"
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// ToolSchema describes one tool exposed to the model.
type ToolSchema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ToolParam `json:"params"`
}

// Request is one generation request.
type Request struct {
	System  string
	Prompt  string
	History []Message
	Tools   []ToolSchema
}

// Response is the uniform generation result: direct text plus zero or
// more tool calls, in emission order.
type Response struct {
	Text      string
	ToolCalls []models.ToolCall
}

// Provider is the uniform backend interface.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Options selects and configures a provider variant.
type Options struct {
	Provider          string
	Model             string
	Credentials       string
	TimeoutSeconds    int
	MaxRetries        int
	RetryDelaySeconds int
}

// New creates the named provider wrapped with the retry policy.
func New(ctx context.Context, opts Options) (Provider, error) {
	var (
		inner Provider
		err   error
	)
	switch opts.Provider {
	case "anthropic":
		inner, err = newAnthropic(opts)
	case "gemini", "google":
		inner, err = newGemini(ctx, opts)
	case "mock":
		inner = NewMock()
	default:
		return nil, fmt.Errorf("unsupported provider: %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(inner, opts.MaxRetries, time.Duration(opts.RetryDelaySeconds)*time.Second), nil
}
