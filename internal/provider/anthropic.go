package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/thebtf/tabletalk/pkg/models"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
	anthropicMaxTok   = 2048
)

// anthropicProvider calls the Anthropic Messages API directly.
type anthropicProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

func newAnthropic(opts Options) (*anthropicProvider, error) {
	if opts.Credentials == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	model := opts.Model
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &anthropicProvider{
		apiKey:   opts.Credentials,
		model:    model,
		endpoint: anthropicEndpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (a *anthropicProvider) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *anthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]anthropicMessage, 0, len(req.History)+1)
	for _, msg := range req.History {
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, anthropicMessage{Role: RoleUser, Content: req.Prompt})

	body := anthropicRequest{
		Model:     a.model,
		MaxTokens: anthropicMaxTok,
		System:    req.System,
		Messages:  messages,
		Tools:     toAnthropicTools(req.Tools),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &models.ProviderError{Kind: models.ProviderTransient, Provider: "anthropic", Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &models.ProviderError{Kind: models.ProviderTransient, Provider: "anthropic", Err: err}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyAnthropicStatus(httpResp.StatusCode, raw)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &models.ProviderError{
			Kind:     models.ProviderTransient,
			Provider: "anthropic",
			Err:      fmt.Errorf("decode response: %w", err),
		}
	}

	resp := &Response{}
	var text strings.Builder
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	resp.Text = text.String()
	return resp, nil
}

func toAnthropicTools(tools []ToolSchema) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicTool, len(tools))
	for i, tool := range tools {
		properties := make(map[string]any, len(tool.Params))
		required := []string{}
		for _, param := range tool.Params {
			properties[param.Name] = map[string]any{
				"type":        param.Type,
				"description": param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}
		out[i] = anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		}
	}
	return out
}

func classifyAnthropicStatus(status int, body []byte) error {
	kind := models.ProviderTransient
	lower := strings.ToLower(string(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = models.ProviderAuth
	case status == http.StatusTooManyRequests && strings.Contains(lower, "credit"):
		kind = models.ProviderQuota
	case status == http.StatusTooManyRequests:
		kind = models.ProviderRateLimited
	case status == http.StatusBadRequest && strings.Contains(lower, "credit"):
		kind = models.ProviderQuota
	}
	return &models.ProviderError{
		Kind:     kind,
		Provider: "anthropic",
		Err:      fmt.Errorf("status %d: %s", status, truncate(string(body), 200)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
