package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/tabletalk/pkg/models"
)

func anthropicTestServer(t *testing.T, handler http.HandlerFunc) *anthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &anthropicProvider{
		apiKey:   "test-key",
		model:    "claude-3-5-sonnet-20240620",
		endpoint: server.URL,
		client:   server.Client(),
	}
}

func TestAnthropic_TextResponse(t *testing.T) {
	var captured anthropicRequest
	p := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContentBlock{{Type: "text", Text: "hello there"}},
		})
	})

	resp, err := p.Generate(context.Background(), Request{
		System:  "be helpful",
		Prompt:  "hi",
		History: []Message{{Role: RoleUser, Content: "earlier"}, {Role: RoleAssistant, Content: "reply"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Empty(t, resp.ToolCalls)

	assert.Equal(t, "be helpful", captured.System)
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "hi", captured.Messages[2].Content)
}

func TestAnthropic_ToolUseResponse(t *testing.T) {
	p := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContentBlock{
				{Type: "text", Text: "adding it now"},
				{Type: "tool_use", ID: "tu_1", Name: "add-row", Input: map[string]any{
					"table_id": float64(1),
					"row":      map[string]any{"amount": "250"},
				}},
			},
		})
	})

	resp, err := p.Generate(context.Background(), Request{Prompt: "add 250 taka"})
	require.NoError(t, err)
	assert.Equal(t, "adding it now", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "add-row", resp.ToolCalls[0].Name)
	assert.Equal(t, "tu_1", resp.ToolCalls[0].ID)
}

func TestAnthropic_ToolSchemaMarshalling(t *testing.T) {
	var captured anthropicRequest
	p := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContentBlock{{Type: "text", Text: "ok"}},
		})
	})

	_, err := p.Generate(context.Background(), Request{
		Prompt: "x",
		Tools: []ToolSchema{{
			Name:        "add-row",
			Description: "Add one data entry",
			Params: []ToolParam{
				{Name: "table_id", Type: "integer", Required: true},
				{Name: "row", Type: "object", Required: true},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "add-row", captured.Tools[0].Name)
	assert.ElementsMatch(t, []any{"table_id", "row"}, captured.Tools[0].InputSchema["required"])
}

func TestAnthropic_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   models.ProviderErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`, models.ProviderAuth},
		{"forbidden", http.StatusForbidden, `{}`, models.ProviderAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"too fast"}}`, models.ProviderRateLimited},
		{"quota via 429", http.StatusTooManyRequests, `{"error":{"message":"credit balance too low"}}`, models.ProviderQuota},
		{"quota via 400", http.StatusBadRequest, `{"error":{"message":"credit balance too low"}}`, models.ProviderQuota},
		{"server error", http.StatusInternalServerError, `{}`, models.ProviderTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := p.Generate(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)

			var pe *models.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, "anthropic", pe.Provider)
		})
	}
}

func TestNewAnthropic_RequiresKey(t *testing.T) {
	_, err := newAnthropic(Options{})
	require.Error(t, err)
}
