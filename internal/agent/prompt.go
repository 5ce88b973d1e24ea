package agent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/tiktoken-go/tokenizer"

	"github.com/thebtf/tabletalk/internal/provider"
	"github.com/thebtf/tabletalk/pkg/models"
)

// systemPrompt frames the model as a data management assistant over the
// tool catalog. Kept deliberately terse; the catalog schema travels
// separately in the request.
const systemPrompt = `You are an intelligent data management assistant. You understand natural
language queries in English, Bengali, and mixed language, and manage the
user's data tables through the tools provided.

Rules:
- Use the tools to inspect and modify data; never invent table contents.
- Create a table before adding rows to it when none fits.
- Prefer existing tables whose name or description matches the query.
- Dates: ajk = today, gotokal = yesterday, kal = tomorrow.
- Answer in clear, short sentences. Explain which table you used and why.`

// maxResponseLength caps the final response text returned to callers.
const maxResponseLength = 5000

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// countTokens measures text with the cl100k tokenizer, falling back to
// a bytes/4 estimate when the tokenizer is unavailable.
func countTokens(text string) int {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	if codec != nil {
		if n, err := codec.Count(text); err == nil {
			return n
		}
	}
	return len(text) / 4
}

// buildHistory converts stored messages into provider history, newest
// kept, oldest dropped once the token budget is exhausted.
func buildHistory(messages []*models.Message, tokenBudget int) []provider.Message {
	var out []provider.Message
	used := 0
	// Walk newest to oldest, then reverse.
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		cost := countTokens(msg.Text)
		if used+cost > tokenBudget && len(out) > 0 {
			break
		}
		role := provider.RoleUser
		if msg.Sender == models.SenderAgent {
			role = provider.RoleAssistant
		}
		out = append(out, provider.Message{Role: role, Content: msg.Text})
		used += cost
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// buildPrompt assembles the first-turn prompt: the query plus the
// analyzed intent and any defaults inferred from session history.
func buildPrompt(ownerID, query string, in models.Intent, defaults map[string]models.FieldProvenance) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User ID: %s\n", ownerID)
	fmt.Fprintf(&sb, "Query: %s\n", query)
	fmt.Fprintf(&sb, "Intent: %s (confidence %.0f%%)\n", in.Type, in.Confidence*100)
	if len(in.Categories) > 0 {
		fmt.Fprintf(&sb, "Detected categories: %s\n", strings.Join(in.Categories, ", "))
	}
	if len(in.Entities) > 0 {
		keys := make([]string, 0, len(in.Entities))
		for k := range in.Entities {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%s", k, in.Entities[k])
		}
		fmt.Fprintf(&sb, "Extracted entities: %s\n", strings.Join(pairs, ", "))
	}
	if len(defaults) > 0 {
		keys := make([]string, 0, len(defaults))
		for k := range defaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%s", k, defaults[k].Value)
		}
		fmt.Fprintf(&sb, "Defaults inferred from session history (uncertain): %s\n", strings.Join(pairs, ", "))
	}
	sb.WriteString("\nProcess this request with the appropriate tools.")
	return sb.String()
}

// buildFollowUp folds tool results into the next model turn.
func buildFollowUp(results []models.ToolResult) string {
	var sb strings.Builder
	sb.WriteString("Tool results from the previous step:\n")
	for _, r := range results {
		payload, err := json.Marshal(r)
		if err != nil {
			payload = []byte(fmt.Sprintf(`{"tool":%q,"success":%t}`, r.Tool, r.Success))
		}
		sb.Write(payload)
		sb.WriteByte('\n')
	}
	sb.WriteString("\nContinue the request. Reply with a final answer when done.")
	return sb.String()
}

var stepPrefixPattern = regexp.MustCompile(`(?m)^\*{0,2}Step \d+:?\*{0,2}\s*`)

// cleanResponse strips step prefixes the model sometimes emits and caps
// the response length.
func cleanResponse(text string) string {
	cleaned := stepPrefixPattern.ReplaceAllString(text, "")
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > maxResponseLength {
		cleaned = cleaned[:maxResponseLength] + "..."
	}
	return cleaned
}
