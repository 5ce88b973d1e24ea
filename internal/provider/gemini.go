package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/thebtf/tabletalk/pkg/models"
)

// geminiProvider calls the Gemini API through google.golang.org/genai.
type geminiProvider struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, opts Options) (*geminiProvider, error) {
	if opts.Credentials == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: opts.Credentials,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &geminiProvider{client: client, model: model}, nil
}

func (g *geminiProvider) Name() string { return "gemini" }

func (g *geminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, msg := range req.History {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(req.Tools)}}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return &Response{}, nil
	}

	resp := &Response{}
	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}
	resp.Text = text.String()
	return resp, nil
}

func toFunctionDeclarations(tools []ToolSchema) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		properties := make(map[string]*genai.Schema, len(tool.Params))
		var required []string
		for _, param := range tool.Params {
			properties[param.Name] = &genai.Schema{
				Type:        toGenaiType(param.Type),
				Description: param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}
		decls[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			},
		}
	}
	return decls
}

func toGenaiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func classifyGeminiError(err error) error {
	kind := models.ProviderTransient

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			kind = models.ProviderAuth
		case apiErr.Code == 429 && strings.Contains(strings.ToLower(apiErr.Message), "quota"):
			kind = models.ProviderQuota
		case apiErr.Code == 429:
			kind = models.ProviderRateLimited
		}
	}

	return &models.ProviderError{Kind: kind, Provider: "gemini", Err: err}
}
