package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient generates replies through the Gemini API.
type GeminiClient struct {
	APIKey string
	Model  string
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	return &GeminiClient{APIKey: apiKey, Model: model}
}

func (g *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("gemini api key missing")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}

	var contents []*genai.Content
	for i, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		} else if m.Role != "user" {
			continue
		}
		parts := []*genai.Part{{Text: m.Content}}
		if req.Media != nil && i == len(req.Messages)-1 && role == genai.RoleUser {
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{
				MIMEType: req.Media.MIMEType,
				Data:     req.Media.Bytes,
			}})
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	if len(contents) == 0 {
		contents = []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: "Olá, tudo bem? Responda brevemente."}}}}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.6),
		TopP:            genai.Ptr[float32](0.9),
		MaxOutputTokens: 1024,
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}

	resp, err := client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: empty reply")
	}
	return text, nil
}
