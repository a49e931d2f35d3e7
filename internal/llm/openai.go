package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient calls the chat completions endpoint.
type OpenAIClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason"`
	Message      struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

// WithKey returns a copy of the client using a caller-supplied API key.
// Used when the request carries the end user's own key.
func (c *OpenAIClient) WithKey(apiKey string) *OpenAIClient {
	cp := *c
	cp.APIKey = apiKey
	return &cp
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("openai api key missing")
	}
	endpoint := "https://api.openai.com/v1/chat/completions"

	messages := []chatMessage{{Role: "system", Content: req.SystemPrompt}}
	for i, m := range req.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		// Attach media to the last user message as an image part.
		if req.Media != nil && i == len(req.Messages)-1 && m.Role == "user" {
			dataURL := "data:" + req.Media.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Media.Bytes)
			messages = append(messages, chatMessage{Role: m.Role, Content: []contentPart{
				{Type: "text", Text: m.Content},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			}})
			continue
		}
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	reqBody, _ := json.Marshal(chatCompletionsRequest{Model: c.Model, Messages: messages, Temperature: 0.5})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
