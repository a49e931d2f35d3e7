package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIClient synthesizes speech through the audio/speech endpoint.
type OpenAIClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		APIKey:     apiKey,
		Model:      "tts-1",
	}
}

// WithKey returns a copy of the client using a caller-supplied API key.
func (c *OpenAIClient) WithKey(apiKey string) *OpenAIClient {
	cp := *c
	cp.APIKey = apiKey
	return &cp
}

func (c *OpenAIClient) Synthesize(ctx context.Context, text, voice string) (Clip, error) {
	if c.APIKey == "" {
		return Clip{}, fmt.Errorf("openai api key missing")
	}
	if voice == "" {
		voice = "alloy"
	}
	endpoint := "https://api.openai.com/v1/audio/speech"

	body, _ := json.Marshal(speechRequest{Model: c.Model, Input: text, Voice: voice, ResponseFormat: "mp3"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Clip{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Clip{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Clip{}, fmt.Errorf("openai tts error: status=%d body=%s", resp.StatusCode, string(b))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return Clip{}, fmt.Errorf("openai tts read: %w", err)
	}
	if len(audio) == 0 {
		return Clip{}, fmt.Errorf("openai tts: empty audio")
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/mpeg"
	}
	return Clip{Bytes: audio, MIMEType: mime}, nil
}
