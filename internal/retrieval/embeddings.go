package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// OpenAIEmbedder calls the embeddings endpoint.
type OpenAIEmbedder struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

func NewOpenAIEmbedder(apiKey string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		APIKey:     apiKey,
		Model:      "text-embedding-3-small",
	}
}

// WithKey returns a copy using a caller-supplied API key.
func (e *OpenAIEmbedder) WithKey(apiKey string) *OpenAIEmbedder {
	cp := *e
	cp.APIKey = apiKey
	return &cp
}

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("openai api key missing")
	}
	endpoint := "https://api.openai.com/v1/embeddings"

	body, _ := json.Marshal(embeddingsRequest{Model: e.Model, Input: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embeddings error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var er embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, err
	}
	if len(er.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty data")
	}
	return er.Data[0].Embedding, nil
}
