// Package retrieval augments chat requests with snippets from previously
// ingested documents: the query is embedded and matched against the
// document store through the match_documents RPC.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	matchThreshold = 0.2
	matchCount     = 10
)

// Snippet is one ranked match.
type Snippet struct {
	Content string `json:"content"`
}

// Searcher returns ranked snippets for a query, possibly none.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Snippet, error)
}

// Service embeds the query and calls the Supabase match_documents RPC.
type Service struct {
	HTTPClient *http.Client
	embedder   Embedder
	projectURL string
	serviceKey string
}

func NewService(embedder Embedder, projectURL, serviceKey string) *Service {
	return &Service{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		embedder:   embedder,
		projectURL: strings.TrimRight(projectURL, "/"),
		serviceKey: serviceKey,
	}
}

type matchRequest struct {
	QueryEmbedding []float64 `json:"query_embedding"`
	MatchThreshold float64   `json:"match_threshold"`
	MatchCount     int       `json:"match_count"`
}

func (s *Service) Search(ctx context.Context, query string) ([]Snippet, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	body, _ := json.Marshal(matchRequest{
		QueryEmbedding: embedding,
		MatchThreshold: matchThreshold,
		MatchCount:     matchCount,
	})
	endpoint := s.projectURL + "/rest/v1/rpc/match_documents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("match_documents: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("match_documents: status=%d body=%s", resp.StatusCode, string(b))
	}
	var snippets []Snippet
	if err := json.NewDecoder(resp.Body).Decode(&snippets); err != nil {
		return nil, fmt.Errorf("match_documents decode: %w", err)
	}
	return snippets, nil
}

// ContextBlock joins snippets for inclusion in a system prompt. Empty when
// nothing matched.
func ContextBlock(snippets []Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(snippets))
	for _, sn := range snippets {
		if sn.Content != "" {
			parts = append(parts, sn.Content)
		}
	}
	return strings.Join(parts, "\n---\n")
}
