package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeEmbedder struct {
	vec []float64
	err error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return f.vec, f.err
}

func TestService_SearchCallsRPC(t *testing.T) {
	var gotPath string
	var gotBody matchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`[{"content":"trecho um"},{"content":"trecho dois"}]`))
	}))
	defer srv.Close()

	s := NewService(fakeEmbedder{vec: []float64{0.1, 0.2}}, srv.URL, "service-key")
	snippets, err := s.Search(context.Background(), "pergunta")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotPath != "/rest/v1/rpc/match_documents" {
		t.Fatalf("unexpected rpc path %q", gotPath)
	}
	if gotBody.MatchThreshold != matchThreshold || gotBody.MatchCount != matchCount {
		t.Fatalf("unexpected match params: %+v", gotBody)
	}
	if len(snippets) != 2 || snippets[0].Content != "trecho um" {
		t.Fatalf("unexpected snippets: %+v", snippets)
	}
}

func TestService_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	s := NewService(fakeEmbedder{vec: []float64{0.1}}, srv.URL, "k")
	snippets, err := s.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(snippets) != 0 {
		t.Fatalf("expected no snippets")
	}
}

func TestContextBlock(t *testing.T) {
	if got := ContextBlock(nil); got != "" {
		t.Fatalf("expected empty block, got %q", got)
	}
	got := ContextBlock([]Snippet{{Content: "a"}, {Content: "b"}})
	if got != "a\n---\nb" {
		t.Fatalf("unexpected block %q", got)
	}
}
