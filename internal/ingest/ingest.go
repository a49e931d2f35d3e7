// Package ingest handles document upload: the raw file goes to the
// storage bucket, the text is chunked, embedded and inserted into the
// documents table that backs retrieval.
package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"

	"github.com/SidineiMarcelo/ia-transformers/internal/retrieval"
	"github.com/SidineiMarcelo/ia-transformers/internal/storage"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
)

type documentRow struct {
	Content   string    `json:"content"`
	Embedding []float64 `json:"embedding"`
	Source    string    `json:"source"`
}

// Ingestor processes uploaded documents.
type Ingestor struct {
	client   *supabase.Client
	embedder retrieval.Embedder
	uploader storage.Uploader
}

func New(projectURL, serviceKey string, embedder retrieval.Embedder, uploader storage.Uploader) (*Ingestor, error) {
	client, err := supabase.NewClient(projectURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &Ingestor{client: client, embedder: embedder, uploader: uploader}, nil
}

// Ingest stores the raw file, then chunks and embeds its text. Returns the
// number of chunks indexed.
func (i *Ingestor) Ingest(ctx context.Context, filename, contentType string, data []byte) (int, error) {
	key := uuid.NewString() + "_" + filename
	if i.uploader != nil {
		if err := i.uploader.Upload(key, contentType, data); err != nil {
			// Indexing still proceeds; the raw copy is a convenience.
			log.Printf("ingest: raw upload failed: %v", err)
		}
	}

	chunks := Chunk(string(data), chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document contains no text")
	}

	rows := make([]documentRow, 0, len(chunks))
	for _, chunk := range chunks {
		embedding, err := i.embedder.Embed(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("embed chunk: %w", err)
		}
		rows = append(rows, documentRow{Content: chunk, Embedding: embedding, Source: filename})
	}

	if _, _, err := i.client.From("documents").Insert(rows, false, "", "", "").Execute(); err != nil {
		return 0, fmt.Errorf("insert documents: %w", err)
	}
	log.Printf("ingest: indexed %d chunks from %s", len(rows), filename)
	return len(rows), nil
}

// Chunk splits text into overlapping windows of roughly size runes.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
