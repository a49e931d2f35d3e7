package storage

import (
	"bytes"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// Uploader stores raw document files.
type Uploader interface {
	Upload(key, contentType string, data []byte) error
}

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Supabase stores files in a storage bucket.
type Supabase struct {
	client *supabase.Client
	bucket string
}

func New(config Config) (*Supabase, error) {
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &Supabase{client: client, bucket: config.Bucket}, nil
}

func (s *Supabase) Upload(key, contentType string, data []byte) error {
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload to bucket %s: %w", s.bucket, err)
	}
	return nil
}
