package profile

import (
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseMirror replicates profiles to the remote transformers table.
type SupabaseMirror struct {
	client *supabase.Client
}

func NewSupabaseMirror(projectURL, serviceKey string) (*SupabaseMirror, error) {
	client, err := supabase.NewClient(projectURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &SupabaseMirror{client: client}, nil
}

type transformerRow struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Profile string `json:"profile"`
	Voice   string `json:"voice"`
}

func (m *SupabaseMirror) Save(p Profile) error {
	row := transformerRow{ID: p.ID, Name: p.Name, Profile: p.Persona, Voice: p.Voice}
	if _, _, err := m.client.From("transformers").Insert(row, true, "id", "", "").Execute(); err != nil {
		return fmt.Errorf("mirror transformer: %w", err)
	}
	return nil
}
