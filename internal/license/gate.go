// Package license implements the access gate: a single-row lookup of the
// caller's license key. The controller and handlers never validate keys
// themselves; they ask the gate and treat "forbidden" as fatal.
package license

import (
	"encoding/json"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// Status classifies the outcome of a license check.
type Status string

const (
	StatusAuthorized   Status = "authorized"
	StatusForbidden    Status = "forbidden"
	StatusServiceError Status = "service_error"
)

// Gate checks whether a license key grants access.
type Gate interface {
	Check(key string) (Status, error)
}

// SupabaseGate looks keys up in the `licenses` table.
type SupabaseGate struct {
	client *supabase.Client
}

func NewSupabaseGate(projectURL, serviceKey string) (*SupabaseGate, error) {
	client, err := supabase.NewClient(projectURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &SupabaseGate{client: client}, nil
}

type licenseRow struct {
	Active bool `json:"active"`
}

// Check returns StatusAuthorized only for an existing, active key.
func (g *SupabaseGate) Check(key string) (Status, error) {
	if key == "" {
		return StatusForbidden, nil
	}
	data, _, err := g.client.From("licenses").Select("active", "exact", false).Eq("key", key).Execute()
	if err != nil {
		return StatusServiceError, fmt.Errorf("license lookup: %w", err)
	}
	var rows []licenseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return StatusServiceError, fmt.Errorf("license lookup decode: %w", err)
	}
	if len(rows) == 0 {
		return StatusForbidden, nil
	}
	if !rows[0].Active {
		return StatusForbidden, nil
	}
	return StatusAuthorized, nil
}

// AllowAll authorizes every non-empty key. Used when no Supabase project
// is configured (local development).
type AllowAll struct{}

func (AllowAll) Check(key string) (Status, error) {
	if key == "" {
		return StatusForbidden, nil
	}
	return StatusAuthorized, nil
}
