// Package profile persists agent profiles (name + persona + voice). The
// durable copy lives in a local SQLite database; writes are mirrored to
// the remote transformers table when configured.
package profile

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound reports a lookup for an id that does not exist.
var ErrNotFound = errors.New("profile not found")

// Profile is one saved agent persona.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Persona   string    `json:"persona"`
	Voice     string    `json:"voice"`
	CreatedAt time.Time `json:"created_at"`
}

// Mirror replicates profile writes to a remote store.
type Mirror interface {
	Save(p Profile) error
}

// Store is the local profile database.
type Store struct {
	db     *sql.DB
	mirror Mirror
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	persona TEXT NOT NULL,
	voice TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);`

// Open opens (and if needed creates) the profile database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open profile db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init profile schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SetMirror enables remote replication. Mirror failures are logged, never
// fatal: the local copy is authoritative.
func (s *Store) SetMirror(m Mirror) { s.mirror = m }

func (s *Store) Close() error { return s.db.Close() }

// Create saves a new profile and returns it with its generated id.
func (s *Store) Create(name, persona, voice string) (Profile, error) {
	if name == "" {
		return Profile{}, fmt.Errorf("profile name is required")
	}
	p := Profile{
		ID:        uuid.NewString(),
		Name:      name,
		Persona:   persona,
		Voice:     voice,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO profiles (id, name, persona, voice, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Persona, p.Voice, p.CreatedAt,
	)
	if err != nil {
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	if s.mirror != nil {
		if err := s.mirror.Save(p); err != nil {
			log.Printf("profile: mirror save failed: %v", err)
		}
	}
	return p, nil
}

// List returns all profiles, newest first.
func (s *Store) List() ([]Profile, error) {
	rows, err := s.db.Query(`SELECT id, name, persona, voice, created_at FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Persona, &p.Voice, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get fetches one profile by id.
func (s *Store) Get(id string) (Profile, error) {
	var p Profile
	err := s.db.QueryRow(
		`SELECT id, name, persona, voice, created_at FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Persona, &p.Voice, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return Profile{}, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Delete removes a profile by id.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return nil
}
