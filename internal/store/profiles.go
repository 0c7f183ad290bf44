package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Doctor0Evil/WordMath/internal/config"
)

// Profile is a named guard configuration stored in the profiles table.
type Profile struct {
	ID        string
	Name      string
	Config    config.Config
	CreatedAt time.Time
	UpdatedAt time.Time
}

func scanProfile(row interface{ Scan(...any) error }) (*Profile, error) {
	var (
		p   Profile
		raw []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &raw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	cfg, err := config.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	p.Config = *cfg
	return &p, nil
}

// GetProfile returns a profile by name, or nil if not found.
func (s *Store) GetProfile(ctx context.Context, name string) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT id, name, config, created_at, updated_at
		FROM profiles WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetProfile: %w", err)
	}
	return p, nil
}

// ListProfiles returns all profiles ordered by name.
func (s *Store) ListProfiles(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, config, created_at, updated_at
		FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ListProfiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("ListProfiles: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// PutProfile creates or replaces the profile called name.
func (s *Store) PutProfile(ctx context.Context, name string, cfg *config.Config) (*Profile, error) {
	raw, err := config.MarshalJSON(cfg)
	if err != nil {
		return nil, fmt.Errorf("PutProfile: %w", err)
	}

	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (name, config)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET
			config     = EXCLUDED.config,
			updated_at = now()
		RETURNING id, name, config, created_at, updated_at`,
		name, raw))
	if err != nil {
		return nil, fmt.Errorf("PutProfile: %w", err)
	}
	return p, nil
}

// DeleteProfile deletes a profile by name. Returns sql.ErrNoRows if it did
// not exist.
func (s *Store) DeleteProfile(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("DeleteProfile: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
