// Package directory is the read-only view of the recipient directory.
// Recipient rows are owned by an external import pipeline; this core only
// ever reads them.
package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Recipient is one addressable recipient.
type Recipient struct {
	ID       uuid.UUID
	Address  string
	Country  string
	Category string
	Active   bool
}

// Store reads recipients from the recipients table.
type Store struct {
	db *sql.DB
}

// NewStore creates a directory store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListActive returns active recipients with the given category affinity,
// ordered by id so callers see a stable sequence.
func (s *Store) ListActive(ctx context.Context, category string) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, country, category, active
		FROM recipients
		WHERE active = TRUE AND category = $1
		ORDER BY id ASC
	`, category)
	if err != nil {
		return nil, fmt.Errorf("list active recipients: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.ID, &r.Address, &r.Country, &r.Category, &r.Active); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountActive returns how many active recipients carry the category.
func (s *Store) CountActive(ctx context.Context, category string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM recipients WHERE active = TRUE AND category = $1
	`, category).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active recipients: %w", err)
	}
	return n, nil
}

// Get resolves a recipient by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Recipient, error) {
	var r Recipient
	err := s.db.QueryRowContext(ctx, `
		SELECT id, address, country, category, active
		FROM recipients WHERE id = $1
	`, id).Scan(&r.ID, &r.Address, &r.Country, &r.Category, &r.Active)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recipient %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return &r, nil
}

// GetByAddress resolves a recipient by address. Returns nil when unknown.
func (s *Store) GetByAddress(ctx context.Context, address string) (*Recipient, error) {
	var r Recipient
	err := s.db.QueryRowContext(ctx, `
		SELECT id, address, country, category, active
		FROM recipients WHERE address = $1
	`, address).Scan(&r.ID, &r.Address, &r.Country, &r.Category, &r.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient by address: %w", err)
	}
	return &r, nil
}
