// Package content resolves campaign payloads and renders them per
// recipient with Liquid templates.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// ErrNotFound is returned for unknown content references.
var ErrNotFound = errors.New("content not found")

// Payload is one piece of sendable content.
type Payload struct {
	Ref             string
	Subject         string
	Body            string
	FollowUpSubject string
	FollowUpBody    string
}

// Store reads payloads from the content_items table. Content authoring is
// external; this core only reads.
type Store struct {
	db *sql.DB
}

// NewStore creates a content store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get resolves a content reference.
func (s *Store) Get(ctx context.Context, ref string) (*Payload, error) {
	p := &Payload{Ref: ref}
	err := s.db.QueryRowContext(ctx, `
		SELECT subject, body, COALESCE(followup_subject, ''), COALESCE(followup_body, '')
		FROM content_items WHERE ref = $1
	`, ref).Scan(&p.Subject, &p.Body, &p.FollowUpSubject, &p.FollowUpBody)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content %s: %w", ref, err)
	}
	return p, nil
}

// Renderer renders Liquid templates with per-recipient variables.
// Parsed templates are cached; rendering is lax, so a missing variable
// renders empty instead of failing a production send.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template source → *liquid.Template
}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render renders tmpl with the given bindings.
func (r *Renderer) Render(tmpl string, bindings map[string]interface{}) (string, error) {
	if !strings.Contains(tmpl, "{{") && !strings.Contains(tmpl, "{%") {
		return tmpl, nil
	}

	var parsed *liquid.Template
	if cached, ok := r.cache.Load(tmpl); ok {
		parsed = cached.(*liquid.Template)
	} else {
		var err error
		parsed, err = r.engine.ParseString(tmpl)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		r.cache.Store(tmpl, parsed)
	}

	out, err := parsed.Render(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return string(out), nil
}

// RecipientBindings builds the standard variable set for a recipient.
func RecipientBindings(address, country, category string) map[string]interface{} {
	local := address
	if i := strings.Index(address, "@"); i > 0 {
		local = address[:i]
	}
	return map[string]interface{}{
		"address":  address,
		"name":     local,
		"country":  country,
		"category": category,
	}
}
