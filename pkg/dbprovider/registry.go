// Package dbprovider implements the alias-to-provider dispatch behind the
// host function db_execute.
package dbprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Query is the {sql, params} envelope a guest passes to db_execute.
type Query struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params"`
}

// Result is JSON-encoded back into guest memory.
type Result struct {
	Rows         []map[string]interface{} `json:"rows,omitempty"`
	RowsAffected int64                     `json:"rows_affected,omitempty"`
}

// Provider executes a Query against a concrete backing store.
type Provider interface {
	Execute(ctx context.Context, q Query) (Result, error)
	Close() error
}

// Spec is a registry-file database binding: alias -> {provider, url}.
type Spec struct {
	Alias    string
	Kind     string // "postgres" or "sqlite"
	URL      string
}

// Registry dispatches db_execute calls by alias to the provider
// constructed for that alias's registry-file entry.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Replace closes every existing provider and opens new ones from specs,
// used by a registry-file reload.
func (r *Registry) Replace(specs []Spec) error {
	next := make(map[string]Provider, len(specs))
	for _, spec := range specs {
		p, err := open(spec)
		if err != nil {
			for _, opened := range next {
				_ = opened.Close()
			}
			return fmt.Errorf("dbprovider: opening alias %q: %w", spec.Alias, err)
		}
		next[spec.Alias] = p
	}

	r.mu.Lock()
	old := r.providers
	r.providers = next
	r.mu.Unlock()

	for _, p := range old {
		_ = p.Close()
	}
	return nil
}

// Execute looks up the provider for alias and dispatches the query.
func (r *Registry) Execute(ctx context.Context, alias string, rawQuery []byte) (Result, error) {
	r.mu.RLock()
	p, ok := r.providers[alias]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("dbprovider: no provider registered for alias %q", alias)
	}

	var q Query
	if err := json.Unmarshal(rawQuery, &q); err != nil {
		return Result{}, fmt.Errorf("dbprovider: invalid query envelope: %w", err)
	}
	return p.Execute(ctx, q)
}

func open(spec Spec) (Provider, error) {
	switch spec.Kind {
	case "postgres":
		return newPostgresProvider(spec.URL)
	case "sqlite":
		return newSQLiteProvider(spec.URL)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", spec.Kind)
	}
}
