package dbprovider

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// postgresProvider dispatches queries to a Postgres database via lib/pq.
type postgresProvider struct {
	db *sql.DB
}

func newPostgresProvider(dsn string) (Provider, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("dbprovider: open postgres: %w", err)
	}
	return &postgresProvider{db: db}, nil
}

func (p *postgresProvider) Execute(ctx context.Context, q Query) (Result, error) {
	return runSQL(ctx, p.db, q)
}

func (p *postgresProvider) Close() error {
	return p.db.Close()
}
