package dbprovider

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// sqliteProvider dispatches queries to a local file database via the
// pure-Go modernc.org/sqlite driver, avoiding a cgo dependency in the
// Shell binary.
type sqliteProvider struct {
	db *sql.DB
}

func newSQLiteProvider(path string) (Provider, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbprovider: open sqlite: %w", err)
	}
	return &sqliteProvider{db: db}, nil
}

func (p *sqliteProvider) Execute(ctx context.Context, q Query) (Result, error) {
	return runSQL(ctx, p.db, q)
}

func (p *sqliteProvider) Close() error {
	return p.db.Close()
}
