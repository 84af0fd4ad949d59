package dbprovider

import (
	"context"
	"database/sql"
	"strings"
)

// runSQL dispatches a query against any database/sql backend: SELECT
// statements are read with Query and returned as row maps, everything else
// goes through Exec and reports rows affected.
func runSQL(ctx context.Context, db *sql.DB, q Query) (Result, error) {
	if isSelect(q.SQL) {
		rows, err := db.QueryContext(ctx, q.SQL, q.Params...)
		if err != nil {
			return Result{}, err
		}
		defer rows.Close()
		return scanRows(rows)
	}

	res, err := db.ExecContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return Result{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Result{}, err
	}
	return Result{RowsAffected: affected}, nil
}

func isSelect(sql string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT")
}

func scanRows(rows *sql.Rows) (Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return Result{Rows: out}, nil
}
