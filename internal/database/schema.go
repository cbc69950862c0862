package database

import (
	"context"
	"fmt"
)

const TableName = "random_joke_api"

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS random_joke_api (
		id SERIAL,
		joke_id INTEGER,
		type TEXT,
		setup TEXT,
		punchline TEXT,
		timestamp TIMESTAMP WITH TIME ZONE
	)
`

// EnsureSchema creates the destination table if it is absent. Safe to call
// on every run; it does not retry.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create table %s: %w", TableName, err)
	}
	return nil
}
