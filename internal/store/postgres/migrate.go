package postgres

import (
	"context"
	"os"
)

// Migrate applies sql/postgres_schema.sql. Statements are idempotent
// (CREATE ... IF NOT EXISTS) so running it on every start is safe.
func (s *Store) Migrate(ctx context.Context, schemaPath string) error {
	b, err := os.ReadFile(schemaPath)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, string(b))
	return err
}
