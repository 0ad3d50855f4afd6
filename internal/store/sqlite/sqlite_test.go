package sqlite

import (
	"path/filepath"
	"testing"

	"sapa/internal/store"
	"sapa/internal/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := New(filepath.Join(t.TempDir(), "sapa.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { s.Close() })

		if err := s.Migrate(filepath.Join("..", "..", "..", "sql", "sqlite_schema.sql")); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return s
	})
}

func TestTimestampOrdering(t *testing.T) {
	// Stored timestamps are compared lexically by ORDER BY, so the layout
	// must be fixed width.
	a := "2026-01-02T15:04:05.120000000Z"
	b := "2026-01-02T15:04:05.123000000Z"
	if !(a < b) {
		t.Fatalf("lexical order broken: %q !< %q", a, b)
	}
	if parseTime(a).After(parseTime(b)) {
		t.Fatalf("parse order broken")
	}
	if got := len(now()); got != len(a) {
		t.Fatalf("now() not fixed width: %q", now())
	}
}
