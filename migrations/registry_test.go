package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	inbox "github.com/goliatone/go-inbox"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestInboxSchemaMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := inbox.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/20260801000000_create_inbox_events.up.sql",
		"data/sql/migrations/20260801000000_create_inbox_events.down.sql",
		"data/sql/migrations/20260801000001_create_inbox_rate_limit_states.up.sql",
		"data/sql/migrations/20260801000001_create_inbox_rate_limit_states.down.sql",
		"data/sql/migrations/sqlite/20260801000000_create_inbox_events.up.sql",
		"data/sql/migrations/sqlite/20260801000000_create_inbox_events.down.sql",
		"data/sql/migrations/sqlite/20260801000001_create_inbox_rate_limit_states.up.sql",
		"data/sql/migrations/sqlite/20260801000001_create_inbox_rate_limit_states.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteInboxSchema_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-inbox-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := inbox.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	ups := []string{
		"20260801000000_create_inbox_events.up.sql",
		"20260801000001_create_inbox_rate_limit_states.up.sql",
	}
	for _, name := range ups {
		content, readErr := fs.ReadFile(sqliteMigrations, name)
		if readErr != nil {
			t.Fatalf("read %s: %v", name, readErr)
		}
		if _, execErr := db.Exec(string(content)); execErr != nil {
			t.Fatalf("apply %s: %v", name, execErr)
		}
	}

	if _, err := db.Exec(
		"INSERT INTO inbox_events (id, external_event_id, event_type, status, received_at, source_timestamp) " +
			"VALUES ('00000000-0000-0000-0000-000000000001', 'evt_1', 'message', 'received', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)",
	); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if _, err := db.Exec(
		"INSERT INTO inbox_events (id, external_event_id, event_type, status, received_at, source_timestamp) " +
			"VALUES ('00000000-0000-0000-0000-000000000002', 'evt_1', 'message', 'received', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)",
	); err == nil {
		t.Fatalf("expected unique external_event_id violation")
	}

	downs := []string{
		"20260801000001_create_inbox_rate_limit_states.down.sql",
		"20260801000000_create_inbox_events.down.sql",
	}
	for _, name := range downs {
		content, readErr := fs.ReadFile(sqliteMigrations, name)
		if readErr != nil {
			t.Fatalf("read %s: %v", name, readErr)
		}
		if _, execErr := db.Exec(string(content)); execErr != nil {
			t.Fatalf("rollback %s: %v", name, execErr)
		}
	}
}
