package storage

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func twoVersionFS() fstest.MapFS {
	return fstest.MapFS{
		"001_initial.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);")},
		"001_initial.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE widgets;")},
		"002_gadgets.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")},
		"002_gadgets.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE gadgets;")},
	}
}

func TestNewMigrationManager_RequiresDB(t *testing.T) {
	if _, err := NewMigrationManager(nil, twoVersionFS()); err == nil {
		t.Error("expected error for nil db")
	}
}

func TestUp_AppliesAllMigrationsInOrder(t *testing.T) {
	db := openMemDB(t)
	mgr, err := NewMigrationManager(db, twoVersionFS())
	if err != nil {
		t.Fatalf("NewMigrationManager failed: %v", err)
	}

	if err := mgr.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	for _, table := range []string{"widgets", "gadgets"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}

	version, _, err := mgr.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
}

func TestUp_IsIdempotent(t *testing.T) {
	db := openMemDB(t)
	mgr, err := NewMigrationManager(db, twoVersionFS())
	if err != nil {
		t.Fatalf("NewMigrationManager failed: %v", err)
	}

	if err := mgr.Up(); err != nil {
		t.Fatalf("first Up failed: %v", err)
	}
	if err := mgr.Up(); err != nil {
		t.Fatalf("second Up failed: %v", err)
	}
}

func TestVersion_ReturnsErrNoMigrationBeforeAnyApplied(t *testing.T) {
	db := openMemDB(t)
	mgr, err := NewMigrationManager(db, twoVersionFS())
	if err != nil {
		t.Fatalf("NewMigrationManager failed: %v", err)
	}

	_, _, err = mgr.Version()
	if err != ErrNoMigration {
		t.Errorf("expected ErrNoMigration, got %v", err)
	}
}

func TestDown_RollsBackInDescendingOrder(t *testing.T) {
	db := openMemDB(t)
	mgr, err := NewMigrationManager(db, twoVersionFS())
	if err != nil {
		t.Fatalf("NewMigrationManager failed: %v", err)
	}
	if err := mgr.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	if err := mgr.Down(); err != nil {
		t.Fatalf("Down failed: %v", err)
	}

	for _, table := range []string{"widgets", "gadgets"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err == nil {
			t.Errorf("expected table %s to be dropped", table)
		}
	}
}

func TestDown_NoOpWhenNothingApplied(t *testing.T) {
	db := openMemDB(t)
	mgr, err := NewMigrationManager(db, twoVersionFS())
	if err != nil {
		t.Fatalf("NewMigrationManager failed: %v", err)
	}

	if err := mgr.Down(); err != nil {
		t.Fatalf("expected no-op Down to succeed, got %v", err)
	}
}

func TestLoadMigrations_SkipsFilesMissingAnUpPart(t *testing.T) {
	db := openMemDB(t)
	fsys := fstest.MapFS{
		"001_initial.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);")},
		"001_initial.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE widgets;")},
		"002_orphan.down.sql":  &fstest.MapFile{Data: []byte("DROP TABLE orphan;")},
	}

	mgr, err := NewMigrationManager(db, fsys)
	if err != nil {
		t.Fatalf("NewMigrationManager failed: %v", err)
	}
	if len(mgr.migrations) != 1 {
		t.Fatalf("expected 1 loadable migration, got %d", len(mgr.migrations))
	}
	if mgr.migrations[0].version != 1 {
		t.Errorf("expected version 1, got %d", mgr.migrations[0].version)
	}
}
