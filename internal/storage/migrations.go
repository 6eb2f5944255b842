package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration")

// MigrationManager applies NNN_name.up.sql / NNN_name.down.sql pairs in
// order, tracking the current version in a schema_migrations table. Unlike
// a migrations directory read from the working directory, the SQL files
// here are compiled into the binary via go:embed so a single mnemo binary
// never depends on an external migrations path at runtime.
type MigrationManager struct {
	db         *sql.DB
	files      fs.FS
	migrations []migration
}

type migration struct {
	version  uint
	name     string
	upFile   string
	downFile string
}

// NewMigrationManager builds a MigrationManager over files, an fs.FS rooted
// at a directory of NNN_name.up.sql / NNN_name.down.sql files (typically an
// embed.FS).
func NewMigrationManager(db *sql.DB, files fs.FS) (*MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database connection is required")
	}

	mgr := &MigrationManager{db: db, files: files}
	if err := mgr.ensureSchemaTable(); err != nil {
		return nil, fmt.Errorf("migrations: failed to create schema table: %w", err)
	}
	migrations, err := mgr.loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("migrations: failed to load migration files: %w", err)
	}
	mgr.migrations = migrations
	return mgr, nil
}

func (mgr *MigrationManager) ensureSchemaTable() error {
	_, err := mgr.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// Up applies all pending migrations in ascending version order. Returns nil
// if already up to date.
func (mgr *MigrationManager) Up() error {
	currentVersion, _, err := mgr.Version()
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	for _, m := range mgr.migrations {
		if m.version <= currentVersion {
			continue
		}

		sqlText, err := fs.ReadFile(mgr.files, m.upFile)
		if err != nil {
			return fmt.Errorf("migrations: failed to read %s: %w", m.upFile, err)
		}
		if _, err := mgr.db.Exec(string(sqlText)); err != nil {
			return fmt.Errorf("migrations: failed to apply version %d (%s): %w", m.version, m.name, err)
		}
		if _, err := mgr.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("migrations: failed to record version %d: %w", m.version, err)
		}
	}
	return nil
}

// Down rolls back all applied migrations in descending version order.
func (mgr *MigrationManager) Down() error {
	currentVersion, _, err := mgr.Version()
	if errors.Is(err, ErrNoMigration) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	ordered := append([]migration(nil), mgr.migrations...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].version > ordered[j].version })

	for _, m := range ordered {
		if m.version > currentVersion {
			continue
		}
		sqlText, err := fs.ReadFile(mgr.files, m.downFile)
		if err != nil {
			return fmt.Errorf("migrations: failed to read %s: %w", m.downFile, err)
		}
		if _, err := mgr.db.Exec(string(sqlText)); err != nil {
			return fmt.Errorf("migrations: failed to roll back version %d (%s): %w", m.version, m.name, err)
		}
		if _, err := mgr.db.Exec("DELETE FROM schema_migrations WHERE version = ?", m.version); err != nil {
			return fmt.Errorf("migrations: failed to remove version %d: %w", m.version, err)
		}
	}
	return nil
}

// Version returns the highest applied migration version. Returns
// (0, false, ErrNoMigration) when no migration has been applied.
func (mgr *MigrationManager) Version() (uint, bool, error) {
	var version uint
	if err := mgr.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, false, fmt.Errorf("migrations: failed to query version: %w", err)
	}
	if version == 0 {
		return 0, false, ErrNoMigration
	}
	return version, false, nil
}

func (mgr *MigrationManager) loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(mgr.files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations fs: %w", err)
	}

	byVersion := make(map[uint]*migration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := entry.Name()
		underscore := strings.Index(name, "_")
		if underscore < 0 {
			continue
		}
		versionInt, err := strconv.ParseUint(name[:underscore], 10, 64)
		if err != nil {
			continue
		}
		version := uint(versionInt)
		rest := name[underscore+1:]

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version}
			byVersion[version] = m
		}
		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			m.name = strings.TrimSuffix(rest, ".up.sql")
			m.upFile = name
		case strings.HasSuffix(rest, ".down.sql"):
			m.downFile = name
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.upFile == "" {
			continue
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}
