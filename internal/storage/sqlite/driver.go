// Package sqlite implements the storage.Driver contract on top of an
// embedded, CGO-free SQLite database (modernc.org/sqlite).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/scrypster/mnemo/internal/storage"
)

type ctxKey int

const txKey ctxKey = 0

// Driver composes the per-concern stores into the full storage.Driver
// contract. Every store shares the same *sql.DB so that WithTx can wrap
// calls to any of them in a single transaction.
type Driver struct {
	db *sql.DB
	*MemoryStore
	*EventStore
	*RelationStore
	*ACLStore
	*DelegationStore
	*CheckpointStore
	*ProfileStore
}

// Open opens a SQLite database at dsn, configures WAL mode for a single
// writer with concurrent readers, applies embedded migrations, and recovers
// from a stale WAL left behind by a crashed process.
func Open(dsn string) (*Driver, error) {
	db, err := openWithRecovery(dsn)
	if err != nil {
		return nil, err
	}

	files, err := migrationFS()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to load embedded migrations: %w", err)
	}
	mgr, err := storage.NewMigrationManager(db, files)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create migration manager: %w", err)
	}
	if err := mgr.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to run migrations: %w", err)
	}

	return &Driver{
		db:              db,
		MemoryStore:     &MemoryStore{db: db},
		EventStore:      &EventStore{db: db},
		RelationStore:   &RelationStore{db: db},
		ACLStore:        &ACLStore{db: db},
		DelegationStore: &DelegationStore{db: db},
		CheckpointStore: &CheckpointStore{db: db},
		ProfileStore:    &ProfileStore{db: db},
	}, nil
}

func openWithRecovery(dsn string) (*sql.DB, error) {
	db, err := openDB(dsn)
	if err == nil {
		return db, nil
	}
	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	db, retryErr := openDB(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return db, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite allows only one writer at a time. A single open connection
	// serializes writes through database/sql's pool instead of racing on
	// SQLITE_BUSY; WAL mode still lets readers proceed concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// WithTx runs fn with a transaction bound to ctx, available to the
// per-concern stores via execer(ctx). Nested calls reuse the outer
// transaction rather than opening a new one.
func (d *Driver) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok && tx != nil {
		return fn(ctx)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DB returns the underlying *sql.DB, for callers (admin tooling, config
// persistence, backup) that need to run statements outside the
// storage.Driver contract.
func (d *Driver) DB() *sql.DB {
	return d.db
}

// Close flushes the WAL into the main file (TRUNCATE checkpoint) and
// releases the connection, so a subsequent process can open cleanly.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	if _, err := d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return d.db.Close()
}

// execer is a *sql.DB/*sql.Tx union used by every per-concern store so a
// WithTx-scoped ctx transparently routes its statements into the open
// transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execerFromContext(ctx context.Context, db *sql.DB) execer {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok && tx != nil {
		return tx
	}
	return db
}

func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" {
			return ""
		}
		return path
	}
	return dsn
}

func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"
	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
