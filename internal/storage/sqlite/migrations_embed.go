package sqlite

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationFS returns the embedded migrations rooted at the migrations/
// directory itself, so callers see NNN_name.up.sql at the filesystem root.
func migrationFS() (fs.FS, error) {
	return fs.Sub(migrationFiles, "migrations")
}
