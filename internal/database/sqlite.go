package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"futurehub/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// FileName is the database file created under a data directory.
const FileName = "hub.db"

// PathIn returns the database path inside dataDir.
func PathIn(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
//
// The pool is limited to one connection: writes are serialized in-process and
// an in-memory database stays a single database.
func OpenConnection(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Write transactions take the lock up front so read-then-write
	// transactions from two processes cannot deadlock.
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Open opens the database at path and migrates it to the latest schema.
func Open(path string) (*sql.DB, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return db, nil
}

// CheckMigrations verifies the database schema is up-to-date.
func CheckMigrations(db *sql.DB) error {
	return migrations.CheckDBMigrationStatus(db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func BackupTo(db *sql.DB, destPath string) error {
	if _, err := db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}
