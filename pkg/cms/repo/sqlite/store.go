package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// Open opens the SQLite database at path and applies pending migrations.
// path may be a file path, a sqlite:// URL or ":memory:".
func Open(path string) (*Repository, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db), nil
}

func configureDB(db *sql.DB) error {
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func sqliteDSN(path string) (string, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	if path == ":memory:" {
		return path, nil
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}
