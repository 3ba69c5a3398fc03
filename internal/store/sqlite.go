package store

import (
    "database/sql"
    "fmt"
    "log"
    "os"
    "path/filepath"

    _ "modernc.org/sqlite"
)

// NewSQLite opens (or creates) a SQLite database at path. ":memory:" keeps it in memory
// on a single connection so every query sees the same database.
func NewSQLite(path string) (*SQL, error) {
    if path != ":memory:" {
        if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
            return nil, fmt.Errorf("failed to create database directory: %w", err)
        }
    }
    log.Printf("store=sqlite path=%s", path)
    db, err := sql.Open("sqlite", path)
    if err != nil {
        return nil, fmt.Errorf("failed to open database: %w", err)
    }
    if path == ":memory:" {
        db.SetMaxOpenConns(1)
    }
    pragmas := []string{
        "PRAGMA foreign_keys = ON",
        "PRAGMA journal_mode = WAL",
        "PRAGMA synchronous = NORMAL",
        "PRAGMA cache_size = -64000", // 64MB cache
        "PRAGMA busy_timeout = 5000",
    }
    for _, pragma := range pragmas {
        if _, err := db.Exec(pragma); err != nil {
            db.Close()
            return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
        }
    }
    return &SQL{db: db, dialect: DialectSQLite}, nil
}
