package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bus-tracker/internal/mylogger"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a SQLite connection. SQLite has a single writer, so writes are
// serialized through writeMu on a one-connection pool.
type DB struct {
	conn    *sql.DB
	writeMu sync.Mutex
	log     mylogger.Logger
}

// Connect opens (creating if needed) the database at path with WAL enabled
// and applies the schema.
func Connect(ctx context.Context, path string, log mylogger.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Action("sqlite_connected").Info("sqlite database ready", "path", path)
	return &DB{conn: conn, log: log}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) IsAlive(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}
