// Package sqlite hosts the ledger in a single SQLite file. One connection
// serializes every transaction, which gives the total write order the
// registry relies on.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"certify/internal/ledger/sqlledger"
	"certify/internal/platform/storage/sqlitemigrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Ledger struct {
	*sqlledger.Ledger
}

// Open creates or opens the database at path and applies migrations.
func Open(ctx context.Context, path string, timeout time.Duration) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, db, migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Ledger{Ledger: sqlledger.New(db, sqlledger.Dialect{}, timeout)}, nil
}

// Close is nil-safe so callers can defer it on every startup path.
func (l *Ledger) Close() error {
	if l == nil || l.Ledger == nil {
		return nil
	}
	return l.DB().Close()
}
