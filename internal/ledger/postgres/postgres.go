// Package postgres hosts the ledger in PostgreSQL. Writers queue on a
// transaction-scoped advisory lock, so submissions are applied one at a time
// in commit order. READ COMMITTED is enough once the lock is held because
// every statement after it sees the previous writer's commit.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"certify/internal/ledger/sqlledger"
	"certify/internal/platform/storage/sqlitemigrate"
	"certify/pkg/platform/audit"
)

//go:embed migrations/*.sql
var migrations embed.FS

// advisoryLockKey is the pg_advisory_xact_lock key shared by all writers.
const advisoryLockKey = 0x6c6564676572

type Ledger struct {
	*sqlledger.Ledger
}

// Open connects using the pgx stdlib driver and applies the schema.
func Open(ctx context.Context, url string, timeout time.Duration) (*Ledger, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return FromDB(db, timeout), nil
}

// FromDB wraps an existing handle whose schema is already in place.
func FromDB(db *sql.DB, timeout time.Duration) *Ledger {
	return &Ledger{Ledger: sqlledger.New(db, Dialect(), timeout)}
}

// Dialect returns the PostgreSQL flavour of the SQL ledger.
func Dialect() sqlledger.Dialect {
	return sqlledger.Dialect{
		Rebind: sqlledger.DollarRebind,
		OperationsClause: func(ops []audit.Operation) (string, []any) {
			names := make([]string, len(ops))
			for i, op := range ops {
				names[i] = string(op)
			}
			return "operation = ANY(?)", []any{pq.Array(names)}
		},
		Lock: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(advisoryLockKey))
			return err
		},
		WriteOptions: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		ReadOptions:  &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	}
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	content, err := migrations.ReadFile("migrations/001_ledger.sql")
	if err != nil {
		return fmt.Errorf("read ledger schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqlitemigrate.ExtractUp(string(content))); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error {
	if l == nil || l.Ledger == nil {
		return nil
	}
	return l.DB().Close()
}
