// Package sqlledger implements the ledger on a database/sql connection. The
// sqlite and postgres packages supply a Dialect and own connection setup.
package sqlledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"certify/internal/ledger"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
	txcontext "certify/pkg/platform/tx"
)

// Dialect captures what differs between SQL engines.
type Dialect struct {
	// Rebind rewrites "?" placeholders for the engine.
	Rebind func(query string) string
	// OperationsClause returns a predicate over the operation column and its
	// bind arguments.
	OperationsClause func(ops []audit.Operation) (string, []any)
	// Lock runs at the start of every write transaction. Optional.
	Lock func(ctx context.Context, tx *sql.Tx) error
	// WriteOptions and ReadOptions are passed to BeginTx.
	WriteOptions *sql.TxOptions
	ReadOptions  *sql.TxOptions
}

type Ledger struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
}

func New(db *sql.DB, dialect Dialect, timeout time.Duration) *Ledger {
	if dialect.Rebind == nil {
		dialect.Rebind = func(q string) string { return q }
	}
	if dialect.OperationsClause == nil {
		dialect.OperationsClause = InClause
	}
	return &Ledger{db: db, dialect: dialect, timeout: timeout}
}

// DB exposes the underlying handle for health checks and shutdown.
func (l *Ledger) DB() *sql.DB { return l.db }

func (l *Ledger) Submit(ctx context.Context, fn func(ctx context.Context, tx ledger.Txn) error) error {
	ctx, cancel, err := ledger.Prepare(ctx, l.timeout)
	defer cancel()
	if err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, l.dialect.WriteOptions)
	if err != nil {
		return wrapCtx(ctx, err, "begin ledger transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if l.dialect.Lock != nil {
		if err := l.dialect.Lock(ctx, tx); err != nil {
			return wrapCtx(ctx, err, "acquire ledger lock")
		}
	}

	if err := fn(txcontext.WithTx(ctx, tx), &txn{l: l}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapCtx(ctx, err, "commit ledger transaction")
	}
	return nil
}

func (l *Ledger) View(ctx context.Context, fn func(ctx context.Context, r ledger.Reader) error) error {
	tx, err := l.db.BeginTx(ctx, l.dialect.ReadOptions)
	if err != nil {
		return fmt.Errorf("begin ledger snapshot: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	return fn(txcontext.WithTx(ctx, tx), &txn{l: l})
}

func wrapCtx(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txn struct {
	l *Ledger
}

func (t *txn) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return t.l.db
}

func (t *txn) rebind(query string) string { return t.l.dialect.Rebind(query) }

func (t *txn) Get(ctx context.Context, key ledger.Key) (ledger.Record, error) {
	rec := ledger.Record{Key: key}
	var version int64
	err := t.q(ctx).QueryRowContext(ctx,
		t.rebind(`SELECT value, version FROM ledger_records WHERE tbl = ? AND id = ?`),
		key.Table, key.ID,
	).Scan(&rec.Value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	rec.Version = uint64(version)
	return rec, nil
}

func (t *txn) Scan(ctx context.Context, table string) ([]ledger.Record, error) {
	rows, err := t.q(ctx).QueryContext(ctx,
		t.rebind(`SELECT id, value, version FROM ledger_records WHERE tbl = ? ORDER BY id`),
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		rec := ledger.Record{Key: ledger.Key{Table: table}}
		var version int64
		if err := rows.Scan(&rec.Key.ID, &rec.Value, &version); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		rec.Version = uint64(version)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *txn) Put(ctx context.Context, rec ledger.Record) (uint64, error) {
	current, err := t.Get(ctx, rec.Key)
	exists := err == nil
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return 0, err
	}
	switch {
	case exists && rec.Version == 0:
		return 0, sentinel.ErrAlreadyUsed
	case exists && current.Version != rec.Version:
		return 0, sentinel.ErrConflict
	case !exists && rec.Version != 0:
		return 0, sentinel.ErrConflict
	}

	next := rec.Version + 1
	if !exists {
		_, err = t.q(ctx).ExecContext(ctx,
			t.rebind(`INSERT INTO ledger_records (tbl, id, value, version) VALUES (?, ?, ?, ?)`),
			rec.Key.Table, rec.Key.ID, rec.Value, int64(next),
		)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", rec.Key, err)
		}
		return next, nil
	}

	res, err := t.q(ctx).ExecContext(ctx,
		t.rebind(`UPDATE ledger_records SET value = ?, version = ? WHERE tbl = ? AND id = ? AND version = ?`),
		rec.Value, int64(next), rec.Key.Table, rec.Key.ID, int64(rec.Version),
	)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", rec.Key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, sentinel.ErrConflict
	}
	return next, nil
}

func (t *txn) Delete(ctx context.Context, key ledger.Key, version uint64) error {
	if _, err := t.Get(ctx, key); err != nil {
		return err
	}
	res, err := t.q(ctx).ExecContext(ctx,
		t.rebind(`DELETE FROM ledger_records WHERE tbl = ? AND id = ? AND version = ?`),
		key.Table, key.ID, int64(version),
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (t *txn) Head(ctx context.Context) (audit.Head, error) {
	var head audit.Head
	var seq int64
	err := t.q(ctx).QueryRowContext(ctx,
		`SELECT seq, chain_hash FROM ledger_events ORDER BY seq DESC LIMIT 1`,
	).Scan(&seq, &head.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Head{}, nil
	}
	if err != nil {
		return audit.Head{}, fmt.Errorf("read event head: %w", err)
	}
	head.Seq = uint64(seq)
	return head, nil
}

func (t *txn) Append(ctx context.Context, e audit.Event) (audit.Event, error) {
	head, err := t.Head(ctx)
	if err != nil {
		return audit.Event{}, err
	}
	linked, err := audit.Link(e, head)
	if err != nil {
		return audit.Event{}, err
	}
	_, err = t.q(ctx).ExecContext(ctx, t.rebind(`
		INSERT INTO ledger_events (
			seq, actor, operation, affected_id, occurred_at,
			payload_summary, request_id, prev_hash, chain_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		int64(linked.Seq), linked.Actor, string(linked.Operation), linked.AffectedID,
		linked.Timestamp.UnixNano(), linked.PayloadSummary, linked.RequestID,
		linked.PrevHash, linked.ChainHash,
	)
	if err != nil {
		return audit.Event{}, fmt.Errorf("append event: %w", err)
	}
	return linked, nil
}

func (t *txn) Events(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	var (
		where = []string{"seq > ?"}
		args  = []any{int64(filter.AfterSeq)}
	)
	if filter.AffectedID != "" {
		where = append(where, "affected_id = ?")
		args = append(args, filter.AffectedID)
	}
	if len(filter.Operations) > 0 {
		clause, opArgs := t.l.dialect.OperationsClause(filter.Operations)
		where = append(where, clause)
		args = append(args, opArgs...)
	}
	query := `SELECT seq, actor, operation, affected_id, occurred_at,
		payload_summary, request_id, prev_hash, chain_hash
		FROM ledger_events WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := t.q(ctx).QueryContext(ctx, t.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e     audit.Event
			seq   int64
			op    string
			nanos int64
		)
		if err := rows.Scan(&seq, &e.Actor, &op, &e.AffectedID, &nanos,
			&e.PayloadSummary, &e.RequestID, &e.PrevHash, &e.ChainHash); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Seq = uint64(seq)
		e.Operation = audit.Operation(op)
		e.Timestamp = time.Unix(0, nanos).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// InClause renders "operation IN (?, ...)".
func InClause(ops []audit.Operation) (string, []any) {
	marks := make([]string, len(ops))
	args := make([]any, len(ops))
	for i, op := range ops {
		marks[i] = "?"
		args[i] = string(op)
	}
	return "operation IN (" + strings.Join(marks, ", ") + ")", args
}

// DollarRebind rewrites "?" placeholders as $1, $2, ...
func DollarRebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
