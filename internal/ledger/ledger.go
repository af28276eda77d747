// Package ledger is the append-only, totally ordered state substrate the
// registry runs on.
//
// A Ledger stores versioned records and a hash-chained audit log in one
// transactional domain. Submit runs a read-modify-write function atomically:
// either every Put, Delete and Append it performs becomes visible, or none
// does. Writers are serialized, so a Submit function observes the state left
// by the previous committed Submit and nothing else.
package ledger

import (
	"context"
	"time"

	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit"
)

// DefaultTimeout bounds a Submit whose context carries no deadline.
const DefaultTimeout = 5 * time.Second

// Key addresses a record.
type Key struct {
	Table string
	ID    string
}

func (k Key) String() string { return k.Table + "/" + k.ID }

// Record is a stored value with its write version. Version starts at 1 on
// create and increments on every update.
type Record struct {
	Key     Key
	Value   []byte
	Version uint64
}

// Reader reads a consistent snapshot.
type Reader interface {
	// Get returns sentinel.ErrNotFound for missing keys.
	Get(ctx context.Context, key Key) (Record, error)
	// Scan returns every record in table ordered by ID.
	Scan(ctx context.Context, table string) ([]Record, error)
	// Events returns audit events in Seq order.
	Events(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
	// Head returns the position of the latest audit event.
	Head(ctx context.Context) (audit.Head, error)
}

// Txn is a Reader that can also stage writes.
type Txn interface {
	Reader
	// Put writes rec if the stored version equals rec.Version; zero means the
	// key must not exist. It returns the new version. A mismatch yields
	// sentinel.ErrAlreadyUsed for creates and sentinel.ErrConflict otherwise.
	Put(ctx context.Context, rec Record) (uint64, error)
	// Delete removes key if its stored version equals version.
	Delete(ctx context.Context, key Key, version uint64) error
	// Append links e after the current head and stages it.
	Append(ctx context.Context, e audit.Event) (audit.Event, error)
}

// Ledger is implemented by every backend.
type Ledger interface {
	Submit(ctx context.Context, fn func(ctx context.Context, tx Txn) error) error
	View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error
}

// Prepare applies the submission deadline policy shared by backends. The
// returned cancel func must always be called.
func Prepare(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// Limit trims events to the filter limit.
func Limit(events []audit.Event, limit int) []audit.Event {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}

// Feed reads committed events for the audit relay.
type Feed struct {
	Ledger Ledger
}

func (f Feed) EventsAfter(ctx context.Context, after uint64, limit int) ([]audit.Event, error) {
	var out []audit.Event
	err := f.Ledger.View(ctx, func(ctx context.Context, r Reader) error {
		var err error
		out, err = r.Events(ctx, audit.Filter{AfterSeq: after, Limit: limit})
		return err
	})
	return out, err
}
