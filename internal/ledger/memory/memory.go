// Package memory is an in-process ledger. A single writer lock gives total
// order; each Submit stages its writes in an overlay that is applied only
// when the function returns nil.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"certify/internal/ledger"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
)

type Ledger struct {
	mu      sync.RWMutex
	records map[ledger.Key]ledger.Record
	events  []audit.Event
	timeout time.Duration
}

type Option func(*Ledger)

// WithTimeout overrides ledger.DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{records: make(map[ledger.Key]ledger.Record)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Submit(ctx context.Context, fn func(ctx context.Context, tx ledger.Txn) error) error {
	ctx, cancel, err := ledger.Prepare(ctx, l.timeout)
	defer cancel()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &txn{base: l, writes: make(map[ledger.Key]*ledger.Record)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	for k, rec := range tx.writes {
		if rec == nil {
			delete(l.records, k)
			continue
		}
		l.records[k] = *rec
	}
	l.events = append(l.events, tx.events...)
	return nil
}

func (l *Ledger) View(ctx context.Context, fn func(ctx context.Context, r ledger.Reader) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(ctx, &txn{base: l})
}

// txn doubles as the read-only snapshot when writes is nil.
type txn struct {
	base   *Ledger
	writes map[ledger.Key]*ledger.Record
	events []audit.Event
}

func (t *txn) Get(_ context.Context, key ledger.Key) (ledger.Record, error) {
	if rec, staged := t.writes[key]; staged {
		if rec == nil {
			return ledger.Record{}, sentinel.ErrNotFound
		}
		return cloneRecord(*rec), nil
	}
	rec, ok := t.base.records[key]
	if !ok {
		return ledger.Record{}, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (t *txn) Scan(_ context.Context, table string) ([]ledger.Record, error) {
	merged := make(map[string]ledger.Record)
	for k, rec := range t.base.records {
		if k.Table == table {
			merged[k.ID] = rec
		}
	}
	for k, rec := range t.writes {
		if k.Table != table {
			continue
		}
		if rec == nil {
			delete(merged, k.ID)
			continue
		}
		merged[k.ID] = *rec
	}
	out := make([]ledger.Record, 0, len(merged))
	for _, rec := range merged {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.ID < out[j].Key.ID })
	return out, nil
}

func (t *txn) Events(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	var out []audit.Event
	for _, src := range [][]audit.Event{t.base.events, t.events} {
		for _, e := range src {
			if filter.Matches(e) {
				out = append(out, e)
			}
		}
	}
	return ledger.Limit(out, filter.Limit), nil
}

func (t *txn) Head(_ context.Context) (audit.Head, error) {
	var last *audit.Event
	switch {
	case len(t.events) > 0:
		last = &t.events[len(t.events)-1]
	case len(t.base.events) > 0:
		last = &t.base.events[len(t.base.events)-1]
	default:
		return audit.Head{}, nil
	}
	return audit.Head{Seq: last.Seq, Hash: last.ChainHash}, nil
}

func (t *txn) Put(ctx context.Context, rec ledger.Record) (uint64, error) {
	current, err := t.Get(ctx, rec.Key)
	switch {
	case err == nil && rec.Version == 0:
		return 0, sentinel.ErrAlreadyUsed
	case err == nil && current.Version != rec.Version:
		return 0, sentinel.ErrConflict
	case err != nil && rec.Version != 0:
		return 0, sentinel.ErrConflict
	}
	stored := cloneRecord(rec)
	stored.Version = rec.Version + 1
	t.writes[rec.Key] = &stored
	return stored.Version, nil
}

func (t *txn) Delete(ctx context.Context, key ledger.Key, version uint64) error {
	current, err := t.Get(ctx, key)
	if err != nil {
		return err
	}
	if current.Version != version {
		return sentinel.ErrConflict
	}
	t.writes[key] = nil
	return nil
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
	t.events = append(t.events, linked)
	return linked, nil
}

func cloneRecord(r ledger.Record) ledger.Record {
	r.Value = append([]byte(nil), r.Value...)
	return r
}
