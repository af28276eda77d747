// Package fabric runs the ledger on Hyperledger Fabric world state from
// inside a chaincode invocation.
//
// Fabric does not expose writes made earlier in the same transaction to later
// reads, so Submit stages Puts, Deletes and Appends in an overlay and flushes
// them to the stub only after the function succeeds. Ordering across
// invocations comes from Fabric's MVCC validation: a transaction that read a
// key another committed transaction changed is invalidated.
package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hyperledger/fabric-chaincode-go/shim"

	"certify/internal/ledger"
	"certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
)

const (
	recordObject = "certify~rec"
	eventObject  = "certify~evt"
	headKey      = "certify~head"

	// EventName is the chaincode event carrying a transaction's audit events.
	EventName = "certify.audit"
)

type Ledger struct {
	stub       shim.ChaincodeStubInterface
	emitEvents bool
}

type Option func(*Ledger)

// WithChaincodeEvents publishes each committed batch of audit events as a
// chaincode event named EventName.
func WithChaincodeEvents() Option {
	return func(l *Ledger) { l.emitEvents = true }
}

// New binds a ledger to the stub of the current invocation.
func New(stub shim.ChaincodeStubInterface, opts ...Option) *Ledger {
	l := &Ledger{stub: stub}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type envelope struct {
	Version uint64 `json:"v"`
	Data    []byte `json:"d"`
}

func (l *Ledger) Submit(ctx context.Context, fn func(ctx context.Context, tx ledger.Txn) error) error {
	ctx, cancel, err := ledger.Prepare(ctx, 0)
	defer cancel()
	if err != nil {
		return err
	}

	tx := &txn{l: l, writes: make(map[ledger.Key]*ledger.Record)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.flush()
}

func (l *Ledger) View(ctx context.Context, fn func(ctx context.Context, r ledger.Reader) error) error {
	return fn(ctx, &txn{l: l})
}

type txn struct {
	l      *Ledger
	writes map[ledger.Key]*ledger.Record
	events []audit.Event
}

func (t *txn) recordKey(key ledger.Key) (string, error) {
	return t.l.stub.CreateCompositeKey(recordObject, []string{key.Table, key.ID})
}

func (t *txn) readStored(key ledger.Key) (ledger.Record, error) {
	k, err := t.recordKey(key)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("record key %s: %w", key, err)
	}
	raw, err := t.l.stub.GetState(k)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("get state %s: %w", key, err)
	}
	if raw == nil {
		return ledger.Record{}, sentinel.ErrNotFound
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ledger.Record{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return ledger.Record{Key: key, Value: env.Data, Version: env.Version}, nil
}

func (t *txn) Get(_ context.Context, key ledger.Key) (ledger.Record, error) {
	if rec, staged := t.writes[key]; staged {
		if rec == nil {
			return ledger.Record{}, sentinel.ErrNotFound
		}
		return *rec, nil
	}
	return t.readStored(key)
}

func (t *txn) Scan(_ context.Context, table string) ([]ledger.Record, error) {
	iter, err := t.l.stub.GetStateByPartialCompositeKey(recordObject, []string{table})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	defer iter.Close()

	merged := make(map[string]ledger.Record)
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		_, attrs, err := t.l.stub.SplitCompositeKey(kv.Key)
		if err != nil || len(attrs) != 2 {
			return nil, fmt.Errorf("scan %s: malformed key %q", table, kv.Key)
		}
		var env envelope
		if err := json.Unmarshal(kv.Value, &env); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", table, attrs[1], err)
		}
		merged[attrs[1]] = ledger.Record{Key: ledger.Key{Table: table, ID: attrs[1]}, Value: env.Data, Version: env.Version}
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
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.ID < out[j].Key.ID })
	return out, nil
}

func (t *txn) Put(ctx context.Context, rec ledger.Record) (uint64, error) {
	current, err := t.Get(ctx, rec.Key)
	switch {
	case err == nil && rec.Version == 0:
		return 0, sentinel.ErrAlreadyUsed
	case err == nil && current.Version != rec.Version:
		return 0, sentinel.ErrConflict
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return 0, err
	case err != nil && rec.Version != 0:
		return 0, sentinel.ErrConflict
	}
	stored := ledger.Record{Key: rec.Key, Value: append([]byte(nil), rec.Value...), Version: rec.Version + 1}
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

func (t *txn) Head(_ context.Context) (audit.Head, error) {
	if n := len(t.events); n > 0 {
		return audit.Head{Seq: t.events[n-1].Seq, Hash: t.events[n-1].ChainHash}, nil
	}
	raw, err := t.l.stub.GetState(headKey)
	if err != nil {
		return audit.Head{}, fmt.Errorf("read event head: %w", err)
	}
	if raw == nil {
		return audit.Head{}, nil
	}
	var head audit.Head
	if err := json.Unmarshal(raw, &head); err != nil {
		return audit.Head{}, fmt.Errorf("decode event head: %w", err)
	}
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
	t.events = append(t.events, linked)
	return linked, nil
}

func (t *txn) Events(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	iter, err := t.l.stub.GetStateByPartialCompositeKey(eventObject, []string{})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer iter.Close()

	var out []audit.Event
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("query events: %w", err)
		}
		var e audit.Event
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	for _, e := range t.events {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return ledger.Limit(out, filter.Limit), nil
}

// flush writes staged state in deterministic key order so every endorsing
// peer produces the same write set.
func (t *txn) flush() error {
	keys := make([]ledger.Key, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Table != keys[j].Table {
			return keys[i].Table < keys[j].Table
		}
		return keys[i].ID < keys[j].ID
	})

	for _, k := range keys {
		sk, err := t.recordKey(k)
		if err != nil {
			return fmt.Errorf("record key %s: %w", k, err)
		}
		rec := t.writes[k]
		if rec == nil {
			if err := t.l.stub.DelState(sk); err != nil {
				return fmt.Errorf("delete state %s: %w", k, err)
			}
			continue
		}
		raw, err := json.Marshal(envelope{Version: rec.Version, Data: rec.Value})
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		if err := t.l.stub.PutState(sk, raw); err != nil {
			return fmt.Errorf("put state %s: %w", k, err)
		}
	}

	if len(t.events) == 0 {
		return nil
	}
	for _, e := range t.events {
		ek, err := t.l.stub.CreateCompositeKey(eventObject, []string{seqKey(e.Seq)})
		if err != nil {
			return fmt.Errorf("event key %d: %w", e.Seq, err)
		}
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", e.Seq, err)
		}
		if err := t.l.stub.PutState(ek, raw); err != nil {
			return fmt.Errorf("put event %d: %w", e.Seq, err)
		}
	}
	last := t.events[len(t.events)-1]
	head, err := json.Marshal(audit.Head{Seq: last.Seq, Hash: last.ChainHash})
	if err != nil {
		return fmt.Errorf("encode event head: %w", err)
	}
	if err := t.l.stub.PutState(headKey, head); err != nil {
		return fmt.Errorf("put event head: %w", err)
	}

	if t.l.emitEvents {
		payload, err := json.Marshal(t.events)
		if err != nil {
			return fmt.Errorf("encode chaincode event: %w", err)
		}
		if err := t.l.stub.SetEvent(EventName, payload); err != nil {
			return fmt.Errorf("set chaincode event: %w", err)
		}
	}
	return nil
}

// seqKey zero-pads so lexical key order equals numeric order.
func seqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}
