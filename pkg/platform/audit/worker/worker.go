// Package worker relays committed audit events out of the ledger.
//
// The relay reads events after a persisted cursor, publishes them in Seq
// order and advances the cursor only after the publisher acknowledged the
// whole batch. Delivery is at-least-once: a crash between publish and
// cursor save replays the batch.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"certify/pkg/platform/audit"
	"certify/pkg/platform/circuit"
)

const (
	DefaultInterval  = 2 * time.Second
	DefaultBatchSize = 100
)

// EventSource reads committed events with Seq greater than after.
type EventSource interface {
	EventsAfter(ctx context.Context, after uint64, limit int) ([]audit.Event, error)
}

// Publisher delivers a batch in order or fails as a whole.
type Publisher interface {
	Publish(ctx context.Context, events []audit.Event) error
}

// CursorStore persists the Seq of the last published event.
type CursorStore interface {
	Load(ctx context.Context) (uint64, error)
	Save(ctx context.Context, seq uint64) error
}

type Relay struct {
	source    EventSource
	publisher Publisher
	cursor    CursorStore
	breaker   *circuit.Breaker
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) { r.breaker = b }
}

func New(source EventSource, publisher Publisher, cursor CursorStore, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		publisher: publisher,
		cursor:    cursor,
		breaker:   circuit.New("audit-relay", circuit.WithFailureThreshold(3)),
		logger:    slog.Default(),
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is done. Publish failures are logged and retried on
// the next tick; only cursor store failures end the loop. Errors caused by
// ctx ending are a clean stop.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, errCursor) {
				return err
			}
			r.logger.WarnContext(ctx, "audit relay tick failed",
				"error", err,
				"breaker", r.breaker.State(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

var errCursor = errors.New("audit relay cursor")

// Tick publishes at most one batch and returns how many events went out.
// While the breaker is open the batch shrinks to a single trial event.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	after, err := r.cursor.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: load: %w", errCursor, err)
	}
	limit := r.batchSize
	if r.breaker.IsOpen() {
		limit = 1
	}
	events, err := r.source.EventsAfter(ctx, after, limit)
	if err != nil {
		return 0, fmt.Errorf("read events after %d: %w", after, err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := r.publisher.Publish(ctx, events); err != nil {
		if _, change := r.breaker.RecordFailure(); change.Opened {
			r.logger.ErrorContext(ctx, "audit relay circuit opened",
				"log_type", "audit",
				"breaker", r.breaker.Name(),
				"after_seq", after,
			)
		}
		return 0, fmt.Errorf("publish %d events: %w", len(events), err)
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "audit relay circuit closed",
			"log_type", "audit",
			"breaker", r.breaker.Name(),
		)
	}

	last := events[len(events)-1].Seq
	if err := r.cursor.Save(ctx, last); err != nil {
		return len(events), fmt.Errorf("%w: save %d: %w", errCursor, last, err)
	}
	r.logger.DebugContext(ctx, "audit events relayed",
		"count", len(events),
		"head_seq", last,
	)
	return len(events), nil
}
