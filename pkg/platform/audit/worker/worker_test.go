package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certify/pkg/platform/audit"
	"certify/pkg/platform/circuit"
)

type fakeSource struct {
	events []audit.Event
	err    error
}

func (f *fakeSource) EventsAfter(_ context.Context, after uint64, limit int) ([]audit.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []audit.Event
	for _, e := range f.events {
		if e.Seq > after && (limit <= 0 || len(out) < limit) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	failures  int
	published []audit.Event
	batches   []int
}

func (p *fakePublisher) Publish(_ context.Context, events []audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, len(events))
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, events...)
	return nil
}

type brokenCursor struct{ MemoryCursor }

func (*brokenCursor) Save(context.Context, uint64) error { return errors.New("disk full") }

// ctxCursor fails like a network-backed store once ctx is done.
type ctxCursor struct{ MemoryCursor }

func (c *ctxCursor) Load(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return c.MemoryCursor.Load(ctx)
}

func events(n int) []audit.Event {
	out := make([]audit.Event, n)
	for i := range out {
		out[i] = audit.Event{Seq: uint64(i + 1), Operation: audit.OpCaseSubmitted, AffectedID: fmt.Sprintf("case-%d", i+1)}
	}
	return out
}

type RelaySuite struct {
	suite.Suite
	source    *fakeSource
	publisher *fakePublisher
	cursor    *MemoryCursor
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.source = &fakeSource{events: events(5)}
	s.publisher = &fakePublisher{}
	s.cursor = NewMemoryCursor()
}

func (s *RelaySuite) TestTickPublishesInBatchesAndAdvancesCursor() {
	r := New(s.source, s.publisher, s.cursor, WithBatchSize(2))
	ctx := context.Background()

	n, err := r.Tick(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	seq, _ := s.cursor.Load(ctx)
	s.Equal(uint64(2), seq)

	for range 3 {
		_, err = r.Tick(ctx)
		s.Require().NoError(err)
	}
	s.Require().Len(s.publisher.published, 5)
	for i, e := range s.publisher.published {
		s.Equal(uint64(i+1), e.Seq)
	}

	n, err = r.Tick(ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RelaySuite) TestFailedPublishKeepsCursor() {
	s.publisher.failures = 1
	r := New(s.source, s.publisher, s.cursor)

	_, err := r.Tick(context.Background())
	s.Error(err)
	seq, _ := s.cursor.Load(context.Background())
	s.Zero(seq)

	n, err := r.Tick(context.Background())
	s.Require().NoError(err)
	s.Equal(5, n)
}

func (s *RelaySuite) TestOpenBreakerTriesSingleEvent() {
	s.publisher.failures = 2
	breaker := circuit.New("test", circuit.WithFailureThreshold(2))
	r := New(s.source, s.publisher, s.cursor, WithBreaker(breaker))
	ctx := context.Background()

	_, _ = r.Tick(ctx)
	_, _ = r.Tick(ctx)
	s.True(breaker.IsOpen())

	n, err := r.Tick(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.False(breaker.IsOpen())

	n, err = r.Tick(ctx)
	s.Require().NoError(err)
	s.Equal(4, n)
	s.Equal([]int{5, 5, 1, 4}, s.publisher.batches)
}

func (s *RelaySuite) TestSourceErrorIsReturned() {
	s.source.err = errors.New("ledger offline")
	r := New(s.source, s.publisher, s.cursor)
	_, err := r.Tick(context.Background())
	s.ErrorContains(err, "ledger offline")
}

func (s *RelaySuite) TestRunStopsOnCursorFailure() {
	r := New(s.source, s.publisher, &brokenCursor{}, WithInterval(time.Millisecond))
	err := r.Run(context.Background())
	s.ErrorContains(err, "disk full")
}

func (s *RelaySuite) TestRunStopsWithContext() {
	r := New(s.source, s.publisher, s.cursor, WithInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	s.Eventually(func() bool {
		seq, _ := s.cursor.Load(context.Background())
		return seq == 5
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("relay did not stop")
	}
}

func (s *RelaySuite) TestCursorErrorDuringShutdownIsCleanStop() {
	r := New(s.source, s.publisher, &ctxCursor{}, WithInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.NoError(r.Run(ctx))
	s.Empty(s.publisher.batches)
}
