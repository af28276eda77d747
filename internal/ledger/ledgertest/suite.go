// Package ledgertest holds the behaviour every ledger backend must share.
// Backends embed Suite in their own test files and provide a constructor.
package ledgertest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"certify/internal/ledger"
	"certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
)

type Suite struct {
	suite.Suite

	// NewLedger returns an empty ledger for each test.
	NewLedger func() ledger.Ledger
	// SkipConcurrency disables tests that submit from many goroutines.
	SkipConcurrency bool

	l ledger.Ledger
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewLedger, "NewLedger must be set")
	s.l = s.NewLedger()
}

var errAbort = errors.New("abort")

func key(id string) ledger.Key { return ledger.Key{Table: "items", ID: id} }

func event(op audit.Operation, affected string) audit.Event {
	return audit.Event{
		Actor:      "0x00000000000000000000000000000000000000aa",
		Operation:  op,
		AffectedID: affected,
		Timestamp:  time.Date(2026, 5, 4, 10, 0, 0, 123456789, time.UTC),
	}
}

func (s *Suite) put(id, value string, version uint64) (uint64, error) {
	var v uint64
	err := s.l.Submit(context.Background(), func(ctx context.Context, tx ledger.Txn) error {
		var err error
		v, err = tx.Put(ctx, ledger.Record{Key: key(id), Value: []byte(value), Version: version})
		return err
	})
	return v, err
}

func (s *Suite) get(id string) (ledger.Record, error) {
	var rec ledger.Record
	err := s.l.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		var err error
		rec, err = r.Get(ctx, key(id))
		return err
	})
	return rec, err
}

func (s *Suite) TestPutCreatesAndVersions() {
	v, err := s.put("a", "one", 0)
	s.Require().NoError(err)
	s.Equal(uint64(1), v)

	v, err = s.put("a", "two", 1)
	s.Require().NoError(err)
	s.Equal(uint64(2), v)

	rec, err := s.get("a")
	s.Require().NoError(err)
	s.Equal("two", string(rec.Value))
	s.Equal(uint64(2), rec.Version)
}

func (s *Suite) TestPutRejectsDuplicateCreate() {
	_, err := s.put("a", "one", 0)
	s.Require().NoError(err)
	_, err = s.put("a", "again", 0)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *Suite) TestPutRejectsStaleVersion() {
	_, err := s.put("a", "one", 0)
	s.Require().NoError(err)
	_, err = s.put("a", "two", 1)
	s.Require().NoError(err)
	_, err = s.put("a", "stale", 1)
	s.ErrorIs(err, sentinel.ErrConflict)

	_, err = s.put("missing", "x", 3)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *Suite) TestGetMissing() {
	_, err := s.get("nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestDelete() {
	_, err := s.put("a", "one", 0)
	s.Require().NoError(err)

	err = s.l.Submit(context.Background(), func(ctx context.Context, tx ledger.Txn) error {
		return tx.Delete(ctx, key("a"), 7)
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	err = s.l.Submit(context.Background(), func(ctx context.Context, tx ledger.Txn) error {
		return tx.Delete(ctx, key("a"), 1)
	})
	s.Require().NoError(err)
	_, err = s.get("a")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestScanOrdersByIDWithinTable() {
	for _, id := range []string{"c", "a", "b"} {
		_, err := s.put(id, id, 0)
		s.Require().NoError(err)
	}
	err := s.l.Submit(context.Background(), func(ctx context.Context, tx ledger.Txn) error {
		_, err := tx.Put(ctx, ledger.Record{Key: ledger.Key{Table: "other", ID: "z"}, Value: []byte("z")})
		return err
	})
	s.Require().NoError(err)

	err = s.l.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		recs, err := r.Scan(ctx, "items")
		s.Require().NoError(err)
		s.Require().Len(recs, 3)
		s.Equal("a", recs[0].Key.ID)
		s.Equal("b", recs[1].Key.ID)
		s.Equal("c", recs[2].Key.ID)
		return nil
	})
	s.Require().NoError(err)
}

func (s *Suite) TestReadYourWritesInsideSubmit() {
	err := s.l.Submit(context.Background(), func(ctx context.Context, tx ledger.Txn) error {
		v, err := tx.Put(ctx, ledger.Record{Key: key("a"), Value: []byte("one")})
		s.Require().NoError(err)
		rec, err := tx.Get(ctx, key("a"))
		s.Require().NoError(err)
		s.Equal("one", string(rec.Value))
		s.Equal(v, rec.Version)

		recs, err := tx.Scan(ctx, "items")
		s.Require().NoError(err)
		s.Len(recs, 1)

		first, err := tx.Append(ctx, event(audit.OpBodyAdmitted, "a"))
		s.Require().NoError(err)
		head, err := tx.Head(ctx)
		s.Require().NoError(err)
		s.Equal(first.Seq, head.Seq)
		s.Equal(first.ChainHash, head.Hash)
		return nil
	})
	s.Require().NoError(err)
}

func (s *Suite) TestFailedSubmitLeavesNoTrace() {
	err := s.l.Submit(context.Background(), func(ctx context.Context, tx ledger.Txn) error {
		if _, err := tx.Put(ctx, ledger.Record{Key: key("a"), Value: []byte("one")}); err != nil {
			return err
		}
		if _, err := tx.Append(ctx, event(audit.OpBodyAdmitted, "a")); err != nil {
			return err
		}
		return errAbort
	})
	s.ErrorIs(err, errAbort)

	_, err = s.get("a")
	s.ErrorIs(err, sentinel.ErrNotFound)
	err = s.l.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		head, err := r.Head(ctx)
		s.Require().NoError(err)
		s.Equal(audit.Head{}, head)
		return nil
	})
	s.Require().NoError(err)
}

func (s *Suite) TestEventsAreChainedAndFiltered() {
	ops := []audit.Operation{audit.OpBodyAdmitted, audit.OpBodyVerified, audit.OpBodyAdmitted, audit.OpCaseSubmitted}
	for i, op := range ops {
		err := s.l.Submit(context.Background(), func(ctx context.Context, tx ledger.Txn) error {
			_, err := tx.Append(ctx, event(op, fmt.Sprintf("id-%d", i)))
			return err
		})
		s.Require().NoError(err)
	}

	err := s.l.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		all, err := r.Events(ctx, audit.Filter{})
		s.Require().NoError(err)
		s.Require().Len(all, 4)
		s.Require().NoError(audit.VerifyChain(all))
		s.Equal(time.Date(2026, 5, 4, 10, 0, 0, 123456789, time.UTC), all[0].Timestamp.UTC())

		admitted, err := r.Events(ctx, audit.Filter{Operations: []audit.Operation{audit.OpBodyAdmitted}})
		s.Require().NoError(err)
		s.Require().Len(admitted, 2)
		s.Equal("id-0", admitted[0].AffectedID)
		s.Equal("id-2", admitted[1].AffectedID)

		page, err := r.Events(ctx, audit.Filter{AfterSeq: 1, Limit: 2})
		s.Require().NoError(err)
		s.Require().Len(page, 2)
		s.Equal(uint64(2), page[0].Seq)
		s.Equal(uint64(3), page[1].Seq)

		byID, err := r.Events(ctx, audit.Filter{AffectedID: "id-3"})
		s.Require().NoError(err)
		s.Require().Len(byID, 1)
		s.Equal(audit.OpCaseSubmitted, byID[0].Operation)
		return nil
	})
	s.Require().NoError(err)
}

func (s *Suite) TestCancelledContextIsRejected() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.l.Submit(ctx, func(ctx context.Context, tx ledger.Txn) error {
		called = true
		return nil
	})
	s.Error(err)
	s.False(called)
}

// TestConcurrentSubmitsAreSerialized increments one counter from many
// goroutines. Lost updates would show up as a short count.
func (s *Suite) TestConcurrentSubmitsAreSerialized() {
	if s.SkipConcurrency {
		s.T().Skip("backend is single-invocation")
	}
	const workers = 20
	_, err := s.put("counter", string(encodeUint(0)), 0)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.l.Submit(context.Background(), func(ctx context.Context, tx ledger.Txn) error {
				rec, err := tx.Get(ctx, key("counter"))
				if err != nil {
					return err
				}
				n := binary.BigEndian.Uint64(rec.Value) + 1
				rec.Value = encodeUint(n)
				if _, err := tx.Put(ctx, rec); err != nil {
					return err
				}
				_, err = tx.Append(ctx, event(audit.OpCaseSubmitted, "counter"))
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	rec, err := s.get("counter")
	s.Require().NoError(err)
	s.Equal(uint64(workers), binary.BigEndian.Uint64(rec.Value))

	err = s.l.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		events, err := r.Events(ctx, audit.Filter{})
		s.Require().NoError(err)
		s.Len(events, workers)
		return audit.VerifyChain(events)
	})
	s.Require().NoError(err)
}

func encodeUint(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}
