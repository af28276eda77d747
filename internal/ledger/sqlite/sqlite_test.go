package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certify/internal/ledger"
	"certify/internal/ledger/ledgertest"
)

func TestSQLiteLedger(t *testing.T) {
	suite.Run(t, &ledgertest.Suite{
		NewLedger: func() ledger.Ledger {
			l, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), 0)
			require.NoError(t, err)
			t.Cleanup(func() { _ = l.Close() })
			return l
		},
	})
}

func TestReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(ctx, path, 0)
	require.NoError(t, err)
	err = l.Submit(ctx, func(ctx context.Context, tx ledger.Txn) error {
		_, err := tx.Put(ctx, ledger.Record{Key: ledger.Key{Table: "t", ID: "a"}, Value: []byte("v")})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(ctx, path, 0)
	require.NoError(t, err)
	defer l.Close()
	err = l.View(ctx, func(ctx context.Context, r ledger.Reader) error {
		rec, err := r.Get(ctx, ledger.Key{Table: "t", ID: "a"})
		require.NoError(t, err)
		require.Equal(t, "v", string(rec.Value))
		return nil
	})
	require.NoError(t, err)
}
