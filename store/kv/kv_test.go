package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-ledger/ledger"
	"github.com/warp/commission-ledger/store/kv"
	"github.com/warp/commission-ledger/store/storetest"
)

func newKV(t *testing.T) (*kv.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := kv.New(client, "test")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestKVStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.TxStore {
		s, _ := newKV(t)
		return s
	})
}

func TestKVStore_DocumentLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := newKV(t)

	// GIVEN an empty server
	assert.False(t, mr.Exists("test:brands"))

	// WHEN a brand is inserted
	require.NoError(t, s.InsertBrand(ctx, ledger.Brand{ID: "b-1", Name: "Apple"}))

	// THEN only the brands document is written
	raw, err := mr.Get("test:brands")
	require.NoError(t, err)
	assert.Contains(t, raw, `"name":"Apple"`)
	assert.False(t, mr.Exists("test:settings"))
}

func TestKVStore_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	s, mr := newKV(t)

	// GIVEN a unit of work that loses the WATCH race once
	attempts := 0
	err := s.WithTx(ctx, func(st ledger.Store) error {
		attempts++
		if attempts == 1 {
			require.NoError(t, mr.Set("test:brands", "[]"))
		}
		return st.InsertBrand(ctx, ledger.Brand{ID: "b-1", Name: "LG"})
	})

	// THEN it is retried from a fresh load and commits
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	b, err := s.GetBrand(ctx, "b-1")
	require.NoError(t, err)
	require.NotNil(t, b)
}

func TestKVStore_GivesUpWhenAlwaysConflicting(t *testing.T) {
	ctx := context.Background()
	s, mr := newKV(t)
	s.WithRetryWindow(50 * time.Millisecond)

	// GIVEN a unit of work that loses the WATCH race every time
	attempts := 0
	err := s.WithTx(ctx, func(st ledger.Store) error {
		attempts++
		require.NoError(t, mr.Set("test:brands", "[]"))
		return st.InsertBrand(ctx, ledger.Brand{ID: "b-1", Name: "LG"})
	})

	// THEN it backs off, retries, and reports a retryable failure
	assert.ErrorIs(t, err, kv.ErrContention)
	assert.ErrorIs(t, err, ledger.ErrStoreBusy)
	assert.Greater(t, attempts, 1)
}

func TestKVStore_StopsRetryingWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, mr := newKV(t)

	// GIVEN a conflicting unit of work whose caller gives up
	attempts := 0
	err := s.WithTx(ctx, func(st ledger.Store) error {
		attempts++
		require.NoError(t, mr.Set("test:brands", "[]"))
		cancel()
		return st.InsertBrand(ctx, ledger.Brand{ID: "b-1", Name: "LG"})
	})

	// THEN no further attempt is made
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := kv.Connect(context.Background(), kv.Options{Addr: addr})
	assert.Error(t, err)
}
