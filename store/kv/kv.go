/*
Package kv provides a Redis-backed ledger.TxStore.

PURPOSE:
  The durable key-value variant of the ledger store. Each collection is a
  single JSON document, the layout an offline client keeps locally:

    <prefix>:orders    JSON array of orders, each with its history
    <prefix>:periods   JSON array of periods
    <prefix>:brands    JSON array of brands
    <prefix>:settings  JSON object, absent until saved

TRANSACTIONS:
  WithTx WATCHes the four keys, loads them into a memory.Dataset, runs the
  unit of work against it and writes back the changed documents in one
  MULTI/EXEC. When another writer touched a key in between, EXEC fails
  with redis.TxFailedErr and the unit of work is retried from a fresh load
  after a jittered exponential backoff. The callback may therefore run
  more than once. Retries stop when the context ends or after the retry
  window, with ErrContention (a ledger.ErrStoreBusy).

SEE ALSO:
  - store/memory: Dataset holds the rules for every Store method
*/
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/warp/commission-ledger/ledger"
	"github.com/warp/commission-ledger/store/memory"
)

// ErrContention is returned when a transaction kept losing the WATCH race.
var ErrContention = fmt.Errorf("kv: transaction aborted after repeated conflicts: %w", ledger.ErrStoreBusy)

const (
	defaultRetryWindow = 5 * time.Second
	retryInitial       = 5 * time.Millisecond
	retryMaxInterval   = 250 * time.Millisecond
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// RetryWindow bounds how long a conflicting transaction is retried.
	RetryWindow time.Duration
}

type Store struct {
	client      redis.UniversalClient
	keys        keys
	retryWindow time.Duration
}

var _ ledger.TxStore = (*Store)(nil)

type keys struct {
	orders, periods, brands, settings string
}

func (k keys) all() []string { return []string{k.orders, k.periods, k.brands, k.settings} }

// Connect creates a client and checks the server answers.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kv: ping: %w", err)
	}
	s := New(client, opts.Prefix)
	if opts.RetryWindow > 0 {
		s.retryWindow = opts.RetryWindow
	}
	return s, nil
}

// New wraps an existing client. An empty prefix defaults to "commission".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "commission"
	}
	return &Store{
		client: client,
		keys: keys{
			orders:   prefix + ":orders",
			periods:  prefix + ":periods",
			brands:   prefix + ":brands",
			settings: prefix + ":settings",
		},
		retryWindow: defaultRetryWindow,
	}
}

// WithRetryWindow sets how long conflicting transactions are retried.
func (s *Store) WithRetryWindow(d time.Duration) *Store {
	s.retryWindow = d
	return s
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	attempt := func() error {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			docs, err := s.read(ctx, tx)
			if err != nil {
				return err
			}
			ds, err := docs.dataset()
			if err != nil {
				return err
			}
			if err := fn(ds); err != nil {
				return err
			}
			next, err := encode(ds)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.writeChanged(ctx, pipe, docs, next)
				return nil
			})
			return err
		}, s.keys.all()...)

		if errors.Is(err, redis.TxFailedErr) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(attempt, backoff.WithContext(s.retryPolicy(), ctx))
	if errors.Is(err, redis.TxFailedErr) {
		return ErrContention
	}
	return err
}

func (s *Store) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitial
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = s.retryWindow
	return b
}

// view runs fn against a one-off load of the dataset.
func (s *Store) view(ctx context.Context, fn func(*memory.Dataset) error) error {
	docs, err := s.read(ctx, s.client)
	if err != nil {
		return err
	}
	ds, err := docs.dataset()
	if err != nil {
		return err
	}
	return fn(ds)
}

// update runs a single write as its own transaction.
func (s *Store) update(ctx context.Context, fn func(ledger.Store) error) error {
	return s.WithTx(ctx, fn)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// documents holds the raw JSON of each key; a nil entry means absent.
type documents struct {
	orders, periods, brands, settings *string
}

// getter is the part of redis.Client and redis.Tx that read needs.
type getter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (s *Store) read(ctx context.Context, c getter) (documents, error) {
	vals, err := c.MGet(ctx, s.keys.all()...).Result()
	if err != nil {
		return documents{}, fmt.Errorf("kv: load: %w", err)
	}
	str := func(v any) *string {
		if sv, ok := v.(string); ok {
			return &sv
		}
		return nil
	}
	return documents{
		orders:   str(vals[0]),
		periods:  str(vals[1]),
		brands:   str(vals[2]),
		settings: str(vals[3]),
	}, nil
}

func (d documents) dataset() (*memory.Dataset, error) {
	var snap ledger.Snapshot
	if err := decode(d.orders, &snap.Orders); err != nil {
		return nil, fmt.Errorf("kv: decode orders: %w", err)
	}
	if err := decode(d.periods, &snap.Periods); err != nil {
		return nil, fmt.Errorf("kv: decode periods: %w", err)
	}
	if err := decode(d.brands, &snap.Brands); err != nil {
		return nil, fmt.Errorf("kv: decode brands: %w", err)
	}
	if d.settings != nil {
		snap.Settings = &ledger.Settings{}
		if err := decode(d.settings, snap.Settings); err != nil {
			return nil, fmt.Errorf("kv: decode settings: %w", err)
		}
	}
	return memory.DatasetFrom(snap), nil
}

func decode(raw *string, v any) error {
	if raw == nil || *raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(*raw), v)
}

func encode(ds *memory.Dataset) (documents, error) {
	snap := ds.Snapshot()
	var out documents
	for _, doc := range []struct {
		dst **string
		v   any
	}{
		{&out.orders, snap.Orders},
		{&out.periods, snap.Periods},
		{&out.brands, snap.Brands},
	} {
		b, err := json.Marshal(doc.v)
		if err != nil {
			return documents{}, fmt.Errorf("kv: encode: %w", err)
		}
		s := string(b)
		*doc.dst = &s
	}
	if snap.Settings != nil {
		b, err := json.Marshal(snap.Settings)
		if err != nil {
			return documents{}, fmt.Errorf("kv: encode settings: %w", err)
		}
		s := string(b)
		out.settings = &s
	}
	return out, nil
}

// writeChanged queues a SET (or DEL) for every document that differs.
func (s *Store) writeChanged(ctx context.Context, pipe redis.Pipeliner, before, after documents) {
	for _, doc := range []struct {
		key           string
		before, after *string
	}{
		{s.keys.orders, before.orders, after.orders},
		{s.keys.periods, before.periods, after.periods},
		{s.keys.brands, before.brands, after.brands},
		{s.keys.settings, before.settings, after.settings},
	} {
		switch {
		case doc.after == nil && doc.before != nil:
			pipe.Del(ctx, doc.key)
		case doc.after != nil && (doc.before == nil || *doc.before != *doc.after):
			pipe.Set(ctx, doc.key, *doc.after, 0)
		}
	}
}
