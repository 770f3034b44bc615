// Package memory provides an in-memory ledger.TxStore for tests and local
// development.
package memory

import (
	"context"
	"sync"

	"github.com/warp/commission-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	data *Dataset
}

var _ ledger.TxStore = (*Memory)(nil)

func New() *Memory {
	return &Memory{data: NewDataset()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized by the write lock.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.Clone()
	if err := fn(m.data); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *Memory) read(fn func(*Dataset)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.data)
}

func (m *Memory) write(fn func(*Dataset) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.data)
}

// =============================================================================
// ledger.Store, each call under the lock
// =============================================================================

func (m *Memory) GetOrder(ctx context.Context, id ledger.OrderID) (o *ledger.Order, err error) {
	m.read(func(ds *Dataset) { o, err = ds.GetOrder(ctx, id) })
	return
}

func (m *Memory) GetOrderByNumber(ctx context.Context, number int64) (o *ledger.Order, err error) {
	m.read(func(ds *Dataset) { o, err = ds.GetOrderByNumber(ctx, number) })
	return
}

func (m *Memory) ListOrders(ctx context.Context, f ledger.OrderFilter) (out []ledger.Order, err error) {
	m.read(func(ds *Dataset) { out, err = ds.ListOrders(ctx, f) })
	return
}

func (m *Memory) MaxOrderNumber(ctx context.Context) (n int64, err error) {
	m.read(func(ds *Dataset) { n, err = ds.MaxOrderNumber(ctx) })
	return
}

func (m *Memory) InsertOrder(ctx context.Context, o ledger.Order) error {
	return m.write(func(ds *Dataset) error { return ds.InsertOrder(ctx, o) })
}

func (m *Memory) UpdateOrder(ctx context.Context, o ledger.Order) error {
	return m.write(func(ds *Dataset) error { return ds.UpdateOrder(ctx, o) })
}

func (m *Memory) DeleteOrder(ctx context.Context, id ledger.OrderID) error {
	return m.write(func(ds *Dataset) error { return ds.DeleteOrder(ctx, id) })
}

func (m *Memory) AppendAudit(ctx context.Context, id ledger.OrderID, entries ...ledger.AuditLogEntry) error {
	return m.write(func(ds *Dataset) error { return ds.AppendAudit(ctx, id, entries...) })
}

func (m *Memory) CountOrdersByBrand(ctx context.Context, id ledger.BrandID) (n int, err error) {
	m.read(func(ds *Dataset) { n, err = ds.CountOrdersByBrand(ctx, id) })
	return
}

func (m *Memory) GetPeriod(ctx context.Context, id ledger.PeriodID) (p *ledger.Period, err error) {
	m.read(func(ds *Dataset) { p, err = ds.GetPeriod(ctx, id) })
	return
}

func (m *Memory) ListPeriods(ctx context.Context) (out []ledger.Period, err error) {
	m.read(func(ds *Dataset) { out, err = ds.ListPeriods(ctx) })
	return
}

func (m *Memory) InsertPeriodIfAbsent(ctx context.Context, p ledger.Period) error {
	return m.write(func(ds *Dataset) error { return ds.InsertPeriodIfAbsent(ctx, p) })
}

func (m *Memory) UpdatePeriod(ctx context.Context, p ledger.Period) error {
	return m.write(func(ds *Dataset) error { return ds.UpdatePeriod(ctx, p) })
}

func (m *Memory) AggregatePeriod(ctx context.Context, id ledger.PeriodID) (t ledger.PeriodTotals, err error) {
	m.read(func(ds *Dataset) { t, err = ds.AggregatePeriod(ctx, id) })
	return
}

func (m *Memory) GetBrand(ctx context.Context, id ledger.BrandID) (b *ledger.Brand, err error) {
	m.read(func(ds *Dataset) { b, err = ds.GetBrand(ctx, id) })
	return
}

func (m *Memory) FindBrandByName(ctx context.Context, name string) (b *ledger.Brand, err error) {
	m.read(func(ds *Dataset) { b, err = ds.FindBrandByName(ctx, name) })
	return
}

func (m *Memory) ListBrands(ctx context.Context) (out []ledger.Brand, err error) {
	m.read(func(ds *Dataset) { out, err = ds.ListBrands(ctx) })
	return
}

func (m *Memory) InsertBrand(ctx context.Context, b ledger.Brand) error {
	return m.write(func(ds *Dataset) error { return ds.InsertBrand(ctx, b) })
}

func (m *Memory) UpdateBrand(ctx context.Context, b ledger.Brand) error {
	return m.write(func(ds *Dataset) error { return ds.UpdateBrand(ctx, b) })
}

func (m *Memory) DeleteBrand(ctx context.Context, id ledger.BrandID) error {
	return m.write(func(ds *Dataset) error { return ds.DeleteBrand(ctx, id) })
}

func (m *Memory) GetSettings(ctx context.Context) (s *ledger.Settings, err error) {
	m.read(func(ds *Dataset) { s, err = ds.GetSettings(ctx) })
	return
}

func (m *Memory) SaveSettings(ctx context.Context, s ledger.Settings) error {
	return m.write(func(ds *Dataset) error { return ds.SaveSettings(ctx, s) })
}

func (m *Memory) ReplaceAll(ctx context.Context, snap ledger.Snapshot) error {
	return m.write(func(ds *Dataset) error { return ds.ReplaceAll(ctx, snap) })
}
