package kv

import (
	"context"

	"github.com/warp/commission-ledger/ledger"
	"github.com/warp/commission-ledger/store/memory"
)

// =============================================================================
// ledger.Store - reads load a fresh dataset, writes run as one transaction
// =============================================================================

func (s *Store) GetOrder(ctx context.Context, id ledger.OrderID) (o *ledger.Order, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { o, e = ds.GetOrder(ctx, id); return })
	return
}

func (s *Store) GetOrderByNumber(ctx context.Context, number int64) (o *ledger.Order, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { o, e = ds.GetOrderByNumber(ctx, number); return })
	return
}

func (s *Store) ListOrders(ctx context.Context, f ledger.OrderFilter) (out []ledger.Order, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { out, e = ds.ListOrders(ctx, f); return })
	return
}

func (s *Store) MaxOrderNumber(ctx context.Context) (n int64, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { n, e = ds.MaxOrderNumber(ctx); return })
	return
}

func (s *Store) InsertOrder(ctx context.Context, o ledger.Order) error {
	return s.update(ctx, func(st ledger.Store) error { return st.InsertOrder(ctx, o) })
}

func (s *Store) UpdateOrder(ctx context.Context, o ledger.Order) error {
	return s.update(ctx, func(st ledger.Store) error { return st.UpdateOrder(ctx, o) })
}

func (s *Store) DeleteOrder(ctx context.Context, id ledger.OrderID) error {
	return s.update(ctx, func(st ledger.Store) error { return st.DeleteOrder(ctx, id) })
}

func (s *Store) AppendAudit(ctx context.Context, id ledger.OrderID, entries ...ledger.AuditLogEntry) error {
	return s.update(ctx, func(st ledger.Store) error { return st.AppendAudit(ctx, id, entries...) })
}

func (s *Store) CountOrdersByBrand(ctx context.Context, id ledger.BrandID) (n int, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { n, e = ds.CountOrdersByBrand(ctx, id); return })
	return
}

func (s *Store) GetPeriod(ctx context.Context, id ledger.PeriodID) (p *ledger.Period, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { p, e = ds.GetPeriod(ctx, id); return })
	return
}

func (s *Store) ListPeriods(ctx context.Context) (out []ledger.Period, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { out, e = ds.ListPeriods(ctx); return })
	return
}

func (s *Store) InsertPeriodIfAbsent(ctx context.Context, p ledger.Period) error {
	return s.update(ctx, func(st ledger.Store) error { return st.InsertPeriodIfAbsent(ctx, p) })
}

func (s *Store) UpdatePeriod(ctx context.Context, p ledger.Period) error {
	return s.update(ctx, func(st ledger.Store) error { return st.UpdatePeriod(ctx, p) })
}

func (s *Store) AggregatePeriod(ctx context.Context, id ledger.PeriodID) (t ledger.PeriodTotals, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { t, e = ds.AggregatePeriod(ctx, id); return })
	return
}

func (s *Store) GetBrand(ctx context.Context, id ledger.BrandID) (b *ledger.Brand, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { b, e = ds.GetBrand(ctx, id); return })
	return
}

func (s *Store) FindBrandByName(ctx context.Context, name string) (b *ledger.Brand, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { b, e = ds.FindBrandByName(ctx, name); return })
	return
}

func (s *Store) ListBrands(ctx context.Context) (out []ledger.Brand, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { out, e = ds.ListBrands(ctx); return })
	return
}

func (s *Store) InsertBrand(ctx context.Context, b ledger.Brand) error {
	return s.update(ctx, func(st ledger.Store) error { return st.InsertBrand(ctx, b) })
}

func (s *Store) UpdateBrand(ctx context.Context, b ledger.Brand) error {
	return s.update(ctx, func(st ledger.Store) error { return st.UpdateBrand(ctx, b) })
}

func (s *Store) DeleteBrand(ctx context.Context, id ledger.BrandID) error {
	return s.update(ctx, func(st ledger.Store) error { return st.DeleteBrand(ctx, id) })
}

func (s *Store) GetSettings(ctx context.Context) (out *ledger.Settings, err error) {
	err = s.view(ctx, func(ds *memory.Dataset) (e error) { out, e = ds.GetSettings(ctx); return })
	return
}

func (s *Store) SaveSettings(ctx context.Context, settings ledger.Settings) error {
	return s.update(ctx, func(st ledger.Store) error { return st.SaveSettings(ctx, settings) })
}

func (s *Store) ReplaceAll(ctx context.Context, snap ledger.Snapshot) error {
	return s.update(ctx, func(st ledger.Store) error { return st.ReplaceAll(ctx, snap) })
}
