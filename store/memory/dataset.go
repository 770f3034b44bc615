package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/warp/commission-ledger/ledger"
)

// =============================================================================
// DATASET - Plain in-memory collections implementing ledger.Store
// =============================================================================

// Dataset holds every record in maps and implements ledger.Store without
// any locking. Memory guards one with a mutex; the kv store loads one from
// Redis per transaction. Reads return copies.
type Dataset struct {
	orders   map[ledger.OrderID]ledger.Order
	periods  map[ledger.PeriodID]ledger.Period
	brands   map[ledger.BrandID]ledger.Brand
	settings *ledger.Settings
}

var _ ledger.Store = (*Dataset)(nil)

func NewDataset() *Dataset {
	return &Dataset{
		orders:  make(map[ledger.OrderID]ledger.Order),
		periods: make(map[ledger.PeriodID]ledger.Period),
		brands:  make(map[ledger.BrandID]ledger.Brand),
	}
}

// DatasetFrom builds a dataset holding exactly the snapshot's records.
func DatasetFrom(snap ledger.Snapshot) *Dataset {
	ds := NewDataset()
	ds.load(snap)
	return ds
}

func (ds *Dataset) load(snap ledger.Snapshot) {
	for _, b := range snap.Brands {
		ds.brands[b.ID] = b
	}
	for _, p := range snap.Periods {
		ds.periods[p.ID] = p
	}
	for _, o := range snap.Orders {
		ds.orders[o.ID] = o.Clone()
	}
	if snap.Settings != nil {
		s := *snap.Settings
		ds.settings = &s
	}
}

// Snapshot returns every record. Orders carry their history.
func (ds *Dataset) Snapshot() ledger.Snapshot {
	snap := ledger.Snapshot{
		Version: ledger.SnapshotVersion,
		Brands:  ds.brandList(),
		Periods: ds.periodList(),
		Orders:  ds.orderList(ledger.OrderFilter{}),
	}
	if ds.settings != nil {
		s := *ds.settings
		snap.Settings = &s
	}
	return snap
}

// Clone returns a deep copy, used as the rollback point of a transaction.
func (ds *Dataset) Clone() *Dataset {
	return DatasetFrom(ds.Snapshot())
}

// =============================================================================
// ORDERS
// =============================================================================

// view copies an order for a caller, filling in the current brand name.
func (ds *Dataset) view(o ledger.Order) *ledger.Order {
	c := o.Clone()
	if b, ok := ds.brands[o.BrandID]; ok {
		c.BrandName = b.Name
	}
	return &c
}

func (ds *Dataset) GetOrder(_ context.Context, id ledger.OrderID) (*ledger.Order, error) {
	o, ok := ds.orders[id]
	if !ok {
		return nil, nil
	}
	return ds.view(o), nil
}

func (ds *Dataset) GetOrderByNumber(_ context.Context, number int64) (*ledger.Order, error) {
	for _, o := range ds.orders {
		if o.Number == number {
			return ds.view(o), nil
		}
	}
	return nil, nil
}

func (ds *Dataset) ListOrders(_ context.Context, filter ledger.OrderFilter) ([]ledger.Order, error) {
	return ds.orderList(filter), nil
}

func (ds *Dataset) orderList(filter ledger.OrderFilter) []ledger.Order {
	out := make([]ledger.Order, 0, len(ds.orders))
	for _, o := range ds.orders {
		if filter.Match(o) {
			out = append(out, *ds.view(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	return out
}

func (ds *Dataset) MaxOrderNumber(_ context.Context) (int64, error) {
	var max int64
	for _, o := range ds.orders {
		if o.Number > max {
			max = o.Number
		}
	}
	return max, nil
}

func (ds *Dataset) numberTaken(number int64, self ledger.OrderID) bool {
	for _, o := range ds.orders {
		if o.Number == number && o.ID != self {
			return true
		}
	}
	return false
}

func (ds *Dataset) InsertOrder(_ context.Context, o ledger.Order) error {
	if _, exists := ds.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	if ds.numberTaken(o.Number, o.ID) {
		return ledger.ErrDuplicateOrderNumber
	}
	ds.orders[o.ID] = o.Clone()
	return nil
}

func (ds *Dataset) UpdateOrder(_ context.Context, o ledger.Order) error {
	cur, ok := ds.orders[o.ID]
	if !ok {
		return &ledger.NotFoundError{Kind: "order", ID: string(o.ID)}
	}
	if ds.numberTaken(o.Number, o.ID) {
		return ledger.ErrDuplicateOrderNumber
	}
	next := o.Clone()
	next.History = cur.History
	ds.orders[o.ID] = next
	return nil
}

func (ds *Dataset) DeleteOrder(_ context.Context, id ledger.OrderID) error {
	delete(ds.orders, id)
	return nil
}

func (ds *Dataset) AppendAudit(_ context.Context, id ledger.OrderID, entries ...ledger.AuditLogEntry) error {
	o, ok := ds.orders[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "order", ID: string(id)}
	}
	o.History = append(append([]ledger.AuditLogEntry(nil), o.History...), entries...)
	ds.orders[id] = o
	return nil
}

func (ds *Dataset) CountOrdersByBrand(_ context.Context, id ledger.BrandID) (int, error) {
	n := 0
	for _, o := range ds.orders {
		if o.BrandID == id {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// PERIODS
// =============================================================================

func (ds *Dataset) GetPeriod(_ context.Context, id ledger.PeriodID) (*ledger.Period, error) {
	p, ok := ds.periods[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (ds *Dataset) ListPeriods(_ context.Context) ([]ledger.Period, error) {
	return ds.periodList(), nil
}

func (ds *Dataset) periodList() []ledger.Period {
	out := make([]ledger.Period, 0, len(ds.periods))
	for _, p := range ds.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out
}

func (ds *Dataset) InsertPeriodIfAbsent(_ context.Context, p ledger.Period) error {
	if _, exists := ds.periods[p.ID]; exists {
		return nil
	}
	for _, existing := range ds.periods {
		if existing.StartDate.Equal(p.StartDate) && existing.EndDate.Equal(p.EndDate) {
			return nil
		}
	}
	ds.periods[p.ID] = p
	return nil
}

func (ds *Dataset) UpdatePeriod(_ context.Context, p ledger.Period) error {
	if _, ok := ds.periods[p.ID]; !ok {
		return &ledger.NotFoundError{Kind: "period", ID: string(p.ID)}
	}
	ds.periods[p.ID] = p
	return nil
}

func (ds *Dataset) AggregatePeriod(_ context.Context, id ledger.PeriodID) (ledger.PeriodTotals, error) {
	var t ledger.PeriodTotals
	for _, o := range ds.orders {
		if o.PeriodID == id {
			t = t.Add(o)
		}
	}
	return t, nil
}

// =============================================================================
// BRANDS
// =============================================================================

func (ds *Dataset) GetBrand(_ context.Context, id ledger.BrandID) (*ledger.Brand, error) {
	b, ok := ds.brands[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (ds *Dataset) FindBrandByName(_ context.Context, name string) (*ledger.Brand, error) {
	var folded *ledger.Brand
	for _, b := range ds.brands {
		if b.Name == name {
			return &b, nil
		}
		if folded == nil && strings.EqualFold(b.Name, name) {
			match := b
			folded = &match
		}
	}
	return folded, nil
}

func (ds *Dataset) ListBrands(_ context.Context) ([]ledger.Brand, error) {
	return ds.brandList(), nil
}

func (ds *Dataset) brandList() []ledger.Brand {
	out := make([]ledger.Brand, 0, len(ds.brands))
	for _, b := range ds.brands {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (ds *Dataset) nameTaken(name string, self ledger.BrandID) bool {
	for _, b := range ds.brands {
		if b.ID != self && strings.EqualFold(b.Name, name) {
			return true
		}
	}
	return false
}

func (ds *Dataset) InsertBrand(_ context.Context, b ledger.Brand) error {
	if _, exists := ds.brands[b.ID]; exists {
		return fmt.Errorf("brand %s already exists", b.ID)
	}
	if ds.nameTaken(b.Name, b.ID) {
		return ledger.ErrDuplicateBrandName
	}
	ds.brands[b.ID] = b
	return nil
}

func (ds *Dataset) UpdateBrand(_ context.Context, b ledger.Brand) error {
	if _, ok := ds.brands[b.ID]; !ok {
		return &ledger.NotFoundError{Kind: "brand", ID: string(b.ID)}
	}
	if ds.nameTaken(b.Name, b.ID) {
		return ledger.ErrDuplicateBrandName
	}
	ds.brands[b.ID] = b
	return nil
}

func (ds *Dataset) DeleteBrand(_ context.Context, id ledger.BrandID) error {
	delete(ds.brands, id)
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (ds *Dataset) GetSettings(_ context.Context) (*ledger.Settings, error) {
	if ds.settings == nil {
		return nil, nil
	}
	s := *ds.settings
	return &s, nil
}

func (ds *Dataset) SaveSettings(_ context.Context, s ledger.Settings) error {
	ds.settings = &s
	return nil
}

func (ds *Dataset) ReplaceAll(_ context.Context, snap ledger.Snapshot) error {
	*ds = *NewDataset()
	ds.load(snap)
	return nil
}
