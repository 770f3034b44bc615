package ledger

import (
	"context"
	"fmt"
)

// =============================================================================
// BACKUP - Full export and replace-all import
// =============================================================================

// Export returns the whole dataset, orders with their audit history.
func (m *Manager) Export(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Version: SnapshotVersion}
	err := m.store.WithTx(ctx, func(st Store) error {
		var err error
		if snap.Brands, err = st.ListBrands(ctx); err != nil {
			return err
		}
		if snap.Periods, err = st.ListPeriods(ctx); err != nil {
			return err
		}
		if snap.Orders, err = st.ListOrders(ctx, OrderFilter{}); err != nil {
			return err
		}
		s, err := m.settings(ctx, st)
		if err != nil {
			return err
		}
		snap.Settings = &s
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	SortBrands(snap.Brands)
	return snap, nil
}

// Import replaces the entire dataset with snap. Nothing is merged: after a
// successful import the store holds exactly the snapshot (with period totals
// recomputed from its orders), and after a failed one it is unchanged.
func (m *Manager) Import(ctx context.Context, snap Snapshot) error {
	if err := ValidateSnapshot(snap); err != nil {
		return err
	}
	err := m.store.WithTx(ctx, func(st Store) error {
		if err := st.ReplaceAll(ctx, snap); err != nil {
			return err
		}
		for _, p := range snap.Periods {
			if err := m.recomputeTotals(ctx, st, p.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.log.Info().Int("brands", len(snap.Brands)).Int("periods", len(snap.Periods)).
		Int("orders", len(snap.Orders)).Msg("backup imported")
	return nil
}

// ValidateSnapshot checks that a snapshot satisfies the ledger invariants
// before it replaces anything.
func ValidateSnapshot(snap Snapshot) error {
	if snap.Version != "" && snap.Version != SnapshotVersion {
		return invalid("version", "unsupported backup version %q", snap.Version)
	}
	if snap.Settings != nil {
		if err := ValidatePercentage(snap.Settings.FixedCommissionPercentage); err != nil {
			return err
		}
	}

	brands := make(map[BrandID]bool, len(snap.Brands))
	names := make(map[string]bool, len(snap.Brands))
	for _, b := range snap.Brands {
		if b.ID == "" || b.Name == "" {
			return invalid("brands", "brand id and name are required")
		}
		key := foldName(b.Name)
		if brands[b.ID] || names[key] {
			return invalid("brands", "duplicate brand %q", b.Name)
		}
		brands[b.ID], names[key] = true, true
	}

	periods := make(map[PeriodID]Period, len(snap.Periods))
	for _, p := range snap.Periods {
		start, end := PeriodRangeFor(p.StartDate)
		if p.ID != PeriodIDFor(p.StartDate) || !start.Equal(p.StartDate) || !end.Equal(p.EndDate) {
			return invalid("periods", "period %q does not match its range %s", p.ID, p)
		}
		if _, dup := periods[p.ID]; dup {
			return invalid("periods", "duplicate period %q", p.ID)
		}
		if p.Paid != (p.PaidAt != nil) {
			return invalid("periods", "period %q: paidAt must be set iff paid", p.ID)
		}
		periods[p.ID] = p
	}

	numbers := make(map[int64]bool, len(snap.Orders))
	ids := make(map[OrderID]bool, len(snap.Orders))
	for _, o := range snap.Orders {
		ref := fmt.Sprintf("order #%d", o.Number)
		if o.ID == "" || ids[o.ID] {
			return invalid("orders", "%s: missing or duplicate id", ref)
		}
		if numbers[o.Number] {
			return invalid("orders", "%s: duplicate number", ref)
		}
		ids[o.ID], numbers[o.Number] = true, true
		if !o.Status.Valid() {
			return invalid("orders", "%s: unknown status %q", ref, o.Status)
		}
		if (o.Status == StatusPaid) != (o.PaidAt != nil) {
			return invalid("orders", "%s: paidAt must be set iff paid", ref)
		}
		if !brands[o.BrandID] {
			return invalid("orders", "%s: unknown brand %q", ref, o.BrandID)
		}
		p, ok := periods[o.PeriodID]
		if !ok || !p.Contains(o.EntryDate) {
			return invalid("orders", "%s: period %q does not contain %s", ref, o.PeriodID, o.EntryDate)
		}
		if p.Paid && o.Status != StatusPaid {
			return invalid("orders", "%s: pending order in paid period %q", ref, p.ID)
		}
		if o.ServiceValue.IsNegative() || o.CommissionValue.IsNegative() {
			return invalid("orders", "%s: negative amount", ref)
		}
	}
	return nil
}
