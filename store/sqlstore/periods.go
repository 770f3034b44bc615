package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-ledger/ledger"
)

// =============================================================================
// PERIODS
// =============================================================================

const periodColumns = `id, start_date, end_date, paid, paid_at, total_orders,
	total_service_value, total_commission, created_at`

func scanPeriod(row scanner) (ledger.Period, error) {
	var (
		p                        ledger.Period
		start, end, createdAt    string
		serviceValue, commission string
		paidAt                   sql.NullString
	)
	err := row.Scan(&p.ID, &start, &end, &p.Paid, &paidAt, &p.TotalOrders,
		&serviceValue, &commission, &createdAt)
	if err != nil {
		return p, err
	}
	if p.StartDate, err = ledger.ParseDate(start); err != nil {
		return p, fmt.Errorf("period %s: %w", p.ID, err)
	}
	if p.EndDate, err = ledger.ParseDate(end); err != nil {
		return p, fmt.Errorf("period %s: %w", p.ID, err)
	}
	if p.PaidAt, err = parseNullTime(paidAt); err != nil {
		return p, fmt.Errorf("period %s: paid at: %w", p.ID, err)
	}
	if p.TotalServiceValue, err = parseDecimal(serviceValue); err != nil {
		return p, fmt.Errorf("period %s: total service value: %w", p.ID, err)
	}
	if p.TotalCommission, err = parseDecimal(commission); err != nil {
		return p, fmt.Errorf("period %s: total commission: %w", p.ID, err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, fmt.Errorf("period %s: created at: %w", p.ID, err)
	}
	return p, nil
}

// GetPeriod reads a period. Inside a PostgreSQL transaction the row stays
// locked until commit.
func (c *conn) GetPeriod(ctx context.Context, id ledger.PeriodID) (*ledger.Period, error) {
	row := c.queryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = ?`+c.forUpdate(), string(id))
	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get period: %w", err)
	}
	return &p, nil
}

func (c *conn) ListPeriods(ctx context.Context) ([]ledger.Period, error) {
	rows, err := c.query(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY start_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []ledger.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// InsertPeriodIfAbsent relies on the primary key and idx_periods_range: a
// concurrent insert of the same bucket waits, then does nothing.
func (c *conn) InsertPeriodIfAbsent(ctx context.Context, p ledger.Period) error {
	_, err := c.exec(ctx, `
		INSERT INTO periods (`+periodColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		periodArgs(p)...,
	)
	if err != nil {
		return fmt.Errorf("failed to insert period: %w", err)
	}
	return nil
}

func (c *conn) insertPeriod(ctx context.Context, p ledger.Period) error {
	_, err := c.exec(ctx, `
		INSERT INTO periods (`+periodColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		periodArgs(p)...,
	)
	if err != nil {
		return fmt.Errorf("failed to insert period %s: %w", p.ID, err)
	}
	return nil
}

func periodArgs(p ledger.Period) []any {
	return []any{
		string(p.ID), p.StartDate.String(), p.EndDate.String(), p.Paid, nullTime(p.PaidAt),
		p.TotalOrders, p.TotalServiceValue.String(), p.TotalCommission.String(), formatTime(p.CreatedAt),
	}
}

func (c *conn) UpdatePeriod(ctx context.Context, p ledger.Period) error {
	res, err := c.exec(ctx, `
		UPDATE periods SET
			paid = ?, paid_at = ?, total_orders = ?, total_service_value = ?, total_commission = ?
		WHERE id = ?`,
		p.Paid, nullTime(p.PaidAt), p.TotalOrders, p.TotalServiceValue.String(), p.TotalCommission.String(),
		string(p.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update period: %w", err)
	}
	return expectRow(res, "period", string(p.ID))
}

// AggregatePeriod sums in Go: amounts are decimal text in both dialects.
func (c *conn) AggregatePeriod(ctx context.Context, id ledger.PeriodID) (ledger.PeriodTotals, error) {
	var t ledger.PeriodTotals
	rows, err := c.query(ctx, `SELECT service_value, commission_value FROM orders WHERE period_id = ?`, string(id))
	if err != nil {
		return t, fmt.Errorf("failed to aggregate period: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var value, commission string
		if err := rows.Scan(&value, &commission); err != nil {
			return t, fmt.Errorf("failed to scan amounts: %w", err)
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return t, err
		}
		cm, err := decimal.NewFromString(commission)
		if err != nil {
			return t, err
		}
		t = t.Add(ledger.Order{ServiceValue: v, CommissionValue: cm})
	}
	return t, rows.Err()
}
