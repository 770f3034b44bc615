package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/commission-ledger/ledger"
)

// =============================================================================
// ORDERS
// =============================================================================

const orderColumns = `
	o.id, o.number, o.entry_date, o.customer_name, o.brand_id, COALESCE(b.name, ''),
	o.service_value, o.commission_value, o.payment_method, o.status, o.paid_at,
	o.period_id, o.created_at`

const orderFrom = ` FROM orders o LEFT JOIN brands b ON b.id = o.brand_id`

func scanOrder(row scanner) (ledger.Order, error) {
	var (
		o                        ledger.Order
		entryDate, createdAt     string
		serviceValue, commission string
		paymentMethod, paidAt    sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.Number, &entryDate, &o.CustomerName, &o.BrandID, &o.BrandName,
		&serviceValue, &commission, &paymentMethod, &o.Status, &paidAt,
		&o.PeriodID, &createdAt,
	)
	if err != nil {
		return o, err
	}
	if o.EntryDate, err = ledger.ParseDate(entryDate); err != nil {
		return o, fmt.Errorf("order %s: %w", o.ID, err)
	}
	if o.ServiceValue, err = parseDecimal(serviceValue); err != nil {
		return o, fmt.Errorf("order %s: service value: %w", o.ID, err)
	}
	if o.CommissionValue, err = parseDecimal(commission); err != nil {
		return o, fmt.Errorf("order %s: commission value: %w", o.ID, err)
	}
	if o.PaidAt, err = parseNullTime(paidAt); err != nil {
		return o, fmt.Errorf("order %s: paid at: %w", o.ID, err)
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return o, fmt.Errorf("order %s: created at: %w", o.ID, err)
	}
	o.PaymentMethod = paymentMethod.String
	return o, nil
}

func (c *conn) getOrderWhere(ctx context.Context, where string, arg any) (*ledger.Order, error) {
	row := c.queryRow(ctx, `SELECT `+orderColumns+orderFrom+` WHERE `+where, arg)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	orders := []ledger.Order{o}
	if err := c.loadHistory(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (c *conn) GetOrder(ctx context.Context, id ledger.OrderID) (*ledger.Order, error) {
	return c.getOrderWhere(ctx, "o.id = ?", string(id))
}

func (c *conn) GetOrderByNumber(ctx context.Context, number int64) (*ledger.Order, error) {
	return c.getOrderWhere(ctx, "o.number = ?", number)
}

func (c *conn) ListOrders(ctx context.Context, f ledger.OrderFilter) ([]ledger.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.PeriodID != "" {
		where = append(where, "o.period_id = ?")
		args = append(args, string(f.PeriodID))
	}
	if f.Status != "" {
		where = append(where, "o.status = ?")
		args = append(args, string(f.Status))
	}
	if f.BrandID != "" {
		where = append(where, "o.brand_id = ?")
		args = append(args, string(f.BrandID))
	}
	if f.From != nil {
		where = append(where, "o.entry_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "o.entry_date <= ?")
		args = append(args, f.To.String())
	}

	query := `SELECT ` + orderColumns + orderFrom
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY o.created_at DESC, o.number DESC`

	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []ledger.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := c.loadHistory(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *conn) MaxOrderNumber(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	if err := c.queryRow(ctx, `SELECT MAX(number) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read max order number: %w", err)
	}
	return n.Int64, nil
}

func (c *conn) InsertOrder(ctx context.Context, o ledger.Order) error {
	_, err := c.exec(ctx, `
		INSERT INTO orders
		(id, number, entry_date, customer_name, brand_id, service_value, commission_value,
		 payment_method, status, paid_at, period_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(o.ID), o.Number, o.EntryDate.String(), o.CustomerName, string(o.BrandID),
		o.ServiceValue.String(), o.CommissionValue.String(), nullString(o.PaymentMethod),
		string(o.Status), nullTime(o.PaidAt), string(o.PeriodID), formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", translate(err))
	}
	return c.AppendAudit(ctx, o.ID, o.History...)
}

func (c *conn) UpdateOrder(ctx context.Context, o ledger.Order) error {
	res, err := c.exec(ctx, `
		UPDATE orders SET
			number = ?, entry_date = ?, customer_name = ?, brand_id = ?, service_value = ?,
			commission_value = ?, payment_method = ?, status = ?, paid_at = ?, period_id = ?
		WHERE id = ?`,
		o.Number, o.EntryDate.String(), o.CustomerName, string(o.BrandID), o.ServiceValue.String(),
		o.CommissionValue.String(), nullString(o.PaymentMethod), string(o.Status), nullTime(o.PaidAt),
		string(o.PeriodID), string(o.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", translate(err))
	}
	return expectRow(res, "order", string(o.ID))
}

func (c *conn) DeleteOrder(ctx context.Context, id ledger.OrderID) error {
	if _, err := c.exec(ctx, `DELETE FROM audit_log WHERE order_id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete audit log: %w", err)
	}
	if _, err := c.exec(ctx, `DELETE FROM orders WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

func (c *conn) CountOrdersByBrand(ctx context.Context, id ledger.BrandID) (int, error) {
	var n int
	err := c.queryRow(ctx, `SELECT COUNT(*) FROM orders WHERE brand_id = ?`, string(id)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (c *conn) AppendAudit(ctx context.Context, id ledger.OrderID, entries ...ledger.AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var seq int
	err := c.queryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM audit_log WHERE order_id = ?`, string(id)).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to read audit sequence: %w", err)
	}
	for _, e := range entries {
		seq++
		_, err := c.exec(ctx, `
			INSERT INTO audit_log (order_id, seq, logged_at, actor, action, details)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(id), seq, formatTime(e.Timestamp), e.User, string(e.Action), nullString(e.Details),
		)
		if err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}
	}
	return nil
}

// historyBatch bounds the IN list of a history query.
const historyBatch = 500

// loadHistory fills History for each order, oldest entry first.
func (c *conn) loadHistory(ctx context.Context, orders []ledger.Order) error {
	index := make(map[ledger.OrderID]int, len(orders))
	for i := range orders {
		index[orders[i].ID] = i
	}
	for start := 0; start < len(orders); start += historyBatch {
		end := min(start+historyBatch, len(orders))
		args := make([]any, 0, end-start)
		for _, o := range orders[start:end] {
			args = append(args, string(o.ID))
		}
		rows, err := c.query(ctx, `
			SELECT order_id, logged_at, actor, action, details FROM audit_log
			WHERE order_id IN (`+placeholders(len(args))+`)
			ORDER BY order_id, seq`, args...)
		if err != nil {
			return fmt.Errorf("failed to query audit log: %w", err)
		}
		if err := scanHistory(rows, orders, index); err != nil {
			return err
		}
	}
	return nil
}

func scanHistory(rows *sql.Rows, orders []ledger.Order, index map[ledger.OrderID]int) error {
	defer rows.Close()
	for rows.Next() {
		var (
			id       ledger.OrderID
			loggedAt string
			e        ledger.AuditLogEntry
			details  sql.NullString
		)
		if err := rows.Scan(&id, &loggedAt, &e.User, &e.Action, &details); err != nil {
			return fmt.Errorf("failed to scan audit entry: %w", err)
		}
		t, err := parseTime(loggedAt)
		if err != nil {
			return fmt.Errorf("audit entry of %s: %w", id, err)
		}
		e.Timestamp = t
		e.Details = details.String
		if i, ok := index[id]; ok {
			orders[i].History = append(orders[i].History, e)
		}
	}
	return rows.Err()
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}
