package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/commission-ledger/ledger"
)

// =============================================================================
// BRANDS
// =============================================================================

func scanBrand(row scanner) (ledger.Brand, error) {
	var (
		b         ledger.Brand
		createdAt string
	)
	if err := row.Scan(&b.ID, &b.Name, &createdAt); err != nil {
		return b, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return b, fmt.Errorf("brand %s: created at: %w", b.ID, err)
	}
	b.CreatedAt = t
	return b, nil
}

func (c *conn) getBrandWhere(ctx context.Context, query string, args ...any) (*ledger.Brand, error) {
	b, err := scanBrand(c.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get brand: %w", err)
	}
	return &b, nil
}

func (c *conn) GetBrand(ctx context.Context, id ledger.BrandID) (*ledger.Brand, error) {
	return c.getBrandWhere(ctx, `SELECT id, name, created_at FROM brands WHERE id = ?`, string(id))
}

func (c *conn) FindBrandByName(ctx context.Context, name string) (*ledger.Brand, error) {
	return c.getBrandWhere(ctx, `
		SELECT id, name, created_at FROM brands
		WHERE lower(name) = lower(?)
		ORDER BY CASE WHEN name = ? THEN 0 ELSE 1 END
		LIMIT 1`, name, name)
}

func (c *conn) ListBrands(ctx context.Context) ([]ledger.Brand, error) {
	rows, err := c.query(ctx, `SELECT id, name, created_at FROM brands ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query brands: %w", err)
	}
	defer rows.Close()

	var brands []ledger.Brand
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan brand: %w", err)
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

// InsertBrand runs under a savepoint inside a transaction, so a name clash
// leaves the transaction usable (PostgreSQL aborts it otherwise) and the
// caller can look the winning brand up instead.
func (c *conn) InsertBrand(ctx context.Context, b ledger.Brand) error {
	if c.inTx {
		if _, err := c.exec(ctx, `SAVEPOINT insert_brand`); err != nil {
			return fmt.Errorf("failed to insert brand: %w", err)
		}
	}
	_, err := c.exec(ctx, `INSERT INTO brands (id, name, created_at) VALUES (?, ?, ?)`,
		string(b.ID), b.Name, formatTime(b.CreatedAt))
	if err != nil {
		if c.inTx {
			if _, rbErr := c.exec(ctx, `ROLLBACK TO SAVEPOINT insert_brand`); rbErr != nil {
				return fmt.Errorf("failed to insert brand: %w", rbErr)
			}
		}
		return fmt.Errorf("failed to insert brand: %w", translate(err))
	}
	if c.inTx {
		if _, err := c.exec(ctx, `RELEASE SAVEPOINT insert_brand`); err != nil {
			return fmt.Errorf("failed to insert brand: %w", err)
		}
	}
	return nil
}

func (c *conn) UpdateBrand(ctx context.Context, b ledger.Brand) error {
	res, err := c.exec(ctx, `UPDATE brands SET name = ? WHERE id = ?`, b.Name, string(b.ID))
	if err != nil {
		return fmt.Errorf("failed to update brand: %w", translate(err))
	}
	return expectRow(res, "brand", string(b.ID))
}

func (c *conn) DeleteBrand(ctx context.Context, id ledger.BrandID) error {
	if _, err := c.exec(ctx, `DELETE FROM brands WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete brand: %w", err)
	}
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

const settingsID = 1

func (c *conn) GetSettings(ctx context.Context) (*ledger.Settings, error) {
	var (
		pct     string
		company sql.NullString
	)
	err := c.queryRow(ctx, `SELECT fixed_commission_percentage, company_name FROM settings WHERE id = ?`,
		settingsID).Scan(&pct, &company)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	p, err := parseDecimal(pct)
	if err != nil {
		return nil, fmt.Errorf("settings percentage: %w", err)
	}
	return &ledger.Settings{FixedCommissionPercentage: p, CompanyName: company.String}, nil
}

func (c *conn) SaveSettings(ctx context.Context, s ledger.Settings) error {
	_, err := c.exec(ctx, `
		INSERT INTO settings (id, fixed_commission_percentage, company_name)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			fixed_commission_percentage = excluded.fixed_commission_percentage,
			company_name = excluded.company_name`,
		settingsID, s.FixedCommissionPercentage.String(), nullString(s.CompanyName),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// =============================================================================
// REPLACE ALL (backup import)
// =============================================================================

// ReplaceAll deletes every row, children first, then inserts the snapshot
// parents first. Callers run it inside WithTx.
func (c *conn) ReplaceAll(ctx context.Context, snap ledger.Snapshot) error {
	for _, table := range []string{"audit_log", "orders", "periods", "brands", "settings"} {
		if _, err := c.exec(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	for _, b := range snap.Brands {
		if err := c.InsertBrand(ctx, b); err != nil {
			return err
		}
	}
	for _, p := range snap.Periods {
		if err := c.insertPeriod(ctx, p); err != nil {
			return err
		}
	}
	for _, o := range snap.Orders {
		if err := c.InsertOrder(ctx, o); err != nil {
			return err
		}
	}
	if snap.Settings != nil {
		return c.SaveSettings(ctx, *snap.Settings)
	}
	return nil
}
