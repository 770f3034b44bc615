package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// =============================================================================
// BRAND POLICY - What to do with a reference that matches no brand
// =============================================================================

// BrandPolicy decides the outcome for a brand reference that matches neither
// an id nor a name. It is the single switch for the lazy-create behaviour.
type BrandPolicy interface {
	ResolveUnknown(ctx context.Context, st Store, ref string, now time.Time) (*Brand, error)
}

// LazyCreateBrands creates a brand named after the unknown reference.
// A typo therefore becomes a new brand; StrictBrands rejects it instead.
type LazyCreateBrands struct{}

// A concurrent writer may create the same name first; that brand is used.
func (LazyCreateBrands) ResolveUnknown(ctx context.Context, st Store, ref string, now time.Time) (*Brand, error) {
	b := Brand{ID: BrandID(uuid.NewString()), Name: ref, CreatedAt: now}
	err := st.InsertBrand(ctx, b)
	if errors.Is(err, ErrDuplicateBrandName) {
		existing, findErr := st.FindBrandByName(ctx, ref)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// StrictBrands fails with a ValidationError for unknown references.
type StrictBrands struct{}

func (StrictBrands) ResolveUnknown(_ context.Context, _ Store, ref string, _ time.Time) (*Brand, error) {
	return nil, invalid("brand", "unknown brand %q", ref)
}

// resolveBrand matches ref by id, then by name (exact case first), and
// finally defers to the brand policy.
func (m *Manager) resolveBrand(ctx context.Context, st Store, ref string) (*Brand, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalid("brand", "is required")
	}
	b, err := st.GetBrand(ctx, BrandID(ref))
	if err != nil || b != nil {
		return b, err
	}
	b, err = st.FindBrandByName(ctx, ref)
	if err != nil || b != nil {
		return b, err
	}
	b, err = m.brands.ResolveUnknown(ctx, st, ref, m.now())
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("brand_id", string(b.ID)).Str("name", b.Name).Msg("brand created from order reference")
	return b, nil
}

// =============================================================================
// BRAND OPERATIONS
// =============================================================================

// DefaultBrands are created by Bootstrap on an empty store.
var DefaultBrands = []string{"Samsung", "Apple", "LG", "Motorola"}

func (m *Manager) CreateBrand(ctx context.Context, name string) (*Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	var out *Brand
	err := m.store.WithTx(ctx, func(st Store) error {
		existing, err := st.FindBrandByName(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return &DuplicateBrandNameError{Name: name}
		}
		b := Brand{ID: BrandID(uuid.NewString()), Name: name, CreatedAt: m.now()}
		if err := st.InsertBrand(ctx, b); err != nil {
			return brandErr(err, name)
		}
		out = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) RenameBrand(ctx context.Context, id BrandID, name string) (*Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	var out *Brand
	err := m.store.WithTx(ctx, func(st Store) error {
		b, err := st.GetBrand(ctx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return &NotFoundError{Kind: "brand", ID: string(id)}
		}
		clash, err := st.FindBrandByName(ctx, name)
		if err != nil {
			return err
		}
		if clash != nil && clash.ID != id {
			return &DuplicateBrandNameError{Name: name}
		}
		b.Name = name
		if err := st.UpdateBrand(ctx, *b); err != nil {
			return brandErr(err, name)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBrand removes a brand no order references.
func (m *Manager) DeleteBrand(ctx context.Context, id BrandID) error {
	return m.store.WithTx(ctx, func(st Store) error {
		b, err := st.GetBrand(ctx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return &NotFoundError{Kind: "brand", ID: string(id)}
		}
		n, err := st.CountOrdersByBrand(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return invalid("brand", "%q is referenced by %d orders", b.Name, n)
		}
		return st.DeleteBrand(ctx, id)
	})
}

// ListBrands returns brands in Portuguese collation order, ignoring case.
func (m *Manager) ListBrands(ctx context.Context) ([]Brand, error) {
	brands, err := m.store.ListBrands(ctx)
	if err != nil {
		return nil, err
	}
	SortBrands(brands)
	return brands, nil
}

func SortBrands(brands []Brand) {
	c := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	sort.SliceStable(brands, func(i, j int) bool {
		return c.CompareString(brands[i].Name, brands[j].Name) < 0
	})
}

// foldName is the case-insensitive key brand names are compared by.
func foldName(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func brandErr(err error, name string) error {
	if errors.Is(err, ErrDuplicateBrandName) {
		return &DuplicateBrandNameError{Name: name}
	}
	return err
}
