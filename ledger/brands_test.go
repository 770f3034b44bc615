package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-ledger/ledger"
	"github.com/warp/commission-ledger/store/memory"
)

func TestResolveBrand_LazyCreateMatchesIgnoringCase(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	// GIVEN an order referencing an unknown brand
	in := order(1, "2024-03-10", "10")
	in.Brand = "Nokia"
	first := mustCreate(t, m, in)

	// WHEN a second order references it in another case
	in = order(2, "2024-03-10", "10")
	in.Brand = "  NOKIA "
	second := mustCreate(t, m, in)

	// THEN both point at the single brand created by the first
	assert.Equal(t, first.BrandID, second.BrandID)
	assert.Equal(t, "Nokia", second.BrandName)
	brands, err := m.ListBrands(ctx)
	require.NoError(t, err)
	assert.Len(t, brands, 2) // Nokia + Samsung from the helper default
}

// racingBrandStore lets another writer create the same brand name just
// before the insert lands.
type racingBrandStore struct {
	*memory.Dataset
	winner ledger.Brand
}

func (s racingBrandStore) InsertBrand(ctx context.Context, b ledger.Brand) error {
	if err := s.Dataset.InsertBrand(ctx, s.winner); err != nil {
		return err
	}
	return s.Dataset.InsertBrand(ctx, b)
}

func TestLazyCreateBrands_ConcurrentCreateUsesWinner(t *testing.T) {
	ctx := context.Background()
	winner := ledger.Brand{ID: "brand-winner", Name: "NOKIA", CreatedAt: now}
	st := racingBrandStore{Dataset: memory.NewDataset(), winner: winner}

	// WHEN the insert loses the race on the name
	got, err := ledger.LazyCreateBrands{}.ResolveUnknown(ctx, st, "Nokia", now)

	// THEN the brand that won is returned
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	brands, err := st.ListBrands(ctx)
	require.NoError(t, err)
	assert.Len(t, brands, 1)
}

func TestResolveBrand_Strict(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(ledger.WithBrandPolicy(ledger.StrictBrands{}))
	_, err := m.CreateBrand(ctx, "Samsung")
	require.NoError(t, err)

	in := order(1, "2024-03-10", "10")
	in.Brand = "Nokia"
	_, err = m.CreateOrder(ctx, in)

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "brand", verr.Field)
	brands, err := m.ListBrands(ctx)
	require.NoError(t, err)
	assert.Len(t, brands, 1)

	// Known names still resolve.
	mustCreate(t, m, order(2, "2024-03-10", "10"))
}

func TestCreateBrand_DuplicateIgnoringCase(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	_, err := m.CreateBrand(ctx, "Apple")
	require.NoError(t, err)

	_, err = m.CreateBrand(ctx, "apple")
	var dup *ledger.DuplicateBrandNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "apple", dup.Name)

	_, err = m.CreateBrand(ctx, "   ")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRenameBrand(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	o := mustCreate(t, m, order(1, "2024-03-10", "10"))
	lg, err := m.CreateBrand(ctx, "LG")
	require.NoError(t, err)

	// Renaming onto another brand's name fails.
	_, err = m.RenameBrand(ctx, lg.ID, "SAMSUNG")
	assert.ErrorIs(t, err, ledger.ErrDuplicateBrandName)

	// Changing only the case of its own name is allowed, and orders follow.
	_, err = m.RenameBrand(ctx, o.BrandID, "SAMSUNG")
	require.NoError(t, err)
	got, err := m.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "SAMSUNG", got.BrandName)

	_, err = m.RenameBrand(ctx, "missing", "X")
	assert.True(t, ledger.IsNotFound(err))
}

func TestDeleteBrand_RefusedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	o := mustCreate(t, m, order(1, "2024-03-10", "10"))

	err := m.DeleteBrand(ctx, o.BrandID)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	require.NoError(t, m.DeleteOrder(ctx, o.ID))
	require.NoError(t, m.DeleteBrand(ctx, o.BrandID))
	assert.True(t, ledger.IsNotFound(m.DeleteBrand(ctx, o.BrandID)))
}

func TestSortBrands_PortugueseCollation(t *testing.T) {
	brands := []ledger.Brand{{Name: "Zenith"}, {Name: "LG"}, {Name: "Árvore"}, {Name: "apple"}}

	ledger.SortBrands(brands)

	var names []string
	for _, b := range brands {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"apple", "Árvore", "LG", "Zenith"}, names)
}
