package inventory

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

type memoryRepo struct {
	items map[string]Item
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[string]Item)}
}

func key(franchiseID, productID string) string {
	return franchiseID + "/" + productID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[string]Item, len(r.items))
	for k, v := range r.items {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.items = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) ListItems(ctx context.Context, franchiseID string) ([]Item, error) {
	var out []Item
	for _, item := range r.items {
		if item.FranchiseID == franchiseID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) GetItem(ctx context.Context, franchiseID, productID string) (Item, error) {
	item, ok := r.items[key(franchiseID, productID)]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryTx) GetItemsForUpdate(ctx context.Context, franchiseID string, productIDs []string) (map[string]Item, error) {
	out := make(map[string]Item)
	for _, id := range productIDs {
		if item, ok := tx.repo.items[key(franchiseID, id)]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (tx *memoryTx) SaveStock(ctx context.Context, franchiseID, productID string, stock int64, at time.Time) error {
	item, ok := tx.repo.items[key(franchiseID, productID)]
	if !ok {
		return ErrItemNotFound
	}
	if stock < 0 {
		return errors.New("check constraint: current_stock >= 0")
	}
	item.CurrentStock = stock
	item.LastUpdated = at
	tx.repo.items[key(franchiseID, productID)] = item
	return nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item Item) error {
	if _, ok := tx.repo.items[key(item.FranchiseID, item.ID)]; ok {
		return errors.New("duplicate key")
	}
	tx.repo.items[key(item.FranchiseID, item.ID)] = item
	return nil
}

func (tx *memoryTx) UpsertItem(ctx context.Context, item Item) error {
	tx.repo.items[key(item.FranchiseID, item.ID)] = item
	return nil
}

const franchise = "fr-1"

func seed(repo *memoryRepo, id string, stock, mbq int64, price string) {
	repo.items[key(franchise, id)] = Item{
		ID:           id,
		FranchiseID:  franchise,
		Name:         "Item " + id,
		CurrentStock: stock,
		MBQ:          mbq,
		Unit:         "pcs",
		Price:        decimal.RequireFromString(price),
	}
}

func TestDeductMovesItemIntoLowStock(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "towel", 5, 10, "2.50")
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	short, err := svc.Deduct(ctx, franchise, []Line{{ProductID: "towel", Qty: 3}})
	require.NoError(t, err)
	require.Empty(t, short)

	item, err := svc.Get(ctx, franchise, "towel")
	require.NoError(t, err)
	require.EqualValues(t, 2, item.CurrentStock)

	low, err := svc.LowStockItems(ctx, franchise)
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "towel", low[0].ID)
}

func TestDeductReportsShortfallWithoutTouchingStock(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "towel", 2, 10, "2.50")
	seed(repo, "soap", 20, 5, "1.00")
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	short, err := svc.Deduct(ctx, franchise, []Line{{ProductID: "towel", Qty: 10}, {ProductID: "soap", Qty: 4}})
	require.NoError(t, err)
	require.Len(t, short, 1)
	require.Equal(t, DeductionError{ProductID: "towel", Name: "Item towel", Requested: 10, Available: 2, Shortfall: 8}, short[0])

	towel, _ := svc.Get(ctx, franchise, "towel")
	require.EqualValues(t, 2, towel.CurrentStock)
	soap, _ := svc.Get(ctx, franchise, "soap")
	require.EqualValues(t, 16, soap.CurrentStock)
}

func TestDeductUnknownProductIsShortfall(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)

	short, err := svc.Deduct(context.Background(), franchise, []Line{{ProductID: "ghost", Qty: 1}})
	require.NoError(t, err)
	require.Equal(t, []DeductionError{{ProductID: "ghost", Requested: 1, Available: 0, Shortfall: 1}}, short)
}

func TestDeductRejectsNonPositiveQuantity(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "towel", 5, 1, "1")
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.Deduct(context.Background(), franchise, []Line{{ProductID: "towel", Qty: 1}, {ProductID: "towel", Qty: 0}})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	require.EqualValues(t, 5, repo.items[key(franchise, "towel")].CurrentStock)
}

func TestDeductAllIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "towel", 2, 0, "1")
	seed(repo, "soap", 20, 0, "1")
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		short, err := DeductAll(ctx, tx, franchise, []Line{{ProductID: "soap", Qty: 5}, {ProductID: "towel", Qty: 3}}, time.Now())
		require.NoError(t, err)
		require.Len(t, short, 1)
		return nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 20, repo.items[key(franchise, "soap")].CurrentStock)
	require.EqualValues(t, 2, repo.items[key(franchise, "towel")].CurrentStock)
}

func TestSetStock(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "towel", 5, 10, "1")
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.SetStock(ctx, franchise, "towel", -1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.SetStock(ctx, franchise, "ghost", 3)
	require.ErrorIs(t, err, shared.ErrNotFound)

	item, err := svc.SetStock(ctx, franchise, "towel", 42)
	require.NoError(t, err)
	require.EqualValues(t, 42, item.CurrentStock)
}

func TestAddCreatesUnknownSKU(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "towel", 5, 10, "1")
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	err := svc.Add(ctx, franchise, []AddLine{{ProductID: "towel", Qty: 7}, {ProductID: "robe", Name: "Bath Robe", Price: decimal.NewFromInt(45), Qty: 2}})
	require.NoError(t, err)

	towel, _ := svc.Get(ctx, franchise, "towel")
	require.EqualValues(t, 12, towel.CurrentStock)
	robe, err := svc.Get(ctx, franchise, "robe")
	require.NoError(t, err)
	require.EqualValues(t, 2, robe.CurrentStock)
	require.EqualValues(t, 0, robe.MBQ)
	require.Equal(t, "Bath Robe", robe.Name)
	require.True(t, decimal.NewFromInt(45).Equal(robe.Price))

	err = svc.Add(ctx, franchise, []AddLine{{ProductID: "towel", Qty: -1}})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	err = svc.Add(ctx, franchise, []AddLine{{ProductID: "mat", Price: decimal.NewFromInt(-1), Qty: 1}})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestUpsertItemKeepsStock(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "towel", 5, 10, "1")
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	item, err := svc.UpsertItem(ctx, franchise, UpsertInput{ProductID: "towel", Name: "Hand Towel", MBQ: 3, Price: decimal.NewFromInt(4)})
	require.NoError(t, err)
	require.EqualValues(t, 5, item.CurrentStock)
	require.EqualValues(t, 3, item.MBQ)

	_, err = svc.UpsertItem(ctx, franchise, UpsertInput{ProductID: "towel", Name: "Hand Towel", MBQ: -1})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestStockNeverNegative(t *testing.T) {
	repo := newMemoryRepo()
	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		seed(repo, id, 10, 5, "1")
	}
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 300; i++ {
		id := ids[rng.Intn(len(ids))]
		qty := int64(rng.Intn(15) - 3)
		switch rng.Intn(3) {
		case 0:
			_, _ = svc.SetStock(ctx, franchise, id, qty)
		case 1:
			_, _ = svc.Deduct(ctx, franchise, []Line{{ProductID: id, Qty: qty}})
		default:
			_ = svc.Add(ctx, franchise, []AddLine{{ProductID: id, Qty: qty}})
		}
		for _, item := range repo.items {
			require.GreaterOrEqual(t, item.CurrentStock, int64(0))
		}
	}
}

func TestComputeStats(t *testing.T) {
	require.Equal(t, 100, ComputeStats(nil).HealthPercentage)

	items := []Item{
		{ID: "a", CurrentStock: 20, MBQ: 10, Price: decimal.NewFromInt(2)},
		{ID: "b", CurrentStock: 5, MBQ: 10, Price: decimal.NewFromInt(3)},
		{ID: "c", CurrentStock: 0, MBQ: 10, Price: decimal.NewFromInt(9)},
	}
	stats := ComputeStats(items)
	require.Equal(t, 3, stats.TotalItems)
	require.Equal(t, 1, stats.HealthyCount)
	require.Equal(t, 1, stats.LowStockCount)
	require.Equal(t, 1, stats.OutOfStockCount)
	require.True(t, decimal.NewFromInt(55).Equal(stats.TotalValue))
	require.Equal(t, 33, stats.HealthPercentage)
}

func TestRequiresFranchise(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)
	_, err := svc.Stats(context.Background(), " ")
	require.ErrorIs(t, err, shared.ErrFranchiseRequired)
}
