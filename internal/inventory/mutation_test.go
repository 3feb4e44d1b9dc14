package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghoangnam/pos-core/internal/events"
)

func TestUpdateStockSale(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", 10, 0, 0)
	svc := NewMutationService(repo, nil, 3, nil)

	res, err := svc.UpdateStock(context.Background(), Request{
		ProductID: "p1", Delta: -4, Type: MovementSale, Actor: "till-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 6, res.NewQuantity)
	assert.Equal(t, int64(2), res.Version)

	require.Len(t, repo.movements, 1)
	assert.Equal(t, -4, repo.movements[0].Delta)
	assert.Equal(t, MovementSale, repo.movements[0].Type)
}

func TestSaleRejectedWhenOnlyReservedStockRemains(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", 5, 4, 0)
	svc := NewMutationService(repo, nil, 3, nil)

	// 1 available; a walk-in sale of 2 must not eat into reservations
	_, err := svc.UpdateStock(context.Background(), Request{
		ProductID: "p1", Delta: -2, Type: MovementSale, Actor: "till-1",
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.UpdateStock(context.Background(), Request{
		ProductID: "p1", Delta: -1, Type: MovementSale, Actor: "till-1",
	})
	assert.NoError(t, err)
}

func TestAdjustmentRejectedBelowZero(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", 3, 0, 0)
	svc := NewMutationService(repo, nil, 3, nil)

	_, err := svc.UpdateStock(context.Background(), Request{
		ProductID: "p1", Delta: -5, Type: MovementAdjustment, Actor: "ops",
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAdjustmentCannotEatReservedStock(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", 5, 4, 0)
	svc := NewMutationService(repo, nil, 3, nil)

	// 1 available; an adjustment of -3 would leave held units uncovered
	_, err := svc.UpdateStock(context.Background(), Request{
		ProductID: "p1", Delta: -3, Type: MovementAdjustment, Actor: "ops",
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	level, _ := repo.GetStock(context.Background(), "p1")
	assert.Equal(t, 5, level.StockQuantity)
	assert.GreaterOrEqual(t, level.StockQuantity-level.ReservedQuantity, 0)

	// down to the reserved floor is fine
	res, err := svc.UpdateStock(context.Background(), Request{
		ProductID: "p1", Delta: -1, Type: MovementAdjustment, Actor: "ops",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.NewQuantity)
}

func TestRetryBudgetExhaustionIsTransient(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", 10, 0, 0)
	repo.forceConflicts = 10 // more than the budget allows
	svc := NewMutationService(repo, nil, 3, nil)

	_, err := svc.UpdateStock(context.Background(), Request{
		ProductID: "p1", Delta: -1, Type: MovementSale, Actor: "till-1",
	})
	require.ErrorIs(t, err, ErrVersionConflict)
	assert.True(t, IsTransient(err))
}

func TestRetryRecoversFromLostRace(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", 10, 0, 0)
	repo.forceConflicts = 2 // within budget
	svc := NewMutationService(repo, nil, 3, nil)

	res, err := svc.UpdateStock(context.Background(), Request{
		ProductID: "p1", Delta: -1, Type: MovementSale, Actor: "till-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 9, res.NewQuantity)
}

func TestConcurrentSalesConvergeToZero(t *testing.T) {
	const n = 8
	repo := newMemRepo()
	repo.seed("p1", n, 0, 0)
	svc := NewMutationService(repo, nil, 3, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.UpdateStock(ctx, Request{
				ProductID: "p1", Delta: -1, Type: MovementSale, Actor: "till-1",
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "sale %d", i)
	}
	level, _ := repo.GetStock(ctx, "p1")
	assert.Equal(t, 0, level.StockQuantity)

	// the (n+1)th sale is a business-rule rejection, never a negative value
	_, err := svc.UpdateStock(ctx, Request{
		ProductID: "p1", Delta: -1, Type: MovementSale, Actor: "till-1",
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.False(t, IsTransient(err))
}

func TestReorderAlertPublished(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", 10, 0, 5)
	bus := events.NewBus(16, nil)

	var mu sync.Mutex
	var got []events.Event
	bus.Subscribe(events.TypeReorderAlert, func(ev events.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	svc := NewMutationService(repo, bus, 3, nil)
	_, err := svc.UpdateStock(context.Background(), Request{
		ProductID: "p1", Delta: -6, Type: MovementSale, Actor: "till-1",
	})
	require.NoError(t, err)
	bus.Close()

	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ProductID)
}

func TestCommitReservedDrainsHoldAndStockTogether(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", 5, 5, 0)
	svc := NewMutationService(repo, nil, 3, nil)

	// everything is reserved; a plain sale would be rejected, committing the
	// reservation must not be
	res, err := svc.CommitReserved(context.Background(), "p1", 5, "order-1", "payment:tx1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewQuantity)

	level, _ := repo.GetStock(context.Background(), "p1")
	assert.Equal(t, 0, level.ReservedQuantity)
	assert.Equal(t, 0, level.StockQuantity)
}

func TestBulkUpdateAppliesInProductOrder(t *testing.T) {
	repo := newMemRepo()
	repo.seed("pa", 10, 0, 0)
	repo.seed("pb", 10, 0, 0)
	repo.seed("pc", 10, 0, 0)
	svc := NewMutationService(repo, nil, 3, nil)

	out, err := svc.UpdateStockBulk(context.Background(), []Request{
		{ProductID: "pc", Delta: -1, Type: MovementSale, Actor: "till-1"},
		{ProductID: "pa", Delta: -1, Type: MovementSale, Actor: "till-1"},
		{ProductID: "pb", Delta: 3, Type: MovementRestock, Actor: "ops"},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"pa", "pb", "pc"}, []string{out[0].ProductID, out[1].ProductID, out[2].ProductID})
}

func TestFulfillerCommitOrder(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", 5, 0, 0)
	repo.seed("p2", 3, 0, 0)
	mgr := newTestManager(repo)
	svc := NewMutationService(repo, nil, 3, nil)
	f := &Fulfiller{Reservations: mgr, Mutations: svc}
	ctx := context.Background()

	r1, err := mgr.Reserve(ctx, "p1", 2, "order-1", 0)
	require.NoError(t, err)
	_, err = mgr.Reserve(ctx, "p2", 1, "order-1", 0)
	require.NoError(t, err)

	require.NoError(t, f.CommitOrder(ctx, "order-1", "payment:tx1"))

	l1, _ := repo.GetStock(ctx, "p1")
	assert.Equal(t, 3, l1.StockQuantity)
	assert.Equal(t, 0, l1.ReservedQuantity)
	l2, _ := repo.GetStock(ctx, "p2")
	assert.Equal(t, 2, l2.StockQuantity)

	got, _ := repo.GetReservation(ctx, r1.ID)
	assert.Equal(t, ReservationConfirmed, got.Status)

	// committing again finds nothing active to do
	require.NoError(t, f.CommitOrder(ctx, "order-1", "payment:tx1"))
	l1, _ = repo.GetStock(ctx, "p1")
	assert.Equal(t, 3, l1.StockQuantity)
}
