package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danghoangnam/pos-core/internal/events"
	"github.com/danghoangnam/pos-core/internal/kafkax"
)

type Request struct {
	ProductID string
	Delta     int
	Type      MovementType
	Actor     string
	OrderID   string
}

type Result struct {
	ProductID   string
	NewQuantity int
	Version     int64
}

// MutationService applies stock mutations with optimistic-lock retry.
// Same-product requests are serialized through a per-product slot so they
// don't thrash each other's version reads; the version-guarded write in the
// repo is what actually makes concurrent instances safe.
type MutationService struct {
	repo    Repo
	bus     *events.Bus
	retries int
	log     *slog.Logger

	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMutationService(repo Repo, bus *events.Bus, retries int, log *slog.Logger) *MutationService {
	if retries <= 0 {
		retries = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &MutationService{
		repo:    repo,
		bus:     bus,
		retries: retries,
		log:     log,
		slots:   map[string]chan struct{}{},
	}
}

func (s *MutationService) UpdateStock(ctx context.Context, req Request) (Result, error) {
	if req.ProductID == "" || req.Delta == 0 {
		return Result{}, ErrInvalidQuantity
	}
	release, err := s.enter(ctx, req.ProductID)
	if err != nil {
		return Result{}, err
	}
	defer release()
	return s.apply(ctx, req, 0)
}

// UpdateStockBulk applies mutations in product-id order so two overlapping
// batches always walk products the same way and cannot deadlock.
func (s *MutationService) UpdateStockBulk(ctx context.Context, reqs []Request) ([]Result, error) {
	sorted := make([]Request, len(reqs))
	copy(sorted, reqs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	out := make([]Result, 0, len(sorted))
	for _, req := range sorted {
		res, err := s.UpdateStock(ctx, req)
		if err != nil {
			return out, fmt.Errorf("bulk update %s: %w", req.ProductID, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// CommitReserved turns a confirmed reservation's hold into a committed sale:
// stock and reserved drop together, so the reserved floor moves down with
// the stock and the mutation always clears it.
func (s *MutationService) CommitReserved(ctx context.Context, productID string, qty int, orderID, actor string) (Result, error) {
	if qty <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	release, err := s.enter(ctx, productID)
	if err != nil {
		return Result{}, err
	}
	defer release()
	return s.apply(ctx, Request{
		ProductID: productID,
		Delta:     -qty,
		Type:      MovementSale,
		Actor:     actor,
		OrderID:   orderID,
	}, -qty)
}

func (s *MutationService) apply(ctx context.Context, req Request, reservedDelta int) (Result, error) {
	var level StockLevel
	var err error
	for attempt := 0; ; attempt++ {
		level, err = s.repo.GetStock(ctx, req.ProductID)
		if err != nil {
			return Result{}, err
		}
		newQty := level.StockQuantity + req.Delta
		if newQty < 0 {
			return Result{}, fmt.Errorf("%w: product %s has %d, delta %d",
				ErrInsufficientStock, req.ProductID, level.StockQuantity, req.Delta)
		}
		// no mutation may dip below the held units, whatever its type
		if newQty < level.ReservedQuantity+reservedDelta {
			return Result{}, fmt.Errorf("%w: product %s has %d available, delta %d",
				ErrInsufficientStock, req.ProductID, level.Available(), req.Delta)
		}

		ok, err := s.repo.ApplyStock(ctx, req.ProductID, req.Delta, reservedDelta, level.Version)
		if err != nil {
			return Result{}, err
		}
		if ok {
			level.StockQuantity = newQty
			level.ReservedQuantity += reservedDelta
			level.Version++
			break
		}
		// lost the version race
		if attempt >= s.retries {
			return Result{}, ErrVersionConflict
		}
		if err := backoff(ctx, attempt); err != nil {
			return Result{}, err
		}
	}

	mv := Movement{
		ID:        uuid.NewString(),
		ProductID: req.ProductID,
		Delta:     req.Delta,
		Type:      req.Type,
		OrderID:   req.OrderID,
		Actor:     req.Actor,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.InsertMovement(ctx, mv); err != nil {
		// the mutation itself committed; losing one audit row is logged, not fatal
		s.log.Error("movement insert failed", "product_id", req.ProductID, "err", err)
	}

	s.publish(level, req)
	return Result{ProductID: req.ProductID, NewQuantity: level.StockQuantity, Version: level.Version}, nil
}

func (s *MutationService) publish(level StockLevel, req Request) {
	if s.bus == nil {
		return
	}
	now := time.Now().UTC()
	s.bus.Publish(events.Event{
		Type:      events.TypeStockUpdated,
		ProductID: req.ProductID,
		Timestamp: now,
		Payload: kafkax.MustMarshal(events.StockUpdatedPayload{
			ProductID:    req.ProductID,
			Delta:        req.Delta,
			NewQuantity:  level.StockQuantity,
			MovementType: string(req.Type),
			OrderID:      req.OrderID,
			Actor:        req.Actor,
			Version:      level.Version,
		}),
	})
	if level.StockQuantity <= level.ReorderLevel {
		s.bus.Publish(events.Event{
			Type:      events.TypeReorderAlert,
			ProductID: req.ProductID,
			Timestamp: now,
			Payload: kafkax.MustMarshal(events.ReorderAlertPayload{
				ProductID:    req.ProductID,
				NewQuantity:  level.StockQuantity,
				ReorderLevel: level.ReorderLevel,
			}),
		})
	}
}

// enter takes the product's slot, waiting behind whichever mutation holds
// it. Same-instance only; cross-instance safety is the version guard's job.
func (s *MutationService) enter(ctx context.Context, productID string) (func(), error) {
	s.mu.Lock()
	slot, ok := s.slots[productID]
	if !ok {
		slot = make(chan struct{}, 1)
		s.slots[productID] = slot
	}
	s.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
