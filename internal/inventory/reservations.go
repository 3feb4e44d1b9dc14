package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/danghoangnam/pos-core/internal/redisx"
)

const sweepBatchSize = 100

// ReservationManager places short-lived holds on stock during checkout.
// The durable reservation row is authoritative; the Redis hint only exists
// so other instances can cheaply see an active hold before it lands in
// their replica.
type ReservationManager struct {
	repo       Repo
	rdb        *redis.Client
	defaultTTL time.Duration
	retries    int
	log        *slog.Logger
}

func NewReservationManager(repo Repo, rdb *redis.Client, defaultTTL time.Duration, retries int, log *slog.Logger) *ReservationManager {
	if log == nil {
		log = slog.Default()
	}
	if retries <= 0 {
		retries = 3
	}
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}
	return &ReservationManager{repo: repo, rdb: rdb, defaultTTL: defaultTTL, retries: retries, log: log}
}

// Reserve holds qty units of a product for an order. The hold is rejected
// when available stock (stock minus already-reserved) cannot cover it, and
// the reserved_quantity bump rides the version guard so two racing
// reservations can never both take the last unit.
func (m *ReservationManager) Reserve(ctx context.Context, productID string, qty int, orderID string, ttl time.Duration) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	res := Reservation{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  qty,
		OrderID:   orderID,
		ExpiresAt: time.Now().UTC().Add(ttl),
		Status:    ReservationActive,
		CreatedAt: time.Now().UTC(),
	}
	for attempt := 0; ; attempt++ {
		level, err := m.repo.GetStock(ctx, productID)
		if err != nil {
			return nil, err
		}
		if level.Available() < qty {
			return nil, fmt.Errorf("%w: product %s has %d available, need %d",
				ErrInsufficientStock, productID, level.Available(), qty)
		}
		// the hold bump and the reservation row land atomically; a guard
		// miss leaves no trace of either
		ok, err := m.repo.ReserveHold(ctx, res, level.Version)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if attempt >= m.retries {
			return nil, ErrVersionConflict
		}
		if err := backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}

	if m.rdb != nil {
		hint := fmt.Sprintf(redisx.KeyReservationHint, res.ID)
		if err := m.rdb.Set(ctx, hint, orderID, ttl).Err(); err != nil {
			m.log.Warn("reservation hint write failed", "reservation_id", res.ID, "err", err)
		}
	}
	return &res, nil
}

// Confirm moves an active reservation to confirmed. The reserved units stay
// held until the paired sale mutation commits them out of stock.
func (m *ReservationManager) Confirm(ctx context.Context, reservationID string) (bool, error) {
	ok, err := m.repo.SetReservationStatus(ctx, reservationID, ReservationActive, ReservationConfirmed)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release cancels an active reservation and returns its units to available
// stock. The cancel and the reserved_quantity decrement commit together, so
// an exhausted retry budget leaves the reservation active and releasable.
// Releasing twice is a no-op, not an error.
func (m *ReservationManager) Release(ctx context.Context, reservationID string) (bool, error) {
	res, err := m.repo.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return false, nil
		}
		return false, err
	}

	for attempt := 0; ; attempt++ {
		level, err := m.repo.GetStock(ctx, res.ProductID)
		if err != nil {
			return false, err
		}
		released, retry, err := m.repo.ReleaseHold(ctx, res, level.Version)
		if err != nil {
			return false, err
		}
		if !retry {
			if released && m.rdb != nil {
				_ = m.rdb.Del(ctx, fmt.Sprintf(redisx.KeyReservationHint, reservationID)).Err()
			}
			return released, nil
		}
		if attempt >= m.retries {
			return false, ErrVersionConflict
		}
		if err := backoff(ctx, attempt); err != nil {
			return false, err
		}
	}
}

// ReservationsForOrder lists an order's reservations in the given state.
func (m *ReservationManager) ReservationsForOrder(ctx context.Context, orderID string, status ReservationStatus) ([]Reservation, error) {
	return m.repo.ReservationsByOrder(ctx, orderID, status)
}

// SweepExpired releases active reservations past their deadline. An expired
// active hold is logically dead; sweeping it is what actually returns the
// stock.
func (m *ReservationManager) SweepExpired(ctx context.Context) (int, error) {
	expired, err := m.repo.ExpiredReservations(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, res := range expired {
		ok, err := m.Release(ctx, res.ID)
		if err != nil {
			m.log.Error("sweep release failed", "reservation_id", res.ID, "err", err)
			continue
		}
		if ok {
			released++
			m.log.Info("expired reservation released",
				"reservation_id", res.ID, "order_id", res.OrderID, "product_id", res.ProductID)
		}
	}
	return released, nil
}

// RunSweeper loops SweepExpired until the context ends.
func (m *ReservationManager) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := m.SweepExpired(ctx); err != nil {
				m.log.Error("reservation sweep failed", "err", err)
			}
		}
	}
}

func backoff(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		return nil
	}
}
