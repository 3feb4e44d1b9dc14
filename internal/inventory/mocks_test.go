package inventory

import (
	"context"
	"sync"
	"time"
)

// memRepo implements Repo for testing, with the same version-guard
// semantics as the Postgres implementation.
type memRepo struct {
	mu           sync.Mutex
	stock        map[string]StockLevel
	reservations map[string]Reservation
	movements    []Movement

	// force this many guarded writes to lose the version race
	forceConflicts int
}

var _ Repo = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{stock: map[string]StockLevel{}, reservations: map[string]Reservation{}}
}

func (r *memRepo) seed(productID string, stock, reserved, reorder int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stock[productID] = StockLevel{
		ProductID: productID, StockQuantity: stock, ReservedQuantity: reserved,
		ReorderLevel: reorder, Version: 1,
	}
}

func (r *memRepo) GetStock(_ context.Context, productID string) (StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stock[productID]
	if !ok {
		return StockLevel{}, ErrProductNotFound
	}
	return s, nil
}

func (r *memRepo) ApplyStock(_ context.Context, productID string, stockDelta, reservedDelta int, expected int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceConflicts > 0 {
		r.forceConflicts--
		return false, nil
	}
	s, ok := r.stock[productID]
	if !ok || s.Version != expected {
		return false, nil
	}
	s.StockQuantity += stockDelta
	s.ReservedQuantity += reservedDelta
	s.Version++
	r.stock[productID] = s
	return true, nil
}

func (r *memRepo) ReserveHold(_ context.Context, res Reservation, expected int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceConflicts > 0 {
		r.forceConflicts--
		return false, nil
	}
	s, ok := r.stock[res.ProductID]
	if !ok || s.Version != expected {
		return false, nil
	}
	s.ReservedQuantity += res.Quantity
	s.Version++
	r.stock[res.ProductID] = s
	r.reservations[res.ID] = res
	return true, nil
}

func (r *memRepo) ReleaseHold(_ context.Context, res Reservation, expected int64) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.reservations[res.ID]
	if !ok || cur.Status != ReservationActive {
		return false, false, nil
	}
	if r.forceConflicts > 0 {
		r.forceConflicts--
		return false, true, nil
	}
	s, ok := r.stock[res.ProductID]
	if !ok || s.Version != expected {
		return false, true, nil
	}
	cur.Status = ReservationCancelled
	r.reservations[res.ID] = cur
	s.ReservedQuantity -= res.Quantity
	s.Version++
	r.stock[res.ProductID] = s
	return true, false, nil
}

func (r *memRepo) GetReservation(_ context.Context, id string) (Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return res, nil
}

func (r *memRepo) SetReservationStatus(_ context.Context, id string, from, to ReservationStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok || res.Status != from {
		return false, nil
	}
	res.Status = to
	r.reservations[id] = res
	return true, nil
}

func (r *memRepo) ReservationsByOrder(_ context.Context, orderID string, status ReservationStatus) ([]Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Reservation
	for _, res := range r.reservations {
		if res.OrderID == orderID && res.Status == status {
			out = append(out, res)
		}
	}
	return out, nil
}

func (r *memRepo) ExpiredReservations(_ context.Context, now time.Time, limit int) ([]Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Reservation
	for _, res := range r.reservations {
		if res.Status == ReservationActive && res.ExpiresAt.Before(now) {
			out = append(out, res)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memRepo) InsertMovement(_ context.Context, m Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movements = append(r.movements, m)
	return nil
}
