package inventory

import (
	"context"
	"time"
)

// Repo is the durable side of the inventory core. ApplyStock is the one
// conditional-write primitive everything else leans on: it is the actual
// cross-instance correctness mechanism, every in-process queue or lock above
// it is only an optimization.
type Repo interface {
	GetStock(ctx context.Context, productID string) (StockLevel, error)

	// ApplyStock adds the deltas to stock_quantity and reserved_quantity,
	// bumping version by one, guarded by version == expected. Returns false
	// when the guard loses the race.
	ApplyStock(ctx context.Context, productID string, stockDelta, reservedDelta int, expected int64) (bool, error)

	// ReserveHold bumps reserved_quantity and writes the reservation row as
	// one atomic unit, guarded by version == expected. Returns false when the
	// guard loses the race; nothing is written in that case.
	ReserveHold(ctx context.Context, r Reservation, expected int64) (bool, error)
	// ReleaseHold cancels an active reservation and returns its units to
	// available stock as one atomic unit. released reports whether this call
	// performed the cancel; retry reports a version-guard miss, after which
	// neither write is visible and the caller may try again with a fresh
	// version.
	ReleaseHold(ctx context.Context, r Reservation, expected int64) (released, retry bool, err error)
	GetReservation(ctx context.Context, id string) (Reservation, error)
	// SetReservationStatus flips status only when it still equals from.
	SetReservationStatus(ctx context.Context, id string, from, to ReservationStatus) (bool, error)
	ReservationsByOrder(ctx context.Context, orderID string, status ReservationStatus) ([]Reservation, error)
	ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]Reservation, error)

	InsertMovement(ctx context.Context, m Movement) error
}
