package inventory

import "time"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

type Reservation struct {
	ID        string
	ProductID string
	Quantity  int
	OrderID   string
	ExpiresAt time.Time
	Status    ReservationStatus
	CreatedAt time.Time
}

// StockLevel is the slice of the product row the consistency core owns.
// Version is the sole concurrency-control token: every successful mutation
// increments it, and every guarded write checks it.
type StockLevel struct {
	ProductID        string
	StockQuantity    int
	ReservedQuantity int
	ReorderLevel     int
	Version          int64
}

// Available is what a new reservation or walk-in sale may take.
func (s StockLevel) Available() int { return s.StockQuantity - s.ReservedQuantity }

type MovementType string

const (
	MovementSale       MovementType = "sale"
	MovementRestock    MovementType = "restock"
	MovementAdjustment MovementType = "adjustment"
	MovementReturn     MovementType = "return"
)

// Movement is one immutable audit row per successful stock mutation.
type Movement struct {
	ID        string
	ProductID string
	Delta     int
	Type      MovementType
	OrderID   string
	Actor     string
	CreatedAt time.Time
}
