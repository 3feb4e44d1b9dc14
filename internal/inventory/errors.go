package inventory

import "errors"

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInsufficientStock   = errors.New("insufficient stock")

	// ErrVersionConflict means the optimistic-lock retry budget ran out under
	// contention. Transient: the caller may simply try again.
	ErrVersionConflict = errors.New("stock version conflict, retry")
)

// IsTransient separates "try again" failures from business-rule rejections
// that will fail the same way every time.
func IsTransient(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
