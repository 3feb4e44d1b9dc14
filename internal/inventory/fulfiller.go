package inventory

import (
	"context"
	"fmt"
	"log/slog"
)

// Fulfiller is the order-completion seam the payment layer drives: confirm
// the order's holds and commit them out of stock on success, hand them back
// on failure.
type Fulfiller struct {
	Reservations *ReservationManager
	Mutations    *MutationService
	Log          *slog.Logger
}

func (f *Fulfiller) CommitOrder(ctx context.Context, orderID, actor string) error {
	held, err := f.Reservations.ReservationsForOrder(ctx, orderID, ReservationActive)
	if err != nil {
		return fmt.Errorf("list reservations for %s: %w", orderID, err)
	}
	for _, res := range held {
		ok, err := f.Reservations.Confirm(ctx, res.ID)
		if err != nil {
			return fmt.Errorf("confirm reservation %s: %w", res.ID, err)
		}
		if !ok {
			// already confirmed or swept; nothing left to commit for it
			continue
		}
		if _, err := f.Mutations.CommitReserved(ctx, res.ProductID, res.Quantity, orderID, actor); err != nil {
			return fmt.Errorf("commit reservation %s: %w", res.ID, err)
		}
	}
	return nil
}

func (f *Fulfiller) ReleaseOrder(ctx context.Context, orderID string) error {
	held, err := f.Reservations.ReservationsForOrder(ctx, orderID, ReservationActive)
	if err != nil {
		return fmt.Errorf("list reservations for %s: %w", orderID, err)
	}
	for _, res := range held {
		if _, err := f.Reservations.Release(ctx, res.ID); err != nil {
			if f.Log != nil {
				f.Log.Error("release failed", "reservation_id", res.ID, "err", err)
			}
			return err
		}
	}
	return nil
}
