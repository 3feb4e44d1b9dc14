package payments

import "context"

type Repo interface {
	Insert(ctx context.Context, p Payment) error
	Get(ctx context.Context, transactionID string) (Payment, error)
	// FindOpenByOrder returns the order's payment that is still initialized,
	// processing, or completed; nil when there is none. At most one such row
	// may exist per order.
	FindOpenByOrder(ctx context.Context, orderID string) (*Payment, error)
	// UpdateStatus flips the status only when it still equals from; the
	// guard is what keeps concurrent transitions from double-applying.
	// gatewayResponse replaces the stored blob when non-nil.
	UpdateStatus(ctx context.Context, transactionID string, from, to Status, gatewayResponse []byte) (bool, error)
}

// StateMachine applies lifecycle transitions against the durable store.
// Anything outside the legal table fails with ErrInvalidTransition and
// leaves the row untouched.
type StateMachine struct{ Repo Repo }

func (sm *StateMachine) Transition(ctx context.Context, transactionID string, from, to Status, gatewayResponse []byte) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	ok, err := sm.Repo.UpdateStatus(ctx, transactionID, from, to, gatewayResponse)
	if err != nil {
		return err
	}
	if !ok {
		// the row moved underneath us; whatever it is now, this transition
		// did not happen
		return ErrInvalidTransition
	}
	return nil
}
