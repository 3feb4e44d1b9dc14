package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/danghoangnam/pos-core/internal/events"
	"github.com/danghoangnam/pos-core/internal/kafkax"
)

// OrderFulfiller is the inventory-side seam: commit the order's stock holds
// when payment settles, hand them back when it dies.
type OrderFulfiller interface {
	CommitOrder(ctx context.Context, orderID, actor string) error
	ReleaseOrder(ctx context.Context, orderID string) error
}

// Orchestrator coordinates a payment attempt end to end: per-order lock,
// idempotency check, gateway dispatch, state transitions, completion side
// effects.
type Orchestrator struct {
	Repo      Repo
	SM        *StateMachine
	Locks     *LockManager
	Gateways  *Registry
	Fulfiller OrderFulfiller
	Producer  *kafkax.Producer // pos.payment.completed, may be nil
	Secret    string           // callback signing secret
	Service   string
	Log       *slog.Logger
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// NewTransactionID derives an id stable enough to double as the gateway
// idempotency key: order, method, second-resolution time, random suffix.
func NewTransactionID(orderID string, method Method) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("PAY-%s-%s-%d-%s", orderID, method, time.Now().Unix(), suffix)
}

// ProcessPayment attempts payment for an order exactly once. A second call
// for the same order while a payment is open returns that payment untouched.
func (o *Orchestrator) ProcessPayment(ctx context.Context, req Request) (Payment, error) {
	if req.OrderID == "" || req.CustomerID == "" || req.Amount <= 0 || req.Method == "" {
		return Payment{}, fmt.Errorf("%w: order, customer, positive amount and method are required", ErrValidation)
	}

	release, err := o.Locks.Acquire(ctx, req.OrderID)
	if err != nil {
		return Payment{}, err
	}
	defer release()

	// idempotent short-circuit: never create a second open payment
	if open, err := o.Repo.FindOpenByOrder(ctx, req.OrderID); err != nil {
		return Payment{}, err
	} else if open != nil {
		o.log().Info("payment already open, returning existing",
			"order_id", req.OrderID, "transaction_id", open.TransactionID, "status", open.Status)
		return *open, nil
	}

	p := Payment{
		TransactionID: NewTransactionID(req.OrderID, req.Method),
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerID:    req.CustomerID,
		Method:        req.Method,
		Status:        StatusInitialized,
		CreatedAt:     time.Now().UTC(),
	}
	if err := o.Repo.Insert(ctx, p); err != nil {
		return Payment{}, fmt.Errorf("persist payment: %w", err)
	}

	gw, ok := o.Gateways.Lookup(req.Method)
	if !ok {
		if err := o.SM.Transition(ctx, p.TransactionID, StatusInitialized, StatusFailed, nil); err != nil {
			o.log().Error("failed marking payment failed", "transaction_id", p.TransactionID, "err", err)
		}
		p.Status = StatusFailed
		return p, fmt.Errorf("%w: %s", ErrGatewayUnavailable, req.Method)
	}

	if err := o.SM.Transition(ctx, p.TransactionID, StatusInitialized, StatusProcessing, nil); err != nil {
		return p, err
	}
	p.Status = StatusProcessing

	res, gerr := gw.ProcessPayment(ctx, GatewayRequest{
		TransactionID:  p.TransactionID,
		OrderID:        p.OrderID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		CustomerID:     p.CustomerID,
		IdempotencyKey: p.TransactionID,
	})
	raw, _ := json.Marshal(res)
	if gerr != nil || !res.Success {
		if err := o.SM.Transition(ctx, p.TransactionID, StatusProcessing, StatusFailed, raw); err != nil {
			o.log().Error("failed marking payment failed", "transaction_id", p.TransactionID, "err", err)
		}
		p.Status = StatusFailed
		p.GatewayResponse = raw
		msg := res.Err
		if gerr != nil {
			msg = gerr.Error()
		}
		return p, &GatewayError{Method: req.Method, Msg: msg}
	}

	if res.Pending() {
		// settlement arrives via callback; the payment stays processing
		p.GatewayResponse = raw
		return p, nil
	}

	if err := o.SM.Transition(ctx, p.TransactionID, StatusProcessing, StatusCompleted, raw); err != nil {
		return p, err
	}
	p.Status = StatusCompleted
	p.GatewayResponse = raw
	o.onCompleted(ctx, p)
	return p, nil
}

// HandleCallback applies a gateway's asynchronous outcome. A bad signature
// rejects with no state change; a replay of an already-applied outcome is a
// no-op.
func (o *Orchestrator) HandleCallback(ctx context.Context, transactionID string, params map[string]string, signature string) (Payment, error) {
	p, err := o.Repo.Get(ctx, transactionID)
	if err != nil {
		return Payment{}, err
	}

	if signature != "" && !VerifySignature(params, signature, o.Secret) {
		o.log().Warn("callback rejected: signature mismatch",
			"transaction_id", transactionID, "order_id", p.OrderID)
		return p, ErrInvalidSignature
	}

	outcome := mapOutcome(params)
	if p.Status == outcome {
		return p, nil // replayed callback, already applied
	}

	raw, _ := json.Marshal(params)
	if err := o.SM.Transition(ctx, transactionID, p.Status, outcome, raw); err != nil {
		return p, err
	}
	p.Status = outcome
	p.GatewayResponse = raw

	switch outcome {
	case StatusCompleted:
		o.onCompleted(ctx, p)
	case StatusFailed, StatusCancelled:
		if o.Fulfiller != nil {
			if err := o.Fulfiller.ReleaseOrder(ctx, p.OrderID); err != nil {
				o.log().Error("releasing reservations failed", "order_id", p.OrderID, "err", err)
			}
		}
	}
	return p, nil
}

// ProcessRefund refunds a settled payment. Only completed payments qualify,
// and only when the gateway can actually refund.
func (o *Orchestrator) ProcessRefund(ctx context.Context, transactionID string, amount int64, reason string) (Payment, error) {
	p, err := o.Repo.Get(ctx, transactionID)
	if err != nil {
		return Payment{}, err
	}
	if p.Status != StatusCompleted {
		return p, fmt.Errorf("%w: refund requires completed, payment is %s", ErrInvalidTransition, p.Status)
	}
	gw, ok := o.Gateways.Lookup(p.Method)
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrGatewayUnavailable, p.Method)
	}
	rg, ok := gw.(RefundingGateway)
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrRefundUnsupported, p.Method)
	}

	res, err := rg.ProcessRefund(ctx, RefundRequest{TransactionID: transactionID, Amount: amount, Reason: reason})
	raw, _ := json.Marshal(res)
	if err != nil {
		return p, &GatewayError{Method: p.Method, Msg: err.Error()}
	}
	if !res.Success {
		return p, &GatewayError{Method: p.Method, Msg: res.Err}
	}
	if err := o.SM.Transition(ctx, transactionID, StatusCompleted, StatusRefunded, raw); err != nil {
		return p, err
	}
	p.Status = StatusRefunded
	p.GatewayResponse = raw
	return p, nil
}

func (o *Orchestrator) onCompleted(ctx context.Context, p Payment) {
	if o.Fulfiller != nil {
		if err := o.Fulfiller.CommitOrder(ctx, p.OrderID, "payment:"+p.TransactionID); err != nil {
			// payment settled; stock commit is retried by ops tooling, never
			// rolled back from here
			o.log().Error("order completion side effects failed",
				"order_id", p.OrderID, "transaction_id", p.TransactionID, "err", err)
		}
	}
	if o.Producer != nil {
		env := events.Envelope{
			EventID:       uuid.NewString(),
			EventType:     "payment_completed",
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      o.Service,
			CorrelationID: p.OrderID,
			Payload: kafkax.MustMarshal(map[string]any{
				"transaction_id": p.TransactionID,
				"order_id":       p.OrderID,
				"customer_id":    p.CustomerID,
				"amount":         p.Amount,
				"currency":       p.Currency,
				"method":         p.Method,
			}),
		}
		o.Producer.Publish([]byte(p.OrderID), kafkax.MustMarshal(env),
			kafkago.Header{Key: "x-event-type", Value: []byte("payment_completed")},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}
}

// mapOutcome translates gateway vocabulary into the lifecycle states.
func mapOutcome(params map[string]string) Status {
	v := params["status"]
	if v == "" {
		v = params["result_code"]
	}
	switch strings.ToLower(v) {
	case "success", "succeeded", "completed", "paid", "00", "0":
		return StatusCompleted
	case "cancel", "cancelled", "canceled", "user_cancel", "24":
		return StatusCancelled
	default:
		return StatusFailed
	}
}
