package payments

import (
	"context"
	"sync"
)

// Gateway is implemented once per payment method. The wire format behind
// ProcessPayment is the gateway's own business; the core only cares about
// the outcome.
type Gateway interface {
	Name() Method
	ProcessPayment(ctx context.Context, req GatewayRequest) (GatewayResult, error)
}

// RefundingGateway is optional; a gateway that doesn't implement it simply
// doesn't support refunds.
type RefundingGateway interface {
	Gateway
	ProcessRefund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

type Registry struct {
	mu sync.RWMutex
	m  map[Method]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{m: map[Method]Gateway{}}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	r.m[g.Name()] = g
	r.mu.Unlock()
}

func (r *Registry) Lookup(m Method) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.m[m]
	return g, ok
}

// CashGateway settles in-store cash payments immediately; there is no
// third party to wait on.
type CashGateway struct{}

func (CashGateway) Name() Method { return MethodCash }

func (CashGateway) ProcessPayment(_ context.Context, req GatewayRequest) (GatewayResult, error) {
	return GatewayResult{
		Success: true,
		Raw:     map[string]string{"transaction_id": req.TransactionID, "settled": "immediate"},
	}, nil
}
