package payments

import (
	"context"
	"sync"
	"time"
)

type memRepo struct {
	mu   sync.Mutex
	byID map[string]Payment
}

func newMemRepo() *memRepo { return &memRepo{byID: map[string]Payment{}} }

func (r *memRepo) Insert(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.TransactionID] = p
	return nil
}

func (r *memRepo) Get(_ context.Context, transactionID string) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[transactionID]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (r *memRepo) FindOpenByOrder(_ context.Context, orderID string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.OrderID == orderID && Open(p.Status) {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, transactionID string, from, to Status, gatewayResponse []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[transactionID]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	if gatewayResponse != nil {
		p.GatewayResponse = gatewayResponse
	}
	if to == StatusCompleted {
		now := time.Now().UTC()
		p.CompletedAt = &now
	}
	r.byID[transactionID] = p
	return true, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type fakeGateway struct {
	name   Method
	result GatewayResult
	err    error

	refund    RefundResult
	refundErr error

	mu    sync.Mutex
	calls []GatewayRequest
}

func (g *fakeGateway) Name() Method { return g.name }

func (g *fakeGateway) ProcessPayment(_ context.Context, req GatewayRequest) (GatewayResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	return g.result, g.err
}

func (g *fakeGateway) ProcessRefund(_ context.Context, _ RefundRequest) (RefundResult, error) {
	return g.refund, g.refundErr
}

// fakeNoRefundGateway deliberately lacks ProcessRefund.
type fakeNoRefundGateway struct{ fake *fakeGateway }

func (g *fakeNoRefundGateway) Name() Method { return g.fake.name }

func (g *fakeNoRefundGateway) ProcessPayment(ctx context.Context, req GatewayRequest) (GatewayResult, error) {
	return g.fake.ProcessPayment(ctx, req)
}

type fakeFulfiller struct {
	mu        sync.Mutex
	committed []string
	released  []string
}

func (f *fakeFulfiller) CommitOrder(_ context.Context, orderID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, orderID)
	return nil
}

func (f *fakeFulfiller) ReleaseOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, orderID)
	return nil
}

type leaseEntry struct {
	token  string
	expiry time.Time
}

// memLease mimics the Redis SET NX PX lease, expiry included.
type memLease struct {
	mu sync.Mutex
	m  map[string]leaseEntry
}

func newMemLease() *memLease { return &memLease{m: map[string]leaseEntry{}} }

func (l *memLease) TryAcquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.m[key]; ok && time.Now().Before(e.expiry) {
		return false, nil
	}
	l.m[key] = leaseEntry{token: token, expiry: time.Now().Add(ttl)}
	return true, nil
}

func (l *memLease) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.m[key]; ok && e.token == token {
		delete(l.m, key)
	}
	return nil
}
