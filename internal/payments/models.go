package payments

import "time"

type Method string

const (
	MethodCash    Method = "cash"
	MethodCard    Method = "card"
	MethodVNPay   Method = "vnpay"
	MethodMoMo    Method = "momo"
	MethodZaloPay Method = "zalopay"
)

type Payment struct {
	TransactionID   string
	OrderID         string
	Amount          int64 // minor currency units
	Currency        string
	CustomerID      string
	Method          Method
	Status          Status
	GatewayResponse []byte
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

type Request struct {
	OrderID    string
	Amount     int64
	Currency   string
	CustomerID string
	Method     Method
	Actor      string
}

type GatewayRequest struct {
	TransactionID  string
	OrderID        string
	Amount         int64
	Currency       string
	CustomerID     string
	IdempotencyKey string
}

type GatewayResult struct {
	Success    bool
	PaymentURL string // set when the customer must be redirected to pay
	QRCode     string
	Raw        map[string]string
	Err        string
}

// Pending is true when the gateway accepted the request but settlement
// arrives later via callback.
func (r GatewayResult) Pending() bool {
	return r.Success && (r.PaymentURL != "" || r.QRCode != "")
}

type RefundRequest struct {
	TransactionID string
	Amount        int64
	Reason        string
}

type RefundResult struct {
	Success  bool
	RefundID string
	Err      string
}
