package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/danghoangnam/pos-core/internal/inventory"
	"github.com/danghoangnam/pos-core/internal/payments"
)

// Handler is the thin boundary between HTTP and the consistency core:
// decode, check presence, delegate, encode. Business decisions live below.
type Handler struct {
	Payments     *payments.Orchestrator
	Reservations *inventory.ReservationManager
	Stock        *inventory.MutationService
	Inventory    inventory.Repo
	Log          *slog.Logger
}

type checkoutItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type checkoutReq struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	Amount     int64           `json:"amount"`
	Currency   string          `json:"currency"`
	Method     payments.Method `json:"method"`
	Items      []checkoutItem  `json:"items"`
}

type checkoutResp struct {
	TransactionID string   `json:"transaction_id"`
	Status        string   `json:"status"`
	PaymentURL    string   `json:"payment_url,omitempty"`
	Reservations  []string `json:"reservation_ids"`
}

type callbackReq struct {
	Params    map[string]string `json:"params"`
	Signature string            `json:"signature,omitempty"`
}

type refundReq struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type adjustReq struct {
	Delta   int    `json:"delta"`
	Type    string `json:"type"`
	Actor   string `json:"actor"`
	OrderID string `json:"order_id,omitempty"`
}

func (h *Handler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Post("/payments/{transactionID}/callback", h.paymentCallback)
	r.Post("/payments/{transactionID}/refund", h.refund)
	r.Get("/stock/{productID}", h.getStock)
	r.Post("/stock/{productID}/adjust", h.adjustStock)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderID == "" || req.CustomerID == "" || len(req.Items) == 0 || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	reserved := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		res, err := h.Reservations.Reserve(ctx, it.ProductID, it.Qty, req.OrderID, 0)
		if err != nil {
			// hand back whatever this order already holds
			for _, id := range reserved {
				_, _ = h.Reservations.Release(ctx, id)
			}
			h.writeError(w, err)
			return
		}
		reserved = append(reserved, res.ID)
	}

	p, err := h.Payments.ProcessPayment(ctx, payments.Request{
		OrderID:    req.OrderID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		CustomerID: req.CustomerID,
		Method:     req.Method,
	})
	if err != nil {
		for _, id := range reserved {
			_, _ = h.Reservations.Release(ctx, id)
		}
		h.writeError(w, err)
		return
	}

	var gw payments.GatewayResult
	_ = json.Unmarshal(p.GatewayResponse, &gw)
	writeJSON(w, http.StatusAccepted, checkoutResp{
		TransactionID: p.TransactionID,
		Status:        string(p.Status),
		PaymentURL:    gw.PaymentURL,
		Reservations:  reserved,
	})
}

func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")
	var req callbackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	p, err := h.Payments.HandleCallback(ctx, transactionID, req.Params, req.Signature)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"transaction_id": p.TransactionID,
		"status":         string(p.Status),
	})
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")
	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	p, err := h.Payments.ProcessRefund(ctx, transactionID, req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"transaction_id": p.TransactionID,
		"status":         string(p.Status),
	})
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	level, err := h.Inventory.GetStock(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id":        level.ProductID,
		"stock_quantity":    level.StockQuantity,
		"reserved_quantity": level.ReservedQuantity,
		"available":         level.Available(),
		"version":           level.Version,
	})
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Actor == "" || req.Delta == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Stock.UpdateStock(ctx, inventory.Request{
		ProductID: chi.URLParam(r, "productID"),
		Delta:     req.Delta,
		Type:      inventory.MovementType(req.Type),
		Actor:     req.Actor,
		OrderID:   req.OrderID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id":   res.ProductID,
		"new_quantity": res.NewQuantity,
		"version":      res.Version,
	})
}

// writeError maps the core's error taxonomy onto status codes; transient
// failures carry a retryable hint so callers know re-invoking is safe.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var gwErr *payments.GatewayError
	switch {
	case errors.Is(err, payments.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, payments.ErrPaymentNotFound),
		errors.Is(err, inventory.ErrReservationNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, payments.ErrInvalidTransition),
		errors.Is(err, payments.ErrRefundUnsupported):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	case errors.Is(err, inventory.ErrVersionConflict),
		errors.Is(err, payments.ErrLockTimeout):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "retryable": true})
	case errors.Is(err, payments.ErrInvalidSignature):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
	case errors.As(err, &gwErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}
