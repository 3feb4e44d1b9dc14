package events

import (
	"encoding/json"
	"time"
)

type Type string

const (
	TypeStockUpdated Type = "stock_updated"
	TypeReorderAlert Type = "reorder_alert"
)

// Event is an ephemeral in-process notification of a stock change.
type Event struct {
	Type      Type            `json:"type"`
	ProductID string          `json:"product_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type StockUpdatedPayload struct {
	ProductID    string `json:"product_id"`
	Delta        int    `json:"delta"`
	NewQuantity  int    `json:"new_quantity"`
	MovementType string `json:"movement_type"`
	OrderID      string `json:"order_id,omitempty"`
	Actor        string `json:"actor"`
	Version      int64  `json:"version"`
}

type ReorderAlertPayload struct {
	ProductID    string `json:"product_id"`
	NewQuantity  int    `json:"new_quantity"`
	ReorderLevel int    `json:"reorder_level"`
}
