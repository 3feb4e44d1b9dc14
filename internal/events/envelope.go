package events

import (
	"encoding/json"
	"time"
)

const (
	TopicStockUpdated     = "pos.stock.updated"
	TopicStockReorder     = "pos.stock.reorder"
	TopicPaymentCompleted = "pos.payment.completed"
)

// Envelope is the wire form events take on the Kafka mirror.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// PartitionKey keeps every event for one product on one partition so
// per-product ordering survives the broker.
func PartitionKey(productID string) []byte { return []byte(productID) }
