package events

import (
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/danghoangnam/pos-core/internal/kafkax"
)

// KafkaMirror republishes bus events onto Kafka so collaborators outside
// this process (dashboards, purchasing, loyalty) get a durable feed.
type KafkaMirror struct {
	Updated *kafkax.Producer // pos.stock.updated
	Reorder *kafkax.Producer // pos.stock.reorder
	Service string
}

func (m *KafkaMirror) Attach(bus *Bus) {
	bus.Subscribe(TypeStockUpdated, func(ev Event) { m.publish(m.Updated, ev) })
	bus.Subscribe(TypeReorderAlert, func(ev Event) { m.publish(m.Reorder, ev) })
}

func (m *KafkaMirror) publish(p *kafkax.Producer, ev Event) {
	if p == nil {
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     string(ev.Type),
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      m.Service,
		CorrelationID: ev.ProductID,
		Payload:       ev.Payload,
	}
	p.Publish(PartitionKey(ev.ProductID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.Type)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
