package events

import (
	"log/slog"
	"sync"
)

type Handler func(Event)

// Bus is an in-process fan-out with a single sequential dispatch loop, so
// subscribers for one event never run concurrently with each other. It is
// best-effort only: queued events do not survive a process restart, and a
// full queue drops rather than blocks the publisher.
type Bus struct {
	inbox chan Event
	done  chan struct{}
	log   *slog.Logger

	mu   sync.RWMutex
	subs map[Type][]Handler

	closeOnce sync.Once
}

func NewBus(buffer int, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	b := &Bus{
		inbox: make(chan Event, buffer),
		done:  make(chan struct{}),
		log:   log,
		subs:  map[Type][]Handler{},
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	defer close(b.done)
	for ev := range b.inbox {
		b.mu.RLock()
		handlers := b.subs[ev.Type]
		b.mu.RUnlock()
		for _, h := range handlers {
			h(ev)
		}
	}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	b.subs[t] = append(b.subs[t], h)
	b.mu.Unlock()
}

func (b *Bus) Publish(ev Event) {
	select {
	case b.inbox <- ev:
	default:
		b.log.Warn("event bus full, dropping event", "type", ev.Type, "product_id", ev.ProductID)
	}
}

// Close stops intake, lets the loop drain the queue, and waits for it.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.inbox) })
	<-b.done
}
