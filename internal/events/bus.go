package events

import (
	"sync"
)

const (
	TypeQuote      = "quote"
	TypeOrder      = "order.updated"
	TypeDeposit    = "deposit.updated"
	TypeWithdrawal = "withdrawal.updated"
	TypeLoan       = "loan.updated"
)

// Event is delivered to websocket subscribers and the external event log.
// UserID is empty for broadcast events such as quotes.
type Event struct {
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
	Data   any    `json:"data"`
}

type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Sink receives domain events from services.
type Sink interface {
	Notify(evt Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(Event) {}
