package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notifier fans domain events out to websocket subscribers immediately and
// to the publisher from a background worker. Publisher failures are logged.
type Notifier struct {
	bus       *Bus
	publisher Publisher
	log       *zap.Logger
	queue     chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewNotifier(bus *Bus, publisher Publisher, log *zap.Logger) *Notifier {
	if publisher == nil {
		publisher = NewDisabledPublisher()
	}
	n := &Notifier{
		bus:       bus,
		publisher: publisher,
		log:       log,
		queue:     make(chan Event, 256),
		done:      make(chan struct{}),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

func (n *Notifier) Notify(evt Event) {
	n.bus.Publish(evt)
	select {
	case <-n.done:
		return
	default:
	}
	select {
	case n.queue <- evt:
	default:
		n.log.Warn("event queue full, dropping", zap.String("type", evt.Type), zap.String("user_id", evt.UserID))
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for {
		select {
		case evt := <-n.queue:
			n.publish(evt)
		case <-n.done:
			for {
				select {
				case evt := <-n.queue:
					n.publish(evt)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) publish(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.publisher.Publish(ctx, evt); err != nil {
		n.log.Error("publish event", zap.String("type", evt.Type), zap.String("user_id", evt.UserID), zap.Error(err))
	}
}

// Close drains queued events and closes the publisher.
func (n *Notifier) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.done)
		n.wg.Wait()
		err = n.publisher.Close()
	})
	return err
}
