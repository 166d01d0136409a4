// Package realtime fans out events to the viewers currently subscribed to a topic.
//
// Delivery is at-least-once to live subscribers only. A viewer that was not
// subscribed when an event was published never sees it and has to re-read the
// full history after (re)connecting. A viewer that stops draining its feed is
// closed rather than allowed to hold up the others.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/metrics"
)

var ErrClosed = errors.New("realtime: broker closed")

// slowSubscriberGrace is how long a full feed may block a publish before the
// subscription is evicted.
const slowSubscriberGrace = 250 * time.Millisecond

// Event is one published payload on a topic.
type Event struct {
	Topic string
	Data  []byte
}

type Broker interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// Subscription is a live feed for a single topic. Close must be called when the
// viewer goes away; closing twice is safe.
type Subscription struct {
	Topic string

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	onClose   func()
}

func newSubscription(topic string, buffer int, onClose func()) *Subscription {
	return &Subscription{
		Topic:   topic,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Events is never closed; readers select on Done as well.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed as soon as Close is called.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// deliver buffers ev, waiting at most grace for room. A subscription that
// cannot take the event in time, or whose ctx ends first, has missed it and is
// closed so the viewer reconnects and re-reads history.
func (s *Subscription) deliver(ctx context.Context, ev Event, grace time.Duration) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- ev:
		return true
	default:
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
	case <-timer.C:
	}

	metrics.RealtimeEvictions.Inc()
	log.Warn().Str("topic", s.Topic).Msg("realtime: subscriber fell behind, closing it")
	s.Close()
	return false
}

// TicketTopic names the feed carrying new messages of one support ticket.
func TicketTopic(ticketID string) string {
	return "ticket-" + ticketID
}
