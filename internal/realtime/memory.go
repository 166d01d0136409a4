package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultBuffer = 64

// MemoryBroker is an in-process broker for single-instance deployments and tests.
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	grace  time.Duration
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: defaultBuffer,
		grace:  slowSubscriberGrace,
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, data []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*Subscription, 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	// one stuck viewer must not cost the others the event
	ev := Event{Topic: topic, Data: data}
	for _, sub := range subs {
		sub.deliver(ctx, ev, b.grace)
	}

	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	var sub *Subscription
	sub = newSubscription(topic, b.buffer, func() { b.remove(topic, sub) })

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*Subscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()

	log.Debug().Str("topic", topic).Msg("realtime: subscribed")
	return sub, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*Subscription
	for _, set := range b.topics {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

func (b *MemoryBroker) remove(topic string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.topics[topic]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.topics, topic)
	}
	log.Debug().Str("topic", topic).Msg("realtime: unsubscribed")
}
