package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSBroker maps topics one-to-one onto core NATS subjects, so every running
// instance of the service sees every ticket message.
type NATSBroker struct {
	nc     *nats.Conn
	buffer int
}

func NewNATSBroker(url, name string) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("realtime: NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("realtime: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", url).Msg("Connected to NATS")
	return &NATSBroker{nc: nc, buffer: defaultBuffer}, nil
}

func (b *NATSBroker) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	if err := b.nc.Publish(topic, data); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (b *NATSBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	var natsSub *nats.Subscription

	sub := newSubscription(topic, b.buffer, func() {
		if natsSub != nil {
			if err := natsSub.Unsubscribe(); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("realtime: failed to unsubscribe")
			}
		}
	})

	natsSub, err := b.nc.Subscribe(topic, func(msg *nats.Msg) {
		sub.deliver(ctx, Event{Topic: msg.Subject, Data: msg.Data}, slowSubscriberGrace)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()

	return sub, nil
}

func (b *NATSBroker) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
