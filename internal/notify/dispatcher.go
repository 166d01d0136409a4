package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/metrics"
)

var (
	ErrQueueFull        = errors.New("notify: queue is full")
	ErrDispatcherClosed = errors.New("notify: dispatcher closed")
)

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxRetries  uint64
	InitialWait time.Duration
	SendTimeout time.Duration
}

// Dispatcher sends emails on background workers after the caller's own work has
// committed. Enqueue never blocks; failed sends are retried with exponential
// backoff and then written to the dead-letter log.
type Dispatcher struct {
	notifier Notifier
	cfg      DispatcherConfig
	queue    chan Email

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
	ctx    context.Context
}

func NewDispatcher(notifier Notifier, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.InitialWait <= 0 {
		cfg.InitialWait = 500 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		notifier: notifier,
		cfg:      cfg,
		queue:    make(chan Email, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Enqueue hands the email to the workers. The returned error is informational:
// callers log it and carry on.
func (d *Dispatcher) Enqueue(email Email) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- email:
		return nil
	default:
		metrics.Notifications.WithLabelValues(kindOf(email), "dropped").Inc()
		deadLetter(email, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

// Close stops accepting emails, waits for queued ones to be attempted and
// returns when the workers exit or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for email := range d.queue {
		d.deliver(email)
	}
}

func (d *Dispatcher) deliver(email Email) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.InitialWait
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, d.cfg.MaxRetries), d.ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
		defer cancel()

		err := d.notifier.Send(ctx, email)
		if errors.Is(err, ErrNoRecipients) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempts).Str("subject", email.Subject).Msg("notify: send failed")
		}
		return err
	}, retry)

	if err != nil {
		metrics.Notifications.WithLabelValues(kindOf(email), "failed").Inc()
		deadLetter(email, attempts, err)
		return
	}

	metrics.Notifications.WithLabelValues(kindOf(email), "sent").Inc()
	log.Info().Strs("to", email.To).Str("subject", email.Subject).Int("attempts", attempts).Msg("notify: email sent")
}

func deadLetter(email Email, attempts int, err error) {
	log.Error().
		Err(err).
		Str("dead_letter", "notification").
		Str("kind", kindOf(email)).
		Strs("to", email.To).
		Str("subject", email.Subject).
		Int("attempts", attempts).
		Msg("notify: giving up on email")
}

func kindOf(email Email) string {
	if email.Kind == "" {
		return "generic"
	}
	return email.Kind
}
