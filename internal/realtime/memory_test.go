package realtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/realtime"
)

func receive(t *testing.T, sub *realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event received on %s", sub.Topic)
		return realtime.Event{}
	}
}

func assertNoEvent(t *testing.T, sub *realtime.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event on %s: %s", sub.Topic, ev.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBroker_FanOutToAllSubscribers(t *testing.T) {
	b := realtime.NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	topic := realtime.TicketTopic("t1")
	first, err := b.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer first.Close()
	second, err := b.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer second.Close()
	other, err := b.Subscribe(ctx, realtime.TicketTopic("t2"))
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, b.Publish(ctx, topic, []byte(`{"message":"hello"}`)))

	assert.Equal(t, `{"message":"hello"}`, string(receive(t, first).Data))
	assert.Equal(t, `{"message":"hello"}`, string(receive(t, second).Data))
	assertNoEvent(t, other)
}

func TestMemoryBroker_PreservesPublishOrder(t *testing.T) {
	b := realtime.NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "ticket-order")
	require.NoError(t, err)
	defer sub.Close()

	for _, msg := range []string{"1", "2", "3"} {
		require.NoError(t, b.Publish(ctx, "ticket-order", []byte(msg)))
	}

	assert.Equal(t, "1", string(receive(t, sub).Data))
	assert.Equal(t, "2", string(receive(t, sub).Data))
	assert.Equal(t, "3", string(receive(t, sub).Data))
}

func TestMemoryBroker_ClosedSubscriptionStopsReceiving(t *testing.T) {
	b := realtime.NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "ticket-x")
	require.NoError(t, err)
	require.Equal(t, 1, b.Subscribers("ticket-x"))

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, b.Subscribers("ticket-x"))
	require.NoError(t, b.Publish(ctx, "ticket-x", []byte("late")))
	assertNoEvent(t, sub)
}

func TestMemoryBroker_ContextCancelUnsubscribes(t *testing.T) {
	b := realtime.NewMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, "ticket-ctx")
	require.NoError(t, err)

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
	assert.Eventually(t, func() bool { return b.Subscribers("ticket-ctx") == 0 }, time.Second, 10*time.Millisecond)
}

func TestMemoryBroker_ConcurrentPublishersLoseNothing(t *testing.T) {
	b := realtime.NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "ticket-busy")
	require.NoError(t, err)
	defer sub.Close()

	const publishers, perPublisher = 4, 50
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				_ = b.Publish(ctx, "ticket-busy", []byte("m"))
			}
		}()
	}

	received := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for received < publishers*perPublisher {
		select {
		case <-sub.Events():
			received++
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d events", received, publishers*perPublisher)
		}
	}
	<-done
	assert.Equal(t, publishers*perPublisher, received)
}

func TestMemoryBroker_ClosedBroker(t *testing.T) {
	b := realtime.NewMemoryBroker()
	require.NoError(t, b.Close())

	_, err := b.Subscribe(context.Background(), "ticket-closed")
	require.ErrorIs(t, err, realtime.ErrClosed)
	require.ErrorIs(t, b.Publish(context.Background(), "ticket-closed", nil), realtime.ErrClosed)
}

func TestMemoryBroker_StuckSubscriberDoesNotStarveOthers(t *testing.T) {
	b := realtime.NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	topic := realtime.TicketTopic("t-stuck")
	stuck, err := b.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer stuck.Close()
	healthy, err := b.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer healthy.Close()

	const total = 100
	received := make(chan int, 1)
	go func() {
		n := 0
		for n < total {
			select {
			case <-healthy.Events():
				n++
			case <-time.After(2 * time.Second):
				received <- n
				return
			}
		}
		received <- n
	}()

	start := time.Now()
	for i := 0; i < total; i++ {
		require.NoError(t, b.Publish(ctx, topic, []byte("m")))
	}
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, total, <-received)

	select {
	case <-stuck.Done():
	case <-time.After(time.Second):
		t.Fatal("stuck subscriber was not closed")
	}
	assert.Equal(t, 1, b.Subscribers(topic))
}
