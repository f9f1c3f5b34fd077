// internal/events/bus_test.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

func TestBus_PublishSyncDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var got domain.Detection
	sub := bus.SubscribeFunc(LaunchDetected, func(_ context.Context, e Event) error {
		got = e.(LaunchDetectedEvent).Detection
		return nil
	})

	det := domain.Detection{Kind: domain.DetectionMintCreated, Asset: "Mint"}
	require.NoError(t, bus.PublishSync(context.Background(), LaunchDetectedEvent{BaseEvent: NewBase(LaunchDetected), Detection: det}))
	assert.Equal(t, "Mint", got.Asset)

	sub.Unsubscribe()
	got = domain.Detection{}
	require.NoError(t, bus.PublishSync(context.Background(), LaunchDetectedEvent{BaseEvent: NewBase(LaunchDetected), Detection: det}))
	assert.Empty(t, got.Asset)
}

func TestBus_PublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	boom := errors.New("boom")
	bus.SubscribeFunc(TargetFailed, func(context.Context, Event) error { return boom })

	err := bus.PublishSync(context.Background(), TargetEvent{BaseEvent: NewBase(TargetFailed)})
	assert.ErrorIs(t, err, boom)
}

func TestBus_AsyncPublishAndShutdown(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)

	var handled atomic.Int32
	bus.SubscribeFunc(PositionClosed, func(context.Context, Event) error {
		handled.Add(1)
		return nil
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(PositionEvent{BaseEvent: NewBase(PositionClosed)}))
	}

	assert.Eventually(t, func() bool { return handled.Load() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, bus.Stats().HandlersPerType[PositionClosed])

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))
	assert.ErrorIs(t, bus.Publish(PositionEvent{BaseEvent: NewBase(PositionClosed)}), ErrBusClosed)
	require.NoError(t, bus.Shutdown(ctx), "second shutdown is a no-op")
}

func TestBus_QueuedEventsKeepPublishOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 64)

	var (
		mu  sync.Mutex
		got []string
	)
	record := func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(PositionEvent).Reason)
		return nil
	}
	bus.SubscribeFunc(PositionSellFailed, record)
	bus.SubscribeFunc(PositionClosed, record)

	var want []string
	for i := 0; i < 20; i++ {
		typ := PositionSellFailed
		if i%3 == 0 {
			typ = PositionClosed
		}
		reason := fmt.Sprintf("event-%02d", i)
		want = append(want, reason)
		require.NoError(t, bus.Publish(PositionEvent{BaseEvent: NewBase(typ), Reason: reason}))
	}

	require.NoError(t, bus.Shutdown(context.Background()), "shutdown drains the queue")
	assert.Equal(t, want, got)
}

func TestBus_HandlersRunInSubscriptionOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var order []int
	for i := 1; i <= 3; i++ {
		bus.SubscribeFunc(TargetCreated, func(context.Context, Event) error {
			order = append(order, i)
			return nil
		})
	}
	require.NoError(t, bus.PublishSync(context.Background(), TargetEvent{BaseEvent: NewBase(TargetCreated)}))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBus_PanickingHandlerIsReported(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var after atomic.Bool
	bus.SubscribeFunc(TargetRejected, func(context.Context, Event) error { panic("nil target") })
	bus.SubscribeFunc(TargetRejected, func(context.Context, Event) error {
		after.Store(true)
		return nil
	})

	err := bus.PublishSync(context.Background(), TargetEvent{BaseEvent: NewBase(TargetRejected)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil target")
	assert.True(t, after.Load(), "later handlers still run")
	assert.Equal(t, int64(1), bus.Stats().HandlerErrors)
}

func TestBus_FullQueueDropsEvent(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	bus.SubscribeFunc(TargetExecuted, func(context.Context, Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	ev := TargetEvent{BaseEvent: NewBase(TargetExecuted)}
	require.NoError(t, bus.Publish(ev))
	<-started
	require.NoError(t, bus.Publish(ev), "one event fits the queue")
	assert.ErrorIs(t, bus.Publish(ev), ErrBusFull)

	st := bus.Stats()
	assert.Equal(t, int64(2), st.Published)
	assert.Equal(t, int64(1), st.Dropped)
	assert.Equal(t, 1, st.Pending)

	close(release)
	require.NoError(t, bus.Shutdown(context.Background()))
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var calls atomic.Int32
	first := bus.SubscribeFunc(TargetCancelled, func(context.Context, Event) error { calls.Add(1); return nil })
	bus.SubscribeFunc(TargetCancelled, func(context.Context, Event) error { calls.Add(10); return nil })

	first.Unsubscribe()
	first.Unsubscribe()
	assert.Equal(t, 1, bus.Stats().HandlersPerType[TargetCancelled])

	require.NoError(t, bus.PublishSync(context.Background(), TargetEvent{BaseEvent: NewBase(TargetCancelled)}))
	assert.Equal(t, int32(10), calls.Load())
}
