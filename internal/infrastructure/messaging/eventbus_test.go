package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/shared"
)

func newSyncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
	})
}

func TestInMemoryEventBus_SubscribeAndPublish(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var received shared.Event
	err := bus.Subscribe(shared.EventXPEarned, func(event shared.Event) error {
		received = event
		return nil
	})
	assert.NoError(t, err)

	event := gamification.NewXPEarnedEvent(42, 50, 150, gamification.SourceDailyCheckIn)
	assert.NoError(t, bus.Publish(event))

	assert.NotNil(t, received)
	assert.Equal(t, shared.EventXPEarned, received.EventType())
	assert.Equal(t, int64(42), received.UserID())
}

func TestInMemoryEventBus_TypeFiltering(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var xpCalls, levelCalls int
	bus.Subscribe(shared.EventXPEarned, func(shared.Event) error {
		xpCalls++
		return nil
	})
	bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		levelCalls++
		return nil
	})

	bus.Publish(gamification.NewXPEarnedEvent(1, 10, 10, gamification.SourceDiaryEntry))
	bus.Publish(gamification.NewXPEarnedEvent(1, 10, 20, gamification.SourceDiaryEntry))
	bus.Publish(gamification.NewLevelUpEvent(1, 1, 2, 100))

	assert.Equal(t, 2, xpCalls)
	assert.Equal(t, 1, levelCalls)
}

func TestInMemoryEventBus_SubscribeAll(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var all int
	bus.SubscribeAll(func(shared.Event) error {
		all++
		return nil
	})

	bus.Publish(gamification.NewXPEarnedEvent(1, 10, 10, gamification.SourceDiaryEntry))
	bus.Publish(gamification.NewLevelUpEvent(1, 1, 2, 100))

	assert.Equal(t, 2, all)
}

func TestInMemoryEventBus_HandlerErrorDoesNotPropagate(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	bus.Subscribe(shared.EventXPEarned, func(shared.Event) error {
		return errors.New("notification failed")
	})

	err := bus.Publish(gamification.NewXPEarnedEvent(1, 10, 10, gamification.SourceDiaryEntry))
	assert.NoError(t, err)

	snapshot := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snapshot.HandlerFailures)
}

func TestInMemoryEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
		EnableMetrics:  true,
	})

	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(10)

	bus.Subscribe(shared.EventXPEarned, func(shared.Event) error {
		defer wg.Done()
		count.Add(1)
		return nil
	})

	for i := 0; i < 10; i++ {
		assert.NoError(t, bus.Publish(gamification.NewXPEarnedEvent(int64(i+1), 10, 10, gamification.SourceDiaryEntry)))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not complete")
	}

	assert.Equal(t, int64(10), count.Load())
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := newSyncBus()
	assert.NoError(t, bus.Close())

	err := bus.Publish(gamification.NewXPEarnedEvent(1, 10, 10, gamification.SourceDiaryEntry))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventXPEarned, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)

	// Closing twice is fine.
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_NilChecks(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventXPEarned, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}
