package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBus_PublishReachesSubscribers verifies fan-out to every listener
// on a topic.
func TestBus_PublishReachesSubscribers(t *testing.T) {
	bus := NewBus()

	first, unsubFirst := bus.Subscribe(TopicTradeExecuted, 1)
	defer unsubFirst()
	second, unsubSecond := bus.Subscribe(TopicTradeExecuted, 1)
	defer unsubSecond()

	payload := TradeExecuted{Symbol: "BTCUSDT", Side: "BUY", Quantity: 1, Timestamp: time.Now()}
	bus.Publish(TopicTradeExecuted, payload)

	assert.Equal(t, payload, <-first)
	assert.Equal(t, payload, <-second)
}

// TestBus_TopicsAreIsolated verifies a publish on one topic never
// reaches another topic's subscribers.
func TestBus_TopicsAreIsolated(t *testing.T) {
	bus := NewBus()

	alerts, unsub := bus.Subscribe(TopicRiskAlert, 1)
	defer unsub()

	bus.Publish(TopicTradeExecuted, TradeExecuted{Symbol: "BTCUSDT"})

	select {
	case ev := <-alerts:
		t.Fatalf("unexpected event on risk topic: %v", ev)
	default:
	}
}

// TestBus_PublishNeverBlocks verifies a full subscriber buffer drops
// the event instead of stalling the publisher.
func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus()

	ch, unsub := bus.Subscribe(TopicRiskAlert, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		bus.Publish(TopicRiskAlert, RiskAlert{Rule: "first"})
		bus.Publish(TopicRiskAlert, RiskAlert{Rule: "second"}) // buffer full, dropped
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	ev := <-ch
	alert, ok := ev.(RiskAlert)
	require.True(t, ok)
	assert.Equal(t, "first", alert.Rule)
}

// TestBus_UnsubscribeClosesChannel verifies unsubscribing closes the
// channel and stops delivery.
func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()

	ch, unsub := bus.Subscribe(TopicSessionState, 1)
	unsub()

	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe must not panic
	bus.Publish(TopicSessionState, SessionState{To: "ACTIVE"})
}
