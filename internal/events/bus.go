package events

import (
	"sync"
	"time"
)

// Topic names the event streams observers can subscribe to.
type Topic string

const (
	TopicTradeExecuted Topic = "trade.executed"
	TopicRiskAlert     Topic = "risk.alert"
	TopicRiskRejected  Topic = "risk.rejected"
	TopicSourceTripped Topic = "source.tripped"
	TopicSessionState  Topic = "session.state"
	TopicEmergencyStop Topic = "session.emergency_stop"
)

// TradeExecuted is published after a confirmed fill.
type TradeExecuted struct {
	Symbol    string
	Side      string
	Quantity  float64
	Price     float64
	OrderID   string
	Timestamp time.Time
}

// RiskAlert is published when portfolio risk crosses a threshold.
type RiskAlert struct {
	Rule      string
	Message   string
	Breach    bool
	Timestamp time.Time
}

// SessionState is published on every session status transition.
type SessionState struct {
	SessionID string
	From      string
	To        string
	Timestamp time.Time
}

// SourceTripped is published when a signal source disables itself.
type SourceTripped struct {
	Source    string
	Failures  int
	Timestamp time.Time
}

// Bus is a lightweight in-process pub/sub broker. Publishing never
// blocks: slow subscribers lose events rather than stalling the
// trading loop.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]chan any
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]chan any)}
}

// Subscribe registers a listener and returns its channel plus an
// unsubscribe function that also closes the channel.
func (b *Bus) Subscribe(topic Topic, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[topic] = append(b.subs[topic], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsub
}

// Publish fans the payload out to all subscribers of the topic.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
			// drop rather than block the publisher
		}
	}
}
