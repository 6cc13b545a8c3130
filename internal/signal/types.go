package signal

import "time"

// Direction is a provider's opinion for a symbol.
type Direction int

const (
	Hold Direction = iota
	Buy
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// RawSignal is one provider's independent opinion. Immutable once
// produced.
type RawSignal struct {
	Source     string    `json:"source"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // [0,100]
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// AggregatedSignal is the combined verdict across all responding
// providers for one symbol.
type AggregatedSignal struct {
	Symbol        string
	TotalSources  int
	BuySignals    int
	HoldSignals   int
	SellSignals   int
	BuyPercentage float64 // [0,100]
	RequiredVotes int
	ShouldBuy     bool
	ShouldSell    bool
	Signals       []RawSignal // in registration order of contributing sources
	Timestamp     time.Time
}
