package signal

import (
	"errors"
	"fmt"
)

// ErrSourceDisabled is returned when a tripped source is asked for a
// signal before being reset.
var ErrSourceDisabled = errors.New("signal source disabled by circuit breaker")

// FetchError reports one provider's network or parse failure. It is
// always isolated to that provider: aggregation continues without it.
type FetchError struct {
	Source string
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s failed to fetch signal for %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// InsufficientSourcesError reports that fewer providers responded than
// the aggregator's minimum. Fatal only for that symbol's cycle.
type InsufficientSourcesError struct {
	Symbol    string
	Responded int
	Required  int
}

func (e *InsufficientSourcesError) Error() string {
	return fmt.Sprintf("insufficient sources for %s: %d responded, %d required", e.Symbol, e.Responded, e.Required)
}
