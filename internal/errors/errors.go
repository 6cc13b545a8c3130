package errors

import (
	"errors"
	"fmt"
)

// Category classifies errors by how the session should react to them.
type Category string

const (
	// Isolated errors never propagate beyond their own scope
	CategorySource   Category = "SOURCE"   // one provider's fetch failed
	CategorySymbol   Category = "SYMBOL"   // one symbol's cycle failed
	CategoryRisk     Category = "RISK"     // a risk constraint rejected an order
	CategoryOrder    Category = "ORDER"    // broker rejected or lost an order
	CategoryNetwork  Category = "NETWORK"  // transient connectivity problem
	CategoryConfig   Category = "CONFIG"   // invalid configuration, fatal
	CategoryTerminal Category = "TERMINAL" // exhausted retries or emergency stop
)

// TradeError is a categorized error with the component and operation
// it originated from. Reason strings are stable for operator tooling.
type TradeError struct {
	Category   Category
	Component  string
	Operation  string
	Message    string
	Underlying error
}

func (e *TradeError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

func (e *TradeError) Unwrap() error {
	return e.Underlying
}

// IsTerminal reports whether the session must stop on this error.
func (e *TradeError) IsTerminal() bool {
	return e.Category == CategoryTerminal || e.Category == CategoryConfig
}

// New creates a categorized error.
func New(category Category, component, operation, message string) *TradeError {
	return &TradeError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// Wrap attaches category and origin context to an existing error.
func Wrap(err error, category Category, component, operation string) *TradeError {
	return &TradeError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// CategoryOf extracts the category from an error chain, or "" if none.
func CategoryOf(err error) Category {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}
