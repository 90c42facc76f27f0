package market

import "fmt"

// ValidationError covers malformed order input. It is surfaced to the
// caller (humans see it in the UI) and never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError covers unknown order/trader/market ids. Reported, never
// fatal.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InactiveError rejects order traffic outside the TRADING phase.
type InactiveError struct {
	MarketID string
}

func (e *InactiveError) Error() string {
	return "market is not accepting orders: " + e.MarketID
}
