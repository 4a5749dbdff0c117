package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Invariant violations. These always indicate an orchestrator bug and abort
// the run; they are never recovered from.
var (
	ErrDoubleEntry = errors.New("engine: enter called while a position is open")
	ErrNoPosition  = errors.New("engine: exit called with no open position")
)

// InsufficientCapitalError reports a sizing request below the minimum order
// value. It is recoverable: the orchestrator skips the signal and continues.
type InsufficientCapitalError struct {
	Committed decimal.Decimal
	Minimum   decimal.Decimal
}

func (e *InsufficientCapitalError) Error() string {
	return fmt.Sprintf("engine: order value %s below minimum %s",
		e.Committed.StringFixed(2), e.Minimum.StringFixed(2))
}

// MalformedInputError rejects bad input data at the load boundary, before the
// simulation starts. Index is the offending record's position, -1 if the
// problem is not tied to a single record.
type MalformedInputError struct {
	Kind   string // "bar" or "signal"
	Index  int
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("engine: malformed %s input: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("engine: malformed %s input at index %d: %s", e.Kind, e.Index, e.Reason)
}
