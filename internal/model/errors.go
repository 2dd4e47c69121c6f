package model

import (
	"fmt"
	"time"
)

// Domain error taxonomy. The HTTP boundary maps these to status codes;
// the core never sees transport concerns.

// ValidationError reports an out-of-range or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// QuotaExceededError reports that an owner already holds the maximum number
// of pending bids for an (hour, trading date) slot.
type QuotaExceededError struct {
	Owner string
	Hour  int
	Date  time.Time
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("owner %s already has %d pending bids for hour %d on %s",
		e.Owner, e.Limit, e.Hour, e.Date.Format(DateLayout))
}

// MarketClosedError reports a submission after the daily bidding cutoff.
type MarketClosedError struct {
	CutoffHour int
}

func (e *MarketClosedError) Error() string {
	return fmt.Sprintf("market is closed: bidding ends at %02d:00 UTC", e.CutoffHour)
}

// StateConflictError reports a mutation that the entity's current lifecycle
// state does not permit.
type StateConflictError struct {
	Entity string
	ID     string
	State  string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s %s is %s and cannot be modified", e.Entity, e.ID, e.State)
}

// NotFoundError reports a missing bid, contract, or quote.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// MissingPriceDataError reports that a single explicitly requested hourly
// price does not exist. Bulk PnL calculation skips missing hours silently
// instead of raising this.
type MissingPriceDataError struct {
	Date time.Time
	Hour int
	Kind QuoteKind
}

func (e *MissingPriceDataError) Error() string {
	return fmt.Sprintf("no %s price for %s hour %d",
		e.Kind, e.Date.Format(DateLayout), e.Hour)
}
