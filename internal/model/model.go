// Package model defines the core domain types shared across the settlement engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidSide is the direction of a bid or contract.
type BidSide string

const (
	SideBuy  BidSide = "BUY"
	SideSell BidSide = "SELL"
)

// Valid reports whether the side is one of the known values.
func (s BidSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// BidStatus is the lifecycle state of a bid.
type BidStatus string

const (
	BidPending  BidStatus = "PENDING"
	BidExecuted BidStatus = "EXECUTED"
	BidRejected BidStatus = "REJECTED"
)

// ContractStatus is the lifecycle state of a contract.
// COMPLETED and CANCELLED are terminal.
type ContractStatus string

const (
	ContractActive    ContractStatus = "ACTIVE"
	ContractCompleted ContractStatus = "COMPLETED"
	ContractCancelled ContractStatus = "CANCELLED"
)

// Valid reports whether the status is one of the known values.
func (s ContractStatus) Valid() bool {
	return s == ContractActive || s == ContractCompleted || s == ContractCancelled
}

// Terminal reports whether the status permits no further transitions.
func (s ContractStatus) Terminal() bool {
	return s == ContractCompleted || s == ContractCancelled
}

// QuoteKind distinguishes day-ahead reference prices from real-time prices.
type QuoteKind string

const (
	KindDayAhead QuoteKind = "DAY_AHEAD"
	KindRealTime QuoteKind = "REAL_TIME"
)

// Valid reports whether the kind is one of the known values.
func (k QuoteKind) Valid() bool {
	return k == KindDayAhead || k == KindRealTime
}

// PnLKind classifies a settlement entry by contract finality.
type PnLKind string

const (
	PnLRealized   PnLKind = "REALIZED"
	PnLUnrealized PnLKind = "UNREALIZED"
)

// Bid is an hourly buy/sell order submitted before the daily cutoff.
// Quantity is the remaining unfilled quantity: clearing decrements it and
// the bid becomes EXECUTED only when it reaches zero.
type Bid struct {
	ID             string           `json:"id" db:"id"`
	Owner          string           `json:"owner" db:"owner"`
	Hour           int              `json:"hour" db:"hour"` // 0-23
	Side           BidSide          `json:"side" db:"side"`
	Quantity       decimal.Decimal  `json:"quantity" db:"quantity"` // MWh, > 0
	Price          decimal.Decimal  `json:"price" db:"price"`       // per MWh, > 0
	TradingDate    time.Time        `json:"trading_date" db:"trading_date"`
	Status         BidStatus        `json:"status" db:"status"`
	SubmittedAt    time.Time        `json:"submitted_at" db:"submitted_at"`
	ExecutionPrice *decimal.Decimal `json:"execution_price,omitempty" db:"execution_price"`
	ExecutionTime  *time.Time       `json:"execution_time,omitempty" db:"execution_time"`
}

// Contract is the record of one side of a matched trade. Quantity and
// execution price are immutable after creation; only Status may change.
type Contract struct {
	ID             string          `json:"id" db:"id"`
	BidID          string          `json:"bid_id" db:"bid_id"`
	Owner          string          `json:"owner" db:"owner"`
	Hour           int             `json:"hour" db:"hour"`
	Side           BidSide         `json:"side" db:"side"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	ExecutionPrice decimal.Decimal `json:"execution_price" db:"execution_price"`
	ExecutionDate  time.Time       `json:"execution_date" db:"execution_date"`
	ExecutionTime  time.Time       `json:"execution_time" db:"execution_time"`
	Status         ContractStatus  `json:"status" db:"status"`
}

// PriceQuote is one hourly price for a trading date.
type PriceQuote struct {
	ID          string          `json:"id" db:"id"`
	Date        time.Time       `json:"date" db:"date"`
	Hour        int             `json:"hour" db:"hour"`
	Kind        QuoteKind       `json:"kind" db:"kind"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Source      string          `json:"source" db:"source"`
	GeneratedAt time.Time       `json:"generated_at" db:"generated_at"`
}

// PnLEntry is one contract's settlement result against real-time prices.
// Entries are never mutated, only regenerated by a calculation pass.
type PnLEntry struct {
	ID            string          `json:"id" db:"id"`
	Owner         string          `json:"owner" db:"owner"`
	ContractID    string          `json:"contract_id" db:"contract_id"`
	Date          time.Time       `json:"date" db:"date"`
	Hour          int             `json:"hour" db:"hour"`
	DayAheadPrice decimal.Decimal `json:"day_ahead_price" db:"day_ahead_price"`
	RealTimePrice decimal.Decimal `json:"real_time_price" db:"real_time_price"`
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
	Amount        decimal.Decimal `json:"amount" db:"amount"` // signed
	Kind          PnLKind         `json:"kind" db:"kind"`
	CalculatedAt  time.Time       `json:"calculated_at" db:"calculated_at"`
}

// DateLayout is the wire format for trading dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD trading date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return d, nil
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
