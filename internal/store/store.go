// Package store defines the persistence interface for the settlement engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// quote cache), and in-memory (for testing).
package store

import (
	"context"
	"time"

	"github.com/gridclear/settlement-engine/internal/model"
)

// ContractFilter narrows ListContracts. Zero values mean "any".
type ContractFilter struct {
	Owner    string
	Statuses []model.ContractStatus
	Date     *time.Time // execution date
}

// Store is the persistence interface. Absent rows surface as
// *model.NotFoundError; batch operations are atomic — they either apply
// every row or none.
type Store interface {
	// --- Bids ---

	// CreateBid persists a new bid.
	CreateBid(ctx context.Context, bid *model.Bid) error

	// CreateBidIfUnderQuota counts the owner's PENDING bids for the bid's
	// (hour, trading date) slot and inserts the bid only while the count is
	// below max, atomically — concurrent submissions into one slot cannot
	// both pass the count. Returns *model.QuotaExceededError when full.
	CreateBidIfUnderQuota(ctx context.Context, bid *model.Bid, max int) error

	// GetBid retrieves a bid by ID.
	GetBid(ctx context.Context, id string) (*model.Bid, error)

	// UpdateBid overwrites a bid's mutable fields (quantity, price, status,
	// execution fields).
	UpdateBid(ctx context.Context, bid *model.Bid) error

	// DeleteBid removes a bid.
	DeleteBid(ctx context.Context, id string) error

	// ListBidsByOwner returns an owner's bids, optionally for one trading date.
	ListBidsByOwner(ctx context.Context, owner string, date *time.Time) ([]model.Bid, error)

	// ListPendingBids returns all PENDING bids, optionally for one hour.
	ListPendingBids(ctx context.Context, hour *int) ([]model.Bid, error)

	// ListPendingBidsByDate returns all PENDING bids for a trading date.
	ListPendingBidsByDate(ctx context.Context, date time.Time) ([]model.Bid, error)

	// CountPendingBids counts PENDING bids for an (owner, hour, date) slot.
	CountPendingBids(ctx context.Context, owner string, hour int, date time.Time) (int, error)

	// --- Contracts ---

	// GetContract retrieves a contract by ID.
	GetContract(ctx context.Context, id string) (*model.Contract, error)

	// ListContracts returns contracts matching the filter.
	ListContracts(ctx context.Context, filter ContractFilter) ([]model.Contract, error)

	// UpdateContractStatus transitions a contract's status atomically.
	// Returns *model.StateConflictError if the current status is terminal.
	UpdateContractStatus(ctx context.Context, id string, status model.ContractStatus) error

	// CompleteActiveContracts transitions every ACTIVE contract executed on
	// the date to COMPLETED and returns the number updated.
	CompleteActiveContracts(ctx context.Context, date time.Time) (int, error)

	// --- Price quotes ---

	// InsertQuotes appends a batch of quotes.
	InsertQuotes(ctx context.Context, quotes []model.PriceQuote) error

	// ListQuotes returns a date's quotes ordered by hour, optionally one kind.
	ListQuotes(ctx context.Context, date time.Time, kind *model.QuoteKind) ([]model.PriceQuote, error)

	// GetQuote retrieves the quote for (date, hour, kind).
	GetQuote(ctx context.Context, date time.Time, hour int, kind model.QuoteKind) (*model.PriceQuote, error)

	// UpdateQuotes overwrites price and generated-at for existing quotes.
	UpdateQuotes(ctx context.Context, quotes []model.PriceQuote) error

	// --- PnL entries ---

	// ReplacePnLEntries atomically deletes an owner's entries for the date
	// and inserts the new batch, so one current view exists per (owner, date).
	ReplacePnLEntries(ctx context.Context, owner string, date time.Time, entries []model.PnLEntry) error

	// ListPnLEntries returns an owner's entries within an optional date range,
	// ordered by date descending then hour.
	ListPnLEntries(ctx context.Context, owner string, start, end *time.Time) ([]model.PnLEntry, error)

	// --- Clearing unit of work ---

	// CommitClearing persists the outcome of one clearing pass — created
	// contracts plus bid status/quantity changes — as a single atomic unit.
	CommitClearing(ctx context.Context, contracts []model.Contract, bids []model.Bid) error
}
