// Package contracts provides queries and status transitions over the
// contract ledger. Contracts are created only by market clearing; this
// package never touches quantity or execution price.
package contracts

import (
	"context"
	"log/slog"
	"time"

	"github.com/gridclear/settlement-engine/internal/model"
	"github.com/gridclear/settlement-engine/internal/store"
)

// Ledger queries contracts and transitions their status.
type Ledger struct {
	store store.Store
}

// NewLedger creates a contract ledger over the store.
func NewLedger(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Get retrieves a contract by ID.
func (l *Ledger) Get(ctx context.Context, id string) (*model.Contract, error) {
	return l.store.GetContract(ctx, id)
}

// List returns contracts matching the filter.
func (l *Ledger) List(ctx context.Context, filter store.ContractFilter) ([]model.Contract, error) {
	return l.store.ListContracts(ctx, filter)
}

// UpdateStatus transitions a contract to the given status. Terminal
// statuses (COMPLETED, CANCELLED) cannot be left.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status model.ContractStatus) (*model.Contract, error) {
	if !status.Valid() {
		return nil, &model.ValidationError{Field: "status", Reason: "must be ACTIVE, COMPLETED, or CANCELLED"}
	}
	if err := l.store.UpdateContractStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return l.store.GetContract(ctx, id)
}

// CompleteAllActive transitions every ACTIVE contract executed on the date
// to COMPLETED and returns the count updated. Zero matches is a no-op.
func (l *Ledger) CompleteAllActive(ctx context.Context, date time.Time) (int, error) {
	n, err := l.store.CompleteActiveContracts(ctx, date)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("contracts completed",
			"date", model.DateOf(date).Format(model.DateLayout),
			"count", n,
		)
	}
	return n, nil
}

// StatusSummary counts a date's contracts by status.
type StatusSummary struct {
	Date      time.Time `json:"date"`
	Total     int       `json:"total_contracts"`
	Active    int       `json:"active_contracts"`
	Completed int       `json:"completed_contracts"`
	Cancelled int       `json:"cancelled_contracts"`
}

// Summarize counts contracts by status for a date.
func (l *Ledger) Summarize(ctx context.Context, date time.Time) (*StatusSummary, error) {
	day := model.DateOf(date)
	contracts, err := l.store.ListContracts(ctx, store.ContractFilter{Date: &day})
	if err != nil {
		return nil, err
	}

	s := &StatusSummary{Date: day}
	for _, c := range contracts {
		s.Total++
		switch c.Status {
		case model.ContractActive:
			s.Active++
		case model.ContractCompleted:
			s.Completed++
		case model.ContractCancelled:
			s.Cancelled++
		}
	}
	return s, nil
}
