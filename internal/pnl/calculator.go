// Package pnl settles contracts against real-time prices.
//
// A calculation pass walks an owner's ACTIVE and COMPLETED contracts for a
// date, prices each against the hour's day-ahead and real-time quotes, and
// persists one entry per priceable contract. The pass replaces the owner's
// prior entries for that date, so exactly one current view exists.
package pnl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridclear/settlement-engine/internal/metrics"
	"github.com/gridclear/settlement-engine/internal/model"
	"github.com/gridclear/settlement-engine/internal/store"
)

// Calculator computes and persists PnL entries.
type Calculator struct {
	store store.Store

	// Now is the wall clock; overridable in tests.
	Now func() time.Time
}

// NewCalculator creates a PnL calculator over the store.
func NewCalculator(st store.Store) *Calculator {
	return &Calculator{store: st, Now: time.Now}
}

// Calculate runs a settlement pass for (owner, date) and returns the
// resulting entries.
//
// BUY contracts gain when real-time rises above day-ahead; SELL contracts
// gain on the opposite move:
//
//	BUY:  (realTime - dayAhead) * quantity
//	SELL: (dayAhead - realTime) * quantity
//
// Contracts whose hour is missing either quote are skipped without error.
// Entries for COMPLETED contracts are REALIZED, for ACTIVE ones UNREALIZED.
func (c *Calculator) Calculate(ctx context.Context, owner string, date time.Time) ([]model.PnLEntry, error) {
	day := model.DateOf(date)

	contracts, err := c.store.ListContracts(ctx, store.ContractFilter{
		Owner:    owner,
		Date:     &day,
		Statuses: []model.ContractStatus{model.ContractActive, model.ContractCompleted},
	})
	if err != nil {
		return nil, err
	}

	now := c.Now().UTC()
	var entries []model.PnLEntry

	for _, contract := range contracts {
		dayAhead, err := c.quotePrice(ctx, day, contract.Hour, model.KindDayAhead)
		if err != nil {
			return nil, err
		}
		realTime, err := c.quotePrice(ctx, day, contract.Hour, model.KindRealTime)
		if err != nil {
			return nil, err
		}
		if dayAhead == nil || realTime == nil {
			continue
		}

		var amount decimal.Decimal
		if contract.Side == model.SideBuy {
			amount = realTime.Sub(*dayAhead).Mul(contract.Quantity)
		} else {
			amount = dayAhead.Sub(*realTime).Mul(contract.Quantity)
		}

		kind := model.PnLUnrealized
		if contract.Status == model.ContractCompleted {
			kind = model.PnLRealized
		}

		entries = append(entries, model.PnLEntry{
			ID:            uuid.New().String(),
			Owner:         owner,
			ContractID:    contract.ID,
			Date:          day,
			Hour:          contract.Hour,
			DayAheadPrice: *dayAhead,
			RealTimePrice: *realTime,
			Quantity:      contract.Quantity,
			Amount:        amount,
			Kind:          kind,
			CalculatedAt:  now,
		})
	}

	if err := c.store.ReplacePnLEntries(ctx, owner, day, entries); err != nil {
		return nil, err
	}

	metrics.PnLEntriesCalculated.Add(float64(len(entries)))
	slog.Info("pnl calculated",
		"owner", owner,
		"date", day.Format(model.DateLayout),
		"contracts", len(contracts),
		"entries", len(entries),
	)
	return entries, nil
}

// quotePrice returns the price for (date, hour, kind), or nil if absent.
func (c *Calculator) quotePrice(ctx context.Context, date time.Time, hour int, kind model.QuoteKind) (*decimal.Decimal, error) {
	q, err := c.store.GetQuote(ctx, date, hour, kind)
	if err != nil {
		var nf *model.NotFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}
	return &q.Price, nil
}

// Entries returns an owner's PnL entries within an optional date range,
// newest date first.
func (c *Calculator) Entries(ctx context.Context, owner string, start, end *time.Time) ([]model.PnLEntry, error) {
	return c.store.ListPnLEntries(ctx, owner, start, end)
}

// HourPnL is one hour's contribution in a daily summary.
type HourPnL struct {
	Hour          int             `json:"hour"`
	Amount        decimal.Decimal `json:"pnl"`
	Kind          model.PnLKind   `json:"type"`
	DayAheadPrice decimal.Decimal `json:"day_ahead_price"`
	RealTimePrice decimal.Decimal `json:"real_time_price"`
}

// Summary aggregates an owner's PnL for one date.
type Summary struct {
	Date            time.Time       `json:"date"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	TotalVolume     decimal.Decimal `json:"total_volume"`
	EntryCount      int             `json:"records_count"`
	HourlyBreakdown []HourPnL       `json:"hourly_breakdown"`
}

// GetSummary aggregates the stored entries for (owner, date). No entries
// yields a zero-valued summary, not an error.
func (c *Calculator) GetSummary(ctx context.Context, owner string, date time.Time) (*Summary, error) {
	day := model.DateOf(date)
	entries, err := c.store.ListPnLEntries(ctx, owner, &day, &day)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Date:          day,
		TotalPnL:      decimal.Zero,
		RealizedPnL:   decimal.Zero,
		UnrealizedPnL: decimal.Zero,
		TotalVolume:   decimal.Zero,
		EntryCount:    len(entries),
	}
	for _, e := range entries {
		s.TotalPnL = s.TotalPnL.Add(e.Amount)
		if e.Kind == model.PnLRealized {
			s.RealizedPnL = s.RealizedPnL.Add(e.Amount)
		} else {
			s.UnrealizedPnL = s.UnrealizedPnL.Add(e.Amount)
		}
		s.TotalVolume = s.TotalVolume.Add(e.Quantity)
		s.HourlyBreakdown = append(s.HourlyBreakdown, HourPnL{
			Hour:          e.Hour,
			Amount:        e.Amount,
			Kind:          e.Kind,
			DayAheadPrice: e.DayAheadPrice,
			RealTimePrice: e.RealTimePrice,
		})
	}
	return s, nil
}

// Portfolio aggregates an owner's PnL across all dates.
type Portfolio struct {
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	TotalVolume    decimal.Decimal `json:"total_volume"`
	TotalContracts int             `json:"total_contracts"` // distinct contracts
}

// GetPortfolio aggregates all of an owner's entries and counts the distinct
// contracts contributing.
func (c *Calculator) GetPortfolio(ctx context.Context, owner string) (*Portfolio, error) {
	entries, err := c.store.ListPnLEntries(ctx, owner, nil, nil)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		TotalPnL:      decimal.Zero,
		RealizedPnL:   decimal.Zero,
		UnrealizedPnL: decimal.Zero,
		TotalVolume:   decimal.Zero,
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		p.TotalPnL = p.TotalPnL.Add(e.Amount)
		if e.Kind == model.PnLRealized {
			p.RealizedPnL = p.RealizedPnL.Add(e.Amount)
		} else {
			p.UnrealizedPnL = p.UnrealizedPnL.Add(e.Amount)
		}
		p.TotalVolume = p.TotalVolume.Add(e.Quantity)
		seen[e.ContractID] = true
	}
	p.TotalContracts = len(seen)
	return p, nil
}
