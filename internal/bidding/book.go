// Package bidding owns bid admission, mutation, and quota rules.
//
// A bid is mutable only while PENDING. Admission enforces per-slot quota
// and the daily bidding cutoff.
package bidding

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

// DefaultMaxPendingBids is the cap on PENDING bids per (owner, hour, date).
const DefaultMaxPendingBids = 10

// Book handles bid admission and lifecycle.
type Book struct {
	store      store.Store
	cutoffHour int // submissions rejected from this UTC hour onward
	maxPending int

	// Now is the wall clock; overridable in tests.
	Now func() time.Time
}

// NewBook creates a bid book with the given daily cutoff hour.
func NewBook(st store.Store, cutoffHour int) *Book {
	return &Book{
		store:      st,
		cutoffHour: cutoffHour,
		maxPending: DefaultMaxPendingBids,
		Now:        time.Now,
	}
}

// SubmitRequest carries the fields of a new bid.
type SubmitRequest struct {
	Owner    string          `json:"owner"`
	Hour     int             `json:"hour"`
	Side     model.BidSide   `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Submit validates and admits a new bid for today's trading date.
func (b *Book) Submit(ctx context.Context, req SubmitRequest) (*model.Bid, error) {
	if err := validate(req); err != nil {
		metrics.BidRejections.WithLabelValues("validation").Inc()
		return nil, err
	}

	now := b.Now().UTC()
	today := model.DateOf(now)

	if now.Hour() >= b.cutoffHour {
		metrics.BidRejections.WithLabelValues("market_closed").Inc()
		return nil, &model.MarketClosedError{CutoffHour: b.cutoffHour}
	}

	bid := &model.Bid{
		ID:          uuid.New().String(),
		Owner:       req.Owner,
		Hour:        req.Hour,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Price:       req.Price,
		TradingDate: today,
		Status:      model.BidPending,
		SubmittedAt: now,
	}

	// Quota check and insert must be one atomic store operation: separate
	// count-then-create calls let concurrent submissions into the same
	// (owner, hour, date) slot all pass the count.
	if err := b.store.CreateBidIfUnderQuota(ctx, bid, b.maxPending); err != nil {
		var quota *model.QuotaExceededError
		if errors.As(err, &quota) {
			metrics.BidRejections.WithLabelValues("quota").Inc()
		}
		return nil, err
	}

	metrics.BidsSubmitted.WithLabelValues(string(req.Side)).Inc()
	slog.Info("bid submitted",
		"id", bid.ID,
		"owner", bid.Owner,
		"hour", bid.Hour,
		"side", bid.Side,
		"qty", bid.Quantity.String(),
		"price", bid.Price.String(),
	)
	return bid, nil
}

func validate(req SubmitRequest) error {
	if req.Owner == "" {
		return &model.ValidationError{Field: "owner", Reason: "must not be empty"}
	}
	if req.Hour < 0 || req.Hour > 23 {
		return &model.ValidationError{Field: "hour", Reason: "must be between 0 and 23"}
	}
	if !req.Side.Valid() {
		return &model.ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return &model.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		return &model.ValidationError{Field: "price", Reason: "must be positive"}
	}
	return nil
}

// Update changes quantity and/or price of a PENDING bid.
func (b *Book) Update(ctx context.Context, id string, quantity, price *decimal.Decimal) (*model.Bid, error) {
	bid, err := b.store.GetBid(ctx, id)
	if err != nil {
		return nil, err
	}
	if bid.Status != model.BidPending {
		return nil, &model.StateConflictError{Entity: "bid", ID: id, State: string(bid.Status)}
	}

	if quantity != nil {
		if quantity.LessThanOrEqual(decimal.Zero) {
			return nil, &model.ValidationError{Field: "quantity", Reason: "must be positive"}
		}
		bid.Quantity = *quantity
	}
	if price != nil {
		if price.LessThanOrEqual(decimal.Zero) {
			return nil, &model.ValidationError{Field: "price", Reason: "must be positive"}
		}
		bid.Price = *price
	}

	if err := b.store.UpdateBid(ctx, bid); err != nil {
		return nil, err
	}
	return bid, nil
}

// Delete removes a PENDING bid.
func (b *Book) Delete(ctx context.Context, id string) error {
	bid, err := b.store.GetBid(ctx, id)
	if err != nil {
		return err
	}
	if bid.Status != model.BidPending {
		return &model.StateConflictError{Entity: "bid", ID: id, State: string(bid.Status)}
	}
	return b.store.DeleteBid(ctx, id)
}

// Get retrieves a bid by ID.
func (b *Book) Get(ctx context.Context, id string) (*model.Bid, error) {
	return b.store.GetBid(ctx, id)
}

// ListByOwner returns an owner's bids, optionally for one trading date.
func (b *Book) ListByOwner(ctx context.Context, owner string, date *time.Time) ([]model.Bid, error) {
	return b.store.ListBidsByOwner(ctx, owner, date)
}

// ListPending returns all PENDING bids, optionally for one hour.
func (b *Book) ListPending(ctx context.Context, hour *int) ([]model.Bid, error) {
	if hour != nil && (*hour < 0 || *hour > 23) {
		return nil, &model.ValidationError{Field: "hour", Reason: "must be between 0 and 23"}
	}
	return b.store.ListPendingBids(ctx, hour)
}
