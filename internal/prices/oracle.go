// Package prices supplies hourly day-ahead and real-time price quotes.
//
// Quotes are synthesized: a peak/off-peak base price scaled by a uniform
// random factor, with real-time prices re-priced as a bounded random walk
// to model a 5-minute ticking feed. The pseudo-random source is injected
// so generation is reproducible under a fixed seed.
package prices

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridclear/settlement-engine/internal/metrics"
	"github.com/gridclear/settlement-engine/internal/model"
	"github.com/gridclear/settlement-engine/internal/store"
)

// SourceSynthetic marks quotes produced by the oracle rather than a live feed.
const SourceSynthetic = "synthetic"

var (
	basePeak    = decimal.NewFromInt(60)
	baseOffPeak = decimal.NewFromInt(35)
)

// Oracle generates and serves price quotes for trading dates.
type Oracle struct {
	store store.Store

	// rng is guarded by mu: generate/update may run concurrently with
	// PnL calculation and *rand.Rand is not safe for concurrent use.
	mu  sync.Mutex
	rng *rand.Rand

	// Now is the wall clock; overridable in tests.
	Now func() time.Time
}

// NewOracle creates an oracle drawing randomness from rng.
func NewOracle(st store.Store, rng *rand.Rand) *Oracle {
	return &Oracle{
		store: st,
		rng:   rng,
		Now:   time.Now,
	}
}

// uniform returns a random factor in [lo, hi).
func (o *Oracle) uniform(lo, hi float64) decimal.Decimal {
	o.mu.Lock()
	f := lo + o.rng.Float64()*(hi-lo)
	o.mu.Unlock()
	return decimal.NewFromFloat(f)
}

// peakHour reports whether the hour falls in a demand peak (06-09, 17-21).
func peakHour(hour int) bool {
	return (hour >= 6 && hour <= 9) || (hour >= 17 && hour <= 21)
}

// Generate synthesizes one quote per hour for (date, kind). Idempotent:
// if quotes already exist they are returned unchanged.
func (o *Oracle) Generate(ctx context.Context, date time.Time, kind model.QuoteKind) ([]model.PriceQuote, error) {
	if !kind.Valid() {
		return nil, &model.ValidationError{Field: "kind", Reason: "must be DAY_AHEAD or REAL_TIME"}
	}

	day := model.DateOf(date)
	existing, err := o.store.ListQuotes(ctx, day, &kind)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	now := o.Now().UTC()
	quotes := make([]model.PriceQuote, 0, 24)
	for hour := 0; hour < 24; hour++ {
		base := baseOffPeak
		if peakHour(hour) {
			base = basePeak
		}
		price := base.Mul(o.uniform(0.8, 1.2)).Round(2)

		quotes = append(quotes, model.PriceQuote{
			ID:          uuid.New().String(),
			Date:        day,
			Hour:        hour,
			Kind:        kind,
			Price:       price,
			Source:      SourceSynthetic,
			GeneratedAt: now,
		})
	}

	if err := o.store.InsertQuotes(ctx, quotes); err != nil {
		return nil, err
	}

	metrics.QuotesGenerated.WithLabelValues(string(kind)).Add(float64(len(quotes)))
	slog.Info("quotes generated",
		"date", day.Format(model.DateLayout),
		"kind", kind,
		"count", len(quotes),
	)
	return quotes, nil
}

// UpdateRealTime re-prices the date's real-time quotes by a bounded random
// walk (±5%), refreshing their timestamps. If no real-time quotes exist yet
// it generates the initial set instead.
func (o *Oracle) UpdateRealTime(ctx context.Context, date time.Time) ([]model.PriceQuote, error) {
	day := model.DateOf(date)
	rtKind := model.KindRealTime

	existing, err := o.store.ListQuotes(ctx, day, &rtKind)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return o.Generate(ctx, day, model.KindRealTime)
	}

	now := o.Now().UTC()
	for i := range existing {
		existing[i].Price = existing[i].Price.Mul(o.uniform(0.95, 1.05)).Round(2)
		existing[i].GeneratedAt = now
	}

	if err := o.store.UpdateQuotes(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Get returns a date's quotes ordered by hour, optionally one kind.
func (o *Oracle) Get(ctx context.Context, date time.Time, kind *model.QuoteKind) ([]model.PriceQuote, error) {
	if kind != nil && !kind.Valid() {
		return nil, &model.ValidationError{Field: "kind", Reason: "must be DAY_AHEAD or REAL_TIME"}
	}
	return o.store.ListQuotes(ctx, model.DateOf(date), kind)
}

// GetAt returns the single quote for (date, hour, kind), or
// *model.MissingPriceDataError if it does not exist.
func (o *Oracle) GetAt(ctx context.Context, date time.Time, hour int, kind model.QuoteKind) (*model.PriceQuote, error) {
	if hour < 0 || hour > 23 {
		return nil, &model.ValidationError{Field: "hour", Reason: "must be between 0 and 23"}
	}
	if !kind.Valid() {
		return nil, &model.ValidationError{Field: "kind", Reason: "must be DAY_AHEAD or REAL_TIME"}
	}

	day := model.DateOf(date)
	q, err := o.store.GetQuote(ctx, day, hour, kind)
	if err != nil {
		var nf *model.NotFoundError
		if errors.As(err, &nf) {
			return nil, &model.MissingPriceDataError{Date: day, Hour: hour, Kind: kind}
		}
		return nil, err
	}
	return q, nil
}

// KindSummary aggregates one kind's prices for a date.
type KindSummary struct {
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxPrice    decimal.Decimal `json:"max_price"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	TotalHours  int             `json:"total_hours"`
	LastUpdated *time.Time      `json:"last_updated,omitempty"`
}

// Summary holds per-kind price aggregates for a date. A kind with no
// quotes is nil.
type Summary struct {
	Date     time.Time    `json:"date"`
	DayAhead *KindSummary `json:"day_ahead,omitempty"`
	RealTime *KindSummary `json:"real_time,omitempty"`
}

// GetSummary aggregates min/max/avg prices per kind for a date.
func (o *Oracle) GetSummary(ctx context.Context, date time.Time) (*Summary, error) {
	day := model.DateOf(date)

	daKind, rtKind := model.KindDayAhead, model.KindRealTime
	dayAhead, err := o.store.ListQuotes(ctx, day, &daKind)
	if err != nil {
		return nil, err
	}
	realTime, err := o.store.ListQuotes(ctx, day, &rtKind)
	if err != nil {
		return nil, err
	}

	s := &Summary{Date: day}
	s.DayAhead = summarize(dayAhead, false)
	s.RealTime = summarize(realTime, true)
	return s, nil
}

func summarize(quotes []model.PriceQuote, withTimestamp bool) *KindSummary {
	if len(quotes) == 0 {
		return nil
	}

	s := &KindSummary{
		MinPrice:   quotes[0].Price,
		MaxPrice:   quotes[0].Price,
		TotalHours: len(quotes),
	}
	sum := decimal.Zero
	latest := quotes[0].GeneratedAt
	for _, q := range quotes {
		if q.Price.LessThan(s.MinPrice) {
			s.MinPrice = q.Price
		}
		if q.Price.GreaterThan(s.MaxPrice) {
			s.MaxPrice = q.Price
		}
		if q.GeneratedAt.After(latest) {
			latest = q.GeneratedAt
		}
		sum = sum.Add(q.Price)
	}
	s.AvgPrice = sum.Div(decimal.NewFromInt(int64(len(quotes)))).Round(2)
	if withTimestamp {
		s.LastUpdated = &latest
	}
	return s
}

// Chart holds 24 aligned price slots per kind; missing hours are null.
type Chart struct {
	Date     time.Time          `json:"date"`
	Hours    []int              `json:"hours"`
	DayAhead []*decimal.Decimal `json:"day_ahead_prices"`
	RealTime []*decimal.Decimal `json:"real_time_prices"`
}

// GetHourlyChart returns both price series aligned on a 24-hour axis.
func (o *Oracle) GetHourlyChart(ctx context.Context, date time.Time) (*Chart, error) {
	day := model.DateOf(date)

	daKind, rtKind := model.KindDayAhead, model.KindRealTime
	dayAhead, err := o.store.ListQuotes(ctx, day, &daKind)
	if err != nil {
		return nil, err
	}
	realTime, err := o.store.ListQuotes(ctx, day, &rtKind)
	if err != nil {
		return nil, err
	}

	chart := &Chart{
		Date:     day,
		Hours:    make([]int, 24),
		DayAhead: make([]*decimal.Decimal, 24),
		RealTime: make([]*decimal.Decimal, 24),
	}
	for hour := 0; hour < 24; hour++ {
		chart.Hours[hour] = hour
	}
	for _, q := range dayAhead {
		p := q.Price
		chart.DayAhead[q.Hour] = &p
	}
	for _, q := range realTime {
		p := q.Price
		chart.RealTime[q.Hour] = &p
	}
	return chart, nil
}
