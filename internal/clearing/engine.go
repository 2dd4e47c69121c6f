// Package clearing implements the double-auction market clearing engine.
//
// Clearing matches pending buy and sell bids by price priority within each
// hour bucket and settles every match at the hour's day-ahead reference
// price. All resulting contract creations and bid changes for one pass are
// committed as a single atomic unit.
package clearing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridclear/settlement-engine/internal/metrics"
	"github.com/gridclear/settlement-engine/internal/model"
	"github.com/gridclear/settlement-engine/internal/store"
)

// Engine matches pending bids into contracts.
type Engine struct {
	store store.Store

	// Per-date locks: two concurrent Clear calls for the same date must
	// not both match the same bid. Different dates clear in parallel.
	// Entries are never pruned; the map grows by one small mutex per
	// trading day cleared over the process lifetime.
	mu        sync.Mutex
	dateLocks map[string]*sync.Mutex

	// Now is the wall clock; overridable in tests.
	Now func() time.Time
}

// NewEngine creates a clearing engine.
func NewEngine(st store.Store) *Engine {
	return &Engine{
		store:     st,
		dateLocks: make(map[string]*sync.Mutex),
		Now:       time.Now,
	}
}

// Result reports the outcome of one clearing pass.
type Result struct {
	Date             time.Time `json:"date"`
	ContractsCreated int       `json:"contracts_created"`
	BidsProcessed    int       `json:"bids_processed"`
}

func (e *Engine) lockDate(date time.Time) *sync.Mutex {
	key := model.DateOf(date).Format(model.DateLayout)
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.dateLocks[key]
	if !ok {
		l = &sync.Mutex{}
		e.dateLocks[key] = l
	}
	return l
}

// Clear runs one clearing pass for the date.
//
// Pending bids are bucketed by hour; within a bucket, buy bids are walked in
// descending price order against sell bids in ascending price order, and a
// pair trades min(buyRemaining, sellRemaining) whenever buyPrice >= sellPrice.
// Each match creates one BUY and one SELL contract at the hour's day-ahead
// price. A bid becomes EXECUTED only when its remaining quantity reaches
// zero; partial fills stay PENDING with reduced quantity and carry to the
// next pass. Hours without a day-ahead price are skipped entirely.
//
// Re-running Clear on an unchanged date is idempotent: executed bids are
// excluded by the PENDING filter, so no duplicate contracts appear.
func (e *Engine) Clear(ctx context.Context, date time.Time) (*Result, error) {
	lock := e.lockDate(date)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	defer func() {
		metrics.ClearingRuns.Inc()
		metrics.ClearingLatency.Observe(time.Since(start).Seconds())
	}()

	day := model.DateOf(date)
	pending, err := e.store.ListPendingBidsByDate(ctx, day)
	if err != nil {
		return nil, err
	}

	result := &Result{Date: day, BidsProcessed: len(pending)}
	if len(pending) == 0 {
		return result, nil
	}

	daKind := model.KindDayAhead
	quotes, err := e.store.ListQuotes(ctx, day, &daKind)
	if err != nil {
		return nil, err
	}
	daPrices := make(map[int]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		daPrices[q.Hour] = q.Price
	}

	// Bucket by hour and side. Buckets hold pointers into one backing
	// slice so quantity decrements survive across the two passes below.
	bids := make([]model.Bid, len(pending))
	copy(bids, pending)

	buysByHour := make(map[int][]*model.Bid)
	sellsByHour := make(map[int][]*model.Bid)
	for i := range bids {
		b := &bids[i]
		if b.Side == model.SideBuy {
			buysByHour[b.Hour] = append(buysByHour[b.Hour], b)
		} else {
			sellsByHour[b.Hour] = append(sellsByHour[b.Hour], b)
		}
	}

	now := e.Now().UTC()
	changed := make(map[string]*model.Bid)
	var contracts []model.Contract

	for hour := 0; hour < 24; hour++ {
		daPrice, ok := daPrices[hour]
		if !ok {
			// No reference price: the hour's bids stay PENDING.
			continue
		}

		buys := buysByHour[hour]
		sells := sellsByHour[hour]
		if len(buys) == 0 || len(sells) == 0 {
			continue
		}

		// Price priority; submission order breaks ties.
		sort.SliceStable(buys, func(i, j int) bool {
			return buys[i].Price.GreaterThan(buys[j].Price)
		})
		sort.SliceStable(sells, func(i, j int) bool {
			return sells[i].Price.LessThan(sells[j].Price)
		})

		for _, buy := range buys {
			for _, sell := range sells {
				if sell.Quantity.IsZero() {
					continue
				}
				if buy.Price.LessThan(sell.Price) {
					// Sells are sorted ascending: no cheaper seller remains.
					break
				}

				traded := decimal.Min(buy.Quantity, sell.Quantity)
				contracts = append(contracts,
					newContract(buy, traded, daPrice, day, now),
					newContract(sell, traded, daPrice, day, now),
				)

				buy.Quantity = buy.Quantity.Sub(traded)
				sell.Quantity = sell.Quantity.Sub(traded)
				changed[buy.ID] = buy
				changed[sell.ID] = sell

				if sell.Quantity.IsZero() {
					markExecuted(sell, daPrice, now)
				}
				if buy.Quantity.IsZero() {
					markExecuted(buy, daPrice, now)
					break
				}
			}
		}
	}

	changedBids := make([]model.Bid, 0, len(changed))
	for _, b := range changed {
		changedBids = append(changedBids, *b)
	}

	if err := e.store.CommitClearing(ctx, contracts, changedBids); err != nil {
		return nil, err
	}

	for _, c := range contracts {
		metrics.ContractsCreated.WithLabelValues(string(c.Side)).Inc()
	}
	result.ContractsCreated = len(contracts)

	slog.Info("market cleared",
		"date", day.Format(model.DateLayout),
		"bids_processed", result.BidsProcessed,
		"contracts_created", result.ContractsCreated,
	)
	return result, nil
}

func newContract(bid *model.Bid, quantity, price decimal.Decimal, day time.Time, now time.Time) model.Contract {
	return model.Contract{
		ID:             uuid.New().String(),
		BidID:          bid.ID,
		Owner:          bid.Owner,
		Hour:           bid.Hour,
		Side:           bid.Side,
		Quantity:       quantity,
		ExecutionPrice: price,
		ExecutionDate:  day,
		ExecutionTime:  now,
		Status:         model.ContractActive,
	}
}

func markExecuted(bid *model.Bid, price decimal.Decimal, now time.Time) {
	bid.Status = model.BidExecuted
	p := price
	t := now
	bid.ExecutionPrice = &p
	bid.ExecutionTime = &t
}

// Summary aggregates the contracts already created for a date.
type Summary struct {
	Date           time.Time       `json:"date"`
	TotalContracts int             `json:"total_contracts"`
	BuyContracts   int             `json:"buy_contracts"`
	SellContracts  int             `json:"sell_contracts"`
	TotalVolume    decimal.Decimal `json:"total_volume_mwh"`
	AveragePrice   decimal.Decimal `json:"average_price"` // volume-weighted
}

// GetSummary reports contract counts, traded volume, and the volume-weighted
// average execution price for a date.
func (e *Engine) GetSummary(ctx context.Context, date time.Time) (*Summary, error) {
	day := model.DateOf(date)
	contracts, err := e.store.ListContracts(ctx, store.ContractFilter{Date: &day})
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Date:         day,
		TotalVolume:  decimal.Zero,
		AveragePrice: decimal.Zero,
	}
	weighted := decimal.Zero
	for _, c := range contracts {
		s.TotalContracts++
		if c.Side == model.SideBuy {
			s.BuyContracts++
		} else {
			s.SellContracts++
		}
		s.TotalVolume = s.TotalVolume.Add(c.Quantity)
		weighted = weighted.Add(c.ExecutionPrice.Mul(c.Quantity))
	}
	if s.TotalVolume.IsPositive() {
		s.AveragePrice = weighted.Div(s.TotalVolume).Round(2)
	}
	return s, nil
}
