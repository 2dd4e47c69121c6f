package clearing_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridclear/settlement-engine/internal/clearing"
	"github.com/gridclear/settlement-engine/internal/model"
	"github.com/gridclear/settlement-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var tradingDay = time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)

var bidSeq int

// seedBid inserts a PENDING bid directly into the store. Submission order
// is encoded in SubmittedAt so tie-breaking is deterministic.
func seedBid(t *testing.T, ms *store.MemoryStore, owner string, hour int, side model.BidSide, qty, price float64) *model.Bid {
	t.Helper()
	bidSeq++
	bid := &model.Bid{
		ID:          fmt.Sprintf("bid-%03d", bidSeq),
		Owner:       owner,
		Hour:        hour,
		Side:        side,
		Quantity:    d(qty),
		Price:       d(price),
		Status:      model.BidPending,
		TradingDate: tradingDay,
		SubmittedAt: tradingDay.Add(time.Duration(bidSeq) * time.Second),
	}
	if err := ms.CreateBid(context.Background(), bid); err != nil {
		t.Fatalf("seed bid failed: %v", err)
	}
	return bid
}

// seedDayAhead inserts a day-ahead quote for one hour.
func seedDayAhead(t *testing.T, ms *store.MemoryStore, hour int, price float64) {
	t.Helper()
	q := model.PriceQuote{
		ID:          fmt.Sprintf("quote-da-%02d", hour),
		Date:        tradingDay,
		Hour:        hour,
		Kind:        model.KindDayAhead,
		Price:       d(price),
		Source:      "synthetic",
		GeneratedAt: tradingDay,
	}
	if err := ms.InsertQuotes(context.Background(), []model.PriceQuote{q}); err != nil {
		t.Fatalf("seed quote failed: %v", err)
	}
}

func clear(t *testing.T, engine *clearing.Engine) *clearing.Result {
	t.Helper()
	res, err := engine.Clear(context.Background(), tradingDay)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	return res
}

func TestClear_MatchesCrossingPair(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	buy := seedBid(t, ms, "buyer", 8, model.SideBuy, 10, 50)
	sell := seedBid(t, ms, "seller", 8, model.SideSell, 10, 45)
	seedDayAhead(t, ms, 8, 52.5)

	res := clear(t, engine)

	if res.ContractsCreated != 2 {
		t.Fatalf("expected 2 contracts, got %d", res.ContractsCreated)
	}
	if res.BidsProcessed != 2 {
		t.Errorf("expected 2 bids processed, got %d", res.BidsProcessed)
	}

	contracts, err := ms.ListContracts(context.Background(), store.ContractFilter{Date: &tradingDay})
	if err != nil {
		t.Fatalf("list contracts failed: %v", err)
	}
	if len(contracts) != 2 {
		t.Fatalf("expected 2 stored contracts, got %d", len(contracts))
	}
	for _, c := range contracts {
		if !c.ExecutionPrice.Equal(d(52.5)) {
			t.Errorf("expected execution at day-ahead price 52.5, got %s", c.ExecutionPrice)
		}
		if !c.Quantity.Equal(d(10)) {
			t.Errorf("expected quantity 10, got %s", c.Quantity)
		}
		if c.Status != model.ContractActive {
			t.Errorf("expected ACTIVE contract, got %s", c.Status)
		}
	}

	for _, id := range []string{buy.ID, sell.ID} {
		b, err := ms.GetBid(context.Background(), id)
		if err != nil {
			t.Fatalf("get bid failed: %v", err)
		}
		if b.Status != model.BidExecuted {
			t.Errorf("bid %s: expected EXECUTED, got %s", id, b.Status)
		}
		if b.ExecutionPrice == nil || !b.ExecutionPrice.Equal(d(52.5)) {
			t.Errorf("bid %s: expected execution price 52.5, got %v", id, b.ExecutionPrice)
		}
		if b.ExecutionTime == nil {
			t.Errorf("bid %s: expected execution time set", id)
		}
	}
}

func TestClear_NoCrossNoMatch(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	seedBid(t, ms, "buyer", 8, model.SideBuy, 10, 40)
	seedBid(t, ms, "seller", 8, model.SideSell, 10, 50)
	seedDayAhead(t, ms, 8, 45)

	res := clear(t, engine)
	if res.ContractsCreated != 0 {
		t.Errorf("expected no contracts when bids do not cross, got %d", res.ContractsCreated)
	}
}

func TestClear_HourBucketsDoNotMix(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	// Prices cross but the bids sit in different hours.
	seedBid(t, ms, "buyer", 8, model.SideBuy, 10, 50)
	seedBid(t, ms, "seller", 9, model.SideSell, 10, 40)
	seedDayAhead(t, ms, 8, 45)
	seedDayAhead(t, ms, 9, 45)

	res := clear(t, engine)
	if res.ContractsCreated != 0 {
		t.Errorf("expected no cross-hour matching, got %d contracts", res.ContractsCreated)
	}
}

func TestClear_SkipsHourWithoutDayAheadPrice(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	buy := seedBid(t, ms, "buyer", 8, model.SideBuy, 10, 50)
	seedBid(t, ms, "seller", 8, model.SideSell, 10, 45)
	// No quote for hour 8.

	res := clear(t, engine)
	if res.ContractsCreated != 0 {
		t.Fatalf("expected no contracts without a reference price, got %d", res.ContractsCreated)
	}

	b, err := ms.GetBid(context.Background(), buy.ID)
	if err != nil {
		t.Fatalf("get bid failed: %v", err)
	}
	if b.Status != model.BidPending {
		t.Errorf("expected bid to stay PENDING, got %s", b.Status)
	}
}

func TestClear_PartialFillStaysPending(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	buy := seedBid(t, ms, "buyer", 8, model.SideBuy, 10, 50)
	sell := seedBid(t, ms, "seller", 8, model.SideSell, 4, 45)
	seedDayAhead(t, ms, 8, 48)

	res := clear(t, engine)
	if res.ContractsCreated != 2 {
		t.Fatalf("expected 2 contracts, got %d", res.ContractsCreated)
	}

	b, err := ms.GetBid(context.Background(), buy.ID)
	if err != nil {
		t.Fatalf("get bid failed: %v", err)
	}
	if b.Status != model.BidPending {
		t.Errorf("expected partially filled buy to stay PENDING, got %s", b.Status)
	}
	if !b.Quantity.Equal(d(6)) {
		t.Errorf("expected remaining quantity 6, got %s", b.Quantity)
	}

	s, err := ms.GetBid(context.Background(), sell.ID)
	if err != nil {
		t.Fatalf("get bid failed: %v", err)
	}
	if s.Status != model.BidExecuted {
		t.Errorf("expected fully filled sell to be EXECUTED, got %s", s.Status)
	}

	contracts, _ := ms.ListContracts(context.Background(), store.ContractFilter{Date: &tradingDay})
	for _, c := range contracts {
		if !c.Quantity.Equal(d(4)) {
			t.Errorf("expected traded quantity 4, got %s", c.Quantity)
		}
	}
}

func TestClear_BuyFillsAcrossMultipleSells(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	buy := seedBid(t, ms, "buyer", 8, model.SideBuy, 10, 50)
	seedBid(t, ms, "seller1", 8, model.SideSell, 4, 44)
	seedBid(t, ms, "seller2", 8, model.SideSell, 6, 46)
	seedDayAhead(t, ms, 8, 48)

	res := clear(t, engine)
	if res.ContractsCreated != 4 {
		t.Fatalf("expected 4 contracts (2 matches), got %d", res.ContractsCreated)
	}

	b, _ := ms.GetBid(context.Background(), buy.ID)
	if b.Status != model.BidExecuted {
		t.Errorf("expected buy to be EXECUTED, got %s", b.Status)
	}
}

func TestClear_PricePriority(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	// The cheap seller must fill before the expensive one.
	cheap := seedBid(t, ms, "seller-cheap", 8, model.SideSell, 5, 40)
	expensive := seedBid(t, ms, "seller-exp", 8, model.SideSell, 5, 49)
	seedBid(t, ms, "buyer", 8, model.SideBuy, 5, 45)
	seedDayAhead(t, ms, 8, 47)

	res := clear(t, engine)
	if res.ContractsCreated != 2 {
		t.Fatalf("expected 2 contracts, got %d", res.ContractsCreated)
	}

	c, _ := ms.GetBid(context.Background(), cheap.ID)
	if c.Status != model.BidExecuted {
		t.Errorf("expected cheapest seller filled, got %s", c.Status)
	}
	e, _ := ms.GetBid(context.Background(), expensive.ID)
	if e.Status != model.BidPending {
		t.Errorf("expected expensive seller untouched, got %s", e.Status)
	}
	if !e.Quantity.Equal(d(5)) {
		t.Errorf("expected expensive seller quantity unchanged, got %s", e.Quantity)
	}
}

func TestClear_Idempotent(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	seedBid(t, ms, "buyer", 8, model.SideBuy, 10, 50)
	seedBid(t, ms, "seller", 8, model.SideSell, 10, 45)
	seedDayAhead(t, ms, 8, 48)

	first := clear(t, engine)
	if first.ContractsCreated != 2 {
		t.Fatalf("expected 2 contracts on first pass, got %d", first.ContractsCreated)
	}

	second := clear(t, engine)
	if second.ContractsCreated != 0 {
		t.Errorf("expected idempotent re-run, got %d new contracts", second.ContractsCreated)
	}

	contracts, _ := ms.ListContracts(context.Background(), store.ContractFilter{Date: &tradingDay})
	if len(contracts) != 2 {
		t.Errorf("expected 2 total contracts after re-run, got %d", len(contracts))
	}
}

func TestClear_EmptyBook(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	res := clear(t, engine)
	if res.ContractsCreated != 0 || res.BidsProcessed != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestGetSummary(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	seedBid(t, ms, "buyer", 8, model.SideBuy, 10, 50)
	seedBid(t, ms, "seller", 8, model.SideSell, 10, 45)
	seedDayAhead(t, ms, 8, 48)
	clear(t, engine)

	s, err := engine.GetSummary(context.Background(), tradingDay)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if s.TotalContracts != 2 || s.BuyContracts != 1 || s.SellContracts != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if !s.TotalVolume.Equal(d(20)) {
		t.Errorf("expected total volume 20, got %s", s.TotalVolume)
	}
	if !s.AveragePrice.Equal(d(48)) {
		t.Errorf("expected average price 48, got %s", s.AveragePrice)
	}
}

func TestGetSummary_EmptyDate(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := clearing.NewEngine(ms)

	s, err := engine.GetSummary(context.Background(), tradingDay)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if s.TotalContracts != 0 {
		t.Errorf("expected 0 contracts, got %d", s.TotalContracts)
	}
	if !s.AveragePrice.IsZero() {
		t.Errorf("expected zero average price, got %s", s.AveragePrice)
	}
}
