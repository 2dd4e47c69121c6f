package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gridclear/settlement-engine/internal/api"
	"github.com/gridclear/settlement-engine/internal/bidding"
	"github.com/gridclear/settlement-engine/internal/clearing"
	"github.com/gridclear/settlement-engine/internal/contracts"
	"github.com/gridclear/settlement-engine/internal/model"
	"github.com/gridclear/settlement-engine/internal/pnl"
	"github.com/gridclear/settlement-engine/internal/prices"
	"github.com/gridclear/settlement-engine/internal/store"
)

// morning keeps bid submission open (cutoff is 11:00 UTC).
var morning = time.Date(2025, 8, 15, 9, 30, 0, 0, time.UTC)

const dateStr = "2025-08-15"

type testEnv struct {
	server *httptest.Server
	store  *store.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ms := store.NewMemoryStore()

	book := bidding.NewBook(ms, 11)
	book.Now = func() time.Time { return morning }
	engine := clearing.NewEngine(ms)
	ledger := contracts.NewLedger(ms)
	oracle := prices.NewOracle(ms, rand.New(rand.NewSource(42)))
	calc := pnl.NewCalculator(ms)

	srv := api.NewServer(book, engine, ledger, oracle, calc, nil)
	r := chi.NewRouter()
	srv.Routes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, store: ms}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body failed: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return v
}

func submitBidReq(owner string, hour int, side model.BidSide, qty, price float64) map[string]any {
	return map[string]any{
		"owner":    owner,
		"hour":     hour,
		"side":     side,
		"quantity": qty,
		"price":    price,
	}
}

func TestSubmitBid(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/bids", submitBidReq("trader1", 8, model.SideBuy, 10, 45.5))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	bid := decode[model.Bid](t, resp)
	if bid.ID == "" || bid.Status != model.BidPending {
		t.Errorf("unexpected bid: %+v", bid)
	}
}

func TestSubmitBid_Invalid(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/bids", submitBidReq("trader1", 25, model.SideBuy, 10, 45.5))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad hour, got %d", resp.StatusCode)
	}
}

func TestSubmitBid_QuotaExceeded(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 10; i++ {
		resp := env.do(t, http.MethodPost, "/api/v1/bids", submitBidReq("trader1", 8, model.SideBuy, 10, 45))
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("bid %d: expected 201, got %d", i, resp.StatusCode)
		}
	}

	resp := env.do(t, http.MethodPost, "/api/v1/bids", submitBidReq("trader1", 8, model.SideBuy, 10, 45))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for quota breach, got %d", resp.StatusCode)
	}
}

func TestGetBid_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/bids/nope", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListBids_RequiresOwner(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/bids", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without owner, got %d", resp.StatusCode)
	}
}

func TestListPendingBids_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/bids/pending", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	bids := decode[[]model.Bid](t, resp)
	if bids == nil {
		t.Error("expected empty array, got null")
	}
}

func TestUpdateBid_ExecutedConflicts(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/bids", submitBidReq("trader1", 8, model.SideBuy, 10, 45))
	bid := decode[model.Bid](t, resp)

	bid.Status = model.BidExecuted
	if err := env.store.UpdateBid(context.Background(), &bid); err != nil {
		t.Fatalf("seed update failed: %v", err)
	}

	resp = env.do(t, http.MethodPut, "/api/v1/bids/"+bid.ID, map[string]any{"quantity": 20})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for executed bid, got %d", resp.StatusCode)
	}
}

func TestDeleteBid(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/bids", submitBidReq("trader1", 8, model.SideBuy, 10, 45))
	bid := decode[model.Bid](t, resp)

	resp = env.do(t, http.MethodDelete, "/api/v1/bids/"+bid.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/bids/"+bid.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestClearingFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/prices/"+dateStr+"/generate?kind=DAY_AHEAD", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate: expected 201, got %d", resp.StatusCode)
	}

	for _, b := range []map[string]any{
		submitBidReq("buyer", 8, model.SideBuy, 10, 100),
		submitBidReq("seller", 8, model.SideSell, 10, 1),
	} {
		resp := env.do(t, http.MethodPost, "/api/v1/bids", b)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("submit: expected 201, got %d", resp.StatusCode)
		}
	}

	resp = env.do(t, http.MethodPost, "/api/v1/clearing/"+dateStr, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", resp.StatusCode)
	}
	result := decode[clearing.Result](t, resp)
	if result.ContractsCreated != 2 {
		t.Errorf("expected 2 contracts, got %d", result.ContractsCreated)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/clearing/"+dateStr+"/summary", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", resp.StatusCode)
	}
	summary := decode[clearing.Summary](t, resp)
	if summary.TotalContracts != 2 {
		t.Errorf("expected 2 contracts in summary, got %d", summary.TotalContracts)
	}
}

func TestClearing_BadDate(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/clearing/15-08-2025", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad date, got %d", resp.StatusCode)
	}
}

func TestGetPriceAtHour_Missing(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/prices/"+dateStr+"/hours/8?kind=DAY_AHEAD", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing quote, got %d", resp.StatusCode)
	}
}

func TestPnLFlow(t *testing.T) {
	env := newTestEnv(t)

	// Contracts and quotes seeded directly; the flow under test is
	// calculate -> summary -> portfolio over HTTP.
	day := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	c := model.Contract{
		ID: "contract-1", BidID: "bid-1", Owner: "trader1", Hour: 8,
		Side: model.SideBuy, Quantity: decimal.NewFromInt(10),
		ExecutionPrice: decimal.NewFromInt(40), ExecutionDate: day,
		ExecutionTime: day.Add(11 * time.Hour), Status: model.ContractCompleted,
	}
	if err := env.store.CommitClearing(context.Background(), []model.Contract{c}, nil); err != nil {
		t.Fatalf("seed contract failed: %v", err)
	}
	quotes := []model.PriceQuote{
		{ID: "q-da", Date: day, Hour: 8, Kind: model.KindDayAhead, Price: decimal.NewFromInt(40), Source: "synthetic", GeneratedAt: day},
		{ID: "q-rt", Date: day, Hour: 8, Kind: model.KindRealTime, Price: decimal.NewFromInt(50), Source: "synthetic", GeneratedAt: day},
	}
	if err := env.store.InsertQuotes(context.Background(), quotes); err != nil {
		t.Fatalf("seed quotes failed: %v", err)
	}

	resp := env.do(t, http.MethodPost, "/api/v1/pnl/trader1/"+dateStr+"/calculate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("calculate: expected 200, got %d", resp.StatusCode)
	}
	entries := decode[[]model.PnLEntry](t, resp)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected amount 100, got %s", entries[0].Amount)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/pnl/trader1/"+dateStr+"/summary", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", resp.StatusCode)
	}
	summary := decode[pnl.Summary](t, resp)
	if !summary.RealizedPnL.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected realized 100, got %s", summary.RealizedPnL)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/pnl/trader1/portfolio", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("portfolio: expected 200, got %d", resp.StatusCode)
	}
	portfolio := decode[pnl.Portfolio](t, resp)
	if portfolio.TotalContracts != 1 {
		t.Errorf("expected 1 contract, got %d", portfolio.TotalContracts)
	}
}

func TestContractsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	day := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	var seeded []model.Contract
	for i := 0; i < 3; i++ {
		seeded = append(seeded, model.Contract{
			ID: fmt.Sprintf("contract-%d", i), BidID: fmt.Sprintf("bid-%d", i),
			Owner: "trader1", Hour: 8, Side: model.SideBuy,
			Quantity:       decimal.NewFromInt(10),
			ExecutionPrice: decimal.NewFromInt(40), ExecutionDate: day,
			ExecutionTime: day.Add(11 * time.Hour), Status: model.ContractActive,
		})
	}
	if err := env.store.CommitClearing(context.Background(), seeded, nil); err != nil {
		t.Fatalf("seed contracts failed: %v", err)
	}

	resp := env.do(t, http.MethodGet, "/api/v1/contracts?owner=trader1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	listed := decode[[]model.Contract](t, resp)
	if len(listed) != 3 {
		t.Errorf("expected 3 contracts, got %d", len(listed))
	}

	resp = env.do(t, http.MethodPut, "/api/v1/contracts/contract-0/status",
		map[string]any{"status": model.ContractCancelled})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status: expected 200, got %d", resp.StatusCode)
	}

	// Cancelled is terminal.
	resp = env.do(t, http.MethodPut, "/api/v1/contracts/contract-0/status",
		map[string]any{"status": model.ContractActive})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for terminal contract, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/contracts/complete-all-active?date="+dateStr, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete-all-active: expected 200, got %d", resp.StatusCode)
	}
	completed := decode[map[string]any](t, resp)
	if n, ok := completed["contracts_updated"].(float64); !ok || n != 2 {
		t.Errorf("expected 2 completed, got %v", completed["contracts_updated"])
	}

	resp = env.do(t, http.MethodGet, "/api/v1/contracts/summary?date="+dateStr, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", resp.StatusCode)
	}
	summary := decode[contracts.StatusSummary](t, resp)
	if summary.Total != 3 || summary.Completed != 2 || summary.Cancelled != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}
