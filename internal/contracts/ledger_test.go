package contracts_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridclear/settlement-engine/internal/contracts"
	"github.com/gridclear/settlement-engine/internal/model"
	"github.com/gridclear/settlement-engine/internal/store"
)

var day = time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)

var contractSeq int

func seedContract(t *testing.T, ms *store.MemoryStore, owner string, side model.BidSide, status model.ContractStatus) *model.Contract {
	t.Helper()
	contractSeq++
	c := model.Contract{
		ID:             fmt.Sprintf("contract-%03d", contractSeq),
		BidID:          fmt.Sprintf("bid-%03d", contractSeq),
		Owner:          owner,
		Hour:           8,
		Side:           side,
		Quantity:       decimal.NewFromInt(10),
		ExecutionPrice: decimal.NewFromFloat(48.50),
		ExecutionDate:  day,
		ExecutionTime:  day.Add(11 * time.Hour),
		Status:         status,
	}
	if err := ms.CommitClearing(context.Background(), []model.Contract{c}, nil); err != nil {
		t.Fatalf("seed contract failed: %v", err)
	}
	return &c
}

func TestUpdateStatus(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := contracts.NewLedger(ms)
	c := seedContract(t, ms, "trader1", model.SideBuy, model.ContractActive)

	updated, err := ledger.UpdateStatus(context.Background(), c.ID, model.ContractCompleted)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Status != model.ContractCompleted {
		t.Errorf("expected COMPLETED, got %s", updated.Status)
	}
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := contracts.NewLedger(ms)
	c := seedContract(t, ms, "trader1", model.SideBuy, model.ContractActive)

	_, err := ledger.UpdateStatus(context.Background(), c.ID, "SETTLED")
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := contracts.NewLedger(ms)

	_, err := ledger.UpdateStatus(context.Background(), "nope", model.ContractCompleted)
	var nf *model.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateStatus_TerminalIsImmutable(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := contracts.NewLedger(ms)

	cases := []model.ContractStatus{model.ContractCompleted, model.ContractCancelled}
	for _, terminal := range cases {
		t.Run(string(terminal), func(t *testing.T) {
			c := seedContract(t, ms, "trader1", model.SideBuy, terminal)

			_, err := ledger.UpdateStatus(context.Background(), c.ID, model.ContractActive)
			var sc *model.StateConflictError
			if !errors.As(err, &sc) {
				t.Fatalf("expected StateConflictError, got %v", err)
			}

			// Setting the same terminal status again is a no-op, not a conflict.
			if _, err := ledger.UpdateStatus(context.Background(), c.ID, terminal); err != nil {
				t.Errorf("expected idempotent terminal update, got %v", err)
			}
		})
	}
}

func TestCompleteAllActive(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := contracts.NewLedger(ms)

	a := seedContract(t, ms, "trader1", model.SideBuy, model.ContractActive)
	b := seedContract(t, ms, "trader2", model.SideSell, model.ContractActive)
	done := seedContract(t, ms, "trader1", model.SideBuy, model.ContractCompleted)

	n, err := ledger.CompleteAllActive(context.Background(), day)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 contracts completed, got %d", n)
	}

	for _, id := range []string{a.ID, b.ID, done.ID} {
		c, err := ledger.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if c.Status != model.ContractCompleted {
			t.Errorf("contract %s: expected COMPLETED, got %s", id, c.Status)
		}
	}

	// Re-run finds nothing left to complete.
	n, err = ledger.CompleteAllActive(context.Background(), day)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no-op re-run, got %d", n)
	}
}

func TestList_Filters(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := contracts.NewLedger(ms)

	seedContract(t, ms, "trader1", model.SideBuy, model.ContractActive)
	seedContract(t, ms, "trader1", model.SideSell, model.ContractCancelled)
	seedContract(t, ms, "trader2", model.SideBuy, model.ContractActive)

	byOwner, err := ledger.List(context.Background(), store.ContractFilter{Owner: "trader1"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(byOwner) != 2 {
		t.Errorf("expected 2 contracts for trader1, got %d", len(byOwner))
	}

	active, err := ledger.List(context.Background(), store.ContractFilter{
		Statuses: []model.ContractStatus{model.ContractActive},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active contracts, got %d", len(active))
	}
}

func TestSummarize(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := contracts.NewLedger(ms)

	seedContract(t, ms, "trader1", model.SideBuy, model.ContractActive)
	seedContract(t, ms, "trader1", model.SideSell, model.ContractActive)
	seedContract(t, ms, "trader2", model.SideBuy, model.ContractCompleted)
	seedContract(t, ms, "trader2", model.SideSell, model.ContractCancelled)

	s, err := ledger.Summarize(context.Background(), day)
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if s.Total != 4 || s.Active != 2 || s.Completed != 1 || s.Cancelled != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
}
