package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gridclear/settlement-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	bids      map[string]*model.Bid
	contracts map[string]*model.Contract
	quotes    map[string]*model.PriceQuote // key: date|hour|kind
	pnl       []model.PnLEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bids:      make(map[string]*model.Bid),
		contracts: make(map[string]*model.Contract),
		quotes:    make(map[string]*model.PriceQuote),
	}
}

func quoteMapKey(date time.Time, hour int, kind model.QuoteKind) string {
	return fmt.Sprintf("%s|%02d|%s", model.DateOf(date).Format(model.DateLayout), hour, kind)
}

func sameDate(a, b time.Time) bool {
	return model.DateOf(a).Equal(model.DateOf(b))
}

// --- Bids ---

func (s *MemoryStore) CreateBid(_ context.Context, bid *model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	b := *bid
	s.bids[bid.ID] = &b
	return nil
}

// CreateBidIfUnderQuota counts and inserts under one lock hold so concurrent
// submissions into the same slot serialize against the quota.
func (s *MemoryStore) CreateBidIfUnderQuota(_ context.Context, bid *model.Bid, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, b := range s.bids {
		if b.Status == model.BidPending && b.Owner == bid.Owner &&
			b.Hour == bid.Hour && sameDate(b.TradingDate, bid.TradingDate) {
			n++
		}
	}
	if n >= max {
		return &model.QuotaExceededError{
			Owner: bid.Owner,
			Hour:  bid.Hour,
			Date:  model.DateOf(bid.TradingDate),
			Limit: max,
		}
	}

	b := *bid
	s.bids[bid.ID] = &b
	return nil
}

func (s *MemoryStore) GetBid(_ context.Context, id string) (*model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bids[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "bid", ID: id}
	}
	out := *b
	return &out, nil
}

func (s *MemoryStore) UpdateBid(_ context.Context, bid *model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bids[bid.ID]; !ok {
		return &model.NotFoundError{Entity: "bid", ID: bid.ID}
	}
	b := *bid
	s.bids[bid.ID] = &b
	return nil
}

func (s *MemoryStore) DeleteBid(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bids[id]; !ok {
		return &model.NotFoundError{Entity: "bid", ID: id}
	}
	delete(s.bids, id)
	return nil
}

func (s *MemoryStore) ListBidsByOwner(_ context.Context, owner string, date *time.Time) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Bid
	for _, b := range s.bids {
		if b.Owner != owner {
			continue
		}
		if date != nil && !sameDate(b.TradingDate, *date) {
			continue
		}
		out = append(out, *b)
	}
	sortBids(out)
	return out, nil
}

func (s *MemoryStore) ListPendingBids(_ context.Context, hour *int) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Bid
	for _, b := range s.bids {
		if b.Status != model.BidPending {
			continue
		}
		if hour != nil && b.Hour != *hour {
			continue
		}
		out = append(out, *b)
	}
	sortBids(out)
	return out, nil
}

func (s *MemoryStore) ListPendingBidsByDate(_ context.Context, date time.Time) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Bid
	for _, b := range s.bids {
		if b.Status == model.BidPending && sameDate(b.TradingDate, date) {
			out = append(out, *b)
		}
	}
	sortBids(out)
	return out, nil
}

func (s *MemoryStore) CountPendingBids(_ context.Context, owner string, hour int, date time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, b := range s.bids {
		if b.Status == model.BidPending && b.Owner == owner && b.Hour == hour && sameDate(b.TradingDate, date) {
			n++
		}
	}
	return n, nil
}

func sortBids(bids []model.Bid) {
	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].SubmittedAt.Equal(bids[j].SubmittedAt) {
			return bids[i].SubmittedAt.Before(bids[j].SubmittedAt)
		}
		return bids[i].ID < bids[j].ID
	})
}

// --- Contracts ---

func (s *MemoryStore) GetContract(_ context.Context, id string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "contract", ID: id}
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) ListContracts(_ context.Context, filter ContractFilter) ([]model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Contract
	for _, c := range s.contracts {
		if filter.Owner != "" && c.Owner != filter.Owner {
			continue
		}
		if filter.Date != nil && !sameDate(c.ExecutionDate, *filter.Date) {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(c.Status, filter.Statuses) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExecutionTime.Equal(out[j].ExecutionTime) {
			return out[i].ExecutionTime.Before(out[j].ExecutionTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func statusIn(status model.ContractStatus, set []model.ContractStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func (s *MemoryStore) UpdateContractStatus(_ context.Context, id string, status model.ContractStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return &model.NotFoundError{Entity: "contract", ID: id}
	}
	if c.Status.Terminal() && status != c.Status {
		return &model.StateConflictError{Entity: "contract", ID: id, State: string(c.Status)}
	}
	c.Status = status
	return nil
}

func (s *MemoryStore) CompleteActiveContracts(_ context.Context, date time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.contracts {
		if c.Status == model.ContractActive && sameDate(c.ExecutionDate, date) {
			c.Status = model.ContractCompleted
			n++
		}
	}
	return n, nil
}

// --- Price quotes ---

func (s *MemoryStore) InsertQuotes(_ context.Context, quotes []model.PriceQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotes {
		qq := q
		s.quotes[quoteMapKey(q.Date, q.Hour, q.Kind)] = &qq
	}
	return nil
}

func (s *MemoryStore) ListQuotes(_ context.Context, date time.Time, kind *model.QuoteKind) ([]model.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PriceQuote
	for _, q := range s.quotes {
		if !sameDate(q.Date, date) {
			continue
		}
		if kind != nil && q.Kind != *kind {
			continue
		}
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func (s *MemoryStore) GetQuote(_ context.Context, date time.Time, hour int, kind model.QuoteKind) (*model.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[quoteMapKey(date, hour, kind)]
	if !ok {
		return nil, &model.NotFoundError{Entity: "quote", ID: quoteMapKey(date, hour, kind)}
	}
	out := *q
	return &out, nil
}

func (s *MemoryStore) UpdateQuotes(_ context.Context, quotes []model.PriceQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotes {
		key := quoteMapKey(q.Date, q.Hour, q.Kind)
		existing, ok := s.quotes[key]
		if !ok {
			return &model.NotFoundError{Entity: "quote", ID: key}
		}
		existing.Price = q.Price
		existing.GeneratedAt = q.GeneratedAt
	}
	return nil
}

// --- PnL entries ---

func (s *MemoryStore) ReplacePnLEntries(_ context.Context, owner string, date time.Time, entries []model.PnLEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.pnl[:0]
	for _, e := range s.pnl {
		if e.Owner == owner && sameDate(e.Date, date) {
			continue
		}
		kept = append(kept, e)
	}
	s.pnl = append(kept, entries...)
	return nil
}

func (s *MemoryStore) ListPnLEntries(_ context.Context, owner string, start, end *time.Time) ([]model.PnLEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PnLEntry
	for _, e := range s.pnl {
		if e.Owner != owner {
			continue
		}
		if start != nil && model.DateOf(e.Date).Before(model.DateOf(*start)) {
			continue
		}
		if end != nil && model.DateOf(e.Date).After(model.DateOf(*end)) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := model.DateOf(out[i].Date), model.DateOf(out[j].Date)
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return out[i].Hour < out[j].Hour
	})
	return out, nil
}

// --- Clearing unit of work ---

// CommitClearing applies all changes under one lock hold so a concurrent
// reader never observes a half-applied clearing pass.
func (s *MemoryStore) CommitClearing(_ context.Context, contracts []model.Contract, bids []model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bids {
		if _, ok := s.bids[b.ID]; !ok {
			return &model.NotFoundError{Entity: "bid", ID: b.ID}
		}
	}
	for _, c := range contracts {
		cc := c
		s.contracts[c.ID] = &cc
	}
	for _, b := range bids {
		bb := b
		s.bids[b.ID] = &bb
	}
	return nil
}
