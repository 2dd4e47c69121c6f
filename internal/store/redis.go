package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridclear/settlement-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache over price-quote reads, the hottest query path (every PnL pass and
// chart render hits them). Quote writes invalidate the affected date; all
// other operations pass through to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Cached quote reads ---

func (s *CachedStore) ListQuotes(ctx context.Context, date time.Time, kind *model.QuoteKind) ([]model.PriceQuote, error) {
	key := quotesKey(date, kind)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var quotes []model.PriceQuote
		if json.Unmarshal(data, &quotes) == nil {
			return quotes, nil
		}
	}

	quotes, err := s.primary.ListQuotes(ctx, date, kind)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(quotes); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return quotes, nil
}

func (s *CachedStore) GetQuote(ctx context.Context, date time.Time, hour int, kind model.QuoteKind) (*model.PriceQuote, error) {
	key := quoteKey(date, hour, kind)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var q model.PriceQuote
		if json.Unmarshal(data, &q) == nil {
			return &q, nil
		}
	}

	q, err := s.primary.GetQuote(ctx, date, hour, kind)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(q); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return q, nil
}

// --- Quote writes (write to primary, invalidate cache) ---

func (s *CachedStore) InsertQuotes(ctx context.Context, quotes []model.PriceQuote) error {
	if err := s.primary.InsertQuotes(ctx, quotes); err != nil {
		return err
	}
	s.invalidateQuotes(ctx, quotes)
	return nil
}

func (s *CachedStore) UpdateQuotes(ctx context.Context, quotes []model.PriceQuote) error {
	if err := s.primary.UpdateQuotes(ctx, quotes); err != nil {
		return err
	}
	s.invalidateQuotes(ctx, quotes)
	return nil
}

func (s *CachedStore) invalidateQuotes(ctx context.Context, quotes []model.PriceQuote) {
	seen := make(map[string]bool)
	var keys []string
	for _, q := range quotes {
		kind := q.Kind
		for _, k := range []string{
			quotesKey(q.Date, nil),
			quotesKey(q.Date, &kind),
			quoteKey(q.Date, q.Hour, q.Kind),
		} {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateBid(ctx context.Context, bid *model.Bid) error {
	return s.primary.CreateBid(ctx, bid)
}

func (s *CachedStore) CreateBidIfUnderQuota(ctx context.Context, bid *model.Bid, max int) error {
	return s.primary.CreateBidIfUnderQuota(ctx, bid, max)
}

func (s *CachedStore) GetBid(ctx context.Context, id string) (*model.Bid, error) {
	return s.primary.GetBid(ctx, id)
}

func (s *CachedStore) UpdateBid(ctx context.Context, bid *model.Bid) error {
	return s.primary.UpdateBid(ctx, bid)
}

func (s *CachedStore) DeleteBid(ctx context.Context, id string) error {
	return s.primary.DeleteBid(ctx, id)
}

func (s *CachedStore) ListBidsByOwner(ctx context.Context, owner string, date *time.Time) ([]model.Bid, error) {
	return s.primary.ListBidsByOwner(ctx, owner, date)
}

func (s *CachedStore) ListPendingBids(ctx context.Context, hour *int) ([]model.Bid, error) {
	return s.primary.ListPendingBids(ctx, hour)
}

func (s *CachedStore) ListPendingBidsByDate(ctx context.Context, date time.Time) ([]model.Bid, error) {
	return s.primary.ListPendingBidsByDate(ctx, date)
}

func (s *CachedStore) CountPendingBids(ctx context.Context, owner string, hour int, date time.Time) (int, error) {
	return s.primary.CountPendingBids(ctx, owner, hour, date)
}

func (s *CachedStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	return s.primary.GetContract(ctx, id)
}

func (s *CachedStore) ListContracts(ctx context.Context, filter ContractFilter) ([]model.Contract, error) {
	return s.primary.ListContracts(ctx, filter)
}

func (s *CachedStore) UpdateContractStatus(ctx context.Context, id string, status model.ContractStatus) error {
	return s.primary.UpdateContractStatus(ctx, id, status)
}

func (s *CachedStore) CompleteActiveContracts(ctx context.Context, date time.Time) (int, error) {
	return s.primary.CompleteActiveContracts(ctx, date)
}

func (s *CachedStore) ReplacePnLEntries(ctx context.Context, owner string, date time.Time, entries []model.PnLEntry) error {
	return s.primary.ReplacePnLEntries(ctx, owner, date, entries)
}

func (s *CachedStore) ListPnLEntries(ctx context.Context, owner string, start, end *time.Time) ([]model.PnLEntry, error) {
	return s.primary.ListPnLEntries(ctx, owner, start, end)
}

func (s *CachedStore) CommitClearing(ctx context.Context, contracts []model.Contract, bids []model.Bid) error {
	return s.primary.CommitClearing(ctx, contracts, bids)
}

// --- Cache keys ---

func quotesKey(date time.Time, kind *model.QuoteKind) string {
	k := "ALL"
	if kind != nil {
		k = string(*kind)
	}
	return fmt.Sprintf("quotes:%s:%s", model.DateOf(date).Format(model.DateLayout), k)
}

func quoteKey(date time.Time, hour int, kind model.QuoteKind) string {
	return fmt.Sprintf("quote:%s:%d:%s", model.DateOf(date).Format(model.DateLayout), hour, kind)
}
