package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gridclear/settlement-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const bidColumns = `id, owner, hour, side, quantity::TEXT, price::TEXT,
	trading_date, status, submitted_at, execution_price::TEXT, execution_time`

func scanBid(row pgx.Row) (*model.Bid, error) {
	var b model.Bid
	var qtyS, priceS string
	var execPriceS *string

	err := row.Scan(&b.ID, &b.Owner, &b.Hour, &b.Side, &qtyS, &priceS,
		&b.TradingDate, &b.Status, &b.SubmittedAt, &execPriceS, &b.ExecutionTime)
	if err != nil {
		return nil, err
	}

	b.Quantity, _ = decimal.NewFromString(qtyS)
	b.Price, _ = decimal.NewFromString(priceS)
	if execPriceS != nil {
		p, _ := decimal.NewFromString(*execPriceS)
		b.ExecutionPrice = &p
	}
	return &b, nil
}

func (s *PostgresStore) CreateBid(ctx context.Context, b *model.Bid) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bids (id, owner, hour, side, quantity, price, trading_date, status, submitted_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8, $9)`,
		b.ID, b.Owner, b.Hour, b.Side,
		b.Quantity.String(), b.Price.String(),
		model.DateOf(b.TradingDate), b.Status, b.SubmittedAt,
	)
	return err
}

// CreateBidIfUnderQuota serializes admissions into one (owner, hour, date)
// slot with a transaction-scoped advisory lock, so the quota count and the
// insert commit as a unit even across concurrent connections.
func (s *PostgresStore) CreateBidIfUnderQuota(ctx context.Context, b *model.Bid, max int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	day := model.DateOf(b.TradingDate)
	slot := fmt.Sprintf("%s|%d|%s", b.Owner, b.Hour, day.Format(model.DateLayout))
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot); err != nil {
		return err
	}

	var n int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM bids
		 WHERE owner = $1 AND hour = $2 AND trading_date = $3 AND status = 'PENDING'`,
		b.Owner, b.Hour, day).Scan(&n); err != nil {
		return err
	}
	if n >= max {
		return &model.QuotaExceededError{Owner: b.Owner, Hour: b.Hour, Date: day, Limit: max}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO bids (id, owner, hour, side, quantity, price, trading_date, status, submitted_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8, $9)`,
		b.ID, b.Owner, b.Hour, b.Side,
		b.Quantity.String(), b.Price.String(),
		day, b.Status, b.SubmittedAt,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetBid(ctx context.Context, id string) (*model.Bid, error) {
	b, err := scanBid(s.pool.QueryRow(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "bid", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get bid %s: %w", id, err)
	}
	return b, nil
}

func (s *PostgresStore) UpdateBid(ctx context.Context, b *model.Bid) error {
	var execPrice *string
	if b.ExecutionPrice != nil {
		p := b.ExecutionPrice.String()
		execPrice = &p
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE bids
		 SET quantity = $2::NUMERIC, price = $3::NUMERIC, status = $4,
		     execution_price = $5::NUMERIC, execution_time = $6
		 WHERE id = $1`,
		b.ID, b.Quantity.String(), b.Price.String(), b.Status, execPrice, b.ExecutionTime,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "bid", ID: b.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteBid(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bids WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "bid", ID: id}
	}
	return nil
}

func (s *PostgresStore) ListBidsByOwner(ctx context.Context, owner string, date *time.Time) ([]model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE owner = $1`
	args := []any{owner}
	if date != nil {
		query += ` AND trading_date = $2`
		args = append(args, model.DateOf(*date))
	}
	query += ` ORDER BY submitted_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBids(rows)
}

func (s *PostgresStore) ListPendingBids(ctx context.Context, hour *int) ([]model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE status = 'PENDING'`
	args := []any{}
	if hour != nil {
		query += ` AND hour = $1`
		args = append(args, *hour)
	}
	query += ` ORDER BY submitted_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBids(rows)
}

func (s *PostgresStore) ListPendingBidsByDate(ctx context.Context, date time.Time) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidColumns+` FROM bids
		 WHERE status = 'PENDING' AND trading_date = $1
		 ORDER BY submitted_at, id`, model.DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBids(rows)
}

func (s *PostgresStore) CountPendingBids(ctx context.Context, owner string, hour int, date time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bids
		 WHERE owner = $1 AND hour = $2 AND trading_date = $3 AND status = 'PENDING'`,
		owner, hour, model.DateOf(date)).Scan(&n)
	return n, err
}

func collectBids(rows pgx.Rows) ([]model.Bid, error) {
	var bids []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *b)
	}
	return bids, rows.Err()
}

// --- Contracts ---

const contractColumns = `id, bid_id, owner, hour, side, quantity::TEXT,
	execution_price::TEXT, execution_date, execution_time, status`

func scanContract(row pgx.Row) (*model.Contract, error) {
	var c model.Contract
	var qtyS, priceS string

	err := row.Scan(&c.ID, &c.BidID, &c.Owner, &c.Hour, &c.Side, &qtyS,
		&priceS, &c.ExecutionDate, &c.ExecutionTime, &c.Status)
	if err != nil {
		return nil, err
	}

	c.Quantity, _ = decimal.NewFromString(qtyS)
	c.ExecutionPrice, _ = decimal.NewFromString(priceS)
	return &c, nil
}

func (s *PostgresStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	c, err := scanContract(s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "contract", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get contract %s: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) ListContracts(ctx context.Context, filter ContractFilter) ([]model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE 1=1`
	args := []any{}

	if filter.Owner != "" {
		args = append(args, filter.Owner)
		query += fmt.Sprintf(` AND owner = $%d`, len(args))
	}
	if filter.Date != nil {
		args = append(args, model.DateOf(*filter.Date))
		query += fmt.Sprintf(` AND execution_date = $%d`, len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	query += ` ORDER BY execution_time, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

func (s *PostgresStore) UpdateContractStatus(ctx context.Context, id string, status model.ContractStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current model.ContractStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM contracts WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.NotFoundError{Entity: "contract", ID: id}
	}
	if err != nil {
		return err
	}

	if current.Terminal() && status != current {
		return &model.StateConflictError{Entity: "contract", ID: id, State: string(current)}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE contracts SET status = $2 WHERE id = $1`, id, status); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) CompleteActiveContracts(ctx context.Context, date time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contracts SET status = 'COMPLETED'
		 WHERE status = 'ACTIVE' AND execution_date = $1`, model.DateOf(date))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// --- Price quotes ---

const quoteColumns = `id, date, hour, kind, price::TEXT, source, generated_at`

func scanQuote(row pgx.Row) (*model.PriceQuote, error) {
	var q model.PriceQuote
	var priceS string

	err := row.Scan(&q.ID, &q.Date, &q.Hour, &q.Kind, &priceS, &q.Source, &q.GeneratedAt)
	if err != nil {
		return nil, err
	}
	q.Price, _ = decimal.NewFromString(priceS)
	return &q, nil
}

func (s *PostgresStore) InsertQuotes(ctx context.Context, quotes []model.PriceQuote) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, q := range quotes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO price_quotes (id, date, hour, kind, price, source, generated_at)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7)`,
			q.ID, model.DateOf(q.Date), q.Hour, q.Kind,
			q.Price.String(), q.Source, q.GeneratedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListQuotes(ctx context.Context, date time.Time, kind *model.QuoteKind) ([]model.PriceQuote, error) {
	query := `SELECT ` + quoteColumns + ` FROM price_quotes WHERE date = $1`
	args := []any{model.DateOf(date)}
	if kind != nil {
		query += ` AND kind = $2`
		args = append(args, *kind)
	}
	query += ` ORDER BY hour, kind`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []model.PriceQuote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, rows.Err()
}

func (s *PostgresStore) GetQuote(ctx context.Context, date time.Time, hour int, kind model.QuoteKind) (*model.PriceQuote, error) {
	q, err := scanQuote(s.pool.QueryRow(ctx,
		`SELECT `+quoteColumns+` FROM price_quotes
		 WHERE date = $1 AND hour = $2 AND kind = $3`,
		model.DateOf(date), hour, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{
			Entity: "quote",
			ID:     fmt.Sprintf("%s/%d/%s", model.DateOf(date).Format(model.DateLayout), hour, kind),
		}
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *PostgresStore) UpdateQuotes(ctx context.Context, quotes []model.PriceQuote) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, q := range quotes {
		tag, err := tx.Exec(ctx,
			`UPDATE price_quotes SET price = $2::NUMERIC, generated_at = $3 WHERE id = $1`,
			q.ID, q.Price.String(), q.GeneratedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &model.NotFoundError{Entity: "quote", ID: q.ID}
		}
	}
	return tx.Commit(ctx)
}

// --- PnL entries ---

func (s *PostgresStore) ReplacePnLEntries(ctx context.Context, owner string, date time.Time, entries []model.PnLEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM pnl_entries WHERE owner = $1 AND date = $2`,
		owner, model.DateOf(date)); err != nil {
		return err
	}

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO pnl_entries
			 (id, owner, contract_id, date, hour, day_ahead_price, real_time_price, quantity, amount, kind, calculated_at)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
			e.ID, e.Owner, e.ContractID, model.DateOf(e.Date), e.Hour,
			e.DayAheadPrice.String(), e.RealTimePrice.String(),
			e.Quantity.String(), e.Amount.String(), e.Kind, e.CalculatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListPnLEntries(ctx context.Context, owner string, start, end *time.Time) ([]model.PnLEntry, error) {
	query := `SELECT id, owner, contract_id, date, hour,
	          day_ahead_price::TEXT, real_time_price::TEXT, quantity::TEXT, amount::TEXT,
	          kind, calculated_at
	          FROM pnl_entries WHERE owner = $1`
	args := []any{owner}
	if start != nil {
		args = append(args, model.DateOf(*start))
		query += fmt.Sprintf(` AND date >= $%d`, len(args))
	}
	if end != nil {
		args = append(args, model.DateOf(*end))
		query += fmt.Sprintf(` AND date <= $%d`, len(args))
	}
	query += ` ORDER BY date DESC, hour`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.PnLEntry
	for rows.Next() {
		var e model.PnLEntry
		var daS, rtS, qtyS, amtS string
		if err := rows.Scan(&e.ID, &e.Owner, &e.ContractID, &e.Date, &e.Hour,
			&daS, &rtS, &qtyS, &amtS, &e.Kind, &e.CalculatedAt); err != nil {
			return nil, err
		}
		e.DayAheadPrice, _ = decimal.NewFromString(daS)
		e.RealTimePrice, _ = decimal.NewFromString(rtS)
		e.Quantity, _ = decimal.NewFromString(qtyS)
		e.Amount, _ = decimal.NewFromString(amtS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Clearing unit of work ---

// CommitClearing writes every contract creation and bid change of a clearing
// pass in a single transaction, so a failed pass leaves no partial state.
func (s *PostgresStore) CommitClearing(ctx context.Context, contracts []model.Contract, bids []model.Bid) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, c := range contracts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO contracts
			 (id, bid_id, owner, hour, side, quantity, execution_price, execution_date, execution_time, status)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10)`,
			c.ID, c.BidID, c.Owner, c.Hour, c.Side,
			c.Quantity.String(), c.ExecutionPrice.String(),
			model.DateOf(c.ExecutionDate), c.ExecutionTime, c.Status,
		); err != nil {
			return err
		}
	}

	for _, b := range bids {
		var execPrice *string
		if b.ExecutionPrice != nil {
			p := b.ExecutionPrice.String()
			execPrice = &p
		}
		tag, err := tx.Exec(ctx,
			`UPDATE bids
			 SET quantity = $2::NUMERIC, status = $3, execution_price = $4::NUMERIC, execution_time = $5
			 WHERE id = $1`,
			b.ID, b.Quantity.String(), b.Status, execPrice, b.ExecutionTime,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &model.NotFoundError{Entity: "bid", ID: b.ID}
		}
	}
	return tx.Commit(ctx)
}
