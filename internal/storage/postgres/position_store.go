package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
// Save replaces the whole table inside one transaction.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	id, ticker, event_ticker, title, kind, action, side, order_id, simulated,
	target_price, entry_price, fill_count, bet_amount, entry_time, exit_time,
	hold_to_settle, status, exit_attempts, exit_order_id, exit_price, exit_fill_count,
	result, realized_pnl, closed_at
`

// Load returns all positions split into open and closed.
// Closed positions are ordered by close time.
func (s *PositionStore) Load(ctx context.Context) (*domain.PositionBook, error) {
	start := time.Now()
	book, err := s.load(ctx)
	observe("positions_load", start, err)
	return book, err
}

func (s *PositionStore) load(ctx context.Context) (*domain.PositionBook, error) {
	query := `SELECT ` + positionColumns + ` FROM positions ORDER BY closed_at NULLS FIRST, entry_time, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	book := &domain.PositionBook{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		if p.Status.Terminal() {
			book.Closed = append(book.Closed, p)
		} else {
			book.Open = append(book.Open, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return book, nil
}

// Save atomically replaces every stored position with book.
func (s *PositionStore) Save(ctx context.Context, book *domain.PositionBook) error {
	if book == nil {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	err := s.save(ctx, book)
	observe("positions_save", start, err)
	return err
}

func (s *PositionStore) save(ctx context.Context, book *domain.PositionBook) error {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}

	query := `
		INSERT INTO positions (` + positionColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21,
			$22, $23, $24
		)
	`

	insert := func(p *domain.Position) error {
		_, err := tx.Exec(ctx, query,
			p.ID, p.Ticker, p.EventTicker, p.Title, string(p.Kind), string(p.Action), string(p.Side), p.OrderID, p.Simulated,
			int64(p.TargetPrice), int64(p.EntryPrice), p.FillCount, int64(p.BetAmount), p.EntryTime, nullTime(p.ExitTime),
			p.HoldToSettle, string(p.Status), p.ExitAttempts, p.ExitOrderID, int64(p.ExitPrice), p.ExitFillCount,
			p.Result, int64(p.RealizedPnL), nullTime(p.ClosedAt),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert position %s: %w", p.ID, err)
		}
		return nil
	}

	for i := range book.Open {
		if err := insert(&book.Open[i]); err != nil {
			return err
		}
	}
	for i := range book.Closed {
		if err := insert(&book.Closed[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanPosition(rows pgx.Rows) (domain.Position, error) {
	var (
		p                                             domain.Position
		kind, action, side, status                    string
		targetPrice, entryPrice, betAmount, exitPrice int64
		realizedPnL                                   int64
		exitTime, closedAt                            *time.Time
	)
	err := rows.Scan(
		&p.ID, &p.Ticker, &p.EventTicker, &p.Title, &kind, &action, &side, &p.OrderID, &p.Simulated,
		&targetPrice, &entryPrice, &p.FillCount, &betAmount, &p.EntryTime, &exitTime,
		&p.HoldToSettle, &status, &p.ExitAttempts, &p.ExitOrderID, &exitPrice, &p.ExitFillCount,
		&p.Result, &realizedPnL, &closedAt,
	)
	if err != nil {
		return domain.Position{}, fmt.Errorf("scan position: %w", err)
	}

	p.Kind = domain.SignalKind(kind)
	p.Action = domain.FadeAction(action)
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	p.TargetPrice = domain.Cents(targetPrice)
	p.EntryPrice = domain.Cents(entryPrice)
	p.BetAmount = domain.Cents(betAmount)
	p.ExitPrice = domain.Cents(exitPrice)
	p.RealizedPnL = domain.Cents(realizedPnL)
	p.EntryTime = p.EntryTime.UTC()
	p.ExitTime = fromNullTime(exitTime)
	p.ClosedAt = fromNullTime(closedAt)
	return p, nil
}
