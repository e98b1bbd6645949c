package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/paperdesk/internal/domain"
)

// PerformanceRepository accumulates realized trading results per
// portfolio.
type PerformanceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPerformanceRepository creates a new performance repository
func NewPerformanceRepository(db *sql.DB, log zerolog.Logger) *PerformanceRepository {
	return &PerformanceRepository{
		db:  db,
		log: log.With().Str("repo", "performance").Logger(),
	}
}

// Get returns the performance counters for a portfolio. A portfolio
// with no sells yet has zero counters.
func (r *PerformanceRepository) Get(portfolioID int64) (*domain.Performance, error) {
	row := r.db.QueryRow(`SELECT portfolio_id, realized_pnl, winning_trades, losing_trades, updated_at
		FROM performance WHERE portfolio_id = ?`, portfolioID)

	var perf domain.Performance
	var updatedAt int64
	err := row.Scan(&perf.PortfolioID, &perf.RealizedPnL,
		&perf.WinningTrades, &perf.LosingTrades, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.Performance{PortfolioID: portfolioID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan performance: %w", err)
	}

	perf.UpdatedAt = time.Unix(updatedAt, 0)
	return &perf, nil
}

// ApplyRealizedTx adds one sell's realized P&L to the counters inside a
// database transaction. Positive P&L counts a win, negative a loss,
// break-even neither.
func (r *PerformanceRepository) ApplyRealizedTx(tx *sql.Tx, portfolioID int64, pnl domain.Money) error {
	win, loss := 0, 0
	if pnl.IsPositive() {
		win = 1
	} else if pnl.IsNegative() {
		loss = 1
	}

	row := tx.QueryRow(`SELECT realized_pnl FROM performance WHERE portfolio_id = ?`, portfolioID)
	var current domain.Money
	err := row.Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.Exec(`INSERT INTO performance (portfolio_id, realized_pnl, winning_trades, losing_trades, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			portfolioID, pnl, win, loss, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to insert performance: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to scan performance: %w", err)
	}

	_, err = tx.Exec(`UPDATE performance
		SET realized_pnl = ?, winning_trades = winning_trades + ?,
			losing_trades = losing_trades + ?, updated_at = ?
		WHERE portfolio_id = ?`,
		current.Add(pnl), win, loss, time.Now().Unix(), portfolioID)
	if err != nil {
		return fmt.Errorf("failed to update performance: %w", err)
	}
	return nil
}
