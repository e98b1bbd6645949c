package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/paperdesk/internal/domain"
)

const positionColumns = `id, portfolio_id, ticker, quantity, avg_cost, last_price, last_updated`

// PositionRepository handles position database operations. Positions
// exist only while their quantity is positive; closing a position
// removes the row.
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// ListByPortfolio returns all positions in a portfolio, ordered by ticker.
func (r *PositionRepository) ListByPortfolio(portfolioID int64) ([]domain.Position, error) {
	rows, err := r.db.Query(`SELECT `+positionColumns+` FROM positions
		WHERE portfolio_id = ? ORDER BY ticker`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// Get returns the position for a ticker, or nil when none is held.
func (r *PositionRepository) Get(portfolioID int64, ticker string) (*domain.Position, error) {
	row := r.db.QueryRow(`SELECT `+positionColumns+` FROM positions
		WHERE portfolio_id = ? AND ticker = ?`, portfolioID, ticker)
	return scanPositionMaybe(row)
}

// GetTx returns the position for a ticker inside a transaction, or nil
// when none is held.
func (r *PositionRepository) GetTx(tx *sql.Tx, portfolioID int64, ticker string) (*domain.Position, error) {
	row := tx.QueryRow(`SELECT `+positionColumns+` FROM positions
		WHERE portfolio_id = ? AND ticker = ?`, portfolioID, ticker)
	return scanPositionMaybe(row)
}

// UpsertTx writes a position's quantity and average cost inside a
// transaction, inserting the row on first purchase of the ticker.
func (r *PositionRepository) UpsertTx(tx *sql.Tx, portfolioID int64, ticker string, qty domain.Quantity, avgCost, lastPrice domain.Money) error {
	_, err := tx.Exec(`INSERT INTO positions (portfolio_id, ticker, quantity, avg_cost, last_price, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, ticker) DO UPDATE SET
			quantity = excluded.quantity,
			avg_cost = excluded.avg_cost,
			last_price = excluded.last_price,
			last_updated = excluded.last_updated`,
		portfolioID, ticker, qty, avgCost, lastPrice, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

// DeleteTx removes a fully closed position inside a transaction.
func (r *PositionRepository) DeleteTx(tx *sql.Tx, portfolioID int64, ticker string) error {
	_, err := tx.Exec(`DELETE FROM positions WHERE portfolio_id = ? AND ticker = ?`,
		portfolioID, ticker)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// UpdateLastPrice refreshes the cached mark price on a held position.
func (r *PositionRepository) UpdateLastPrice(portfolioID int64, ticker string, price domain.Money) error {
	_, err := r.db.Exec(`UPDATE positions SET last_price = ?, last_updated = ?
		WHERE portfolio_id = ? AND ticker = ?`,
		price, time.Now().Unix(), portfolioID, ticker)
	if err != nil {
		return fmt.Errorf("failed to update last price: %w", err)
	}
	return nil
}

// DistinctTickers returns every ticker held in any portfolio.
func (r *PositionRepository) DistinctTickers() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT ticker FROM positions ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}

	return tickers, nil
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var pos domain.Position
	var lastPrice sql.Null[domain.Money]
	var lastUpdated int64

	err := row.Scan(&pos.ID, &pos.PortfolioID, &pos.Ticker, &pos.Quantity,
		&pos.AvgCost, &lastPrice, &lastUpdated)
	if err != nil {
		return nil, err
	}

	if lastPrice.Valid {
		pos.LastPrice = lastPrice.V
	}
	pos.LastUpdated = time.Unix(lastUpdated, 0)
	return &pos, nil
}

func scanPositionMaybe(row rowScanner) (*domain.Position, error) {
	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}
	return pos, nil
}
