package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/paperdesk/internal/domain"
)

const portfolioColumns = `id, user_id, cash_balance, created_at, updated_at`

// PortfolioRepository handles portfolio database operations
type PortfolioRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// GetOrCreate returns the user's portfolio, creating one seeded with
// startingCash on first use. Each user has exactly one portfolio.
func (r *PortfolioRepository) GetOrCreate(userID string, startingCash domain.Money) (*domain.Portfolio, error) {
	now := time.Now().Unix()
	_, err := r.db.Exec(`INSERT INTO portfolios (user_id, cash_balance, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, startingCash, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	return r.GetByUserID(userID)
}

// GetByUserID returns the portfolio owned by userID.
func (r *PortfolioRepository) GetByUserID(userID string) (*domain.Portfolio, error) {
	row := r.db.QueryRow(`SELECT `+portfolioColumns+` FROM portfolios WHERE user_id = ?`, userID)
	return scanPortfolio(row)
}

// GetByID returns a portfolio by primary key.
func (r *PortfolioRepository) GetByID(id int64) (*domain.Portfolio, error) {
	row := r.db.QueryRow(`SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id)
	return scanPortfolio(row)
}

// GetByIDTx returns a portfolio by primary key inside a transaction.
func (r *PortfolioRepository) GetByIDTx(tx *sql.Tx, id int64) (*domain.Portfolio, error) {
	row := tx.QueryRow(`SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id)
	return scanPortfolio(row)
}

// UpdateCashTx sets the cash balance inside a transaction.
func (r *PortfolioRepository) UpdateCashTx(tx *sql.Tx, id int64, balance domain.Money) error {
	result, err := tx.Exec(`UPDATE portfolios SET cash_balance = ?, updated_at = ? WHERE id = ?`,
		balance, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update cash balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cash update: %w", err)
	}
	if affected == 0 {
		return domain.ErrPortfolioNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (*domain.Portfolio, error) {
	var p domain.Portfolio
	var createdAt, updatedAt int64

	err := row.Scan(&p.ID, &p.UserID, &p.CashBalance, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan portfolio: %w", err)
	}

	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}
