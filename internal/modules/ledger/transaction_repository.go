package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/paperdesk/internal/domain"
)

const transactionColumns = `id, reference, portfolio_id, ticker, side, quantity,
	price, total_amount, status, notes, executed_at, created_at`

// TransactionRepository handles the trade audit trail. Rows are
// append-only: once a transaction reaches EXECUTED or FAILED it is
// never modified.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

// InsertTx writes a transaction inside a database transaction and fills
// in its generated ID and reference.
func (r *TransactionRepository) InsertTx(tx *sql.Tx, txn *domain.Transaction) error {
	if txn.Reference == "" {
		txn.Reference = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	var executedAt interface{}
	if txn.ExecutedAt != nil {
		executedAt = txn.ExecutedAt.Unix()
	}

	result, err := tx.Exec(`INSERT INTO transactions
		(reference, portfolio_id, ticker, side, quantity, price, total_amount, status, notes, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.Reference, txn.PortfolioID, txn.Ticker, string(txn.Side),
		txn.Quantity, txn.Price, txn.TotalAmount, string(txn.Status),
		txn.Notes, executedAt, txn.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	txn.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read transaction id: %w", err)
	}
	return nil
}

// Insert writes a transaction outside any caller-managed database
// transaction. Used for FAILED audit rows, which must persist even when
// the trade itself never opens a ledger transaction.
func (r *TransactionRepository) Insert(txn *domain.Transaction) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := r.InsertTx(tx, txn); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByReference returns a transaction by its external reference.
func (r *TransactionRepository) GetByReference(reference string) (*domain.Transaction, error) {
	row := r.db.QueryRow(`SELECT `+transactionColumns+` FROM transactions WHERE reference = ?`, reference)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: not found", reference)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return txn, nil
}

// ListByPortfolio returns a portfolio's transactions, newest first.
func (r *TransactionRepository) ListByPortfolio(portfolioID int64, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`SELECT `+transactionColumns+` FROM transactions
		WHERE portfolio_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var txn domain.Transaction
	var side, status string
	var notes sql.NullString
	var executedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(&txn.ID, &txn.Reference, &txn.PortfolioID, &txn.Ticker,
		&side, &txn.Quantity, &txn.Price, &txn.TotalAmount,
		&status, &notes, &executedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	txn.Side = domain.TradeSide(side)
	txn.Status = domain.TxnStatus(status)
	if notes.Valid {
		txn.Notes = notes.String
	}
	if executedAt.Valid {
		t := time.Unix(executedAt.Int64, 0)
		txn.ExecutedAt = &t
	}
	txn.CreatedAt = time.Unix(createdAt, 0)
	return &txn, nil
}
