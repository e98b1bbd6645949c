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

const orderColumns = `id, reference, portfolio_id, ticker, side, order_type,
	quantity, limit_price, status, transaction_id, expires_at, created_at, updated_at`

// OrderRepository handles resting limit order persistence. Market trades
// never create order rows.
type OrderRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB, log zerolog.Logger) *OrderRepository {
	return &OrderRepository{
		db:  db,
		log: log.With().Str("repo", "order").Logger(),
	}
}

// InsertTx writes a new OPEN order inside a database transaction and
// fills in its generated ID and reference.
func (r *OrderRepository) InsertTx(tx *sql.Tx, order *domain.Order) error {
	if order.Reference == "" {
		order.Reference = uuid.NewString()
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	result, err := tx.Exec(`INSERT INTO orders
		(reference, portfolio_id, ticker, side, order_type, quantity, limit_price, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.Reference, order.PortfolioID, order.Ticker, string(order.Side),
		string(order.OrderType), order.Quantity, order.LimitPrice,
		string(order.Status), order.ExpiresAt.Unix(),
		order.CreatedAt.Unix(), order.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	order.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read order id: %w", err)
	}
	return nil
}

// GetByID returns an order by primary key.
func (r *OrderRepository) GetByID(id int64) (*domain.Order, error) {
	row := r.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	return scanOrderOne(row)
}

// GetByIDTx returns an order by primary key inside a transaction.
func (r *OrderRepository) GetByIDTx(tx *sql.Tx, id int64) (*domain.Order, error) {
	row := tx.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	return scanOrderOne(row)
}

// ListByPortfolio returns a portfolio's orders, newest first. Pass
// statuses to filter; with none, all orders are returned.
func (r *OrderRepository) ListByPortfolio(portfolioID int64, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE portfolio_id = ?`
	args := []interface{}{portfolioID}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + repeatPlaceholder(len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListOpen returns every OPEN order across all portfolios in ascending
// id order, the order the sweep processes them in.
func (r *OrderRepository) ListOpen() ([]domain.Order, error) {
	rows, err := r.db.Query(`SELECT `+orderColumns+` FROM orders
		WHERE status = ? ORDER BY id ASC`, string(domain.OrderOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListExpired returns OPEN orders whose expiry deadline has passed,
// ascending id order.
func (r *OrderRepository) ListExpired(now time.Time) ([]domain.Order, error) {
	rows, err := r.db.Query(`SELECT `+orderColumns+` FROM orders
		WHERE status = ? AND expires_at <= ? ORDER BY id ASC`,
		string(domain.OrderOpen), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// TransitionTx moves an order out of OPEN inside a database transaction.
// The WHERE clause enforces the state machine: a row already in a
// terminal state is not touched and ErrInvalidState is returned.
func (r *OrderRepository) TransitionTx(tx *sql.Tx, orderID int64, to domain.OrderStatus, transactionID *int64) error {
	var txnID interface{}
	if transactionID != nil {
		txnID = *transactionID
	}

	result, err := tx.Exec(`UPDATE orders
		SET status = ?, transaction_id = COALESCE(?, transaction_id), updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), txnID, time.Now().Unix(), orderID, string(domain.OrderOpen))
	if err != nil {
		return fmt.Errorf("failed to transition order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check order transition: %w", err)
	}
	if affected == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

func scanOrderOne(row rowScanner) (*domain.Order, error) {
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return order, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var side, orderType, status string
	var limitPrice sql.Null[domain.Money]
	var transactionID sql.NullInt64
	var expiresAt, createdAt, updatedAt int64

	err := row.Scan(&order.ID, &order.Reference, &order.PortfolioID, &order.Ticker,
		&side, &orderType, &order.Quantity, &limitPrice,
		&status, &transactionID, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	order.Side = domain.TradeSide(side)
	order.OrderType = domain.OrderType(orderType)
	order.Status = domain.OrderStatus(status)
	if limitPrice.Valid {
		order.LimitPrice = limitPrice.V
	}
	if transactionID.Valid {
		order.TransactionID = &transactionID.Int64
	}
	order.ExpiresAt = time.Unix(expiresAt, 0)
	order.CreatedAt = time.Unix(createdAt, 0)
	order.UpdatedAt = time.Unix(updatedAt, 0)
	return &order, nil
}
