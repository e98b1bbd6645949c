// Package orders implements the resting limit order book: placement
// with cash reservation, cancellation, and the periodic sweep that
// expires and fills open orders against the price oracle.
package orders

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/paperdesk/internal/database"
	"github.com/aristath/paperdesk/internal/domain"
	"github.com/aristath/paperdesk/internal/events"
	"github.com/aristath/paperdesk/internal/modules/ledger"
)

// DefaultExpirationDays is applied when an order is placed without an
// explicit expiry.
const DefaultExpirationDays = 30

// Service manages limit orders. Placement and every state transition
// run under the owning portfolio's lock and one SQL transaction.
type Service struct {
	db           *sql.DB
	portfolios   *ledger.PortfolioRepository
	positions    *ledger.PositionRepository
	transactions *ledger.TransactionRepository
	performance  *ledger.PerformanceRepository
	orders       *ledger.OrderRepository
	locker       *ledger.PortfolioLocker
	oracle       domain.PriceOracle
	events       *events.Manager
	startingCash domain.Money
	log          zerolog.Logger
}

// NewService creates a new limit order service
func NewService(
	db *sql.DB,
	portfolios *ledger.PortfolioRepository,
	positions *ledger.PositionRepository,
	transactions *ledger.TransactionRepository,
	performance *ledger.PerformanceRepository,
	orders *ledger.OrderRepository,
	locker *ledger.PortfolioLocker,
	oracle domain.PriceOracle,
	eventManager *events.Manager,
	startingCash domain.Money,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:           db,
		portfolios:   portfolios,
		positions:    positions,
		transactions: transactions,
		performance:  performance,
		orders:       orders,
		locker:       locker,
		oracle:       oracle,
		events:       eventManager,
		startingCash: startingCash,
		log:          log.With().Str("service", "orders").Logger(),
	}
}

// PlaceLimitOrder opens a resting limit order. BUY orders reserve
// quantity × limit price out of cash immediately; SELL orders validate
// the position but reserve nothing. Validation happens against the
// limit price, never a live quote.
func (s *Service) PlaceLimitOrder(ctx context.Context, userID, ticker string, side domain.TradeSide, qty domain.Quantity, limitPrice domain.Money, expirationDays int) (*domain.Order, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	if !qty.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}
	if !limitPrice.IsPositive() {
		return nil, fmt.Errorf("limit price must be positive")
	}
	if expirationDays <= 0 {
		expirationDays = DefaultExpirationDays
	}

	portfolio, err := s.portfolios.GetOrCreate(userID, s.startingCash)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, portfolio.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	order := &domain.Order{
		PortfolioID: portfolio.ID,
		Ticker:      ticker,
		Side:        side,
		OrderType:   domain.OrderLimit,
		Quantity:    qty,
		LimitPrice:  limitPrice,
		Status:      domain.OrderOpen,
		ExpiresAt:   time.Now().AddDate(0, 0, expirationDays),
	}

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		current, err := s.portfolios.GetByIDTx(tx, portfolio.ID)
		if err != nil {
			return err
		}

		switch side {
		case domain.SideBuy:
			reserved := order.ReservedCash()
			if current.CashBalance.LessThan(reserved) {
				return domain.ErrInsufficientFunds
			}
			if err := s.portfolios.UpdateCashTx(tx, portfolio.ID, current.CashBalance.Sub(reserved)); err != nil {
				return err
			}

		case domain.SideSell:
			pos, err := s.positions.GetTx(tx, portfolio.ID, ticker)
			if err != nil {
				return err
			}
			if pos == nil {
				return domain.ErrNoPosition
			}
			if pos.Quantity.LessThan(qty) {
				return domain.ErrInsufficientShares
			}

		default:
			return fmt.Errorf("invalid trade side %q", side)
		}

		return s.orders.InsertTx(tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("ticker", ticker).
		Str("side", string(side)).
		Str("qty", qty.String()).
		Str("limit", limitPrice.String()).
		Int64("order_id", order.ID).
		Msg("Limit order placed")

	s.events.Emit(events.OrderPlaced, "orders", map[string]interface{}{
		"order_id": order.ID,
		"ticker":   ticker,
		"side":     string(side),
		"limit":    limitPrice.String(),
	})
	return order, nil
}

// CancelOrder cancels an OPEN order owned by userID and fully refunds a
// BUY order's cash reservation. Terminal orders fail with
// ErrInvalidState; someone else's order fails with ErrNotOwner.
func (s *Service) CancelOrder(ctx context.Context, orderID int64, userID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}

	portfolio, err := s.portfolios.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if order.PortfolioID != portfolio.ID {
		return nil, domain.ErrNotOwner
	}

	release, err := s.locker.Acquire(ctx, portfolio.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.orders.TransitionTx(tx, order.ID, domain.OrderCancelled, nil); err != nil {
			return err
		}
		return s.refundReservationTx(tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.events.Emit(events.OrderCancelled, "orders", map[string]interface{}{
		"order_id": order.ID,
		"ticker":   order.Ticker,
	})
	return s.orders.GetByID(order.ID)
}

// ListOrders returns the user's orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, userID string, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	portfolio, err := s.portfolios.GetOrCreate(userID, s.startingCash)
	if err != nil {
		return nil, err
	}
	return s.orders.ListByPortfolio(portfolio.ID, statuses...)
}

// refundReservationTx returns a BUY order's reserved cash to the
// portfolio. SELL orders hold no reservation.
func (s *Service) refundReservationTx(tx *sql.Tx, order *domain.Order) error {
	refund := order.ReservedCash()
	if refund.IsZero() {
		return nil
	}
	current, err := s.portfolios.GetByIDTx(tx, order.PortfolioID)
	if err != nil {
		return err
	}
	return s.portfolios.UpdateCashTx(tx, order.PortfolioID, current.CashBalance.Add(refund))
}
