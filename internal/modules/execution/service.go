// Package execution implements immediate market-order trade execution
// against the ledger: quote, validate, move cash, update the position,
// and record the audit transaction as one atomic unit.
package execution

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
	"github.com/aristath/paperdesk/internal/modules/accounting"
	"github.com/aristath/paperdesk/internal/modules/ledger"
)

// TradeResult is the outcome of one trade attempt. Executed results
// carry the ledger snapshot after the trade; failed results carry the
// rejection kind and message. Both carry the audit transaction.
type TradeResult struct {
	Status      domain.TxnStatus    `json:"status"`
	Transaction *domain.Transaction `json:"transaction"`
	Portfolio   *domain.Portfolio   `json:"portfolio,omitempty"`
	Position    *domain.Position    `json:"position,omitempty"`
	RealizedPnL *domain.Money       `json:"realized_pnl,omitempty"`
	FailureKind domain.FailureKind  `json:"failure_kind,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// Executed reports whether the trade moved the ledger.
func (r *TradeResult) Executed() bool {
	return r.Status == domain.TxnExecuted
}

// Service executes trades. All ledger mutations for one portfolio run
// under its portfolio lock and a single SQL transaction.
type Service struct {
	db           *sql.DB
	portfolios   *ledger.PortfolioRepository
	positions    *ledger.PositionRepository
	transactions *ledger.TransactionRepository
	performance  *ledger.PerformanceRepository
	locker       *ledger.PortfolioLocker
	oracle       domain.PriceOracle
	events       *events.Manager
	startingCash domain.Money
	log          zerolog.Logger
}

// NewService creates a new trade execution service
func NewService(
	db *sql.DB,
	portfolios *ledger.PortfolioRepository,
	positions *ledger.PositionRepository,
	transactions *ledger.TransactionRepository,
	performance *ledger.PerformanceRepository,
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
		locker:       locker,
		oracle:       oracle,
		events:       eventManager,
		startingCash: startingCash,
		log:          log.With().Str("service", "execution").Logger(),
	}
}

// ExecuteTrade runs one market trade for userID. Validation rejections
// return a failed TradeResult with a nil error; only infrastructure
// problems (lock contention, storage, unexpected state) return an error.
// Every call that reaches the portfolio writes exactly one transaction
// row, EXECUTED or FAILED.
func (s *Service) ExecuteTrade(ctx context.Context, userID, ticker string, side domain.TradeSide, qty domain.Quantity) (*TradeResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
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

	if !qty.IsPositive() {
		return s.recordFailure(portfolio, ticker, side, qty, domain.MoneyZero, domain.ErrInvalidQuantity)
	}

	price, err := s.oracle.Quote(ctx, ticker)
	if err != nil {
		if _, ok := domain.ClassifyFailure(err); ok {
			return s.recordFailure(portfolio, ticker, side, qty, domain.MoneyZero, err)
		}
		return nil, fmt.Errorf("failed to quote %s: %w", ticker, err)
	}

	result, err := s.settle(portfolio, ticker, side, qty, price)
	if err != nil {
		if _, ok := domain.ClassifyFailure(err); ok {
			return s.recordFailure(portfolio, ticker, side, qty, price, err)
		}
		return nil, err
	}

	s.events.Emit(events.TradeExecuted, "execution", map[string]interface{}{
		"user_id": userID,
		"ticker":  ticker,
		"side":    string(side),
		"qty":     qty.String(),
		"price":   price.String(),
		"total":   result.Transaction.TotalAmount.String(),
	})
	return result, nil
}

// settle applies a priced trade to the ledger atomically. Validation
// errors roll the transaction back untouched; the caller converts them
// to a FAILED audit row.
func (s *Service) settle(portfolio *domain.Portfolio, ticker string, side domain.TradeSide, qty domain.Quantity, price domain.Money) (*TradeResult, error) {
	total := price.MulQuantity(qty)
	result := &TradeResult{Status: domain.TxnExecuted}

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		// Re-read balance inside the tx: the lock serializes writers,
		// the re-read keeps the math on committed state.
		current, err := s.portfolios.GetByIDTx(tx, portfolio.ID)
		if err != nil {
			return err
		}

		prior, err := s.positions.GetTx(tx, portfolio.ID, ticker)
		if err != nil {
			return err
		}

		var newCash domain.Money
		switch side {
		case domain.SideBuy:
			if current.CashBalance.LessThan(total) {
				return domain.ErrInsufficientFunds
			}
			state, err := accounting.ApplyIncrease(priorState(prior), qty, price)
			if err != nil {
				return err
			}
			if err := s.positions.UpsertTx(tx, portfolio.ID, ticker, state.Quantity, state.AvgCost, price); err != nil {
				return err
			}
			newCash = current.CashBalance.Sub(total)

		case domain.SideSell:
			decrease, err := accounting.ApplyDecrease(priorState(prior), qty, price)
			if err != nil {
				return err
			}
			if decrease.Remaining == nil {
				if err := s.positions.DeleteTx(tx, portfolio.ID, ticker); err != nil {
					return err
				}
			} else {
				if err := s.positions.UpsertTx(tx, portfolio.ID, ticker,
					decrease.Remaining.Quantity, decrease.Remaining.AvgCost, price); err != nil {
					return err
				}
			}
			if err := s.performance.ApplyRealizedTx(tx, portfolio.ID, decrease.RealizedPnL); err != nil {
				return err
			}
			pnl := decrease.RealizedPnL
			result.RealizedPnL = &pnl
			newCash = current.CashBalance.Add(total)

		default:
			return fmt.Errorf("invalid trade side %q", side)
		}

		if err := s.portfolios.UpdateCashTx(tx, portfolio.ID, newCash); err != nil {
			return err
		}

		now := time.Now()
		txn := &domain.Transaction{
			PortfolioID: portfolio.ID,
			Ticker:      ticker,
			Side:        side,
			Quantity:    qty,
			Price:       price,
			TotalAmount: total,
			Status:      domain.TxnExecuted,
			ExecutedAt:  &now,
		}
		if err := s.transactions.InsertTx(tx, txn); err != nil {
			return err
		}
		result.Transaction = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Portfolio, err = s.portfolios.GetByID(portfolio.ID)
	if err != nil {
		return nil, err
	}
	result.Position, err = s.positions.Get(portfolio.ID, ticker)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("ticker", ticker).
		Str("side", string(side)).
		Str("qty", qty.String()).
		Str("price", price.String()).
		Int64("portfolio_id", portfolio.ID).
		Msg("Trade executed")
	return result, nil
}

// recordFailure writes the FAILED audit transaction for a rejected
// trade and returns the failure result. The rejection itself is not an
// error to the caller.
func (s *Service) recordFailure(portfolio *domain.Portfolio, ticker string, side domain.TradeSide, qty domain.Quantity, price domain.Money, cause error) (*TradeResult, error) {
	kind, ok := domain.ClassifyFailure(cause)
	if !ok {
		return nil, cause
	}

	txn := &domain.Transaction{
		PortfolioID: portfolio.ID,
		Ticker:      ticker,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		TotalAmount: price.MulQuantity(qty),
		Status:      domain.TxnFailed,
		Notes:       string(kind) + ": " + cause.Error(),
	}
	if err := s.transactions.Insert(txn); err != nil {
		return nil, fmt.Errorf("failed to record rejected trade: %w", err)
	}

	s.log.Warn().
		Str("ticker", ticker).
		Str("side", string(side)).
		Str("kind", string(kind)).
		Int64("portfolio_id", portfolio.ID).
		Msg("Trade rejected")

	s.events.Emit(events.TradeRejected, "execution", map[string]interface{}{
		"ticker": ticker,
		"side":   string(side),
		"kind":   string(kind),
	})

	return &TradeResult{
		Status:      domain.TxnFailed,
		Transaction: txn,
		FailureKind: kind,
		Message:     cause.Error(),
	}, nil
}

// RefreshPrices re-marks every position in the user's portfolio from
// the oracle. Tickers without a quote are skipped, not failed.
func (s *Service) RefreshPrices(ctx context.Context, userID string) ([]domain.Position, error) {
	portfolio, err := s.portfolios.GetOrCreate(userID, s.startingCash)
	if err != nil {
		return nil, err
	}

	positions, err := s.positions.ListByPortfolio(portfolio.ID)
	if err != nil {
		return nil, err
	}

	for _, pos := range positions {
		price, err := s.oracle.Quote(ctx, pos.Ticker)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("Skipping price refresh")
			continue
		}
		if err := s.positions.UpdateLastPrice(portfolio.ID, pos.Ticker, price); err != nil {
			return nil, err
		}
	}

	s.events.Emit(events.PriceUpdated, "execution", map[string]interface{}{
		"portfolio_id": portfolio.ID,
		"positions":    len(positions),
	})

	return s.positions.ListByPortfolio(portfolio.ID)
}

func priorState(pos *domain.Position) *accounting.PositionState {
	if pos == nil {
		return nil
	}
	return &accounting.PositionState{Quantity: pos.Quantity, AvgCost: pos.AvgCost}
}
