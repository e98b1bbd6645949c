package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/paperdesk/internal/database"
	"github.com/aristath/paperdesk/internal/domain"
	"github.com/aristath/paperdesk/internal/events"
	"github.com/aristath/paperdesk/internal/modules/accounting"
)

// SweepResult lists the order ids the sweep settled, in processing
// order.
type SweepResult struct {
	Expired []int64 `json:"expired"`
	Filled  []int64 `json:"filled"`
}

// Sweep runs one full pass over the open order book: expiry first, so
// freed reservations are available before fills are attempted, then the
// fill pass.
func (s *Service) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	expired, err := s.SweepExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	filled, err := s.SweepFillable(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Expired: expired, Filled: filled}
	s.events.Emit(events.SweepComplete, "orders", map[string]interface{}{
		"expired": len(expired),
		"filled":  len(filled),
	})
	return result, nil
}

// SweepExpired transitions every OPEN order past its deadline to
// EXPIRED and fully refunds BUY reservations. Expiry writes no
// transaction: no trade happened.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) ([]int64, error) {
	stale, err := s.orders.ListExpired(now)
	if err != nil {
		return nil, err
	}

	var expired []int64
	for i := range stale {
		order := &stale[i]
		if err := s.expireOne(ctx, order); err != nil {
			// One stuck portfolio must not stall the rest of the sweep.
			s.log.Error().Err(err).Int64("order_id", order.ID).Msg("Failed to expire order")
			continue
		}
		expired = append(expired, order.ID)

		s.events.Emit(events.OrderExpired, "orders", map[string]interface{}{
			"order_id": order.ID,
			"ticker":   order.Ticker,
		})
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, order *domain.Order) error {
	release, err := s.locker.Acquire(ctx, order.PortfolioID)
	if err != nil {
		return err
	}
	defer release()

	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.orders.TransitionTx(tx, order.ID, domain.OrderExpired, nil); err != nil {
			// Raced with a cancel or fill; nothing to do.
			if errors.Is(err, domain.ErrInvalidState) {
				return nil
			}
			return err
		}
		return s.refundReservationTx(tx, order)
	})
}

// SweepFillable walks OPEN, unexpired orders in placement order and
// fills the ones the current quote satisfies: BUY when price is at or
// under the limit, SELL when price is at or over it. The oracle is
// asked at most once per ticker per sweep. Orders fill completely or
// not at all.
func (s *Service) SweepFillable(ctx context.Context, now time.Time) ([]int64, error) {
	open, err := s.orders.ListOpen()
	if err != nil {
		return nil, err
	}

	quotes := make(map[string]domain.Money)
	var filled []int64

	for i := range open {
		order := &open[i]
		if !order.ExpiresAt.After(now) {
			continue
		}

		price, ok := quotes[order.Ticker]
		if !ok {
			var err error
			price, err = s.oracle.Quote(ctx, order.Ticker)
			if err != nil {
				// No quote this sweep; leave the ticker's orders OPEN.
				quotes[order.Ticker] = domain.Money{}
				s.log.Warn().Err(err).Str("ticker", order.Ticker).Msg("Skipping ticker in fill sweep")
				continue
			}
			quotes[order.Ticker] = price
		}
		if price.IsZero() {
			continue
		}

		if !fillable(order, price) {
			continue
		}

		didFill, err := s.fillOne(ctx, order, price)
		if err != nil {
			s.log.Error().Err(err).Int64("order_id", order.ID).Msg("Failed to fill order")
			continue
		}
		if didFill {
			filled = append(filled, order.ID)
		}
	}
	return filled, nil
}

func fillable(order *domain.Order, price domain.Money) bool {
	switch order.Side {
	case domain.SideBuy:
		return !price.GreaterThan(order.LimitPrice)
	case domain.SideSell:
		return price.GreaterThanOrEqual(order.LimitPrice)
	default:
		return false
	}
}

// fillOne settles a single order at the fill price. A SELL whose shares
// have since been sold elsewhere is left OPEN without a transaction; it
// may fill later or expire.
func (s *Service) fillOne(ctx context.Context, order *domain.Order, fillPrice domain.Money) (bool, error) {
	release, err := s.locker.Acquire(ctx, order.PortfolioID)
	if err != nil {
		return false, err
	}
	defer release()

	filled := false
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		current, err := s.orders.GetByIDTx(tx, order.ID)
		if err != nil {
			return err
		}
		if !current.IsOpen() {
			return nil
		}

		portfolio, err := s.portfolios.GetByIDTx(tx, order.PortfolioID)
		if err != nil {
			return err
		}
		prior, err := s.positions.GetTx(tx, order.PortfolioID, order.Ticker)
		if err != nil {
			return err
		}

		total := fillPrice.MulQuantity(order.Quantity)
		var newCash domain.Money

		switch order.Side {
		case domain.SideBuy:
			state, err := accounting.ApplyIncrease(priorState(prior), order.Quantity, fillPrice)
			if err != nil {
				return err
			}
			if err := s.positions.UpsertTx(tx, order.PortfolioID, order.Ticker,
				state.Quantity, state.AvgCost, fillPrice); err != nil {
				return err
			}
			// Cash was debited at the limit price on placement; a fill
			// below the limit returns the difference.
			improvement := order.ReservedCash().Sub(total)
			newCash = portfolio.CashBalance.Add(improvement)

		case domain.SideSell:
			decrease, err := accounting.ApplyDecrease(priorState(prior), order.Quantity, fillPrice)
			if err != nil {
				if _, validation := domain.ClassifyFailure(err); validation {
					s.log.Warn().
						Int64("order_id", order.ID).
						Str("ticker", order.Ticker).
						Msg("Sell order no longer covered, leaving open")
					return errFillSkipped
				}
				return err
			}
			if decrease.Remaining == nil {
				if err := s.positions.DeleteTx(tx, order.PortfolioID, order.Ticker); err != nil {
					return err
				}
			} else {
				if err := s.positions.UpsertTx(tx, order.PortfolioID, order.Ticker,
					decrease.Remaining.Quantity, decrease.Remaining.AvgCost, fillPrice); err != nil {
					return err
				}
			}
			if err := s.performance.ApplyRealizedTx(tx, order.PortfolioID, decrease.RealizedPnL); err != nil {
				return err
			}
			newCash = portfolio.CashBalance.Add(total)

		default:
			return fmt.Errorf("invalid order side %q", order.Side)
		}

		if err := s.portfolios.UpdateCashTx(tx, order.PortfolioID, newCash); err != nil {
			return err
		}

		now := time.Now()
		txn := &domain.Transaction{
			PortfolioID: order.PortfolioID,
			Ticker:      order.Ticker,
			Side:        order.Side,
			Quantity:    order.Quantity,
			Price:       fillPrice,
			TotalAmount: total,
			Status:      domain.TxnExecuted,
			Notes:       fmt.Sprintf("limit order %s filled", order.Reference),
			ExecutedAt:  &now,
		}
		if err := s.transactions.InsertTx(tx, txn); err != nil {
			return err
		}

		if err := s.orders.TransitionTx(tx, order.ID, domain.OrderFilled, &txn.ID); err != nil {
			return err
		}
		filled = true
		return nil
	})
	if errors.Is(err, errFillSkipped) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !filled {
		return false, nil
	}

	s.log.Info().
		Int64("order_id", order.ID).
		Str("ticker", order.Ticker).
		Str("side", string(order.Side)).
		Str("fill_price", fillPrice.String()).
		Msg("Limit order filled")

	s.events.Emit(events.OrderFilled, "orders", map[string]interface{}{
		"order_id":   order.ID,
		"ticker":     order.Ticker,
		"side":       string(order.Side),
		"fill_price": fillPrice.String(),
	})
	return true, nil
}

// errFillSkipped aborts the fill transaction without failing the sweep.
var errFillSkipped = errors.New("fill skipped")

func priorState(pos *domain.Position) *accounting.PositionState {
	if pos == nil {
		return nil
	}
	return &accounting.PositionState{Quantity: pos.Quantity, AvgCost: pos.AvgCost}
}
