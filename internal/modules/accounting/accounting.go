// Package accounting implements position cost-basis arithmetic. All
// functions are pure: they compute the next position state and realized
// results without touching storage.
package accounting

import (
	"github.com/aristath/paperdesk/internal/domain"
)

// PositionState is the accounting view of a holding: how many shares
// and at what weighted-average cost. A nil *PositionState means no
// position is held.
type PositionState struct {
	Quantity domain.Quantity
	AvgCost  domain.Money
}

// DecreaseResult describes the outcome of removing shares from a
// position. Remaining is nil when the sale closed the position.
type DecreaseResult struct {
	Remaining   *PositionState
	RealizedPnL domain.Money
	CostRemoved domain.Money
}

// ApplyIncrease folds a purchase into a position. With no prior
// position the average cost is simply the purchase price; otherwise the
// new average is total cost over total quantity:
//
//	(oldQty×oldAvg + addQty×price) / (oldQty + addQty)
//
// Buying 10 @ 100 then 10 @ 200 yields an average cost of exactly 150.
func ApplyIncrease(prior *PositionState, qty domain.Quantity, price domain.Money) (*PositionState, error) {
	if !qty.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}

	if prior == nil || prior.Quantity.IsZero() {
		return &PositionState{Quantity: qty, AvgCost: price}, nil
	}

	newQty := prior.Quantity.Add(qty)
	totalCost := prior.AvgCost.MulQuantity(prior.Quantity).Add(price.MulQuantity(qty))
	avg, err := totalCost.DivQuantity(newQty)
	if err != nil {
		return nil, err
	}

	return &PositionState{Quantity: newQty, AvgCost: avg}, nil
}

// ApplyDecrease removes sold shares from a position. The average cost
// of the remainder is unchanged; realized P&L is (price − avgCost) ×
// qty. Selling the full quantity closes the position (Remaining nil).
// A sale larger than the holding fails with ErrInsufficientShares; a
// sale with no holding at all fails with ErrNoPosition.
func ApplyDecrease(prior *PositionState, qty domain.Quantity, price domain.Money) (*DecreaseResult, error) {
	if !qty.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}
	if prior == nil || prior.Quantity.IsZero() {
		return nil, domain.ErrNoPosition
	}
	if prior.Quantity.LessThan(qty) {
		return nil, domain.ErrInsufficientShares
	}

	result := &DecreaseResult{
		RealizedPnL: price.Sub(prior.AvgCost).MulQuantity(qty),
		CostRemoved: prior.AvgCost.MulQuantity(qty),
	}

	remaining := prior.Quantity.Sub(qty)
	if !remaining.IsZero() {
		result.Remaining = &PositionState{Quantity: remaining, AvgCost: prior.AvgCost}
	}
	return result, nil
}
