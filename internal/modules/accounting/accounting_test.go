package accounting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperdesk/internal/domain"
)

func TestApplyIncrease_FirstPurchase(t *testing.T) {
	state, err := ApplyIncrease(nil, domain.MustQuantity("10"), domain.MustMoney("100.00"))
	require.NoError(t, err)
	assert.Equal(t, "10", state.Quantity.String())
	assert.Equal(t, "100.00", state.AvgCost.String())
}

func TestApplyIncrease_WeightedAverage(t *testing.T) {
	state, err := ApplyIncrease(nil, domain.MustQuantity("10"), domain.MustMoney("100.00"))
	require.NoError(t, err)

	state, err = ApplyIncrease(state, domain.MustQuantity("10"), domain.MustMoney("200.00"))
	require.NoError(t, err)
	assert.Equal(t, "20", state.Quantity.String())
	assert.Equal(t, "150.00", state.AvgCost.String())
}

func TestApplyIncrease_UnevenWeights(t *testing.T) {
	state, err := ApplyIncrease(nil, domain.MustQuantity("3"), domain.MustMoney("10.00"))
	require.NoError(t, err)

	state, err = ApplyIncrease(state, domain.MustQuantity("1"), domain.MustMoney("20.00"))
	require.NoError(t, err)
	// (30 + 20) / 4 = 12.50
	assert.Equal(t, "12.50", state.AvgCost.String())
}

func TestApplyIncrease_RejectsNonPositiveQuantity(t *testing.T) {
	_, err := ApplyIncrease(nil, domain.QuantityZero, domain.MustMoney("100.00"))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = ApplyIncrease(nil, domain.MustQuantity("-1"), domain.MustMoney("100.00"))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestApplyDecrease_PartialSale(t *testing.T) {
	prior := &PositionState{Quantity: domain.MustQuantity("20"), AvgCost: domain.MustMoney("150.00")}

	result, err := ApplyDecrease(prior, domain.MustQuantity("5"), domain.MustMoney("180.00"))
	require.NoError(t, err)
	require.NotNil(t, result.Remaining)

	// Average cost never changes on a sell.
	assert.Equal(t, "15", result.Remaining.Quantity.String())
	assert.Equal(t, "150.00", result.Remaining.AvgCost.String())
	assert.Equal(t, "150.00", result.RealizedPnL.String())
	assert.Equal(t, "750.00", result.CostRemoved.String())
}

func TestApplyDecrease_ClosesPosition(t *testing.T) {
	prior := &PositionState{Quantity: domain.MustQuantity("10"), AvgCost: domain.MustMoney("100.00")}

	result, err := ApplyDecrease(prior, domain.MustQuantity("10"), domain.MustMoney("90.00"))
	require.NoError(t, err)
	assert.Nil(t, result.Remaining)
	assert.Equal(t, "-100.00", result.RealizedPnL.String())
}

func TestApplyDecrease_Oversell(t *testing.T) {
	prior := &PositionState{Quantity: domain.MustQuantity("5"), AvgCost: domain.MustMoney("100.00")}

	_, err := ApplyDecrease(prior, domain.MustQuantity("6"), domain.MustMoney("100.00"))
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestApplyDecrease_NoPosition(t *testing.T) {
	_, err := ApplyDecrease(nil, domain.MustQuantity("1"), domain.MustMoney("100.00"))
	assert.ErrorIs(t, err, domain.ErrNoPosition)

	empty := &PositionState{Quantity: domain.QuantityZero}
	_, err = ApplyDecrease(empty, domain.MustQuantity("1"), domain.MustMoney("100.00"))
	assert.ErrorIs(t, err, domain.ErrNoPosition)
}

func TestApplyDecrease_RejectsNonPositiveQuantity(t *testing.T) {
	prior := &PositionState{Quantity: domain.MustQuantity("5"), AvgCost: domain.MustMoney("100.00")}
	_, err := ApplyDecrease(prior, domain.QuantityZero, domain.MustMoney("100.00"))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestRoundTrip_BuySellReconciles(t *testing.T) {
	// Buy 10 @ 100, sell 4 @ 120, sell 6 @ 80: realized P&L sums to
	// proceeds minus cost of all shares.
	state, err := ApplyIncrease(nil, domain.MustQuantity("10"), domain.MustMoney("100.00"))
	require.NoError(t, err)

	first, err := ApplyDecrease(state, domain.MustQuantity("4"), domain.MustMoney("120.00"))
	require.NoError(t, err)

	second, err := ApplyDecrease(first.Remaining, domain.MustQuantity("6"), domain.MustMoney("80.00"))
	require.NoError(t, err)
	assert.Nil(t, second.Remaining)

	total := first.RealizedPnL.Add(second.RealizedPnL)
	// (120-100)*4 + (80-100)*6 = 80 - 120 = -40
	assert.Equal(t, "-40.00", total.String())
}
