package ledger

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperdesk/internal/domain"
)

func TestPerformance_ZeroWithoutHistory(t *testing.T) {
	db := newTestDB(t)
	p := createTestPortfolio(t, db, "alice", "100000.00")
	repo := NewPerformanceRepository(db, testLog())

	perf, err := repo.Get(p.ID)
	require.NoError(t, err)
	assert.True(t, perf.RealizedPnL.IsZero())
	assert.Zero(t, perf.WinningTrades)
	assert.Zero(t, perf.LosingTrades)
}

func TestPerformance_AccumulatesWinsAndLosses(t *testing.T) {
	db := newTestDB(t)
	p := createTestPortfolio(t, db, "alice", "100000.00")
	repo := NewPerformanceRepository(db, testLog())

	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.ApplyRealizedTx(tx, p.ID, domain.MustMoney("250.00")))
	})
	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.ApplyRealizedTx(tx, p.ID, domain.MustMoney("-100.00")))
	})
	// Break-even counts neither a win nor a loss.
	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.ApplyRealizedTx(tx, p.ID, domain.MoneyZero))
	})

	perf, err := repo.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "150.00", perf.RealizedPnL.String())
	assert.Equal(t, int64(1), perf.WinningTrades)
	assert.Equal(t, int64(1), perf.LosingTrades)
	assert.InDelta(t, 0.5, perf.WinRate(), 1e-9)
}
