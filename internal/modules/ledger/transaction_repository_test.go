package ledger

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperdesk/internal/domain"
)

func TestTransactionInsertAndList(t *testing.T) {
	db := newTestDB(t)
	p := createTestPortfolio(t, db, "alice", "100000.00")
	repo := NewTransactionRepository(db, testLog())

	now := time.Now()
	executed := &domain.Transaction{
		PortfolioID: p.ID,
		Ticker:      "AAPL",
		Side:        domain.SideBuy,
		Quantity:    domain.MustQuantity("10"),
		Price:       domain.MustMoney("150.00"),
		TotalAmount: domain.MustMoney("1500.00"),
		Status:      domain.TxnExecuted,
		ExecutedAt:  &now,
	}
	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.InsertTx(tx, executed))
	})
	require.NotZero(t, executed.ID)
	require.NotEmpty(t, executed.Reference)

	failed := &domain.Transaction{
		PortfolioID: p.ID,
		Ticker:      "AAPL",
		Side:        domain.SideBuy,
		Quantity:    domain.MustQuantity("100000"),
		Price:       domain.MustMoney("150.00"),
		TotalAmount: domain.MustMoney("15000000.00"),
		Status:      domain.TxnFailed,
		Notes:       "INSUFFICIENT_FUNDS",
	}
	require.NoError(t, repo.Insert(failed))

	txns, err := repo.ListByPortfolio(p.ID, 10)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	// Newest first.
	assert.Equal(t, failed.Reference, txns[0].Reference)
	assert.Equal(t, domain.TxnFailed, txns[0].Status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", txns[0].Notes)
	assert.Nil(t, txns[0].ExecutedAt)

	assert.Equal(t, executed.Reference, txns[1].Reference)
	assert.Equal(t, domain.TxnExecuted, txns[1].Status)
	require.NotNil(t, txns[1].ExecutedAt)
	assert.Equal(t, "1500.00", txns[1].TotalAmount.String())
}

func TestTransactionGetByReference(t *testing.T) {
	db := newTestDB(t)
	p := createTestPortfolio(t, db, "alice", "100000.00")
	repo := NewTransactionRepository(db, testLog())

	txn := &domain.Transaction{
		PortfolioID: p.ID,
		Ticker:      "MSFT",
		Side:        domain.SideSell,
		Quantity:    domain.MustQuantity("2"),
		Price:       domain.MustMoney("300.00"),
		TotalAmount: domain.MustMoney("600.00"),
		Status:      domain.TxnExecuted,
	}
	require.NoError(t, repo.Insert(txn))

	got, err := repo.GetByReference(txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)
	assert.Equal(t, domain.SideSell, got.Side)

	_, err = repo.GetByReference("missing-ref")
	assert.Error(t, err)
}
