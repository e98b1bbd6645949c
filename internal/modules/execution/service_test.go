package execution

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperdesk/internal/database"
	"github.com/aristath/paperdesk/internal/domain"
	"github.com/aristath/paperdesk/internal/events"
	"github.com/aristath/paperdesk/internal/modules/ledger"
)

type stubOracle struct {
	mu     sync.Mutex
	prices map[string]domain.Money
}

func (o *stubOracle) Quote(_ context.Context, ticker string) (domain.Money, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	price, ok := o.prices[ticker]
	if !ok {
		return domain.Money{}, domain.ErrPriceUnavailable
	}
	return price, nil
}

func (o *stubOracle) set(ticker, price string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[ticker] = domain.MustMoney(price)
}

type testEnv struct {
	db      *sql.DB
	svc     *Service
	oracle  *stubOracle
	txns    *ledger.TransactionRepository
	perf    *ledger.PerformanceRepository
	folios  *ledger.PortfolioRepository
	posRepo *ledger.PositionRepository
}

func newTestEnv(t *testing.T, startingCash string) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "database", "schemas", "ledger_schema.sql"))
	require.NoError(t, err)
	require.NoError(t, database.MigrateSchema(db, string(schema), "ledger"))

	log := zerolog.New(nil).Level(zerolog.Disabled)
	oracle := &stubOracle{prices: make(map[string]domain.Money)}

	env := &testEnv{
		db:      db,
		oracle:  oracle,
		txns:    ledger.NewTransactionRepository(db, log),
		perf:    ledger.NewPerformanceRepository(db, log),
		folios:  ledger.NewPortfolioRepository(db, log),
		posRepo: ledger.NewPositionRepository(db, log),
	}
	env.svc = NewService(db, env.folios, env.posRepo, env.txns, env.perf,
		ledger.NewPortfolioLocker(5*time.Second), oracle,
		events.NewManager(log), domain.MustMoney(startingCash), log)
	return env
}

func TestExecuteTrade_BuyHappyPath(t *testing.T) {
	env := newTestEnv(t, "100000.00")
	env.oracle.set("AAPL", "150.00")

	result, err := env.svc.ExecuteTrade(context.Background(), "alice", "aapl", domain.SideBuy, domain.MustQuantity("10"))
	require.NoError(t, err)
	require.True(t, result.Executed())

	assert.Equal(t, "98500.00", result.Portfolio.CashBalance.String())
	require.NotNil(t, result.Position)
	assert.Equal(t, "AAPL", result.Position.Ticker)
	assert.Equal(t, "10", result.Position.Quantity.String())
	assert.Equal(t, "150.00", result.Position.AvgCost.String())

	require.NotNil(t, result.Transaction)
	assert.Equal(t, domain.TxnExecuted, result.Transaction.Status)
	assert.Equal(t, "1500.00", result.Transaction.TotalAmount.String())
	assert.NotNil(t, result.Transaction.ExecutedAt)
}

func TestExecuteTrade_BuyAveragesCost(t *testing.T) {
	env := newTestEnv(t, "100000.00")
	env.oracle.set("AAPL", "100.00")

	_, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideBuy, domain.MustQuantity("10"))
	require.NoError(t, err)

	env.oracle.set("AAPL", "200.00")
	result, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideBuy, domain.MustQuantity("10"))
	require.NoError(t, err)
	require.True(t, result.Executed())

	assert.Equal(t, "20", result.Position.Quantity.String())
	assert.Equal(t, "150.00", result.Position.AvgCost.String())
}

func TestExecuteTrade_BuyInsufficientFunds(t *testing.T) {
	env := newTestEnv(t, "1000.00")
	env.oracle.set("AAPL", "150.00")

	result, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideBuy, domain.MustQuantity("10"))
	require.NoError(t, err)
	assert.False(t, result.Executed())
	assert.Equal(t, domain.FailureInsufficientFunds, result.FailureKind)

	// Audit row written, ledger untouched.
	require.NotNil(t, result.Transaction)
	assert.Equal(t, domain.TxnFailed, result.Transaction.Status)

	portfolio, err := env.folios.GetByUserID("alice")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", portfolio.CashBalance.String())

	pos, err := env.posRepo.Get(portfolio.ID, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestExecuteTrade_SellRealizesAndCloses(t *testing.T) {
	env := newTestEnv(t, "100000.00")
	env.oracle.set("AAPL", "100.00")

	_, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideBuy, domain.MustQuantity("10"))
	require.NoError(t, err)

	env.oracle.set("AAPL", "120.00")
	result, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideSell, domain.MustQuantity("10"))
	require.NoError(t, err)
	require.True(t, result.Executed())

	// 100000 - 1000 + 1200
	assert.Equal(t, "100200.00", result.Portfolio.CashBalance.String())
	assert.Nil(t, result.Position)
	require.NotNil(t, result.RealizedPnL)
	assert.Equal(t, "200.00", result.RealizedPnL.String())

	perf, err := env.perf.Get(result.Portfolio.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", perf.RealizedPnL.String())
	assert.Equal(t, int64(1), perf.WinningTrades)
}

func TestExecuteTrade_SellKeepsAvgCost(t *testing.T) {
	env := newTestEnv(t, "100000.00")
	env.oracle.set("AAPL", "100.00")

	_, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideBuy, domain.MustQuantity("10"))
	require.NoError(t, err)

	env.oracle.set("AAPL", "80.00")
	result, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideSell, domain.MustQuantity("4"))
	require.NoError(t, err)
	require.True(t, result.Executed())

	require.NotNil(t, result.Position)
	assert.Equal(t, "6", result.Position.Quantity.String())
	assert.Equal(t, "100.00", result.Position.AvgCost.String())
	assert.Equal(t, "-80.00", result.RealizedPnL.String())
}

func TestExecuteTrade_SellWithoutPosition(t *testing.T) {
	env := newTestEnv(t, "100000.00")
	env.oracle.set("AAPL", "100.00")

	result, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideSell, domain.MustQuantity("1"))
	require.NoError(t, err)
	assert.False(t, result.Executed())
	assert.Equal(t, domain.FailureNoPosition, result.FailureKind)
}

func TestExecuteTrade_Oversell(t *testing.T) {
	env := newTestEnv(t, "100000.00")
	env.oracle.set("AAPL", "100.00")

	_, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideBuy, domain.MustQuantity("5"))
	require.NoError(t, err)

	result, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideSell, domain.MustQuantity("6"))
	require.NoError(t, err)
	assert.Equal(t, domain.FailureInsufficientShares, result.FailureKind)

	// Position unchanged.
	portfolio, err := env.folios.GetByUserID("alice")
	require.NoError(t, err)
	pos, err := env.posRepo.Get(portfolio.ID, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "5", pos.Quantity.String())
}

func TestExecuteTrade_InvalidQuantityStillAudited(t *testing.T) {
	env := newTestEnv(t, "100000.00")

	result, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideBuy, domain.QuantityZero)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureInvalidQuantity, result.FailureKind)

	portfolio, err := env.folios.GetByUserID("alice")
	require.NoError(t, err)
	txns, err := env.txns.ListByPortfolio(portfolio.ID, 10)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TxnFailed, txns[0].Status)
	assert.Contains(t, txns[0].Notes, "INVALID_QUANTITY")
}

func TestExecuteTrade_PriceUnavailableAudited(t *testing.T) {
	env := newTestEnv(t, "100000.00")

	result, err := env.svc.ExecuteTrade(context.Background(), "alice", "NOPE", domain.SideBuy, domain.MustQuantity("1"))
	require.NoError(t, err)
	assert.Equal(t, domain.FailurePriceUnavailable, result.FailureKind)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, domain.TxnFailed, result.Transaction.Status)
}

func TestExecuteTrade_ConcurrentBuysSerialize(t *testing.T) {
	env := newTestEnv(t, "1000.00")
	env.oracle.set("AAPL", "600.00")

	// Seed the portfolio before racing so both goroutines hit the same row.
	_, err := env.folios.GetOrCreate("alice", domain.MustMoney("1000.00"))
	require.NoError(t, err)

	results := make(chan *TradeResult, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideBuy, domain.MustQuantity("1"))
			require.NoError(t, err)
			results <- r
		}()
	}
	wg.Wait()
	close(results)

	executed, failed := 0, 0
	for r := range results {
		if r.Executed() {
			executed++
		} else {
			failed++
			assert.Equal(t, domain.FailureInsufficientFunds, r.FailureKind)
		}
	}
	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, failed)

	portfolio, err := env.folios.GetByUserID("alice")
	require.NoError(t, err)
	assert.Equal(t, "400.00", portfolio.CashBalance.String())
}

func TestRefreshPrices(t *testing.T) {
	env := newTestEnv(t, "100000.00")
	env.oracle.set("AAPL", "100.00")
	env.oracle.set("MSFT", "300.00")

	_, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideBuy, domain.MustQuantity("10"))
	require.NoError(t, err)
	_, err = env.svc.ExecuteTrade(context.Background(), "alice", "MSFT", domain.SideBuy, domain.MustQuantity("2"))
	require.NoError(t, err)

	env.oracle.set("AAPL", "110.00")
	env.oracle.set("MSFT", "310.00")

	positions, err := env.svc.RefreshPrices(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "110.00", positions[0].LastPrice.String())
	assert.Equal(t, "310.00", positions[1].LastPrice.String())
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t, "100000.00")
	env.oracle.set("AAPL", "100.00")

	_, err := env.svc.ExecuteTrade(context.Background(), "alice", "AAPL", domain.SideBuy, domain.MustQuantity("10"))
	require.NoError(t, err)

	summary, err := env.svc.Summary(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "99000.00", summary.Portfolio.CashBalance.String())
	assert.Equal(t, "1000.00", summary.PositionsValue.String())
	assert.Equal(t, "100000.00", summary.TotalValue.String())
	assert.True(t, summary.UnrealizedPnL.IsZero())
	assert.Equal(t, "$99,000.00", summary.CashDisplay)
	assert.Equal(t, "$100,000.00", summary.TotalValueDisplay)
}
