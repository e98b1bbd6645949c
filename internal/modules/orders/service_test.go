package orders

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
	folios  *ledger.PortfolioRepository
	posRepo *ledger.PositionRepository
	orders  *ledger.OrderRepository
	txns    *ledger.TransactionRepository
	perf    *ledger.PerformanceRepository
}

func newTestEnv(t *testing.T) *testEnv {
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
		folios:  ledger.NewPortfolioRepository(db, log),
		posRepo: ledger.NewPositionRepository(db, log),
		orders:  ledger.NewOrderRepository(db, log),
		txns:    ledger.NewTransactionRepository(db, log),
		perf:    ledger.NewPerformanceRepository(db, log),
	}
	env.svc = NewService(db, env.folios, env.posRepo, env.txns, env.perf, env.orders,
		ledger.NewPortfolioLocker(5*time.Second), oracle,
		events.NewManager(log), domain.MustMoney("100000.00"), log)
	return env
}

func (e *testEnv) cash(t *testing.T, userID string) string {
	t.Helper()
	p, err := e.folios.GetByUserID(userID)
	require.NoError(t, err)
	return p.CashBalance.String()
}

func (e *testEnv) seedPosition(t *testing.T, userID, ticker, qty, avgCost string) {
	t.Helper()
	p, err := e.folios.GetOrCreate(userID, domain.MustMoney("100000.00"))
	require.NoError(t, err)
	tx, err := e.db.Begin()
	require.NoError(t, err)
	require.NoError(t, e.posRepo.UpsertTx(tx, p.ID, ticker,
		domain.MustQuantity(qty), domain.MustMoney(avgCost), domain.MustMoney(avgCost)))
	require.NoError(t, tx.Commit())
}

func TestPlaceLimitOrder_BuyReservesCash(t *testing.T) {
	env := newTestEnv(t)

	order, err := env.svc.PlaceLimitOrder(context.Background(), "alice", "aapl",
		domain.SideBuy, domain.MustQuantity("10"), domain.MustMoney("100.00"), 7)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderOpen, order.Status)
	assert.Equal(t, "AAPL", order.Ticker)
	assert.Equal(t, "99000.00", env.cash(t, "alice"))

	// No transaction exists until the order fills.
	p, err := env.folios.GetByUserID("alice")
	require.NoError(t, err)
	txns, err := env.txns.ListByPortfolio(p.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestPlaceLimitOrder_BuyInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.PlaceLimitOrder(context.Background(), "alice", "AAPL",
		domain.SideBuy, domain.MustQuantity("10000"), domain.MustMoney("100.00"), 7)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, "100000.00", env.cash(t, "alice"))
}

func TestPlaceLimitOrder_SellValidatesPosition(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.PlaceLimitOrder(context.Background(), "alice", "AAPL",
		domain.SideSell, domain.MustQuantity("5"), domain.MustMoney("200.00"), 7)
	assert.ErrorIs(t, err, domain.ErrNoPosition)

	env.seedPosition(t, "alice", "AAPL", "3", "100.00")
	_, err = env.svc.PlaceLimitOrder(context.Background(), "alice", "AAPL",
		domain.SideSell, domain.MustQuantity("5"), domain.MustMoney("200.00"), 7)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	order, err := env.svc.PlaceLimitOrder(context.Background(), "alice", "AAPL",
		domain.SideSell, domain.MustQuantity("3"), domain.MustMoney("200.00"), 7)
	require.NoError(t, err)
	// Sell placement holds no cash back.
	assert.True(t, order.ReservedCash().IsZero())
	assert.Equal(t, "100000.00", env.cash(t, "alice"))
}

func TestPlaceLimitOrder_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.PlaceLimitOrder(ctx, "alice", "AAPL",
		domain.SideBuy, domain.QuantityZero, domain.MustMoney("100.00"), 7)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = env.svc.PlaceLimitOrder(ctx, "alice", "AAPL",
		domain.SideBuy, domain.MustQuantity("1"), domain.MoneyZero, 7)
	assert.Error(t, err)

	_, err = env.svc.PlaceLimitOrder(ctx, "alice", "",
		domain.SideBuy, domain.MustQuantity("1"), domain.MustMoney("100.00"), 7)
	assert.Error(t, err)
}

func TestCancelOrder_RefundsBuyReservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.PlaceLimitOrder(ctx, "alice", "AAPL",
		domain.SideBuy, domain.MustQuantity("10"), domain.MustMoney("100.00"), 7)
	require.NoError(t, err)
	require.Equal(t, "99000.00", env.cash(t, "alice"))

	cancelled, err := env.svc.CancelOrder(ctx, order.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	assert.Equal(t, "100000.00", env.cash(t, "alice"))
}

func TestCancelOrder_NotOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.PlaceLimitOrder(ctx, "alice", "AAPL",
		domain.SideBuy, domain.MustQuantity("1"), domain.MustMoney("100.00"), 7)
	require.NoError(t, err)

	_, err = env.folios.GetOrCreate("bob", domain.MustMoney("100000.00"))
	require.NoError(t, err)

	_, err = env.svc.CancelOrder(ctx, order.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestCancelOrder_TerminalState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.PlaceLimitOrder(ctx, "alice", "AAPL",
		domain.SideBuy, domain.MustQuantity("1"), domain.MustMoney("100.00"), 7)
	require.NoError(t, err)

	_, err = env.svc.CancelOrder(ctx, order.ID, "alice")
	require.NoError(t, err)

	// Cancelling twice must not refund twice.
	_, err = env.svc.CancelOrder(ctx, order.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, "100000.00", env.cash(t, "alice"))
}
