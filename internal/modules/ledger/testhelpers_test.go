package ledger

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperdesk/internal/database"
	"github.com/aristath/paperdesk/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A pooled second connection would see its own empty in-memory
	// database, so pin the pool to one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "database", "schemas", "ledger_schema.sql"))
	require.NoError(t, err)
	require.NoError(t, database.MigrateSchema(db, string(schema), "ledger"))

	return db
}

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func createTestPortfolio(t *testing.T, db *sql.DB, userID, cash string) *domain.Portfolio {
	t.Helper()
	repo := NewPortfolioRepository(db, testLog())
	p, err := repo.GetOrCreate(userID, domain.MustMoney(cash))
	require.NoError(t, err)
	return p
}

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}
