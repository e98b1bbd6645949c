package forecast

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/paperdesk/internal/domain"
)

// HistoryCache stores msgpack-encoded candle series in the cache
// database, keyed by ticker and period. Entries older than the TTL are
// treated as misses. The cache database is disposable.
type HistoryCache struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewHistoryCache creates a new history cache
func NewHistoryCache(db *sql.DB, ttl time.Duration, log zerolog.Logger) *HistoryCache {
	return &HistoryCache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "history_cache").Logger(),
	}
}

// Get returns the cached series for (ticker, period), or ok=false on a
// miss or stale entry.
func (c *HistoryCache) Get(ticker, period string) ([]domain.Candle, bool, error) {
	row := c.db.QueryRow(`SELECT payload, cached_at FROM history_cache
		WHERE ticker = ? AND period = ?`, ticker, period)

	var payload []byte
	var cachedAt int64
	err := row.Scan(&payload, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read history cache: %w", err)
	}

	if time.Since(time.Unix(cachedAt, 0)) > c.ttl {
		return nil, false, nil
	}

	var candles []domain.Candle
	if err := msgpack.Unmarshal(payload, &candles); err != nil {
		// A corrupt entry is a miss; the next Put overwrites it.
		c.log.Warn().Err(err).Str("ticker", ticker).Msg("Dropping undecodable cache entry")
		return nil, false, nil
	}
	return candles, true, nil
}

// Put stores a candle series for (ticker, period), replacing any
// previous entry.
func (c *HistoryCache) Put(ticker, period string, candles []domain.Candle) error {
	payload, err := msgpack.Marshal(candles)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	_, err = c.db.Exec(`INSERT INTO history_cache (ticker, period, payload, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ticker, period) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at`,
		ticker, period, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write history cache: %w", err)
	}
	return nil
}

// Invalidate drops every cached period for a ticker.
func (c *HistoryCache) Invalidate(ticker string) error {
	_, err := c.db.Exec(`DELETE FROM history_cache WHERE ticker = ?`, ticker)
	if err != nil {
		return fmt.Errorf("failed to invalidate history cache: %w", err)
	}
	return nil
}
