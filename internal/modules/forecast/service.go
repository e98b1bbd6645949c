// Package forecast produces best-effort price projections from
// historical closes: EMA smoothing followed by a linear fit, with the
// fit's R² reported as confidence.
package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/paperdesk/internal/domain"
)

const (
	historyPeriod = "1y"
	emaPeriod     = 10
	minCandles    = emaPeriod * 2
)

// Service computes forecasts from cached price history.
type Service struct {
	history domain.HistoryProvider
	cache   *HistoryCache
	log     zerolog.Logger
}

// NewService creates a new forecast service
func NewService(history domain.HistoryProvider, cache *HistoryCache, log zerolog.Logger) *Service {
	return &Service{
		history: history,
		cache:   cache,
		log:     log.With().Str("service", "forecast").Logger(),
	}
}

var _ domain.ForecastProvider = (*Service)(nil)

// Forecast projects the ticker's price horizonDays ahead.
func (s *Service) Forecast(ctx context.Context, ticker string, horizonDays int) (*domain.Forecast, error) {
	if horizonDays <= 0 {
		horizonDays = 1
	}

	candles, err := s.loadHistory(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if len(candles) < minCandles {
		return nil, fmt.Errorf("not enough history for %s: %d candles", ticker, len(candles))
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	// EMA output is zero-padded for the warm-up window; fit on the
	// settled tail only.
	smoothed := talib.Ema(closes, emaPeriod)[emaPeriod-1:]

	xs := make([]float64, len(smoothed))
	for i := range xs {
		xs[i] = float64(i)
	}

	alpha, beta := stat.LinearRegression(xs, smoothed, nil, false)
	confidence := stat.RSquared(xs, smoothed, nil, alpha, beta)
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	predicted := alpha + beta*float64(len(smoothed)-1+horizonDays)
	if predicted < 0 {
		predicted = 0
	}

	now := time.Now()
	return &domain.Forecast{
		Ticker:     ticker,
		Horizon:    horizonDays,
		TargetDate: now.AddDate(0, 0, horizonDays),
		Predicted:  predicted,
		Confidence: confidence,
		Generated:  now,
	}, nil
}

// Invalidate drops cached history for a ticker so the next forecast
// refetches.
func (s *Service) Invalidate(ticker string) error {
	return s.cache.Invalidate(ticker)
}

func (s *Service) loadHistory(ctx context.Context, ticker string) ([]domain.Candle, error) {
	cached, ok, err := s.cache.Get(ticker, historyPeriod)
	if err != nil {
		return nil, err
	}
	if ok {
		return cached, nil
	}

	candles, err := s.history.History(ctx, ticker, historyPeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", ticker, err)
	}

	if err := s.cache.Put(ticker, historyPeriod, candles); err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache history")
	}
	return candles, nil
}
