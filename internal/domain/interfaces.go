package domain

import "context"

// PriceOracle supplies the current price for a ticker. Implementations
// return ErrPriceUnavailable (possibly wrapped) when no quote exists.
type PriceOracle interface {
	Quote(ctx context.Context, ticker string) (Money, error)
}

// HistoryProvider supplies historical candles for a ticker over a named
// period such as "1mo" or "1y".
type HistoryProvider interface {
	History(ctx context.Context, ticker, period string) ([]Candle, error)
}

// ForecastProvider produces a price projection for a ticker.
type ForecastProvider interface {
	Forecast(ctx context.Context, ticker string, horizonDays int) (*Forecast, error)
}
