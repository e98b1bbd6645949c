package marketdata

import (
	"context"

	"github.com/aristath/paperdesk/internal/domain"
)

// CachedOracle serves quotes from the live stream cache when fresh and
// falls back to the HTTP client otherwise.
type CachedOracle struct {
	stream   *PriceStream
	fallback domain.PriceOracle
}

// NewCachedOracle creates an oracle fronted by the stream cache. A nil
// stream degrades to the fallback alone.
func NewCachedOracle(stream *PriceStream, fallback domain.PriceOracle) *CachedOracle {
	return &CachedOracle{stream: stream, fallback: fallback}
}

var _ domain.PriceOracle = (*CachedOracle)(nil)

// Quote implements domain.PriceOracle.
func (o *CachedOracle) Quote(ctx context.Context, ticker string) (domain.Money, error) {
	if o.stream != nil {
		if price, ok := o.stream.LastQuote(ticker); ok {
			return price, nil
		}
	}
	return o.fallback.Quote(ctx, ticker)
}
