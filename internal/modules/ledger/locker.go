package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/paperdesk/internal/domain"
)

// PortfolioLocker serializes ledger mutations per portfolio. Concurrent
// trades against different portfolios run in parallel; trades against
// the same portfolio queue, and a waiter that cannot acquire the lock
// within maxWait fails with ErrContention instead of blocking the
// request indefinitely.
type PortfolioLocker struct {
	mu      sync.Mutex
	locks   map[int64]chan struct{}
	maxWait time.Duration
}

// NewPortfolioLocker creates a locker with the given acquisition bound.
func NewPortfolioLocker(maxWait time.Duration) *PortfolioLocker {
	return &PortfolioLocker{
		locks:   make(map[int64]chan struct{}),
		maxWait: maxWait,
	}
}

func (l *PortfolioLocker) sem(portfolioID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[portfolioID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[portfolioID] = ch
	}
	return ch
}

// Acquire takes the portfolio's lock, waiting up to the configured
// bound. The returned release function must be called exactly once.
func (l *PortfolioLocker) Acquire(ctx context.Context, portfolioID int64) (func(), error) {
	ch := l.sem(portfolioID)

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, domain.ErrContention
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
