package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperdesk/internal/domain"
)

func TestLockerSerializesSamePortfolio(t *testing.T) {
	locker := NewPortfolioLocker(time.Second)
	ctx := context.Background()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, 1)
			require.NoError(t, err)
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestLockerTimesOutWithContention(t *testing.T) {
	locker := NewPortfolioLocker(50 * time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)
	defer release()

	_, err = locker.Acquire(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrContention)
}

func TestLockerIndependentPortfolios(t *testing.T) {
	locker := NewPortfolioLocker(50 * time.Millisecond)
	ctx := context.Background()

	r1, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)
	defer r1()

	// A different portfolio is not blocked.
	r2, err := locker.Acquire(ctx, 2)
	require.NoError(t, err)
	r2()
}

func TestLockerHonorsContextCancel(t *testing.T) {
	locker := NewPortfolioLocker(time.Minute)

	release, err := locker.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = locker.Acquire(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
