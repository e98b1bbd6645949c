package scheduler

import (
	"context"
	"time"

	"github.com/aristath/paperdesk/internal/modules/orders"
)

const sweepTimeout = 2 * time.Minute

// SweepJob runs the order book sweep: expire stale orders, then fill
// whatever the current quotes satisfy.
type SweepJob struct {
	orders *orders.Service
}

// NewSweepJob creates a new sweep job
func NewSweepJob(orderService *orders.Service) *SweepJob {
	return &SweepJob{orders: orderService}
}

// Name implements Job.
func (j *SweepJob) Name() string { return "order_sweep" }

// Run implements Job.
func (j *SweepJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	_, err := j.orders.Sweep(ctx, time.Now())
	return err
}
