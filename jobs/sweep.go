package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-core/internal/jobs"
)

// Redeliverer is the slice of provisioning.Service the sweep needs.
type Redeliverer interface {
	Redeliver(ctx context.Context, staleAfter time.Duration, limit int) (int, error)
}

// ProvisionSweepJob re-enqueues provisioning requests that stayed pending
// past StaleAfter, typically because their enqueue failed on submit.
type ProvisionSweepJob struct {
	Service    Redeliverer
	StaleAfter time.Duration
	Limit      int
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle runs one sweep. Failures are left to the next tick.
func (j *ProvisionSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("provision sweep: handler not configured")
	}
	delivery := j.Metrics.Begin(TaskProvisionSweep)
	limit := j.Limit
	if limit <= 0 {
		limit = 100
	}
	n, err := j.Service.Redeliver(ctx, j.StaleAfter, limit)
	if err != nil {
		j.logger().Warn("provision sweep", slog.Int("enqueued", n), slog.Any("error", err))
		delivery.Finish(jobmetrics.OutcomeSkipped)
		return asynq.SkipRetry
	}
	delivery.Finish(jobmetrics.OutcomeProcessed)
	return nil
}

func (j *ProvisionSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
