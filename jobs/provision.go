package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-core/internal/jobs"
	"github.com/odyssey-erp/odyssey-core/internal/provisioning"
)

// Provisioner is the slice of provisioning.Service the job needs.
type Provisioner interface {
	Process(ctx context.Context, id string) (provisioning.Request, error)
	Fail(ctx context.Context, id string) (provisioning.Request, error)
}

// ProvisionJob drives provisioning requests to a terminal state.
type ProvisionJob struct {
	Service Provisioner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	// retries reports the current attempt and the allowed retries for ctx.
	retries func(ctx context.Context) (int, int)
}

// NewProvisionJob initialises the provisioning handler.
func NewProvisionJob(service Provisioner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProvisionJob {
	return &ProvisionJob{Service: service, Logger: logger, Metrics: metrics, retries: asynqRetries}
}

// Handle processes one TaskUserProvision task. Transient failures are
// returned for redelivery; on the last attempt the request is marked failed.
func (j *ProvisionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("provision: handler not configured")
	}
	delivery := j.Metrics.Begin(TaskUserProvision)
	var payload ProvisionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RequestID == "" {
		delivery.Finish(jobmetrics.OutcomeSkipped)
		return asynq.SkipRetry
	}

	logger := j.logger().With(slog.String("request_id", payload.RequestID))
	req, err := j.Service.Process(ctx, payload.RequestID)
	if errors.Is(err, provisioning.ErrRequestNotFound) {
		logger.Warn("provision request missing")
		delivery.Finish(jobmetrics.OutcomeSkipped)
		return asynq.SkipRetry
	}
	if err != nil {
		attempt, maxRetry := j.retries(ctx)
		if attempt < maxRetry {
			logger.Warn("provision attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))
			delivery.Finish(jobmetrics.OutcomeRetry)
			return err
		}
		logger.Error("provision giving up", slog.Int("attempt", attempt), slog.Any("error", err))
		if _, ferr := j.Service.Fail(ctx, payload.RequestID); ferr != nil {
			logger.Error("provision mark failed", slog.Any("error", ferr))
			delivery.Finish(jobmetrics.OutcomeRetry)
			return ferr
		}
		delivery.Finish(jobmetrics.OutcomeExhausted)
		return nil
	}
	logger.Info("provision processed",
		slog.String("state", string(req.State)),
		slog.String("code", string(req.Error)))
	delivery.Finish(jobmetrics.OutcomeProcessed)
	return nil
}

func (j *ProvisionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func asynqRetries(ctx context.Context) (int, int) {
	attempt, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return 0, 0
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return attempt, 0
	}
	return attempt, maxRetry
}
