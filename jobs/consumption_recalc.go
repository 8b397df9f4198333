package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sisco70/tabacchi/internal/consumption"
	jobmetrics "github.com/sisco70/tabacchi/internal/jobs"
	"github.com/sisco70/tabacchi/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Recalculator rewrites the consumption history.
type Recalculator interface {
	Recalculate(ctx context.Context, progress consumption.Progress) (consumption.Result, error)
}

// Locker keeps a single recalculation running across workers.
type Locker interface {
	Acquire(ctx context.Context, kind string) (func(context.Context) error, error)
}

// ConsumptionRecalcJob runs the recalculation in the worker.
type ConsumptionRecalcJob struct {
	Service Recalculator
	Lock    Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewConsumptionRecalcJob constructs the job handler.
func NewConsumptionRecalcJob(service Recalculator, lock Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsumptionRecalcJob {
	return &ConsumptionRecalcJob{Service: service, Lock: lock, Logger: logger, Metrics: metrics}
}

// Handle executes the recalculation. A run already holding the lock makes
// this one a no-op; a stop leaves the stored consumption untouched and lets
// asynq retry later.
func (j *ConsumptionRecalcJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("consumption recalculate: dependencies not configured")
	}
	var payload ConsumptionRecalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	logger := j.log().With(slog.String("source", payload.Source))

	release := func(context.Context) error { return nil }
	if j.Lock != nil {
		var err error
		release, err = j.Lock.Acquire(ctx, TaskConsumptionRecalculate)
		if errors.Is(err, shared.ErrLockHeld) {
			logger.Info("recalculation already running, skipping")
			return nil
		}
		if err != nil {
			return err
		}
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release recalculation lock", slog.Any("error", err))
		}
	}()

	tracker := j.metrics().Track(TaskConsumptionRecalculate)
	res, err := j.Service.Recalculate(ctx, nil)
	if res.Status == consumption.StatusStopped || errors.Is(err, shared.ErrStopped) {
		tracker.Stop()
		logger.Warn("recalculation stopped", slog.Duration("duration", res.Duration))
		if !errors.Is(err, shared.ErrStopped) {
			err = fmt.Errorf("consumption recalculate: %w: %w", shared.ErrStopped, err)
		}
		return err
	}
	if err != nil {
		logger.Error("recalculation failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddRows(TaskConsumptionRecalculate, res.Rows)
	logger.Info("recalculation completed", slog.Int("rows", res.Rows), slog.Duration("duration", res.Duration))
	return tracker.End(nil)
}

func (j *ConsumptionRecalcJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ConsumptionRecalcJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskConsumptionRecalculate))
	}
	return slog.Default().With(slog.String("job", TaskConsumptionRecalculate))
}
