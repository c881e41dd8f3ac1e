package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/finboard/finboard/internal/finlife"
	jobmetrics "github.com/finboard/finboard/internal/jobs"
)

// Ingester runs one finlife ingestion.
type Ingester interface {
	IngestGroups(ctx context.Context, groups []string) (finlife.IngestResult, error)
}

// FinlifeIngestJob handles TaskFinlifeIngest.
type FinlifeIngestJob struct {
	Ingester Ingester
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewFinlifeIngestJob wires dependencies for the ingest handler.
func NewFinlifeIngestJob(ingester Ingester, logger *slog.Logger, metrics *jobmetrics.Metrics) *FinlifeIngestJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FinlifeIngestJob{Ingester: ingester, Logger: logger, Metrics: metrics}
}

// Handle processes finlife ingest tasks. Failures are reported once and not
// retried.
func (j *FinlifeIngestJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Ingester == nil {
		return errors.New("finlife ingest: handler not configured")
	}
	var payload FinlifeIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("finlife ingest: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskFinlifeIngest)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	result, err := j.Ingester.IngestGroups(ctx, payload.Groups)
	if err != nil {
		j.Logger.Error("finlife ingest job failed", slog.Any("groups", payload.Groups), slog.Any("error", err))
		return fmt.Errorf("finlife ingest: %v: %w", err, asynq.SkipRetry)
	}
	j.Logger.Info("finlife ingest job done",
		slog.Int("products", result.Products),
		slog.Int("options", result.Options),
		slog.Int("skipped", result.Skipped))
	return nil
}
