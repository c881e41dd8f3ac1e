package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFinlifeIngest refreshes deposit products from the finlife API.
	TaskFinlifeIngest = "finlife:ingest"
)

// ingestUniqueTTL blocks identical ingest tasks while one is queued or running.
const ingestUniqueTTL = 10 * time.Minute

// FinlifeIngestPayload selects the financial groups to ingest. An empty list
// means the service defaults.
type FinlifeIngestPayload struct {
	Groups []string `json:"groups,omitempty"`
}

// NewFinlifeIngestTask constructs an Asynq task. Ingestion is never retried;
// the next run starts from scratch anyway.
func NewFinlifeIngestTask(groups []string) (*asynq.Task, error) {
	body, err := json.Marshal(FinlifeIngestPayload{Groups: groups})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFinlifeIngest, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.Unique(ingestUniqueTTL),
	), nil
}
