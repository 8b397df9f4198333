package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsumptionRecalculate rewrites the consumption of every order line.
	TaskConsumptionRecalculate = "consumption:recalculate"
)

// ConsumptionRecalculatePayload describes who asked for a recalculation.
type ConsumptionRecalculatePayload struct {
	RequestedAt time.Time `json:"requested_at"`
	Source      string    `json:"source"`
}

// NewConsumptionRecalculateTask constructs an Asynq task with a fresh id.
func NewConsumptionRecalculateTask(source string, at time.Time) (*asynq.Task, error) {
	if source == "" {
		source = "manual"
	}
	body, err := json.Marshal(ConsumptionRecalculatePayload{RequestedAt: at, Source: source})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsumptionRecalculate, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(3),
	), nil
}
