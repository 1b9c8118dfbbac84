package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskUserProvision processes one user provisioning request.
	TaskUserProvision = "users:provision"
	// TaskProvisionSweep re-enqueues provisioning requests stuck in pending.
	TaskProvisionSweep = "users:provision-sweep"
	// ProvisionMaxRetry bounds redelivery of a provisioning task.
	ProvisionMaxRetry = 5
)

// ProvisionPayload identifies the request to process.
type ProvisionPayload struct {
	RequestID string `json:"request_id"`
}

// NewProvisionTask constructs an Asynq task. The task id is derived from the
// request id so duplicate enqueues collapse.
func NewProvisionTask(requestID string) (*asynq.Task, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("jobs: provision request id required")
	}
	data, err := json.Marshal(ProvisionPayload{RequestID: requestID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUserProvision, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(ProvisionMaxRetry),
		asynq.TaskID("provision:"+requestID),
	), nil
}

// NewProvisionSweepTask constructs the periodic sweep task. Overlapping ticks
// collapse while one sweep is still queued.
func NewProvisionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskProvisionSweep, nil,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.Unique(time.Minute),
	)
}
