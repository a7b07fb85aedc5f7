package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAccessReview is the task type for the periodic access review.
	TaskAccessReview = "authz:access_review"
	// TaskSessionCleanup is the task type for purging expired sessions.
	TaskSessionCleanup = "auth:session_cleanup"
)

// AccessReviewPayload scopes an access review run.
type AccessReviewPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewAccessReviewTask constructs an Asynq task for an access review.
func NewAccessReviewTask(payload AccessReviewPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccessReview, data), nil
}

// SessionCleanupPayload carries the cutoff for session purging. A zero
// Before means "now at processing time".
type SessionCleanupPayload struct {
	Before time.Time `json:"before,omitempty"`
}

// NewSessionCleanupTask constructs an Asynq task for session cleanup.
func NewSessionCleanupTask(payload SessionCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionCleanup, data), nil
}
