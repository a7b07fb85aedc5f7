package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/longstone-am/longstone/internal/jobs"
	"github.com/longstone-am/longstone/internal/shared"
)

// SessionPurger removes expired session rows.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// SessionCleanup drops expired sessions from the store.
type SessionCleanup struct {
	purger  SessionPurger
	clock   shared.Clock
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSessionCleanup constructs the session cleanup job.
func NewSessionCleanup(purger SessionPurger, clock shared.Clock, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionCleanup {
	return &SessionCleanup{purger: purger, clock: clock, logger: logger, metrics: metrics}
}

// Handle processes TaskSessionCleanup tasks.
func (j *SessionCleanup) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SessionCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	before := payload.Before
	if before.IsZero() {
		before = j.clock.Now()
	}
	tracker := j.metrics.Track("session_cleanup")
	removed, err := j.purger.PurgeExpiredSessions(ctx, before)
	if err != nil {
		return tracker.End(err)
	}
	_ = tracker.End(nil)
	if j.logger != nil && removed > 0 {
		j.logger.Info("expired sessions purged", slog.Int64("removed", removed))
	}
	return nil
}
