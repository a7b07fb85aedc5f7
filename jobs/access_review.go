package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/longstone-am/longstone/internal/authz"
	jobmetrics "github.com/longstone-am/longstone/internal/jobs"
	"github.com/longstone-am/longstone/internal/shared"
	"github.com/longstone-am/longstone/internal/users"
)

// UserLister enumerates the users to include in an access review.
type UserLister interface {
	ListUsers(ctx context.Context) ([]users.User, error)
}

// PermissionResolver produces a user's full access profile.
type PermissionResolver interface {
	GetEffectivePermissions(ctx context.Context, userID uuid.UUID) ([]authz.EffectivePermission, error)
}

// AccessReview walks every user and records a summary of their effective
// permissions. Overrides that widen access past the role baseline are the
// signal reviewers care about, so those are counted separately.
type AccessReview struct {
	users    UserLister
	resolver PermissionResolver
	audit    shared.AuditRecorder
	clock    shared.Clock
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewAccessReview constructs the access review job.
func NewAccessReview(lister UserLister, resolver PermissionResolver, audit shared.AuditRecorder, clock shared.Clock, logger *slog.Logger, metrics *jobmetrics.Metrics) *AccessReview {
	return &AccessReview{users: lister, resolver: resolver, audit: audit, clock: clock, logger: logger, metrics: metrics}
}

// Handle processes TaskAccessReview tasks.
func (j *AccessReview) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AccessReviewPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("access_review")
	return tracker.End(j.Run(ctx, payload))
}

// Run executes one review sweep.
func (j *AccessReview) Run(ctx context.Context, payload AccessReviewPayload) error {
	all, err := j.users.ListUsers(ctx)
	if err != nil {
		return err
	}

	var reviewed, overridden int
	for _, u := range all {
		perms, err := j.resolver.GetEffectivePermissions(ctx, u.ID)
		if err != nil {
			return err
		}
		reviewed++

		var overrides []string
		for _, p := range perms {
			if p.Source == authz.SourceUserOverride {
				overrides = append(overrides, string(p.Permission))
			}
		}
		if len(overrides) == 0 {
			continue
		}
		overridden++
		if j.logger != nil {
			j.logger.Info("access review: user carries overrides",
				slog.String("user_id", u.ID.String()),
				slog.String("role", string(u.Role)),
				slog.Any("permissions", overrides))
		}
	}

	if j.audit != nil {
		entry := shared.AuditLog{
			Action:   "access_review.completed",
			Entity:   "access_review",
			EntityID: j.clock.Now().Format("2006-01-02T15:04:05Z07:00"),
			Meta: map[string]any{
				"users_reviewed":   reviewed,
				"users_overridden": overridden,
				"requested_by":     payload.RequestedBy,
			},
			At: j.clock.Now(),
		}
		if err := j.audit.Record(ctx, entry); err != nil {
			return err
		}
	}

	j.metrics.SetOverriddenUsers(overridden)
	if j.logger != nil {
		j.logger.Info("access review completed",
			slog.Int("users_reviewed", reviewed),
			slog.Int("users_overridden", overridden))
	}
	return nil
}
