package command

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/ratelimit"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// ID names an inbound command.
type ID string

const (
	CreateAppeal      ID = "appeal.create"
	ReplyAsStudent    ID = "appeal.reply.student"
	ReplyAsStaff      ID = "appeal.reply.staff"
	AssignAppeal      ID = "appeal.assign"
	ChangePriority    ID = "appeal.priority"
	CloseAppeal       ID = "appeal.close"
	RateAppeal        ID = "appeal.rate"
	ViewAppeal        ID = "appeal.view"
	ListAppeals       ID = "appeal.list"
	ListNotifications ID = "notification.list"
	ReadNotification  ID = "notification.read"
	ManageStaff       ID = "staff.manage"
)

// Permission is the role requirement of a command.
type Permission string

const (
	PermissionStudent Permission = "student"
	PermissionStaff   Permission = "staff"
)

// Policy is what the pipeline enforces before a command runs. An empty
// RateLimitAction disables throttling.
type Policy struct {
	Permission      Permission
	RateLimitAction string
}

// Registry maps command IDs to their policy.
type Registry struct {
	policies map[ID]Policy
}

// NewRegistry builds a registry from an explicit table.
func NewRegistry(policies map[ID]Policy) *Registry {
	copied := make(map[ID]Policy, len(policies))
	for id, p := range policies {
		copied[id] = p
	}
	return &Registry{policies: copied}
}

// DefaultRegistry is the policy table for the appeal commands.
func DefaultRegistry() *Registry {
	return NewRegistry(map[ID]Policy{
		CreateAppeal:      {Permission: PermissionStudent, RateLimitAction: "create_appeal"},
		ReplyAsStudent:    {Permission: PermissionStudent, RateLimitAction: "send_message"},
		ReplyAsStaff:      {Permission: PermissionStaff, RateLimitAction: "send_message"},
		AssignAppeal:      {Permission: PermissionStaff},
		ChangePriority:    {Permission: PermissionStaff},
		CloseAppeal:       {Permission: PermissionStaff},
		RateAppeal:        {Permission: PermissionStudent, RateLimitAction: "rate_appeal"},
		ViewAppeal:        {Permission: PermissionStudent},
		ListAppeals:       {Permission: PermissionStudent},
		ListNotifications: {Permission: PermissionStudent},
		ReadNotification:  {Permission: PermissionStudent},
		ManageStaff:       {Permission: PermissionStaff},
	})
}

// Lookup returns the policy for id.
func (r *Registry) Lookup(id ID) (Policy, bool) {
	p, ok := r.policies[id]
	return p, ok
}

// IDs lists registered commands in order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Pipeline enforces command policies in front of the workflow.
type Pipeline struct {
	registry *Registry
	limiter  *ratelimit.Limiter
	limits   ratelimit.Limits
	logger   *zap.Logger
}

// NewPipeline builds a pipeline. A nil limiter disables throttling.
func NewPipeline(registry *Registry, limiter *ratelimit.Limiter, limits ratelimit.Limits, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{registry: registry, limiter: limiter, limits: limits, logger: logger}
}

// Authorize runs the permission and rate limit checks for id.
func (p *Pipeline) Authorize(ctx context.Context, actor domain.Actor, id ID) error {
	policy, ok := p.registry.Lookup(id)
	if !ok {
		return apperrors.NewValidationError("unknown command", map[string]any{"command": id})
	}
	if policy.Permission == PermissionStaff && !actor.IsStaff() {
		return apperrors.NewForbidden("staff role required")
	}
	if policy.RateLimitAction == "" || p.limiter == nil {
		return nil
	}

	limit := p.limits.For(actor.Role)
	if p.limiter.Allow(ctx, actor.ID, policy.RateLimitAction, limit) {
		return nil
	}
	retryAfter, _ := p.limiter.TimeUntilReset(ctx, actor.ID, policy.RateLimitAction)
	p.logger.Info("command rate limited",
		zap.Int64("user_id", actor.ID),
		zap.String("command", string(id)),
		zap.Duration("retry_after", retryAfter))
	return apperrors.NewRateLimited(policy.RateLimitAction, retryAfter)
}

// Run authorizes id for actor and then executes fn.
func (p *Pipeline) Run(ctx context.Context, actor domain.Actor, id ID, fn func(ctx context.Context) error) error {
	if err := p.Authorize(ctx, actor, id); err != nil {
		return err
	}
	return fn(ctx)
}

// Execute is Run for commands that produce a value.
func Execute[T any](ctx context.Context, p *Pipeline, actor domain.Actor, id ID, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.Authorize(ctx, actor, id); err != nil {
		return zero, err
	}
	return fn(ctx)
}
