package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusdesk/appeal-service/internal/clock"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/events"
	"github.com/campusdesk/appeal-service/internal/observability"
	"github.com/campusdesk/appeal-service/internal/repository"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// maxSaveAttempts bounds retries after a concurrent modification.
const maxSaveAttempts = 3

const previewLength = 120

// AppealService coordinates appeal workflows.
type AppealService struct {
	appeals    repository.AppealRepository
	history    repository.AppealHistoryRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	clock      clock.Clock
	validator  *validator.Validate
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// AppealDependencies bundles collaborators for the appeal service.
type AppealDependencies struct {
	AppealRepo  repository.AppealRepository
	HistoryRepo repository.AppealHistoryRepository
	UserRepo    repository.UserRepository
	Dispatcher  events.Dispatcher
	Clock       clock.Clock
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// CreateAppealInput describes appeal creation payload.
type CreateAppealInput struct {
	Category string `json:"category" validate:"required,max=64"`
	Subject  string `json:"subject" validate:"required,min=5,max=200"`
	Message  string `json:"message" validate:"required,min=10,max=4000"`
}

// MessageInput is a reply with optional attachments.
type MessageInput struct {
	Text        string              `json:"text" validate:"max=4000"`
	Attachments []domain.Attachment `json:"attachments" validate:"max=10,dive"`
}

// RatingInput is the owner's rating of a closed appeal.
type RatingInput struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// AppealListFilter describes staff listing filters.
type AppealListFilter struct {
	Statuses       []domain.AppealStatus
	Priorities     []domain.AppealPriority
	AssigneeID     *int64
	UnassignedOnly bool
	Limit          int
	Offset         int
}

// NewAppealService constructs the service.
func NewAppealService(deps AppealDependencies) *AppealService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewSystem(time.UTC)
	}
	return &AppealService{
		appeals:    deps.AppealRepo,
		history:    deps.HistoryRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		clock:      clk,
		validator:  newValidator(),
		logger:     logger,
		metrics:    deps.Metrics,
	}
}

// CreateAppeal opens a new appeal for the acting student.
func (s *AppealService) CreateAppeal(ctx context.Context, actor domain.Actor, input CreateAppealInput) (*domain.Appeal, error) {
	input.Category = strings.TrimSpace(input.Category)
	input.Subject = strings.TrimSpace(input.Subject)
	input.Message = strings.TrimSpace(input.Message)
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err)
	}

	appeal, err := domain.NewAppeal(actor.ID, actor.Name, input.Category, input.Subject, input.Message, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.appeals.Create(ctx, appeal); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.metrics.AppealOperation("create")
	s.logger.Info("appeal created",
		zap.Int64("appeal_id", appeal.ID),
		zap.Int64("student_id", actor.ID),
		zap.String("category", appeal.Category))

	s.publishEvent(ctx, events.Event{
		Type:     events.EventAppealCreated,
		AppealID: appeal.ID,
		ActorID:  actor.ID,
		Payload: events.AppealCreatedPayload{
			Appeal:   events.NewAppealRef(appeal),
			Category: appeal.Category,
		},
	})
	return appeal, nil
}

// AssignTo sets or clears (adminID nil) the responsible admin.
func (s *AppealService) AssignTo(ctx context.Context, actor domain.Actor, appealID int64, adminID *int64) (*domain.Appeal, error) {
	if adminID != nil {
		if err := s.ensureStaffUser(ctx, *adminID); err != nil {
			return nil, err
		}
	}

	var (
		changed bool
		oldID   *int64
	)
	appeal, err := s.mutate(ctx, appealID, "assign", func(a *domain.Appeal) (bool, error) {
		oldID = a.AssignedAdminID
		var err error
		changed, err = a.AssignTo(adminID, actor.ID, s.clock.Now())
		return changed, err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventAppealAssigned,
			AppealID: appeal.ID,
			ActorID:  actor.ID,
			Payload: events.AppealAssignedPayload{
				Appeal:     events.NewAppealRef(appeal),
				OldAdminID: oldID,
			},
		})
	}
	return appeal, nil
}

// AddStaffMessage posts a staff reply. An unassigned appeal is taken by the replying admin.
func (s *AppealService) AddStaffMessage(ctx context.Context, actor domain.Actor, appealID int64, input MessageInput) (*domain.Appeal, *domain.AppealMessage, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, nil, validationError(err)
	}
	var (
		msg          *domain.AppealMessage
		autoAssigned bool
	)
	appeal, err := s.mutate(ctx, appealID, "staff_message", func(a *domain.Appeal) (bool, error) {
		wasAssigned := a.AssignedAdminID != nil
		var err error
		msg, err = a.AddStaffMessage(actor.ID, actor.Name, input.Text, input.Attachments, s.clock.Now())
		autoAssigned = !wasAssigned && a.AssignedAdminID != nil
		return err == nil, err
	})
	if err != nil {
		return nil, nil, err
	}

	if autoAssigned {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventAppealAssigned,
			AppealID: appeal.ID,
			ActorID:  actor.ID,
			Payload:  events.AppealAssignedPayload{Appeal: events.NewAppealRef(appeal)},
		})
	}
	s.publishMessageAdded(ctx, actor, appeal, msg)
	return appeal, msg, nil
}

// AddStudentMessage posts a reply from the owning student.
func (s *AppealService) AddStudentMessage(ctx context.Context, actor domain.Actor, appealID int64, input MessageInput) (*domain.Appeal, *domain.AppealMessage, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, nil, validationError(err)
	}
	var msg *domain.AppealMessage
	appeal, err := s.mutate(ctx, appealID, "student_message", func(a *domain.Appeal) (bool, error) {
		var err error
		msg, err = a.AddStudentMessage(actor.ID, actor.Name, input.Text, input.Attachments, s.clock.Now())
		return err == nil, err
	})
	if err != nil {
		return nil, nil, err
	}
	s.publishMessageAdded(ctx, actor, appeal, msg)
	return appeal, msg, nil
}

// UpdatePriority changes the handling priority.
func (s *AppealService) UpdatePriority(ctx context.Context, actor domain.Actor, appealID int64, priority domain.AppealPriority) (*domain.Appeal, error) {
	var old domain.AppealPriority
	appeal, err := s.mutate(ctx, appealID, "priority", func(a *domain.Appeal) (bool, error) {
		var err error
		old, err = a.UpdatePriority(priority, actor.ID, s.clock.Now())
		return err == nil && old != priority, err
	})
	if err != nil {
		return nil, err
	}
	if old == priority {
		return appeal, nil
	}
	s.logger.Info("appeal priority changed",
		zap.Int64("appeal_id", appeal.ID),
		zap.String("old_priority", string(old)),
		zap.String("new_priority", string(priority)),
		zap.Int64("actor_id", actor.ID))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventAppealPriorityChanged,
		AppealID: appeal.ID,
		ActorID:  actor.ID,
		Payload: events.AppealPriorityChangedPayload{
			Appeal:      events.NewAppealRef(appeal),
			OldPriority: old,
		},
	})
	return appeal, nil
}

// Close resolves (isRejection false) or rejects the appeal. Notification
// failures never undo the close.
func (s *AppealService) Close(ctx context.Context, actor domain.Actor, appealID int64, reason string, isRejection bool) (*domain.Appeal, error) {
	if utf8.RuneCountInString(reason) > 1000 {
		return nil, apperrors.NewValidationError("reason too long", map[string]any{"reason": "max=1000"})
	}
	appeal, err := s.mutate(ctx, appealID, "close", func(a *domain.Appeal) (bool, error) {
		return true, a.Close(actor.ID, reason, isRejection, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("appeal closed",
		zap.Int64("appeal_id", appeal.ID),
		zap.String("status", string(appeal.Status)),
		zap.Int64("closed_by", actor.ID))

	var closedReason string
	if appeal.ClosedReason != nil {
		closedReason = *appeal.ClosedReason
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventAppealClosed,
		AppealID: appeal.ID,
		ActorID:  actor.ID,
		Payload: events.AppealClosedPayload{
			Appeal:      events.NewAppealRef(appeal),
			Status:      appeal.Status,
			Reason:      closedReason,
			IsRejection: isRejection,
		},
	})
	return appeal, nil
}

// SetRating records the owner's rating of a closed appeal.
func (s *AppealService) SetRating(ctx context.Context, actor domain.Actor, appealID int64, input RatingInput) (*domain.Appeal, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err)
	}
	appeal, err := s.mutate(ctx, appealID, "rate", func(a *domain.Appeal) (bool, error) {
		return true, a.SetRating(actor.ID, input.Rating, input.Comment, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventAppealRated,
		AppealID: appeal.ID,
		ActorID:  actor.ID,
		Payload: events.AppealRatedPayload{
			Appeal: events.NewAppealRef(appeal),
			Rating: input.Rating,
		},
	})
	return appeal, nil
}

// GetAppeal loads an appeal with its thread for its owner or any staff member.
func (s *AppealService) GetAppeal(ctx context.Context, actor domain.Actor, appealID int64) (*domain.Appeal, error) {
	appeal, err := s.load(ctx, appealID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && !appeal.IsOwnedBy(actor.ID) {
		return nil, apperrors.NewForbidden("appeal belongs to another student")
	}
	return appeal, nil
}

// ListStudentAppeals returns the actor's own appeals, most recently updated first.
func (s *AppealService) ListStudentAppeals(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Appeal, error) {
	id := actor.ID
	result, err := s.appeals.ListWithFilter(ctx, repository.AppealFilter{
		StudentID: &id,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return result, nil
}

// ListAppeals returns appeals for the staff queue.
func (s *AppealService) ListAppeals(ctx context.Context, filter AppealListFilter) ([]domain.Appeal, error) {
	for _, st := range filter.Statuses {
		switch st {
		case domain.AppealStatusNew, domain.AppealStatusInProgress, domain.AppealStatusAdminReplied,
			domain.AppealStatusStudentReplied, domain.AppealStatusResolved, domain.AppealStatusClosed:
		default:
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": st})
		}
	}
	for _, p := range filter.Priorities {
		if !p.Valid() {
			return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": p})
		}
	}
	result, err := s.appeals.ListWithFilter(ctx, repository.AppealFilter{
		AssignedAdminID: filter.AssigneeID,
		UnassignedOnly:  filter.UnassignedOnly,
		Statuses:        filter.Statuses,
		Priorities:      filter.Priorities,
		Limit:           filter.Limit,
		Offset:          filter.Offset,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return result, nil
}

// ListHistory returns the audit trail of an appeal.
func (s *AppealService) ListHistory(ctx context.Context, appealID int64) ([]domain.AppealHistory, error) {
	if _, err := s.load(ctx, appealID); err != nil {
		return nil, err
	}
	history, err := s.history.ListByAppeal(ctx, appealID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return history, nil
}

// mutate loads the appeal, applies fn and saves it. On a concurrent
// modification the whole cycle is repeated against fresh state. fn reports
// whether anything changed; unchanged appeals are not written.
func (s *AppealService) mutate(ctx context.Context, appealID int64, op string, fn func(*domain.Appeal) (bool, error)) (*domain.Appeal, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		appeal, err := s.load(ctx, appealID)
		if err != nil {
			return nil, err
		}
		changed, err := fn(appeal)
		if err != nil {
			return nil, err
		}
		if !changed {
			return appeal, nil
		}

		err = s.appeals.Save(ctx, appeal)
		if err == nil {
			s.metrics.AppealOperation(op)
			return appeal, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			s.logger.Error("save appeal", zap.Int64("appeal_id", appealID), zap.String("operation", op), zap.Error(err))
			return nil, apperrors.NewInternalError(err)
		}
		s.logger.Debug("appeal changed concurrently, retrying",
			zap.Int64("appeal_id", appealID),
			zap.String("operation", op),
			zap.Int("attempt", attempt))
	}
	return nil, apperrors.NewConflict("appeal was modified concurrently, please retry", map[string]any{"appeal_id": appealID})
}

func (s *AppealService) load(ctx context.Context, appealID int64) (*domain.Appeal, error) {
	appeal, err := s.appeals.GetByID(ctx, appealID)
	if err != nil {
		de := apperrors.ToDomainError(err)
		if de.Code == apperrors.CodeNotFound {
			return nil, apperrors.NewNotFound("appeal", map[string]any{"appeal_id": appealID})
		}
		return nil, de
	}
	return appeal, nil
}

func (s *AppealService) ensureStaffUser(ctx context.Context, userID int64) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		de := apperrors.ToDomainError(err)
		if de.Code == apperrors.CodeNotFound {
			return apperrors.NewNotFound("admin", map[string]any{"admin_id": userID})
		}
		return de
	}
	if !user.Role.IsStaff() {
		return apperrors.NewValidationError("assignee must be a staff member", map[string]any{"admin_id": userID})
	}
	return nil
}

func (s *AppealService) publishMessageAdded(ctx context.Context, actor domain.Actor, appeal *domain.Appeal, msg *domain.AppealMessage) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventAppealMessageAdded,
		AppealID: appeal.ID,
		ActorID:  actor.ID,
		Payload: events.AppealMessageAddedPayload{
			Appeal:      events.NewAppealRef(appeal),
			MessageID:   msg.ID,
			SenderName:  msg.SenderName,
			IsFromStaff: msg.IsFromStaff,
			Preview:     preview(msg.Text),
		},
	})
}

func (s *AppealService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength]) + "…"
}
