package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdesk/appeal-service/internal/clock"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/events"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

var (
	ann = domain.Actor{ID: 1, Name: "Ann", Role: domain.RoleStudent}
	bob = domain.Actor{ID: 2, Name: "Bob", Role: domain.RoleAdmin}
	cat = domain.Actor{ID: 3, Name: "Cat", Role: domain.RoleSuperAdmin}
	dan = domain.Actor{ID: 4, Name: "Dan", Role: domain.RoleStudent}
)

type appealFixture struct {
	svc      *AppealService
	appeals  *memAppeals
	notifier *recordingNotifier
	notify   *NotificationService
	clock    *clock.Manual
}

func newAppealFixture(t *testing.T) *appealFixture {
	t.Helper()
	clk := clock.NewManual(testNow)
	appeals := newMemAppeals()
	users := newMemUsers(
		domain.User{ID: ann.ID, DisplayName: ann.Name, Role: ann.Role},
		domain.User{ID: bob.ID, DisplayName: bob.Name, Role: bob.Role},
		domain.User{ID: cat.ID, DisplayName: cat.Name, Role: cat.Role},
		domain.User{ID: dan.ID, DisplayName: dan.Name, Role: dan.Role},
	)
	bus := events.NewInMemoryDispatcher(nil)
	notifier := &recordingNotifier{}
	notify := NewNotificationService(bus, notifier, users, nil, time.Second)
	notify.RegisterHandlers()

	svc := NewAppealService(AppealDependencies{
		AppealRepo:  appeals,
		HistoryRepo: appeals,
		UserRepo:    users,
		Dispatcher:  bus,
		Clock:       clk,
	})
	return &appealFixture{svc: svc, appeals: appeals, notifier: notifier, notify: notify, clock: clk}
}

func (f *appealFixture) create(t *testing.T) *domain.Appeal {
	t.Helper()
	appeal, err := f.svc.CreateAppeal(context.Background(), ann, CreateAppealInput{
		Category: "grades",
		Subject:  "Exam grade",
		Message:  "Please review my final exam grade",
	})
	require.NoError(t, err)
	return appeal
}

func TestAppealLifecycleEndToEnd(t *testing.T) {
	f := newAppealFixture(t)
	ctx := context.Background()

	appeal := f.create(t)
	assert.Equal(t, domain.AppealStatusNew, appeal.Status)
	assert.Equal(t, domain.AppealPriorityNormal, appeal.Priority)

	f.clock.Advance(time.Hour)
	appeal, msg, err := f.svc.AddStaffMessage(ctx, bob, appeal.ID, MessageInput{Text: "We are checking your exam"})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, domain.AppealStatusAdminReplied, appeal.Status)
	require.NotNil(t, appeal.FirstResponseAt)
	assert.Equal(t, testNow.Add(time.Hour), *appeal.FirstResponseAt)
	require.NotNil(t, appeal.AssignedAdminID)
	assert.Equal(t, bob.ID, *appeal.AssignedAdminID)

	f.clock.Advance(time.Hour)
	appeal, err = f.svc.Close(ctx, bob, appeal.ID, "Grade corrected", false)
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusResolved, appeal.Status)
	require.NotNil(t, appeal.ClosedAt)
	assert.Equal(t, testNow.Add(2*time.Hour), *appeal.ClosedAt)

	f.notify.Wait()
	resolved := f.notifier.forEvent(domain.EventAppealResolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, ann.ID, resolved[0].UserID)
	assert.Equal(t, domain.NotificationPriorityHigh, resolved[0].Priority)
	assert.Equal(t, "Grade corrected", resolved[0].Data["reason"])
	rating := f.notifier.forEvent(domain.EventRatingRequest)
	require.Len(t, rating, 1)
	assert.Equal(t, domain.ChannelInApp, rating[0].Channel)
	assert.Equal(t, domain.NotificationPriorityLow, rating[0].Priority)

	appeal, err = f.svc.SetRating(ctx, ann, appeal.ID, RatingInput{Rating: 5, Comment: "great"})
	require.NoError(t, err)
	require.NotNil(t, appeal.Rating)
	assert.Equal(t, 5, *appeal.Rating)
	assert.Equal(t, "great", *appeal.RatingComment)

	history, err := f.svc.ListHistory(ctx, appeal.ID)
	require.NoError(t, err)
	var types []domain.AppealChangeType
	for _, h := range history {
		types = append(types, h.ChangeType)
	}
	assert.Equal(t, []domain.AppealChangeType{
		domain.ChangeTypeAssignee,
		domain.ChangeTypeStatus,
		domain.ChangeTypeStatus,
		domain.ChangeTypeRating,
	}, types)
}

func TestStaffReplyNotifiesStudent(t *testing.T) {
	f := newAppealFixture(t)
	appeal := f.create(t)
	f.notify.Wait()

	newAppeal := f.notifier.forEvent(domain.EventNewAppeal)
	require.Len(t, newAppeal, 2, "every staff member is told about an unassigned appeal")

	_, _, err := f.svc.AddStaffMessage(context.Background(), bob, appeal.ID, MessageInput{Text: "Looking into it"})
	require.NoError(t, err)
	f.notify.Wait()

	replies := f.notifier.forEvent(domain.EventNewStaffReply)
	require.Len(t, replies, 1)
	assert.Equal(t, ann.ID, replies[0].UserID)
	assert.Equal(t, domain.ChannelPush, replies[0].Channel)
	assert.Equal(t, "Looking into it", replies[0].Data["preview"])
	assert.Empty(t, f.notifier.forEvent(domain.EventAppealAssigned), "self assignment is not announced")
}

func TestStudentReplyNotifiesAssignee(t *testing.T) {
	f := newAppealFixture(t)
	ctx := context.Background()
	appeal := f.create(t)

	_, err := f.svc.AssignTo(ctx, cat, appeal.ID, &bob.ID)
	require.NoError(t, err)
	_, _, err = f.svc.AddStudentMessage(ctx, ann, appeal.ID, MessageInput{Text: "Any news?"})
	require.NoError(t, err)
	f.notify.Wait()

	assigned := f.notifier.forEvent(domain.EventAppealAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, bob.ID, assigned[0].UserID)
	replies := f.notifier.forEvent(domain.EventNewStudentReply)
	require.Len(t, replies, 1)
	assert.Equal(t, bob.ID, replies[0].UserID)
}

func TestAssignMovesNewAppealInProgress(t *testing.T) {
	f := newAppealFixture(t)
	ctx := context.Background()
	appeal := f.create(t)

	appeal, err := f.svc.AssignTo(ctx, cat, appeal.ID, &bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusInProgress, appeal.Status)

	saves := f.appeals.saves
	appeal, err = f.svc.AssignTo(ctx, cat, appeal.ID, &bob.ID)
	require.NoError(t, err)
	assert.Equal(t, saves, f.appeals.saves, "unchanged assignment is not written")

	appeal, err = f.svc.AssignTo(ctx, cat, appeal.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, appeal.AssignedAdminID)
}

func TestAssignToStudentRejected(t *testing.T) {
	f := newAppealFixture(t)
	appeal := f.create(t)

	_, err := f.svc.AssignTo(context.Background(), bob, appeal.ID, &dan.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	missing := int64(99)
	_, err = f.svc.AssignTo(context.Background(), bob, appeal.ID, &missing)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestClosedAppealRejectsChanges(t *testing.T) {
	f := newAppealFixture(t)
	ctx := context.Background()
	appeal := f.create(t)
	_, err := f.svc.Close(ctx, bob, appeal.ID, "duplicate", true)
	require.NoError(t, err)
	saves := f.appeals.saves

	_, _, err = f.svc.AddStaffMessage(ctx, bob, appeal.ID, MessageInput{Text: "late"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	_, _, err = f.svc.AddStudentMessage(ctx, ann, appeal.ID, MessageInput{Text: "late"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	_, err = f.svc.UpdatePriority(ctx, bob, appeal.ID, domain.AppealPriorityUrgent)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	_, err = f.svc.AssignTo(ctx, bob, appeal.ID, &bob.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	_, err = f.svc.Close(ctx, bob, appeal.ID, "", false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	assert.Equal(t, saves, f.appeals.saves)

	stored, err := f.svc.GetAppeal(ctx, ann, appeal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusClosed, stored.Status)
	assert.Empty(t, stored.Messages)
}

func TestRatingRequiresClosedAppeal(t *testing.T) {
	f := newAppealFixture(t)
	ctx := context.Background()
	appeal := f.create(t)

	_, err := f.svc.SetRating(ctx, ann, appeal.ID, RatingInput{Rating: 4})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))

	_, err = f.svc.Close(ctx, bob, appeal.ID, "", false)
	require.NoError(t, err)
	_, err = f.svc.SetRating(ctx, dan, appeal.ID, RatingInput{Rating: 4})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = f.svc.SetRating(ctx, ann, appeal.ID, RatingInput{Rating: 6})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.svc.SetRating(ctx, ann, appeal.ID, RatingInput{Rating: 2})
	require.NoError(t, err)
	appeal, err = f.svc.SetRating(ctx, ann, appeal.ID, RatingInput{Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, *appeal.Rating)
}

func TestCreateAppealValidation(t *testing.T) {
	f := newAppealFixture(t)

	_, err := f.svc.CreateAppeal(context.Background(), ann, CreateAppealInput{
		Category: "grades",
		Subject:  "Hi",
		Message:  "short",
	})
	require.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	de := apperrors.ToDomainError(err)
	assert.Equal(t, "min=5", de.Details["subject"])
	assert.Equal(t, "min=10", de.Details["message"])

	_, err = f.svc.CreateAppeal(context.Background(), ann, CreateAppealInput{
		Category: "grades",
		Subject:  strings.Repeat("é", 200),
		Message:  strings.Repeat("ü", 4000),
	})
	assert.NoError(t, err, "limits count characters, not bytes")
}

func TestForeignStudentCannotReadOrReply(t *testing.T) {
	f := newAppealFixture(t)
	ctx := context.Background()
	appeal := f.create(t)

	_, err := f.svc.GetAppeal(ctx, dan, appeal.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, _, err = f.svc.AddStudentMessage(ctx, dan, appeal.ID, MessageInput{Text: "hijack"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = f.svc.GetAppeal(ctx, bob, appeal.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetAppeal(ctx, ann, 999)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestVersionConflictIsRetried(t *testing.T) {
	f := newAppealFixture(t)
	appeal := f.create(t)

	f.appeals.conflicts = 2
	appeal, _, err := f.svc.AddStaffMessage(context.Background(), bob, appeal.ID, MessageInput{Text: "third time lucky"})
	require.NoError(t, err)
	assert.Len(t, appeal.Messages, 1)
}

func TestPersistentConflictSurfacesConflict(t *testing.T) {
	f := newAppealFixture(t)
	appeal := f.create(t)
	f.notify.Wait()
	before := len(f.notifier.events())

	f.appeals.conflicts = maxSaveAttempts
	_, err := f.svc.UpdatePriority(context.Background(), bob, appeal.ID, domain.AppealPriorityHigh)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	f.notify.Wait()
	assert.Len(t, f.notifier.events(), before)
}

func TestSaveFailureAbortsMutation(t *testing.T) {
	f := newAppealFixture(t)
	appeal := f.create(t)
	f.appeals.saveErr = errors.New("connection reset")

	_, err := f.svc.Close(context.Background(), bob, appeal.ID, "", false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))

	f.appeals.saveErr = nil
	stored, err := f.svc.GetAppeal(context.Background(), bob, appeal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusNew, stored.Status)
	assert.Nil(t, stored.ClosedAt)
}

func TestNotificationFailureDoesNotUndoClose(t *testing.T) {
	f := newAppealFixture(t)
	f.notifier.fail = map[domain.NotificationEvent]error{
		domain.EventAppealResolved: apperrors.NewDeliveryError("PUSH", errors.New("down")),
	}
	appeal := f.create(t)

	appeal, err := f.svc.Close(context.Background(), bob, appeal.ID, "", false)
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusResolved, appeal.Status)

	f.notify.Wait()
	assert.Len(t, f.notifier.forEvent(domain.EventRatingRequest), 1)
}

func TestNotifierPanicIsContained(t *testing.T) {
	f := newAppealFixture(t)
	f.notifier.panics = map[domain.NotificationEvent]bool{domain.EventAppealResolved: true}
	appeal := f.create(t)

	appeal, err := f.svc.Close(context.Background(), bob, appeal.ID, "", false)
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusResolved, appeal.Status)

	f.notify.Wait()
	_, err = f.svc.GetAppeal(context.Background(), ann, appeal.ID)
	assert.NoError(t, err)
}

func TestUrgentPriorityNotifiesAssignee(t *testing.T) {
	f := newAppealFixture(t)
	ctx := context.Background()
	appeal := f.create(t)
	_, err := f.svc.AssignTo(ctx, bob, appeal.ID, &bob.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdatePriority(ctx, cat, appeal.ID, domain.AppealPriorityHigh)
	require.NoError(t, err)
	_, err = f.svc.UpdatePriority(ctx, cat, appeal.ID, domain.AppealPriorityUrgent)
	require.NoError(t, err)
	f.notify.Wait()

	changed := f.notifier.forEvent(domain.EventPriorityChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, bob.ID, changed[0].UserID)
	assert.Equal(t, "URGENT", changed[0].Data["priority"])

	_, err = f.svc.UpdatePriority(ctx, cat, appeal.ID, domain.AppealPriority("CRITICAL"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestConcurrentReplyAndCloseNeverLoseUpdates(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newAppealFixture(t)
		ctx := context.Background()
		appeal := f.create(t)

		var wg sync.WaitGroup
		var replyErr, closeErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, replyErr = f.svc.AddStudentMessage(ctx, ann, appeal.ID, MessageInput{Text: "one more thing"})
		}()
		go func() {
			defer wg.Done()
			_, closeErr = f.svc.Close(ctx, bob, appeal.ID, "", false)
		}()
		wg.Wait()

		require.NoError(t, closeErr)
		stored, err := f.svc.GetAppeal(ctx, bob, appeal.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.AppealStatusResolved, stored.Status)
		if replyErr == nil {
			assert.Len(t, stored.Messages, 1)
		} else {
			assert.True(t, apperrors.HasCode(replyErr, apperrors.CodeInvalidState))
			assert.Empty(t, stored.Messages)
		}
	}
}

func TestListsScopeToCaller(t *testing.T) {
	f := newAppealFixture(t)
	ctx := context.Background()
	f.create(t)
	_, err := f.svc.CreateAppeal(ctx, dan, CreateAppealInput{Category: "fees", Subject: "Refund please", Message: "I paid the fee twice this term"})
	require.NoError(t, err)

	mine, err := f.svc.ListStudentAppeals(ctx, ann, 10, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ann.ID, mine[0].StudentID)

	queue, err := f.svc.ListAppeals(ctx, AppealListFilter{UnassignedOnly: true})
	require.NoError(t, err)
	assert.Len(t, queue, 2)

	_, err = f.svc.ListAppeals(ctx, AppealListFilter{Statuses: []domain.AppealStatus{"OPEN"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}
