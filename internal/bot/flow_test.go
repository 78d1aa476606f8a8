package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdesk/appeal-service/internal/clock"
	"github.com/campusdesk/appeal-service/internal/command"
	"github.com/campusdesk/appeal-service/internal/conversation"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/ratelimit"
	"github.com/campusdesk/appeal-service/internal/service"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

type fakeWorkflow struct {
	created        []service.CreateAppealInput
	studentReplies []int64
	staffReplies   []int64
	ratings        []service.RatingInput
}

func (w *fakeWorkflow) CreateAppeal(_ context.Context, actor domain.Actor, in service.CreateAppealInput) (*domain.Appeal, error) {
	w.created = append(w.created, in)
	return &domain.Appeal{ID: int64(len(w.created)), StudentID: actor.ID, Subject: in.Subject, Status: domain.AppealStatusNew}, nil
}

func (w *fakeWorkflow) AddStudentMessage(_ context.Context, _ domain.Actor, id int64, _ service.MessageInput) (*domain.Appeal, *domain.AppealMessage, error) {
	if id == 404 {
		return nil, nil, apperrors.NewNotFound("appeal", nil)
	}
	w.studentReplies = append(w.studentReplies, id)
	return &domain.Appeal{ID: id}, &domain.AppealMessage{}, nil
}

func (w *fakeWorkflow) AddStaffMessage(_ context.Context, _ domain.Actor, id int64, _ service.MessageInput) (*domain.Appeal, *domain.AppealMessage, error) {
	w.staffReplies = append(w.staffReplies, id)
	return &domain.Appeal{ID: id}, &domain.AppealMessage{}, nil
}

func (w *fakeWorkflow) SetRating(_ context.Context, _ domain.Actor, id int64, in service.RatingInput) (*domain.Appeal, error) {
	w.ratings = append(w.ratings, in)
	return &domain.Appeal{ID: id}, nil
}

func (w *fakeWorkflow) ListStudentAppeals(_ context.Context, actor domain.Actor, _, _ int) ([]domain.Appeal, error) {
	var out []domain.Appeal
	for i, in := range w.created {
		out = append(out, domain.Appeal{ID: int64(i + 1), StudentID: actor.ID, Subject: in.Subject, Status: domain.AppealStatusNew})
	}
	return out, nil
}

type fakeRegistrar map[int64]domain.UserRole

func (r fakeRegistrar) RegisterChatUser(_ context.Context, id int64, name string) (*domain.User, error) {
	role, ok := r[id]
	if !ok {
		role = domain.RoleStudent
	}
	return &domain.User{ID: id, DisplayName: name, Role: role}, nil
}

type flowFixture struct {
	flow     *AppealFlow
	conv     *conversation.Manager
	workflow *fakeWorkflow
	clock    *clock.Manual
}

func newFlowFixture(limit int) *flowFixture {
	clk := clock.NewManual(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	conv := conversation.NewManager(conversation.NewMemoryStore(clk))
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(clk), time.Minute, nil, nil)
	pipeline := command.NewPipeline(command.DefaultRegistry(), limiter, ratelimit.Limits{PermitLimit: limit, AdminPermitLimit: limit * 10}, nil)
	workflow := &fakeWorkflow{}
	flow := NewAppealFlow(conv, pipeline, workflow, fakeRegistrar{9: domain.RoleAdmin}, nil, nil)
	return &flowFixture{flow: flow, conv: conv, workflow: workflow, clock: clk}
}

func (f *flowFixture) say(t *testing.T, userID int64, text string) string {
	t.Helper()
	reply, err := f.flow.Handle(context.Background(), Update{UserID: userID, DisplayName: "Ann", Text: text})
	require.NoError(t, err)
	return reply.Text
}

func (f *flowFixture) step(t *testing.T, userID int64) conversation.Step {
	t.Helper()
	step, err := f.conv.GetState(context.Background(), userID)
	require.NoError(t, err)
	return step
}

func TestComposeAppealDialog(t *testing.T) {
	f := newFlowFixture(10)

	assert.Contains(t, f.say(t, 1, "/new"), "1. grades")
	assert.Equal(t, StepAwaitingCategory, f.step(t, 1))

	f.say(t, 1, "1")
	assert.Equal(t, StepAwaitingSubject, f.step(t, 1))

	f.say(t, 1, "Exam grade")
	assert.Equal(t, StepAwaitingMessage, f.step(t, 1))

	summary := f.say(t, 1, "Please review my final exam grade")
	assert.Contains(t, summary, "Subject: Exam grade")
	assert.Equal(t, StepAwaitingConfirmation, f.step(t, 1))

	assert.Contains(t, f.say(t, 1, "yes"), "Appeal #1 created")
	require.Len(t, f.workflow.created, 1)
	assert.Equal(t, service.CreateAppealInput{
		Category: "grades",
		Subject:  "Exam grade",
		Message:  "Please review my final exam grade",
	}, f.workflow.created[0])

	assert.Equal(t, conversation.StepIdle, f.step(t, 1))
	_, found, err := conversation.Value[string](context.Background(), f.conv, 1, keySubject)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidInputDoesNotAdvance(t *testing.T) {
	f := newFlowFixture(10)
	f.say(t, 1, "/new")

	assert.Contains(t, f.say(t, 1, "sports"), "Unknown category")
	assert.Equal(t, StepAwaitingCategory, f.step(t, 1))

	f.say(t, 1, "Fees")
	assert.Contains(t, f.say(t, 1, "Hi"), "must be 5-200")
	assert.Equal(t, StepAwaitingSubject, f.step(t, 1))

	f.say(t, 1, "Double charge")
	assert.Contains(t, f.say(t, 1, "too short"), "must be 10-4000")
	assert.Equal(t, StepAwaitingMessage, f.step(t, 1))

	f.say(t, 1, "I was charged twice this month")
	assert.Contains(t, f.say(t, 1, "maybe"), "yes or no")
	assert.Equal(t, StepAwaitingConfirmation, f.step(t, 1))
}

func TestCancelClearsStateAndData(t *testing.T) {
	f := newFlowFixture(10)
	f.say(t, 1, "/new")
	f.say(t, 1, "grades")
	f.say(t, 1, "Exam grade")

	assert.Equal(t, "Cancelled.", f.say(t, 1, "/cancel"))
	assert.Equal(t, conversation.StepIdle, f.step(t, 1))
	_, found, err := conversation.Value[string](context.Background(), f.conv, 1, keyCategory)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, f.workflow.created)
}

func TestNewDialogDropsStaleData(t *testing.T) {
	f := newFlowFixture(10)
	require.NoError(t, f.conv.SetData(context.Background(), 1, keySubject, "stale subject"))

	f.say(t, 1, "/new")
	_, found, err := conversation.Value[string](context.Background(), f.conv, 1, keySubject)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUsersDoNotShareDialogs(t *testing.T) {
	f := newFlowFixture(10)
	f.say(t, 1, "/new")
	f.say(t, 1, "grades")

	assert.Equal(t, conversation.StepIdle, f.step(t, 2))
	assert.Contains(t, f.say(t, 2, "Exam grade"), "/new")
	assert.Equal(t, StepAwaitingSubject, f.step(t, 1))
}

func TestRateLimitedSubmitKeepsDraft(t *testing.T) {
	f := newFlowFixture(1)
	compose := func() {
		f.say(t, 1, "/new")
		f.say(t, 1, "grades")
		f.say(t, 1, "Exam grade")
		f.say(t, 1, "Please review my final exam grade")
	}

	compose()
	assert.Contains(t, f.say(t, 1, "yes"), "created")

	compose()
	assert.Contains(t, f.say(t, 1, "yes"), "Try again in 60 seconds")
	assert.Equal(t, StepAwaitingConfirmation, f.step(t, 1))
	assert.Len(t, f.workflow.created, 1)

	f.clock.Advance(time.Minute)
	assert.Contains(t, f.say(t, 1, "yes"), "Appeal #2 created")
}

func TestRateCommand(t *testing.T) {
	f := newFlowFixture(10)
	assert.Contains(t, f.say(t, 1, "/rate 7"), "Usage")
	assert.Contains(t, f.say(t, 1, "/rate x 5"), "Usage")

	assert.Contains(t, f.say(t, 1, "/rate 7 5 very helpful staff"), "Thank you")
	require.Len(t, f.workflow.ratings, 1)
	assert.Equal(t, service.RatingInput{Rating: 5, Comment: "very helpful staff"}, f.workflow.ratings[0])
}

func TestReplyRoutesByRole(t *testing.T) {
	f := newFlowFixture(10)

	assert.Contains(t, f.say(t, 1, "/reply 5 any news?"), "Message added to appeal #5")
	assert.Contains(t, f.say(t, 9, "/reply 5 working on it"), "Message added")
	assert.Equal(t, []int64{5}, f.workflow.studentReplies)
	assert.Equal(t, []int64{5}, f.workflow.staffReplies)

	assert.Equal(t, "Appeal not found.", f.say(t, 1, "/reply 404 hello"))
	assert.Contains(t, f.say(t, 1, "/reply abc"), "Usage")
}

func TestListCommand(t *testing.T) {
	f := newFlowFixture(10)
	assert.Contains(t, f.say(t, 1, "/list"), "no appeals")

	f.say(t, 1, "/new")
	f.say(t, 1, "grades")
	f.say(t, 1, "Exam grade")
	f.say(t, 1, "Please review my final exam grade")
	f.say(t, 1, "yes")
	assert.Contains(t, f.say(t, 1, "/list"), "#1 [NEW] Exam grade")
}
