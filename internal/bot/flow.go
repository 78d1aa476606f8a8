// Package bot turns chat updates into appeal commands.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/campusdesk/appeal-service/internal/command"
	"github.com/campusdesk/appeal-service/internal/conversation"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/service"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// Steps of the appeal composition dialog.
const (
	StepAwaitingCategory     conversation.Step = "appeal_category"
	StepAwaitingSubject      conversation.Step = "appeal_subject"
	StepAwaitingMessage      conversation.Step = "appeal_message"
	StepAwaitingConfirmation conversation.Step = "appeal_confirm"
)

const (
	keyCategory = "category"
	keySubject  = "subject"
	keyMessage  = "message"
)

// DefaultCategories are offered when none are configured.
var DefaultCategories = []string{"grades", "schedule", "fees", "documents", "other"}

// Update is one inbound chat message.
type Update struct {
	UserID      int64               `json:"user_id"`
	DisplayName string              `json:"display_name"`
	Text        string              `json:"text"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// Reply is the text sent back to the user.
type Reply struct {
	Text string `json:"text"`
}

// Workflow is the subset of the appeal service the bot drives.
type Workflow interface {
	CreateAppeal(ctx context.Context, actor domain.Actor, input service.CreateAppealInput) (*domain.Appeal, error)
	AddStudentMessage(ctx context.Context, actor domain.Actor, appealID int64, input service.MessageInput) (*domain.Appeal, *domain.AppealMessage, error)
	AddStaffMessage(ctx context.Context, actor domain.Actor, appealID int64, input service.MessageInput) (*domain.Appeal, *domain.AppealMessage, error)
	SetRating(ctx context.Context, actor domain.Actor, appealID int64, input service.RatingInput) (*domain.Appeal, error)
	ListStudentAppeals(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Appeal, error)
}

// Registrar records chat users on contact.
type Registrar interface {
	RegisterChatUser(ctx context.Context, userID int64, displayName string) (*domain.User, error)
}

// AppealFlow drives appeal composition and the one-shot appeal commands.
type AppealFlow struct {
	conv       *conversation.Manager
	pipeline   *command.Pipeline
	appeals    Workflow
	users      Registrar
	categories []string
	logger     *zap.Logger
}

// NewAppealFlow builds the flow. Nil categories selects DefaultCategories.
func NewAppealFlow(conv *conversation.Manager, pipeline *command.Pipeline, appeals Workflow, users Registrar, categories []string, logger *zap.Logger) *AppealFlow {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppealFlow{
		conv:       conv,
		pipeline:   pipeline,
		appeals:    appeals,
		users:      users,
		categories: categories,
		logger:     logger,
	}
}

// Handle processes one update. Workflow failures are turned into reply text;
// the error result is reserved for dialog storage failures.
func (f *AppealFlow) Handle(ctx context.Context, upd Update) (Reply, error) {
	user, err := f.users.RegisterChatUser(ctx, upd.UserID, upd.DisplayName)
	if err != nil {
		return Reply{}, err
	}
	actor := domain.ActorFromUser(user)
	text := strings.TrimSpace(upd.Text)

	if strings.HasPrefix(text, "/") {
		name, args, _ := strings.Cut(text, " ")
		return f.handleCommand(ctx, actor, strings.ToLower(name), strings.TrimSpace(args), upd)
	}

	step, err := f.conv.GetState(ctx, actor.ID)
	if err != nil {
		return Reply{}, err
	}
	switch step {
	case StepAwaitingCategory:
		return f.onCategory(ctx, actor, text)
	case StepAwaitingSubject:
		return f.onSubject(ctx, actor, text)
	case StepAwaitingMessage:
		return f.onMessage(ctx, actor, text)
	case StepAwaitingConfirmation:
		return f.onConfirmation(ctx, actor, text)
	default:
		return Reply{Text: helpText}, nil
	}
}

const helpText = "Commands:\n" +
	"/new - open an appeal\n" +
	"/list - your appeals\n" +
	"/reply <id> <text> - add a message to an appeal\n" +
	"/rate <id> <1-5> [comment] - rate a closed appeal\n" +
	"/cancel - abandon the current dialog"

func (f *AppealFlow) handleCommand(ctx context.Context, actor domain.Actor, name, args string, upd Update) (Reply, error) {
	switch name {
	case "/start", "/help":
		return Reply{Text: helpText}, nil
	case "/cancel":
		if err := f.conv.Reset(ctx, actor.ID); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "Cancelled."}, nil
	case "/new":
		if err := f.conv.ClearAllData(ctx, actor.ID); err != nil {
			return Reply{}, err
		}
		if err := f.conv.SetState(ctx, actor.ID, StepAwaitingCategory); err != nil {
			return Reply{}, err
		}
		return Reply{Text: f.categoryPrompt()}, nil
	case "/list":
		return f.listAppeals(ctx, actor)
	case "/reply":
		return f.reply(ctx, actor, args, upd.Attachments)
	case "/rate":
		return f.rate(ctx, actor, args)
	default:
		return Reply{Text: "Unknown command.\n\n" + helpText}, nil
	}
}

func (f *AppealFlow) categoryPrompt() string {
	var b strings.Builder
	b.WriteString("Choose a category:")
	for i, c := range f.categories {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c)
	}
	return b.String()
}

func (f *AppealFlow) onCategory(ctx context.Context, actor domain.Actor, text string) (Reply, error) {
	category, ok := f.matchCategory(text)
	if !ok {
		return Reply{Text: "Unknown category.\n\n" + f.categoryPrompt()}, nil
	}
	if err := f.conv.SetData(ctx, actor.ID, keyCategory, category); err != nil {
		return Reply{}, err
	}
	if err := f.conv.SetState(ctx, actor.ID, StepAwaitingSubject); err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("Category: %s\nNow send a short subject (%d-%d characters).", category, domain.SubjectMinLen, domain.SubjectMaxLen)}, nil
}

func (f *AppealFlow) matchCategory(text string) (string, bool) {
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(f.categories) {
		return f.categories[n-1], true
	}
	for _, c := range f.categories {
		if strings.EqualFold(c, text) {
			return c, true
		}
	}
	return "", false
}

func (f *AppealFlow) onSubject(ctx context.Context, actor domain.Actor, text string) (Reply, error) {
	if n := utf8.RuneCountInString(text); n < domain.SubjectMinLen || n > domain.SubjectMaxLen {
		return Reply{Text: fmt.Sprintf("The subject must be %d-%d characters. Try again.", domain.SubjectMinLen, domain.SubjectMaxLen)}, nil
	}
	if err := f.conv.SetData(ctx, actor.ID, keySubject, text); err != nil {
		return Reply{}, err
	}
	if err := f.conv.SetState(ctx, actor.ID, StepAwaitingMessage); err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("Describe your appeal (%d-%d characters).", domain.MessageMinLen, domain.MessageMaxLen)}, nil
}

func (f *AppealFlow) onMessage(ctx context.Context, actor domain.Actor, text string) (Reply, error) {
	if n := utf8.RuneCountInString(text); n < domain.MessageMinLen || n > domain.MessageMaxLen {
		return Reply{Text: fmt.Sprintf("The description must be %d-%d characters. Try again.", domain.MessageMinLen, domain.MessageMaxLen)}, nil
	}
	if err := f.conv.SetData(ctx, actor.ID, keyMessage, text); err != nil {
		return Reply{}, err
	}
	if err := f.conv.SetState(ctx, actor.ID, StepAwaitingConfirmation); err != nil {
		return Reply{}, err
	}
	draft, err := f.draft(ctx, actor.ID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("Category: %s\nSubject: %s\n\n%s\n\nSend this appeal? (yes/no)", draft.Category, draft.Subject, draft.Message)}, nil
}

func (f *AppealFlow) onConfirmation(ctx context.Context, actor domain.Actor, text string) (Reply, error) {
	switch strings.ToLower(text) {
	case "yes", "y":
	case "no", "n":
		if err := f.conv.Reset(ctx, actor.ID); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "Cancelled."}, nil
	default:
		return Reply{Text: "Please answer yes or no."}, nil
	}

	draft, err := f.draft(ctx, actor.ID)
	if err != nil {
		return Reply{}, err
	}
	appeal, err := command.Execute(ctx, f.pipeline, actor, command.CreateAppeal, func(ctx context.Context) (*domain.Appeal, error) {
		return f.appeals.CreateAppeal(ctx, actor, draft)
	})
	if err != nil {
		// The draft is kept so the user can confirm again later.
		return Reply{Text: f.describe(err)}, nil
	}
	if err := f.conv.Reset(ctx, actor.ID); err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("Appeal #%d created. We will notify you when staff reply.", appeal.ID)}, nil
}

func (f *AppealFlow) draft(ctx context.Context, userID int64) (service.CreateAppealInput, error) {
	var in service.CreateAppealInput
	var err error
	if in.Category, _, err = conversation.Value[string](ctx, f.conv, userID, keyCategory); err != nil {
		return in, err
	}
	if in.Subject, _, err = conversation.Value[string](ctx, f.conv, userID, keySubject); err != nil {
		return in, err
	}
	if in.Message, _, err = conversation.Value[string](ctx, f.conv, userID, keyMessage); err != nil {
		return in, err
	}
	return in, nil
}

func (f *AppealFlow) listAppeals(ctx context.Context, actor domain.Actor) (Reply, error) {
	appeals, err := command.Execute(ctx, f.pipeline, actor, command.ListAppeals, func(ctx context.Context) ([]domain.Appeal, error) {
		return f.appeals.ListStudentAppeals(ctx, actor, 10, 0)
	})
	if err != nil {
		return Reply{Text: f.describe(err)}, nil
	}
	if len(appeals) == 0 {
		return Reply{Text: "You have no appeals yet. Send /new to open one."}, nil
	}
	var b strings.Builder
	b.WriteString("Your appeals:")
	for _, a := range appeals {
		fmt.Fprintf(&b, "\n#%d [%s] %s", a.ID, a.Status, a.Subject)
	}
	return Reply{Text: b.String()}, nil
}

func (f *AppealFlow) reply(ctx context.Context, actor domain.Actor, args string, attachments []domain.Attachment) (Reply, error) {
	idText, text, _ := strings.Cut(args, " ")
	appealID, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || appealID <= 0 {
		return Reply{Text: "Usage: /reply <id> <text>"}, nil
	}
	input := service.MessageInput{Text: strings.TrimSpace(text), Attachments: attachments}

	id, run := command.ReplyAsStudent, f.appeals.AddStudentMessage
	if actor.IsStaff() {
		id, run = command.ReplyAsStaff, f.appeals.AddStaffMessage
	}
	err = f.pipeline.Run(ctx, actor, id, func(ctx context.Context) error {
		_, _, err := run(ctx, actor, appealID, input)
		return err
	})
	if err != nil {
		return Reply{Text: f.describe(err)}, nil
	}
	return Reply{Text: fmt.Sprintf("Message added to appeal #%d.", appealID)}, nil
}

func (f *AppealFlow) rate(ctx context.Context, actor domain.Actor, args string) (Reply, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return Reply{Text: "Usage: /rate <id> <1-5> [comment]"}, nil
	}
	appealID, err1 := strconv.ParseInt(fields[0], 10, 64)
	rating, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return Reply{Text: "Usage: /rate <id> <1-5> [comment]"}, nil
	}
	input := service.RatingInput{Rating: rating, Comment: strings.Join(fields[2:], " ")}

	err := f.pipeline.Run(ctx, actor, command.RateAppeal, func(ctx context.Context) error {
		_, err := f.appeals.SetRating(ctx, actor, appealID, input)
		return err
	})
	if err != nil {
		return Reply{Text: f.describe(err)}, nil
	}
	return Reply{Text: "Thank you for your feedback!"}, nil
}

// describe maps workflow errors to user-facing text without internals.
func (f *AppealFlow) describe(err error) string {
	de := apperrors.ToDomainError(err)
	switch de.Code {
	case apperrors.CodeRateLimited:
		if secs, ok := de.Details["retry_after_seconds"].(int); ok && secs > 0 {
			return fmt.Sprintf("Too many requests. Try again in %d seconds.", secs)
		}
		return "Too many requests. Try again later."
	case apperrors.CodeNotFound:
		return "Appeal not found."
	case apperrors.CodeForbidden:
		return "You are not allowed to do that."
	case apperrors.CodeInvalidState:
		return "This appeal does not allow that right now."
	case apperrors.CodeValidation:
		return "Invalid input: " + de.Message + "."
	case apperrors.CodeConflict:
		return "The appeal was changed at the same time. Please try again."
	default:
		f.logger.Error("bot command failed", zap.Error(err))
		return "Something went wrong. Please try again later."
	}
}
