package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/campusdesk/appeal-service/internal/domain"
)

// AppealFilter captures listing parameters.
type AppealFilter struct {
	StudentID       *int64
	AssignedAdminID *int64
	UnassignedOnly  bool
	Statuses        []domain.AppealStatus
	Priorities      []domain.AppealPriority
	Limit           int
	Offset          int
}

// AppealRepository persists appeal aggregates together with their messages.
type AppealRepository interface {
	Create(ctx context.Context, appeal *domain.Appeal) error
	GetByID(ctx context.Context, id int64) (*domain.Appeal, error)
	Save(ctx context.Context, appeal *domain.Appeal) error
	ListWithFilter(ctx context.Context, filter AppealFilter) ([]domain.Appeal, error)
}

type appealRepository struct {
	db DB
}

// NewAppealRepository instantiates repository.
func NewAppealRepository(db DB) AppealRepository {
	return &appealRepository{db: db}
}

const appealColumns = `id, student_id, student_name, category, subject, message, status, priority,
               assigned_admin_id, created_at, updated_at, first_response_at, closed_at, closed_by,
               closed_reason, rating, rating_comment, version`

func (r *appealRepository) Create(ctx context.Context, appeal *domain.Appeal) error {
	const query = `
        INSERT INTO appeals (student_id, student_name, category, subject, message, status, priority,
            assigned_admin_id, created_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1)
        RETURNING id, version`
	return r.db.QueryRow(ctx, query,
		appeal.StudentID,
		appeal.StudentName,
		appeal.Category,
		appeal.Subject,
		appeal.Message,
		appeal.Status,
		appeal.Priority,
		appeal.AssignedAdminID,
		appeal.CreatedAt,
		appeal.UpdatedAt,
	).Scan(&appeal.ID, &appeal.Version)
}

// Save writes the aggregate, its new messages and its pending history in one
// transaction. It fails with ErrVersionConflict if another writer saved first.
func (r *appealRepository) Save(ctx context.Context, appeal *domain.Appeal) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const update = `
        UPDATE appeals SET status=$1, priority=$2, assigned_admin_id=$3, first_response_at=$4,
            closed_at=$5, closed_by=$6, closed_reason=$7, rating=$8, rating_comment=$9,
            updated_at=$10, version=version+1
        WHERE id=$11 AND version=$12`
	cmd, err := tx.Exec(ctx, update,
		appeal.Status,
		appeal.Priority,
		appeal.AssignedAdminID,
		appeal.FirstResponseAt,
		appeal.ClosedAt,
		appeal.ClosedBy,
		appeal.ClosedReason,
		appeal.Rating,
		appeal.RatingComment,
		appeal.UpdatedAt,
		appeal.ID,
		appeal.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	pending := appeal.PendingMessages()
	ids := make([]int64, len(pending))
	for i, msg := range pending {
		if ids[i], err = insertMessage(ctx, tx, appeal.ID, msg); err != nil {
			return fmt.Errorf("insert appeal message: %w", err)
		}
	}
	for i := range appeal.Changes {
		appeal.Changes[i].AppealID = appeal.ID
		if err = insertHistory(ctx, tx, &appeal.Changes[i]); err != nil {
			return fmt.Errorf("insert appeal history: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}

	for i, msg := range pending {
		msg.ID = ids[i]
		msg.AppealID = appeal.ID
	}
	appeal.Changes = nil
	appeal.Version++
	return nil
}

func (r *appealRepository) GetByID(ctx context.Context, id int64) (*domain.Appeal, error) {
	query := `SELECT ` + appealColumns + ` FROM appeals WHERE id=$1`
	appeal, err := scanAppeal(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	msgs, err := r.listMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	appeal.Messages = msgs
	return appeal, nil
}

func (r *appealRepository) listMessages(ctx context.Context, appealID int64) ([]domain.AppealMessage, error) {
	const query = `
        SELECT id, appeal_id, sender_id, sender_name, is_from_staff, text, attachments, sent_at
        FROM appeal_messages WHERE appeal_id=$1 ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, appealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AppealMessage
	for rows.Next() {
		var msg domain.AppealMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.AppealID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.IsFromStaff,
			&msg.Text,
			&msg.Attachments,
			&msg.SentAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *appealRepository) ListWithFilter(ctx context.Context, filter AppealFilter) ([]domain.Appeal, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.StudentID != nil {
		args = append(args, *filter.StudentID)
		clauses = append(clauses, fmt.Sprintf("student_id=$%d", len(args)))
	}
	if filter.AssignedAdminID != nil {
		args = append(args, *filter.AssignedAdminID)
		clauses = append(clauses, fmt.Sprintf("assigned_admin_id=$%d", len(args)))
	}
	if filter.UnassignedOnly {
		clauses = append(clauses, "assigned_admin_id IS NULL")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM appeals WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		appealColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Appeal
	for rows.Next() {
		appeal, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *appeal)
	}
	return result, rows.Err()
}

func scanAppeal(row pgx.Row) (*domain.Appeal, error) {
	var a domain.Appeal
	if err := row.Scan(
		&a.ID,
		&a.StudentID,
		&a.StudentName,
		&a.Category,
		&a.Subject,
		&a.Message,
		&a.Status,
		&a.Priority,
		&a.AssignedAdminID,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.FirstResponseAt,
		&a.ClosedAt,
		&a.ClosedBy,
		&a.ClosedReason,
		&a.Rating,
		&a.RatingComment,
		&a.Version,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func insertMessage(ctx context.Context, q querier, appealID int64, msg *domain.AppealMessage) (int64, error) {
	const query = `
        INSERT INTO appeal_messages (appeal_id, sender_id, sender_name, is_from_staff, text, attachments, sent_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	var id int64
	err := q.QueryRow(ctx, query,
		appealID,
		msg.SenderID,
		msg.SenderName,
		msg.IsFromStaff,
		msg.Text,
		attachments,
		msg.SentAt,
	).Scan(&id)
	return id, err
}
