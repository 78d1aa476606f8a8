package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusdesk/appeal-service/internal/domain"
)

// NotificationRepository stores notification records.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	UpdateDelivery(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]domain.Notification, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string, userID int64, at time.Time) error
}

type notificationRepository struct {
	db DB
}

// NewNotificationRepository returns a Postgres-backed implementation.
func NewNotificationRepository(db DB) NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `id, user_id, event, channel, title, body, priority, appeal_id, status,
               scheduled_for, sent_at, read_at, error_message, retry_count, created_at, updated_at`

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (id, user_id, event, channel, title, body, priority, appeal_id, status,
            scheduled_for, retry_count, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.db.Exec(ctx, query,
		n.ID,
		n.UserID,
		n.Event,
		n.Channel,
		n.Title,
		n.Body,
		n.Priority,
		n.AppealID,
		n.Status,
		n.ScheduledFor,
		n.RetryCount,
		n.CreatedAt,
		n.UpdatedAt,
	)
	return err
}

// UpdateDelivery writes the mutable delivery fields only.
func (r *notificationRepository) UpdateDelivery(ctx context.Context, n *domain.Notification) error {
	const query = `
        UPDATE notifications SET status=$1, sent_at=$2, error_message=$3, retry_count=$4, updated_at=$5
        WHERE id=$6`
	cmd, err := r.db.Exec(ctx, query,
		n.Status,
		n.SentAt,
		n.ErrorMessage,
		n.RetryCount,
		n.UpdatedAt,
		n.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id=$1`
	return scanNotification(r.db.QueryRow(ctx, query, id))
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications
        WHERE user_id=$1 AND channel=$2 AND ($3 = FALSE OR read_at IS NULL)
        ORDER BY created_at DESC LIMIT $4 OFFSET $5`
	return r.list(ctx, query, userID, domain.ChannelInApp, unreadOnly, limit, offset)
}

// ListDue returns pending notifications whose schedule has arrived, oldest first.
func (r *notificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
        WHERE status=$1 AND scheduled_for IS NOT NULL AND scheduled_for <= $2
        ORDER BY scheduled_for ASC LIMIT $3`
	return r.list(ctx, query, domain.NotificationPending, now, limit)
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string, userID int64, at time.Time) error {
	const query = `
        UPDATE notifications SET read_at=COALESCE(read_at, $1), updated_at=$1
        WHERE id=$2 AND user_id=$3`
	cmd, err := r.db.Exec(ctx, query, at, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) list(ctx context.Context, query string, args ...any) ([]domain.Notification, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Event,
		&n.Channel,
		&n.Title,
		&n.Body,
		&n.Priority,
		&n.AppealID,
		&n.Status,
		&n.ScheduledFor,
		&n.SentAt,
		&n.ReadAt,
		&n.ErrorMessage,
		&n.RetryCount,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}
