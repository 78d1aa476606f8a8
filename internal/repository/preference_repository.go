package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/campusdesk/appeal-service/internal/domain"
)

// PreferenceRepository stores per-user opt-outs. A missing row means enabled.
type PreferenceRepository interface {
	IsEnabled(ctx context.Context, userID int64, event domain.NotificationEvent, channel domain.NotificationChannel) (bool, error)
	Set(ctx context.Context, userID int64, event domain.NotificationEvent, channel domain.NotificationChannel, enabled bool) error
}

type preferenceRepository struct {
	db DB
}

// NewPreferenceRepository returns a Postgres-backed implementation.
func NewPreferenceRepository(db DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) IsEnabled(ctx context.Context, userID int64, event domain.NotificationEvent, channel domain.NotificationChannel) (bool, error) {
	const query = `
        SELECT enabled FROM notification_preferences
        WHERE user_id=$1 AND event=$2 AND channel=$3`
	var enabled bool
	err := r.db.QueryRow(ctx, query, userID, event, channel).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

func (r *preferenceRepository) Set(ctx context.Context, userID int64, event domain.NotificationEvent, channel domain.NotificationChannel, enabled bool) error {
	const query = `
        INSERT INTO notification_preferences (user_id, event, channel, enabled)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, event, channel) DO UPDATE SET enabled=EXCLUDED.enabled`
	_, err := r.db.Exec(ctx, query, userID, event, channel, enabled)
	return err
}
