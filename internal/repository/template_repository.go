package repository

import (
	"context"

	"github.com/campusdesk/appeal-service/internal/domain"
)

// TemplateRepository resolves localized notification templates.
type TemplateRepository interface {
	// Get returns the template for language, falling back to the default
	// language. pgx.ErrNoRows means neither exists.
	Get(ctx context.Context, event domain.NotificationEvent, channel domain.NotificationChannel, language string) (*domain.NotificationTemplate, error)
}

type templateRepository struct {
	db DB
}

// NewTemplateRepository returns a Postgres-backed implementation.
func NewTemplateRepository(db DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) Get(ctx context.Context, event domain.NotificationEvent, channel domain.NotificationChannel, language string) (*domain.NotificationTemplate, error) {
	if language == "" {
		language = domain.DefaultLanguage
	}
	const query = `
        SELECT event, channel, language, title_template, body_template
        FROM notification_templates
        WHERE event=$1 AND channel=$2 AND language IN ($3, $4)
        ORDER BY (language = $3) DESC
        LIMIT 1`
	var tpl domain.NotificationTemplate
	if err := r.db.QueryRow(ctx, query, event, channel, language, domain.DefaultLanguage).Scan(
		&tpl.Event,
		&tpl.Channel,
		&tpl.Language,
		&tpl.TitleTemplate,
		&tpl.BodyTemplate,
	); err != nil {
		return nil, err
	}
	return &tpl, nil
}
