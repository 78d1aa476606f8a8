package repository

import (
	"context"

	"github.com/campusdesk/appeal-service/internal/domain"
)

// AppealHistoryRepository reads audit entries. Entries are written by
// AppealRepository.Save inside the aggregate's transaction.
type AppealHistoryRepository interface {
	ListByAppeal(ctx context.Context, appealID int64) ([]domain.AppealHistory, error)
}

type appealHistoryRepository struct {
	db DB
}

// NewAppealHistoryRepository builds repository.
func NewAppealHistoryRepository(db DB) AppealHistoryRepository {
	return &appealHistoryRepository{db: db}
}

func insertHistory(ctx context.Context, q querier, history *domain.AppealHistory) error {
	const query = `
        INSERT INTO appeal_history (appeal_id, changed_by, change_type, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return q.QueryRow(ctx, query,
		history.AppealID,
		history.ChangedBy,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
		history.CreatedAt,
	).Scan(&history.ID)
}

func (r *appealHistoryRepository) ListByAppeal(ctx context.Context, appealID int64) ([]domain.AppealHistory, error) {
	const query = `
        SELECT id, appeal_id, changed_by, change_type, old_value, new_value, created_at
        FROM appeal_history WHERE appeal_id=$1 ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, appealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AppealHistory
	for rows.Next() {
		var history domain.AppealHistory
		if err := rows.Scan(
			&history.ID,
			&history.AppealID,
			&history.ChangedBy,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
