package repository

import (
	"context"

	"github.com/campusdesk/appeal-service/internal/domain"
)

// UserRepository defines persistence access for students and staff.
type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByRoles(ctx context.Context, roles ...domain.UserRole) ([]domain.User, error)
	UpdateAccess(ctx context.Context, user *domain.User) error
}

type userRepository struct {
	db DB
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, display_name, email, password_hash, role, language, created_at, updated_at`

// Upsert registers a chat user on first contact and refreshes the display
// name afterwards. Role and credentials are never overwritten by it.
func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	if user.Role == "" {
		user.Role = domain.RoleStudent
	}
	if user.Language == "" {
		user.Language = domain.DefaultLanguage
	}
	const query = `
        INSERT INTO users (id, display_name, email, password_hash, role, language)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET display_name=EXCLUDED.display_name, updated_at=NOW()
        RETURNING email, password_hash, role, language, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		user.ID,
		user.DisplayName,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Language,
	).Scan(&user.Email, &user.PasswordHash, &user.Role, &user.Language, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *userRepository) ListByRoles(ctx context.Context, roles ...domain.UserRole) ([]domain.User, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ANY($1) ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

// UpdateAccess stores role and credentials. pgx.ErrNoRows means the user
// does not exist.
func (r *userRepository) UpdateAccess(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET role=$2, email=$3, password_hash=$4, updated_at=NOW()
        WHERE id=$1
        RETURNING updated_at`
	return r.db.QueryRow(ctx, query, user.ID, user.Role, user.Email, user.PasswordHash).Scan(&user.UpdatedAt)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Language,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
