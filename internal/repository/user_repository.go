package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"synxronlibrary/internal/domain"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ UserStore = (*UserRepository)(nil)

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `
        SELECT id, display_name, personal_root_id, created_at, updated_at
        FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Ensure создаёт запись пользователя при первом обращении.
// Имя обновляется, если сервис аккаунтов прислал новое.
func (r *UserRepository) Ensure(ctx context.Context, id, displayName string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `
        INSERT INTO users (id, display_name)
        VALUES ($1, $2)
        ON CONFLICT (id)
        DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = CURRENT_TIMESTAMP
        RETURNING id, display_name, personal_root_id, created_at, updated_at`,
		id, displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return &user, nil
}

// ClaimPersonalRoot закрепляет личный корень, только если ссылка ещё пуста.
// Уникальный индекс на personal_root_id плюс условный UPDATE дают
// семантику «не более одного создания» при гонке первых обращений.
func (r *UserRepository) ClaimPersonalRoot(ctx context.Context, userID string, rootID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
        UPDATE users
        SET personal_root_id = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2 AND personal_root_id IS NULL`,
		rootID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to claim personal root: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}
