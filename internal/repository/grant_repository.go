package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"synxronlibrary/internal/domain"
)

type GrantRepository struct {
	db *sqlx.DB
}

func NewGrantRepository(db *sqlx.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

var _ GrantStore = (*GrantRepository)(nil)

// Upsert создаёт назначение либо перезаписывает роль существующего:
// на пару (item, user) не бывает двух записей
func (r *GrantRepository) Upsert(ctx context.Context, grant *domain.AccessGrant) error {
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}

	err := r.db.QueryRowContext(ctx, `
        INSERT INTO item_grants (id, item_id, user_id, role)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (item_id, user_id)
        DO UPDATE SET role = EXCLUDED.role, updated_at = CURRENT_TIMESTAMP
        RETURNING id, created_at, updated_at`,
		grant.ID, grant.ItemID, grant.UserID, grant.Role,
	).Scan(&grant.ID, &grant.CreatedAt, &grant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert grant: %w", err)
	}
	return nil
}

func (r *GrantRepository) Revoke(ctx context.Context, itemID int64, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM item_grants WHERE item_id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GrantRepository) ListByItem(ctx context.Context, itemID int64) ([]domain.AccessGrant, error) {
	var grants []domain.AccessGrant
	err := r.db.SelectContext(ctx, &grants, `
        SELECT id, item_id, user_id, role, created_at, updated_at
        FROM item_grants
        WHERE item_id = $1
        ORDER BY created_at`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}

func (r *GrantRepository) RoleOf(ctx context.Context, itemID int64, userID string) (domain.Role, error) {
	var role domain.Role
	err := r.db.GetContext(ctx, &role,
		`SELECT role FROM item_grants WHERE item_id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RoleNone, nil
		}
		return domain.RoleNone, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

func (r *GrantRepository) OwnerGrant(ctx context.Context, itemID int64) (*domain.AccessGrant, error) {
	var grant domain.AccessGrant
	err := r.db.GetContext(ctx, &grant, `
        SELECT id, item_id, user_id, role, created_at, updated_at
        FROM item_grants
        WHERE item_id = $1 AND role = 'owner'`, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get owner grant: %w", err)
	}
	return &grant, nil
}

// TransferOwnership атомарно снимает прежнее владельческое назначение и
// закрепляет владение за newUserID. created_by узла не меняется никогда.
func (r *GrantRepository) TransferOwnership(ctx context.Context, itemID int64, newUserID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM item_grants WHERE item_id = $1 AND role = 'owner' AND user_id != $2`,
		itemID, newUserID)
	if err != nil {
		return fmt.Errorf("failed to remove previous owner grant: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO item_grants (id, item_id, user_id, role)
        VALUES ($1, $2, $3, 'owner')
        ON CONFLICT (item_id, user_id)
        DO UPDATE SET role = 'owner', updated_at = CURRENT_TIMESTAMP`,
		uuid.New(), itemID, newUserID)
	if err != nil {
		return fmt.Errorf("failed to set new owner grant: %w", err)
	}

	return tx.Commit()
}

func (r *GrantRepository) ListForUser(ctx context.Context, userID string) ([]domain.AccessGrant, error) {
	var grants []domain.AccessGrant
	err := r.db.SelectContext(ctx, &grants, `
        SELECT id, item_id, user_id, role, created_at, updated_at
        FROM item_grants
        WHERE user_id = $1
        ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user grants: %w", err)
	}
	return grants, nil
}
