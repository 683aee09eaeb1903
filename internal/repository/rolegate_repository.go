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

type RoleGateRepository struct {
	db *sqlx.DB
}

func NewRoleGateRepository(db *sqlx.DB) *RoleGateRepository {
	return &RoleGateRepository{db: db}
}

var _ RoleGateStore = (*RoleGateRepository)(nil)

func (r *RoleGateRepository) Add(ctx context.Context, gate *domain.RoleGate) error {
	if gate.ID == uuid.Nil {
		gate.ID = uuid.New()
	}

	err := r.db.QueryRowContext(ctx, `
        INSERT INTO item_role_gates (id, item_id, role_name)
        VALUES ($1, $2, $3)
        ON CONFLICT (item_id, role_name) DO NOTHING
        RETURNING created_at`,
		gate.ID, gate.ItemID, gate.RoleName,
	).Scan(&gate.CreatedAt)
	if err != nil {
		// ON CONFLICT DO NOTHING не возвращает строк для дубликата —
		// повторное добавление того же гейта считается успехом
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to add role gate: %w", err)
	}
	return nil
}

func (r *RoleGateRepository) Remove(ctx context.Context, itemID int64, roleName string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM item_role_gates WHERE item_id = $1 AND role_name = $2`, itemID, roleName)
	if err != nil {
		return fmt.Errorf("failed to remove role gate: %w", err)
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

func (r *RoleGateRepository) GatesByItem(ctx context.Context, itemID int64) ([]domain.RoleGate, error) {
	var gates []domain.RoleGate
	err := r.db.SelectContext(ctx, &gates, `
        SELECT id, item_id, role_name, created_at
        FROM item_role_gates
        WHERE item_id = $1
        ORDER BY role_name`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role gates: %w", err)
	}
	return gates, nil
}
