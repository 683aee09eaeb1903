package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type FavoriteRepository struct {
	db *sqlx.DB
}

func NewFavoriteRepository(db *sqlx.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

var _ FavoriteStore = (*FavoriteRepository)(nil)

func (r *FavoriteRepository) ToggleFavorite(ctx context.Context, itemID int64, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM item_favorites WHERE item_id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to toggle favorite: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO item_favorites (item_id, user_id)
        VALUES ($1, $2)
        ON CONFLICT (item_id, user_id) DO NOTHING`, itemID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to add favorite: %w", err)
	}
	return true, nil
}

func (r *FavoriteRepository) FavoriteItemIDs(ctx context.Context, userID string) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
        SELECT f.item_id
        FROM item_favorites f
        INNER JOIN items i ON i.id = f.item_id
        WHERE f.user_id = $1 AND i.deleted_at IS NULL
        ORDER BY f.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return ids, nil
}
