package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"synxronlibrary/internal/domain"
)

type TagRepository struct {
	db *sqlx.DB
}

func NewTagRepository(db *sqlx.DB) *TagRepository {
	return &TagRepository{db: db}
}

var _ TagStore = (*TagRepository)(nil)

func (r *TagRepository) CreateTag(ctx context.Context, tag *domain.Tag) error {
	slug := domain.Slugify(tag.Name)
	err := r.db.QueryRowContext(ctx, `
        INSERT INTO item_tags (name, slug, color)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`,
		tag.Name, slug, tag.Color,
	).Scan(&tag.ID, &tag.CreatedAt, &tag.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSlugConflict
		}
		return fmt.Errorf("failed to create tag: %w", err)
	}
	tag.Slug = slug
	return nil
}

func (r *TagRepository) ListTags(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	err := r.db.SelectContext(ctx, &tags, `
        SELECT id, name, slug, color, created_at, updated_at
        FROM item_tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

func (r *TagRepository) AttachTag(ctx context.Context, itemID, tagID int64) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO item_tag_pivot (item_id, tag_id)
        VALUES ($1, $2)
        ON CONFLICT (item_id, tag_id) DO NOTHING`, itemID, tagID)
	if err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

func (r *TagRepository) DetachTag(ctx context.Context, itemID, tagID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM item_tag_pivot WHERE item_id = $1 AND tag_id = $2`, itemID, tagID)
	if err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
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

func (r *TagRepository) TagsByItem(ctx context.Context, itemID int64) ([]domain.Tag, error) {
	var tags []domain.Tag
	err := r.db.SelectContext(ctx, &tags, `
        SELECT t.id, t.name, t.slug, t.color, t.created_at, t.updated_at
        FROM item_tags t
        INNER JOIN item_tag_pivot p ON p.tag_id = t.id
        WHERE p.item_id = $1
        ORDER BY t.name`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item tags: %w", err)
	}
	return tags, nil
}
