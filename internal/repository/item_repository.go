package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"synxronlibrary/internal/domain"
)

const itemColumns = `id, name, slug, type, parent_id, created_by, updated_by,
    general_access, external_url, link_description, media_key, mime_type,
    size_bytes, created_at, updated_at, deleted_at`

// maxSlugAttempts ограничивает перебор кандидатов слага; при исчерпании
// возвращается ErrSlugConflict
const maxSlugAttempts = 50

type ItemRepository struct {
	db       *sqlx.DB
	maxDepth int
}

func NewItemRepository(db *sqlx.DB, maxDepth int) *ItemRepository {
	return &ItemRepository{db: db, maxDepth: maxDepth}
}

var _ ItemStore = (*ItemRepository)(nil)

func (r *ItemRepository) Create(ctx context.Context, item *domain.Item) error {
	// Каждая попытка — отдельная транзакция: после нарушения уникального
	// индекса Postgres отвергает дальнейшие операторы в той же транзакции
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		done, err := r.createAttempt(ctx, item, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return domain.ErrSlugConflict
}

func (r *ItemRepository) createAttempt(ctx context.Context, item *domain.Item, attempt int) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if item.ParentID != nil {
		// Родителем может быть только живая папка
		var parent domain.Item
		err := tx.GetContext(ctx, &parent,
			`SELECT `+itemColumns+` FROM items WHERE id = $1`, *item.ParentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, domain.ErrInvalidParent
			}
			return false, fmt.Errorf("failed to get parent: %w", err)
		}
		if !parent.IsFolder() || parent.IsDeleted() {
			return false, domain.ErrInvalidParent
		}

		depth, err := r.depthOf(ctx, tx, parent.ID)
		if err != nil {
			return false, err
		}
		if depth+1 >= r.maxDepth {
			return false, domain.ErrMaxDepthExceeded
		}
	}

	slug, err := r.allocateSlug(ctx, tx, item.ParentID, domain.Slugify(item.Name), attempt, 0)
	if err != nil {
		return false, err
	}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO items (name, slug, type, parent_id, created_by, updated_by,
            general_access, external_url, link_description)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at, updated_at`,
		item.Name, slug, item.Type, item.ParentID,
		item.CreatedBy, item.UpdatedBy, item.GeneralAccess,
		item.ExternalURL, item.LinkDescription,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		// Частичный уникальный индекс по (parent_id, slug) среди живых
		// строк — авторитетная защита от гонок, аллокатор лишь оптимизация
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create item: %w", err)
	}

	item.Slug = slug
	return true, tx.Commit()
}

// allocateSlug подбирает свободный кандидат начиная с номера from.
// Кандидаты проверяются против ВСЕХ строк набора соседей, включая мягко
// удалённые, чтобы не переиздавать слаг удалённого узла.
func (r *ItemRepository) allocateSlug(ctx context.Context, tx *sqlx.Tx, parentID *int64, base string, from int, excludeID int64) (string, error) {
	query := `
        SELECT EXISTS(
            SELECT 1 FROM items
            WHERE COALESCE(parent_id, 0) = COALESCE($1, 0)
            AND slug = $2
            AND id != $3
        )`

	for n := from; n < from+maxSlugAttempts; n++ {
		candidate := domain.SlugCandidate(base, n)
		var taken bool
		if err := tx.GetContext(ctx, &taken, query, parentID, candidate, excludeID); err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", domain.ErrSlugConflict
}

func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	var item domain.Item
	err := r.db.GetContext(ctx, &item,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

func (r *ItemRepository) GetAnyByID(ctx context.Context, id int64) (*domain.Item, error) {
	var item domain.Item
	err := r.db.GetContext(ctx, &item,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

func (r *ItemRepository) Children(ctx context.Context, parentID int64) ([]domain.Item, error) {
	var items []domain.Item
	err := r.db.SelectContext(ctx, &items, `
        SELECT `+itemColumns+` FROM items
        WHERE parent_id = $1 AND deleted_at IS NULL
        ORDER BY name`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get children: %w", err)
	}
	return items, nil
}

// Ancestors возвращает цепочку предков от корня к непосредственному родителю
func (r *ItemRepository) Ancestors(ctx context.Context, id int64) ([]domain.Item, error) {
	var items []domain.Item
	err := r.db.SelectContext(ctx, &items, `
        WITH RECURSIVE chain AS (
            SELECT i.*, 0 AS height
            FROM items i
            WHERE i.id = (SELECT parent_id FROM items WHERE id = $1)

            UNION ALL

            SELECT i.*, c.height + 1
            FROM items i
            INNER JOIN chain c ON i.id = c.parent_id
        )
        SELECT `+itemColumns+` FROM chain ORDER BY height DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ancestors: %w", err)
	}
	return items, nil
}

func (r *ItemRepository) Rename(ctx context.Context, item *domain.Item, newName, actor string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	slug, err := r.allocateSlug(ctx, tx, item.ParentID, domain.Slugify(newName), 0, item.ID)
	if err != nil {
		return err
	}

	// Оптимистическая проверка: проигравший гонку получает
	// ErrConcurrentModification, а не тихую перезапись
	err = tx.QueryRowContext(ctx, `
        UPDATE items
        SET name = $1, slug = $2, updated_by = $3, updated_at = CURRENT_TIMESTAMP
        WHERE id = $4 AND deleted_at IS NULL AND updated_at = $5
        RETURNING updated_at`,
		newName, slug, actor, item.ID, item.UpdatedAt,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.staleOrMissing(ctx, tx, item.ID)
		}
		return fmt.Errorf("failed to rename item: %w", err)
	}

	item.Name = newName
	item.Slug = slug
	item.UpdatedBy = actor
	return tx.Commit()
}

func (r *ItemRepository) Move(ctx context.Context, item *domain.Item, newParentID int64, actor string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if newParentID == item.ID {
		return domain.ErrCycleDetected
	}

	// Блокируем и сам перемещаемый узел: иначе два встречных перемещения
	// (A под B и B под A) проверяют цепочку до коммита друг друга и вместе
	// образуют цикл
	var current domain.Item
	err = tx.GetContext(ctx, &current,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, item.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to lock item: %w", err)
	}
	if current.IsDeleted() {
		return domain.ErrNotFound
	}

	var parent domain.Item
	err = tx.GetContext(ctx, &parent,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, newParentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInvalidParent
		}
		return fmt.Errorf("failed to get new parent: %w", err)
	}
	if !parent.IsFolder() || parent.IsDeleted() {
		return domain.ErrInvalidParent
	}

	// Проверяем предлагаемую цепочку предков нового родителя:
	// если в ней есть перемещаемый узел — это цикл
	var onChain bool
	err = tx.GetContext(ctx, &onChain, `
        WITH RECURSIVE chain AS (
            SELECT id, parent_id FROM items WHERE id = $1
            UNION ALL
            SELECT i.id, i.parent_id
            FROM items i
            INNER JOIN chain c ON i.id = c.parent_id
        )
        SELECT EXISTS(SELECT 1 FROM chain WHERE id = $2)`, newParentID, item.ID)
	if err != nil {
		return fmt.Errorf("failed to check ancestor chain: %w", err)
	}
	if onChain {
		return domain.ErrCycleDetected
	}

	parentDepth, err := r.depthOf(ctx, tx, newParentID)
	if err != nil {
		return err
	}
	height, err := r.subtreeHeight(ctx, tx, item.ID)
	if err != nil {
		return err
	}
	if parentDepth+1+height >= r.maxDepth {
		return domain.ErrMaxDepthExceeded
	}

	slug, err := r.allocateSlug(ctx, tx, &newParentID, domain.Slugify(item.Name), 0, item.ID)
	if err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx, `
        UPDATE items
        SET parent_id = $1, slug = $2, updated_by = $3, updated_at = CURRENT_TIMESTAMP
        WHERE id = $4 AND deleted_at IS NULL AND updated_at = $5
        RETURNING updated_at`,
		newParentID, slug, actor, item.ID, item.UpdatedAt,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.staleOrMissing(ctx, tx, item.ID)
		}
		return fmt.Errorf("failed to move item: %w", err)
	}

	item.ParentID = &newParentID
	item.Slug = slug
	item.UpdatedBy = actor
	return tx.Commit()
}

func (r *ItemRepository) SetGeneralAccess(ctx context.Context, item *domain.Item, access domain.GeneralAccess, actor string) error {
	err := r.db.QueryRowContext(ctx, `
        UPDATE items
        SET general_access = $1, updated_by = $2, updated_at = CURRENT_TIMESTAMP
        WHERE id = $3 AND deleted_at IS NULL AND updated_at = $4
        RETURNING updated_at`,
		access, actor, item.ID, item.UpdatedAt,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.staleOrMissingDB(ctx, item.ID)
		}
		return fmt.Errorf("failed to set general access: %w", err)
	}

	item.GeneralAccess = access
	item.UpdatedBy = actor
	return nil
}

func (r *ItemRepository) AttachMedia(ctx context.Context, item *domain.Item, key, mimeType string, size int64, actor string) error {
	err := r.db.QueryRowContext(ctx, `
        UPDATE items
        SET media_key = $1, mime_type = $2, size_bytes = $3,
            updated_by = $4, updated_at = CURRENT_TIMESTAMP
        WHERE id = $5 AND deleted_at IS NULL AND updated_at = $6
        RETURNING updated_at`,
		key, mimeType, size, actor, item.ID, item.UpdatedAt,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.staleOrMissingDB(ctx, item.ID)
		}
		return fmt.Errorf("failed to attach media: %w", err)
	}

	item.MediaKey = &key
	item.MIMEType = &mimeType
	item.SizeBytes = &size
	item.UpdatedBy = actor
	return nil
}

// SoftDelete помечает узел и всех живых потомков удалёнными. Один оператор —
// одна метка времени на весь каскад, частичного применения не бывает.
func (r *ItemRepository) SoftDelete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `
        WITH RECURSIVE subtree AS (
            SELECT id FROM items WHERE id = $1 AND deleted_at IS NULL
            UNION ALL
            SELECT i.id FROM items i
            INNER JOIN subtree s ON i.parent_id = s.id
            WHERE i.deleted_at IS NULL
        )
        UPDATE items
        SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
        WHERE id IN (SELECT id FROM subtree)`, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	log.Printf("[ItemRepository] Soft deleted item %d with %d descendants", id, rows-1)
	return nil
}

// Restore снимает пометку удаления с узла и потомков, удалённых тем же
// каскадом (сравнение по deleted_at). Узел с ещё удалённым предком
// восстановить нельзя.
func (r *ItemRepository) Restore(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var item domain.Item
	err = tx.GetContext(ctx, &item,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to get item: %w", err)
	}
	if !item.IsDeleted() {
		return domain.ErrNotDeleted
	}

	var deletedAncestors int
	err = tx.GetContext(ctx, &deletedAncestors, `
        WITH RECURSIVE chain AS (
            SELECT id, parent_id, deleted_at
            FROM items WHERE id = (SELECT parent_id FROM items WHERE id = $1)
            UNION ALL
            SELECT i.id, i.parent_id, i.deleted_at
            FROM items i
            INNER JOIN chain c ON i.id = c.parent_id
        )
        SELECT COUNT(*) FROM chain WHERE deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to check ancestors: %w", err)
	}
	if deletedAncestors > 0 {
		return domain.ErrAncestorDeleted
	}

	// За время жизни в корзине слаг мог занять живой сосед
	slug, err := r.allocateSlug(ctx, tx, item.ParentID, domain.Slugify(item.Name), 0, item.ID)
	if err != nil {
		return err
	}
	if slug != item.Slug {
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET slug = $1 WHERE id = $2`, slug, item.ID); err != nil {
			return fmt.Errorf("failed to reallocate slug: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
        WITH RECURSIVE subtree AS (
            SELECT id FROM items WHERE id = $1
            UNION ALL
            SELECT i.id FROM items i
            INNER JOIN subtree s ON i.parent_id = s.id
        )
        UPDATE items
        SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP
        WHERE id IN (SELECT id FROM subtree) AND deleted_at = $2`,
		id, item.DeletedAt)
	if err != nil {
		return fmt.Errorf("failed to restore subtree: %w", err)
	}

	return tx.Commit()
}

func (r *ItemRepository) SubtreeIDs(ctx context.Context, id int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
        WITH RECURSIVE subtree AS (
            SELECT id FROM items WHERE id = $1
            UNION ALL
            SELECT i.id FROM items i
            INNER JOIN subtree s ON i.parent_id = s.id
        )
        SELECT id FROM subtree`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get subtree: %w", err)
	}
	return ids, nil
}

func (r *ItemRepository) CreatedBy(ctx context.Context, userID string) ([]domain.Item, error) {
	var items []domain.Item
	err := r.db.SelectContext(ctx, &items, `
        SELECT `+itemColumns+` FROM items
        WHERE created_by = $1 AND deleted_at IS NULL
        ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items created by user: %w", err)
	}
	return items, nil
}

// AnyoneVisible спускается от явно общедоступных узлов по детям в режиме
// inherit: это в точности множество узлов, чей эффективный общий доступ —
// anyone_can_view
func (r *ItemRepository) AnyoneVisible(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item
	err := r.db.SelectContext(ctx, &items, `
        WITH RECURSIVE visible AS (
            SELECT i.* FROM items i
            WHERE i.deleted_at IS NULL AND i.general_access = 'anyone_can_view'

            UNION ALL

            SELECT i.* FROM items i
            INNER JOIN visible v ON i.parent_id = v.id
            WHERE i.deleted_at IS NULL AND i.general_access = 'inherit'
        )
        SELECT `+itemColumns+` FROM visible ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get publicly visible items: %w", err)
	}
	return items, nil
}

// depthOf возвращает глубину узла: 0 для корня
func (r *ItemRepository) depthOf(ctx context.Context, tx *sqlx.Tx, id int64) (int, error) {
	var depth int
	err := tx.GetContext(ctx, &depth, `
        WITH RECURSIVE chain AS (
            SELECT id, parent_id FROM items WHERE id = $1
            UNION ALL
            SELECT i.id, i.parent_id
            FROM items i
            INNER JOIN chain c ON i.id = c.parent_id
        )
        SELECT COUNT(*) - 1 FROM chain`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to compute depth: %w", err)
	}
	return depth, nil
}

func (r *ItemRepository) subtreeHeight(ctx context.Context, tx *sqlx.Tx, id int64) (int, error) {
	var height int
	err := tx.GetContext(ctx, &height, `
        WITH RECURSIVE subtree AS (
            SELECT id, 0 AS depth FROM items WHERE id = $1
            UNION ALL
            SELECT i.id, s.depth + 1
            FROM items i
            INNER JOIN subtree s ON i.parent_id = s.id
        )
        SELECT COALESCE(MAX(depth), 0) FROM subtree`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to compute subtree height: %w", err)
	}
	return height, nil
}

// staleOrMissing различает потерянную гонку и отсутствующий узел
func (r *ItemRepository) staleOrMissing(ctx context.Context, tx *sqlx.Tx, id int64) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM items WHERE id = $1 AND deleted_at IS NULL)`, id); err != nil {
		return fmt.Errorf("failed to check item existence: %w", err)
	}
	if exists {
		return domain.ErrConcurrentModification
	}
	return domain.ErrNotFound
}

func (r *ItemRepository) staleOrMissingDB(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM items WHERE id = $1 AND deleted_at IS NULL)`, id); err != nil {
		return fmt.Errorf("failed to check item existence: %w", err)
	}
	if exists {
		return domain.ErrConcurrentModification
	}
	return domain.ErrNotFound
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
