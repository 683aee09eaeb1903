package repository

import (
	"context"

	"synxronlibrary/internal/domain"
)

// Интерфейсы хранилищ. Боевые реализации в этом пакете работают поверх
// Postgres (sqlx), реализация в подпакете memory используется в тестах.

// ItemStore хранит узлы дерева. Все мутации атомарны относительно
// инвариантов: уникальность слага среди живых соседей, ацикличность,
// ограничение глубины, каскадное мягкое удаление.
type ItemStore interface {
	// Create выделяет слаг от item.Name и вставляет узел.
	// Возвращает ErrInvalidParent, ErrMaxDepthExceeded, ErrSlugConflict.
	Create(ctx context.Context, item *domain.Item) error
	// GetByID возвращает живой (не удалённый) узел
	GetByID(ctx context.Context, id int64) (*domain.Item, error)
	// GetAnyByID возвращает узел независимо от мягкого удаления
	GetAnyByID(ctx context.Context, id int64) (*domain.Item, error)
	// Children возвращает живых детей узла, упорядоченных по имени
	Children(ctx context.Context, parentID int64) ([]domain.Item, error)
	// Ancestors возвращает цепочку предков от корня к родителю узла
	Ancestors(ctx context.Context, id int64) ([]domain.Item, error)
	// Rename меняет имя и перевыделяет слаг. Оптимистическая проверка по
	// item.UpdatedAt: при проигрыше гонки — ErrConcurrentModification.
	Rename(ctx context.Context, item *domain.Item, newName, actor string) error
	// Move перевешивает узел под нового родителя. Проверяет цикл по
	// предлагаемой цепочке предков и ограничение глубины с учётом
	// высоты поддерева. Гонки разрешаются как в Rename.
	Move(ctx context.Context, item *domain.Item, newParentID int64, actor string) error
	// SetGeneralAccess меняет режим общего доступа узла
	SetGeneralAccess(ctx context.Context, item *domain.Item, access domain.GeneralAccess, actor string) error
	// AttachMedia записывает ссылку на загруженный объект хранилища
	AttachMedia(ctx context.Context, item *domain.Item, key, mimeType string, size int64, actor string) error
	// SoftDelete помечает узел и всех его потомков удалёнными одной меткой времени
	SoftDelete(ctx context.Context, id int64) error
	// Restore снимает пометку с узла и потомков, удалённых тем же каскадом.
	// Возвращает ErrAncestorDeleted, если кто-то из предков ещё удалён.
	Restore(ctx context.Context, id int64) error
	// SubtreeIDs возвращает id узла и всех его потомков (включая удалённых)
	SubtreeIDs(ctx context.Context, id int64) ([]int64, error)
	// CreatedBy возвращает живые узлы, созданные пользователем
	CreatedBy(ctx context.Context, userID string) ([]domain.Item, error)
	// AnyoneVisible возвращает живые узлы с эффективным общим доступом
	// anyone_can_view: явно помеченные и их inherit-потомки
	AnyoneVisible(ctx context.Context) ([]domain.Item, error)
}

// GrantStore — плоское хранилище прямых назначений ролей.
// Никакой логики наследования здесь нет.
type GrantStore interface {
	// Upsert создаёт или перезаписывает назначение для пары (item, user)
	Upsert(ctx context.Context, grant *domain.AccessGrant) error
	Revoke(ctx context.Context, itemID int64, userID string) error
	ListByItem(ctx context.Context, itemID int64) ([]domain.AccessGrant, error)
	// RoleOf возвращает RoleNone без ошибки, если назначения нет
	RoleOf(ctx context.Context, itemID int64, userID string) (domain.Role, error)
	// OwnerGrant возвращает nil без ошибки, если владельческого назначения нет
	OwnerGrant(ctx context.Context, itemID int64) (*domain.AccessGrant, error)
	// TransferOwnership атомарно удаляет старое владельческое назначение и
	// делает newUserID владельцем (обновляя его существующее назначение либо
	// создавая новое)
	TransferOwnership(ctx context.Context, itemID int64, newUserID string) error
	// ListForUser возвращает все прямые назначения пользователя
	ListForUser(ctx context.Context, userID string) ([]domain.AccessGrant, error)
}

type RoleGateStore interface {
	Add(ctx context.Context, gate *domain.RoleGate) error
	Remove(ctx context.Context, itemID int64, roleName string) error
	GatesByItem(ctx context.Context, itemID int64) ([]domain.RoleGate, error)
}

type UserStore interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	// Ensure создаёт запись пользователя, если её ещё нет
	Ensure(ctx context.Context, id, displayName string) (*domain.User, error)
	// ClaimPersonalRoot выставляет обратную ссылку на личный корень, только
	// если она ещё пуста. Возвращает false при проигрыше гонки.
	ClaimPersonalRoot(ctx context.Context, userID string, rootID int64) (bool, error)
}

type TagStore interface {
	CreateTag(ctx context.Context, tag *domain.Tag) error
	ListTags(ctx context.Context) ([]domain.Tag, error)
	AttachTag(ctx context.Context, itemID, tagID int64) error
	DetachTag(ctx context.Context, itemID, tagID int64) error
	TagsByItem(ctx context.Context, itemID int64) ([]domain.Tag, error)
}

type FavoriteStore interface {
	// ToggleFavorite возвращает новое состояние: true, если узел стал избранным
	ToggleFavorite(ctx context.Context, itemID int64, userID string) (bool, error)
	FavoriteItemIDs(ctx context.Context, userID string) ([]int64, error)
}
