package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository"
	"synxronlibrary/internal/service/cache"
)

const personalRootAttempts = 3

// CreateItemInput — параметры создания узла
type CreateItemInput struct {
	Name            string               `json:"name"`
	Type            domain.ItemType      `json:"type"`
	ParentID        *int64               `json:"parent_id"`
	GeneralAccess   domain.GeneralAccess `json:"general_access"`
	ExternalURL     *string              `json:"external_url"`
	LinkDescription *string              `json:"link_description"`
}

// ItemService реализует операции над деревом библиотеки: создание,
// переименование, перемещение, мягкое удаление с каскадом, восстановление,
// листинги и создание личной корневой папки пользователя
type ItemService struct {
	items       repository.ItemStore
	grants      repository.GrantStore
	users       repository.UserStore
	favorites   repository.FavoriteStore
	cache       *cache.Cache
	permissions *PermissionService
}

func NewItemService(
	items repository.ItemStore,
	grants repository.GrantStore,
	users repository.UserStore,
	favorites repository.FavoriteStore,
	resolutionCache *cache.Cache,
	permissions *PermissionService,
) *ItemService {
	return &ItemService{
		items:       items,
		grants:      grants,
		users:       users,
		favorites:   favorites,
		cache:       resolutionCache,
		permissions: permissions,
	}
}

// Create создаёт узел. Создание в корне доступно только администратору,
// внутри папки требуется edit (для файлов upload) на родителе.
// Слаг выделяется хранилищем с учётом мягко удалённых соседей.
func (s *ItemService) Create(ctx context.Context, actorID string, input CreateItemInput) (*domain.Item, error) {
	if actorID == "" {
		return nil, domain.ErrAccessDenied
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("item name must not be empty")
	}
	switch input.Type {
	case domain.ItemTypeFolder, domain.ItemTypeFile, domain.ItemTypeLink:
	default:
		return nil, fmt.Errorf("unknown item type %q", input.Type)
	}
	if input.Type == domain.ItemTypeLink && (input.ExternalURL == nil || *input.ExternalURL == "") {
		return nil, fmt.Errorf("link item requires external_url")
	}

	if input.ParentID == nil {
		if !s.permissions.isAdmin(ctx, actorID) {
			return nil, domain.ErrAccessDenied
		}
	} else {
		parent, err := s.items.GetByID(ctx, *input.ParentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, domain.ErrInvalidParent
		}
		capability := domain.CapabilityEdit
		if input.Type == domain.ItemTypeFile {
			capability = domain.CapabilityUpload
		}
		allowed, err := s.permissions.Can(ctx, actorID, parent, capability)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, domain.ErrAccessDenied
		}
	}

	access := input.GeneralAccess
	if access == "" {
		access = domain.GeneralAccessInherit
	}
	switch access {
	case domain.GeneralAccessInherit, domain.GeneralAccessPrivate, domain.GeneralAccessAnyone:
	default:
		return nil, fmt.Errorf("unknown general access %q", access)
	}

	item := &domain.Item{
		Name:            strings.TrimSpace(input.Name),
		Type:            input.Type,
		ParentID:        input.ParentID,
		CreatedBy:       actorID,
		UpdatedBy:       actorID,
		GeneralAccess:   access,
		ExternalURL:     input.ExternalURL,
		LinkDescription: input.LinkDescription,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	log.Printf("[Item] Created %s %d (%s) by user %s", item.Type, item.ID, item.Slug, actorID)
	return item, nil
}

// Get возвращает узел после проверки view. Узел без доступа отдаётся
// как ErrAccessDenied, существование при этом не скрывается.
func (s *ItemService) Get(ctx context.Context, actorID string, id int64) (*domain.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityView)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrAccessDenied
	}
	return item, nil
}

// Contents возвращает папку и видимые вызывающему дочерние узлы.
// Дети, закрытые гейтом, из листинга убираются.
func (s *ItemService) Contents(ctx context.Context, actorID string, id int64) (*domain.ItemContent, error) {
	item, err := s.Get(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if !item.IsFolder() {
		return nil, fmt.Errorf("item %d is not a folder", id)
	}

	children, err := s.items.Children(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	visible := make([]domain.Item, 0, len(children))
	for i := range children {
		allowed, err := s.permissions.Can(ctx, actorID, &children[i], domain.CapabilityView)
		if err != nil {
			return nil, err
		}
		if allowed {
			visible = append(visible, children[i])
		}
	}

	return &domain.ItemContent{Item: *item, Children: visible}, nil
}

// Breadcrumbs возвращает путь от корня до узла включительно
func (s *ItemService) Breadcrumbs(ctx context.Context, actorID string, id int64) ([]domain.Breadcrumb, error) {
	item, err := s.Get(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	if crumbs, ok := s.cache.Breadcrumbs(ctx, item.ID); ok {
		return crumbs, nil
	}

	ancestors, err := s.items.Ancestors(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	crumbs := make([]domain.Breadcrumb, 0, len(ancestors)+1)
	for _, a := range ancestors {
		crumbs = append(crumbs, domain.Breadcrumb{ID: a.ID, Name: a.Name, Slug: a.Slug})
	}
	crumbs = append(crumbs, domain.Breadcrumb{ID: item.ID, Name: item.Name, Slug: item.Slug})

	s.cache.SetBreadcrumbs(ctx, item.ID, crumbs)
	return crumbs, nil
}

// Rename переименовывает узел и выделяет ему новый слаг.
// Конкурентная запись между чтением и обновлением даёт ErrConcurrentModification.
func (s *ItemService) Rename(ctx context.Context, actorID string, id int64, newName string) (*domain.Item, error) {
	if strings.TrimSpace(newName) == "" {
		return nil, fmt.Errorf("item name must not be empty")
	}

	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityEdit)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrAccessDenied
	}

	if err := s.items.Rename(ctx, item, strings.TrimSpace(newName), actorID); err != nil {
		return nil, err
	}

	s.invalidateSubtree(ctx, item.ID)
	log.Printf("[Item] Renamed item %d to %q by user %s", item.ID, item.Name, actorID)
	return item, nil
}

// Move перемещает узел в другую папку. Требует edit на узле и на целевой
// папке. Перемещение под собственного потомка отклоняется хранилищем.
func (s *ItemService) Move(ctx context.Context, actorID string, id, newParentID int64) (*domain.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityEdit)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrAccessDenied
	}

	parent, err := s.items.GetByID(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	allowed, err = s.permissions.Can(ctx, actorID, parent, domain.CapabilityEdit)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrAccessDenied
	}

	if err := s.items.Move(ctx, item, newParentID, actorID); err != nil {
		return nil, err
	}

	// После переезда у всего поддерева меняются и путь, и наследуемый доступ
	s.invalidateSubtree(ctx, item.ID)
	log.Printf("[Item] Moved item %d under %d by user %s", item.ID, newParentID, actorID)
	return item, nil
}

// SetGeneralAccess меняет режим общего доступа узла
func (s *ItemService) SetGeneralAccess(ctx context.Context, actorID string, id int64, access domain.GeneralAccess) (*domain.Item, error) {
	switch access {
	case domain.GeneralAccessInherit, domain.GeneralAccessPrivate, domain.GeneralAccessAnyone:
	default:
		return nil, fmt.Errorf("unknown general access %q", access)
	}

	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityManagePermissions)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrAccessDenied
	}

	if err := s.items.SetGeneralAccess(ctx, item, access, actorID); err != nil {
		return nil, err
	}

	s.invalidateSubtree(ctx, item.ID)
	log.Printf("[Item] General access of item %d set to %s by user %s", item.ID, access, actorID)
	return item, nil
}

// Delete мягко удаляет узел вместе со всем поддеревом одной отметкой времени
func (s *ItemService) Delete(ctx context.Context, actorID string, id int64) error {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityDelete)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.ErrAccessDenied
	}

	// Ключи кэша собираем до удаления: после него поддерево уже не живое
	ids, err := s.items.SubtreeIDs(ctx, item.ID)
	if err != nil {
		return err
	}

	if err := s.items.SoftDelete(ctx, item.ID); err != nil {
		return err
	}

	s.cache.InvalidateItems(ctx, ids...)
	log.Printf("[Item] Soft deleted item %d (subtree of %d) by user %s", item.ID, len(ids), actorID)
	return nil
}

// Restore восстанавливает узел и ту часть поддерева, что была удалена
// тем же каскадом. Восстановление под удалённым предком отклоняется.
func (s *ItemService) Restore(ctx context.Context, actorID string, id int64) (*domain.Item, error) {
	item, err := s.items.GetAnyByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.IsDeleted() {
		return nil, domain.ErrNotDeleted
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityDelete)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrAccessDenied
	}

	if err := s.items.Restore(ctx, item.ID); err != nil {
		return nil, err
	}

	restored, err := s.items.GetByID(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	s.invalidateSubtree(ctx, restored.ID)
	log.Printf("[Item] Restored item %d by user %s", restored.ID, actorID)
	return restored, nil
}

// EnsurePersonalRoot возвращает личную корневую папку пользователя,
// создавая её при первом обращении. Конкурентные вызовы сходятся к одной
// папке: проигравший откатывает свою и берёт папку победителя.
func (s *ItemService) EnsurePersonalRoot(ctx context.Context, userID, displayName string) (*domain.Item, error) {
	if userID == "" {
		return nil, domain.ErrAccessDenied
	}

	user, err := s.users.Ensure(ctx, userID, displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	if user.PersonalRootID != nil {
		root, err := s.items.GetByID(ctx, *user.PersonalRootID)
		if err == nil {
			return root, nil
		}
		// Ссылка есть, а папки нет: удалена извне, создаём заново
		log.Printf("[Item] Personal root %d of user %s is gone, recreating", *user.PersonalRootID, userID)
	}

	for attempt := 0; attempt < personalRootAttempts; attempt++ {
		root, err := s.createPersonalRoot(ctx, user)
		if err != nil {
			return nil, err
		}

		claimed, err := s.users.ClaimPersonalRoot(ctx, user.ID, root.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim personal root: %w", err)
		}
		if claimed {
			log.Printf("[Item] Personal root %d created for user %s", root.ID, user.ID)
			return root, nil
		}

		// Параллельный вызов успел раньше: нашу папку убираем, берём его
		if err := s.items.SoftDelete(ctx, root.ID); err != nil {
			log.Printf("[Item] Failed to roll back orphan personal root %d: %v", root.ID, err)
		}

		fresh, err := s.users.Get(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if fresh.PersonalRootID != nil {
			winner, err := s.items.GetByID(ctx, *fresh.PersonalRootID)
			if err == nil {
				return winner, nil
			}
		}
		user = fresh
	}
	return nil, fmt.Errorf("failed to settle personal root for user %s", userID)
}

func (s *ItemService) createPersonalRoot(ctx context.Context, user *domain.User) (*domain.Item, error) {
	name := user.DisplayName
	if name == "" {
		name = user.ID
	}

	root := &domain.Item{
		Name:          fmt.Sprintf("%s's Personal Folder", name),
		Type:          domain.ItemTypeFolder,
		CreatedBy:     user.ID,
		UpdatedBy:     user.ID,
		GeneralAccess: domain.GeneralAccessPrivate,
	}
	if err := s.items.Create(ctx, root); err != nil {
		return nil, fmt.Errorf("failed to create personal root: %w", err)
	}

	grant := &domain.AccessGrant{
		ID:     uuid.New(),
		ItemID: root.ID,
		UserID: user.ID,
		Role:   domain.RoleOwner,
	}
	if err := s.grants.Upsert(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to grant personal root ownership: %w", err)
	}
	return root, nil
}

// CreatedByMe — живые узлы, созданные пользователем
func (s *ItemService) CreatedByMe(ctx context.Context, userID string) ([]domain.Item, error) {
	if userID == "" {
		return nil, domain.ErrAccessDenied
	}
	return s.items.CreatedBy(ctx, userID)
}

// SharedWithMe — живые узлы, на которые пользователю выдано прямое
// назначение кем-то другим
func (s *ItemService) SharedWithMe(ctx context.Context, userID string) ([]domain.Item, error) {
	if userID == "" {
		return nil, domain.ErrAccessDenied
	}

	grants, err := s.grants.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.Item, 0, len(grants))
	for _, g := range grants {
		item, err := s.items.GetByID(ctx, g.ItemID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if item.CreatedBy == userID {
			continue
		}
		items = append(items, *item)
	}
	return items, nil
}

// Accessible — всё, до чего пользователь может дотянуться: созданное им,
// выданное ему напрямую и общедоступное. Его личная корневая папка в
// подборку не попадает.
func (s *ItemService) Accessible(ctx context.Context, userID string) ([]domain.Item, error) {
	if userID == "" {
		return nil, domain.ErrAccessDenied
	}

	var personalRoot int64
	if user, err := s.users.Get(ctx, userID); err == nil && user.PersonalRootID != nil {
		personalRoot = *user.PersonalRootID
	}

	seen := make(map[int64]bool)
	var out []domain.Item
	add := func(item domain.Item) {
		if seen[item.ID] || item.ID == personalRoot {
			return
		}
		seen[item.ID] = true
		out = append(out, item)
	}

	created, err := s.items.CreatedBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, it := range created {
		add(it)
	}

	grants, err := s.grants.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		item, err := s.items.GetByID(ctx, g.ItemID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		add(*item)
	}

	public, err := s.items.AnyoneVisible(ctx)
	if err != nil {
		return nil, err
	}
	for _, it := range public {
		add(it)
	}
	return out, nil
}

// Favorites — живые узлы, отмеченные пользователем как избранные
func (s *ItemService) Favorites(ctx context.Context, userID string) ([]domain.Item, error) {
	if userID == "" {
		return nil, domain.ErrAccessDenied
	}

	ids, err := s.favorites.FavoriteItemIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		item, err := s.items.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

// ToggleFavorite переключает отметку избранного, возвращает новое состояние
func (s *ItemService) ToggleFavorite(ctx context.Context, actorID string, itemID int64) (bool, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return false, err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityView)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, domain.ErrAccessDenied
	}

	return s.favorites.ToggleFavorite(ctx, item.ID, actorID)
}

func (s *ItemService) invalidateSubtree(ctx context.Context, id int64) {
	ids, err := s.items.SubtreeIDs(ctx, id)
	if err != nil {
		log.Printf("[Item] Failed to collect subtree for invalidation: %v", err)
		ids = []int64{id}
	}
	s.cache.InvalidateItems(ctx, ids...)
}
