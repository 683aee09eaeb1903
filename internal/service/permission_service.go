package service

import (
	"context"
	"fmt"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository"
	"synxronlibrary/internal/service/cache"
)

// AdministratorPredicate сообщает, является ли пользователь администратором
// библиотеки. Инжектируется при сборке вместо глобального хука.
type AdministratorPredicate func(ctx context.Context, userID string) bool

// RoleProvider возвращает внешние роли пользователя для проверки гейтов
type RoleProvider func(ctx context.Context, userID string) []string

// PermissionService вычисляет эффективную роль пользователя на узле и
// решения can-операций. Центральный алгоритм: подъём по цепочке предков,
// первый найденный источник полномочий побеждает.
type PermissionService struct {
	items     repository.ItemStore
	grants    repository.GrantStore
	gates     repository.RoleGateStore
	cache     *cache.Cache
	isAdmin   AdministratorPredicate
	userRoles RoleProvider
	maxDepth  int
}

func NewPermissionService(
	items repository.ItemStore,
	grants repository.GrantStore,
	gates repository.RoleGateStore,
	resolutionCache *cache.Cache,
	isAdmin AdministratorPredicate,
	userRoles RoleProvider,
	maxDepth int,
) *PermissionService {
	if isAdmin == nil {
		isAdmin = func(context.Context, string) bool { return false }
	}
	if userRoles == nil {
		userRoles = func(context.Context, string) []string { return nil }
	}
	return &PermissionService{
		items:     items,
		grants:    grants,
		gates:     gates,
		cache:     resolutionCache,
		isAdmin:   isAdmin,
		userRoles: userRoles,
		maxDepth:  maxDepth,
	}
}

// EffectiveRole возвращает роль пользователя на узле. Отсутствие любых
// полномочий — RoleNone без ошибки. Пустой userID означает анонима: ему
// доступен только путь через anyone_can_view.
//
// Порядок на каждом узле при подъёме строго фиксирован: администратор →
// создатель (владелец либо отдельный ярус creator) → прямое назначение →
// родитель. Слияния «самая широкая роль побеждает» нет — побеждает ближайшая.
func (s *PermissionService) EffectiveRole(ctx context.Context, userID string, item *domain.Item) (domain.Role, error) {
	if userID != "" && s.isAdmin(ctx, userID) {
		return domain.RoleOwner, nil
	}

	if userID != "" {
		// Итеративный подъём с защитой от повреждённого цикла в данных
		current := item
		visited := make(map[int64]bool)
		for steps := 0; steps <= s.maxDepth; steps++ {
			if visited[current.ID] {
				break
			}
			visited[current.ID] = true

			if current.CreatedBy == userID {
				ownerID, err := s.currentOwnerID(ctx, current)
				if err != nil {
					return domain.RoleNone, err
				}
				if ownerID == userID {
					return domain.RoleOwner, nil
				}
				return domain.RoleCreator, nil
			}

			role, err := s.grants.RoleOf(ctx, current.ID, userID)
			if err != nil {
				return domain.RoleNone, err
			}
			if role != domain.RoleNone {
				return role, nil
			}

			if current.ParentID == nil {
				break
			}
			parent, err := s.items.GetAnyByID(ctx, *current.ParentID)
			if err != nil {
				return domain.RoleNone, fmt.Errorf("failed to walk to parent: %w", err)
			}
			current = parent
		}
	}

	access, err := s.EffectiveGeneralAccess(ctx, item)
	if err != nil {
		return domain.RoleNone, err
	}
	if access == domain.GeneralAccessAnyone {
		return domain.RoleViewer, nil
	}
	return domain.RoleNone, nil
}

// Can решает, разрешена ли операция. Отказ — всегда обычный false,
// никогда не ошибка: представление «доступ запрещён» остаётся за вызывающим.
func (s *PermissionService) Can(ctx context.Context, userID string, item *domain.Item, capability domain.Capability) (bool, error) {
	if userID != "" && s.isAdmin(ctx, userID) {
		return true, nil
	}

	role, err := s.EffectiveRole(ctx, userID, item)
	if err != nil {
		return false, err
	}
	if !role.Allows(capability) {
		return false, nil
	}

	return s.passesRoleGate(ctx, userID, item)
}

// passesRoleGate проверяет гейт по внешним ролям на самом узле.
// Гейты не наследуются: узел наследует назначения, но не гейты.
// Создатель узла от гейта освобождён.
func (s *PermissionService) passesRoleGate(ctx context.Context, userID string, item *domain.Item) (bool, error) {
	gates, err := s.gates.GatesByItem(ctx, item.ID)
	if err != nil {
		return false, err
	}
	if len(gates) == 0 {
		return true, nil
	}
	if userID != "" && item.CreatedBy == userID {
		return true, nil
	}

	held := make(map[string]bool)
	for _, r := range s.userRoles(ctx, userID) {
		held[r] = true
	}
	for _, g := range gates {
		if held[g.RoleName] {
			return true, nil
		}
	}
	return false, nil
}

// EffectiveGeneralAccess разрешает режим общего доступа с учётом
// наследования: inherit поднимается к родителю, корень с inherit — private.
// Значение кэшируется с коротким TTL и сбрасывается при записи в поддерево.
func (s *PermissionService) EffectiveGeneralAccess(ctx context.Context, item *domain.Item) (domain.GeneralAccess, error) {
	if access, ok := s.cache.GeneralAccess(ctx, item.ID); ok {
		return access, nil
	}

	access := domain.GeneralAccessPrivate
	current := item
	visited := make(map[int64]bool)
	for steps := 0; steps <= s.maxDepth; steps++ {
		if visited[current.ID] {
			break
		}
		visited[current.ID] = true

		if current.GeneralAccess != domain.GeneralAccessInherit && current.GeneralAccess != "" {
			access = current.GeneralAccess
			break
		}
		if current.ParentID == nil {
			break
		}
		parent, err := s.items.GetAnyByID(ctx, *current.ParentID)
		if err != nil {
			return domain.GeneralAccessPrivate, fmt.Errorf("failed to walk to parent: %w", err)
		}
		current = parent
	}

	s.cache.SetGeneralAccess(ctx, item.ID, access)
	return access, nil
}

// Capabilities возвращает полный набор решений для пользователя на узле
func (s *PermissionService) Capabilities(ctx context.Context, userID string, item *domain.Item) (map[domain.Capability]bool, error) {
	out := make(map[domain.Capability]bool, len(domain.AllCapabilities()))
	for _, c := range domain.AllCapabilities() {
		allowed, err := s.Can(ctx, userID, item, c)
		if err != nil {
			return nil, err
		}
		out[c] = allowed
	}
	return out, nil
}

// currentOwnerID — держатель владельческого назначения, иначе создатель
func (s *PermissionService) currentOwnerID(ctx context.Context, item *domain.Item) (string, error) {
	grant, err := s.grants.OwnerGrant(ctx, item.ID)
	if err != nil {
		return "", err
	}
	if grant != nil {
		return grant.UserID, nil
	}
	return item.CreatedBy, nil
}
