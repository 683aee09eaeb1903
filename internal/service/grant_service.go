package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository"
	"synxronlibrary/internal/service/cache"
)

// GrantService управляет прямыми назначениями ролей и гейтами на узлах
type GrantService struct {
	items       repository.ItemStore
	grants      repository.GrantStore
	gates       repository.RoleGateStore
	users       repository.UserStore
	cache       *cache.Cache
	permissions *PermissionService
}

func NewGrantService(
	items repository.ItemStore,
	grants repository.GrantStore,
	gates repository.RoleGateStore,
	users repository.UserStore,
	resolutionCache *cache.Cache,
	permissions *PermissionService,
) *GrantService {
	return &GrantService{
		items:       items,
		grants:      grants,
		gates:       gates,
		users:       users,
		cache:       resolutionCache,
		permissions: permissions,
	}
}

// Share выдаёт пользователю роль на узле. Повторная выдача той же паре
// (узел, пользователь) перезаписывает роль вместо создания дубликата.
func (s *GrantService) Share(ctx context.Context, actorID string, itemID int64, targetUserID string, role domain.Role) (*domain.AccessGrant, error) {
	if !role.IsGrantable() {
		return nil, fmt.Errorf("role %q is not grantable", role)
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityShare)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrAccessDenied
	}

	if _, err := s.users.Get(ctx, targetUserID); err != nil {
		return nil, fmt.Errorf("failed to resolve grant target: %w", err)
	}

	grant := &domain.AccessGrant{
		ID:     uuid.New(),
		ItemID: item.ID,
		UserID: targetUserID,
		Role:   role,
	}
	if err := s.grants.Upsert(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to upsert grant: %w", err)
	}

	log.Printf("[Grant] User %s granted %s on item %d by %s", targetUserID, role, item.ID, actorID)
	return grant, nil
}

// Revoke снимает прямое назначение роли. Наследуемый через предков доступ
// этим не затрагивается.
func (s *GrantService) Revoke(ctx context.Context, actorID string, itemID int64, targetUserID string) error {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityShare)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.ErrAccessDenied
	}

	if err := s.grants.Revoke(ctx, item.ID, targetUserID); err != nil {
		return err
	}

	log.Printf("[Grant] Grant of user %s on item %d revoked by %s", targetUserID, item.ID, actorID)
	return nil
}

// ListByItem возвращает все прямые назначения на узле
func (s *GrantService) ListByItem(ctx context.Context, actorID string, itemID int64) ([]domain.AccessGrant, error) {
	item, err := s.items.GetByID(ctx, itemID)
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

	return s.grants.ListByItem(ctx, item.ID)
}

// AddGate добавляет на узел ограничение по внешней роли
func (s *GrantService) AddGate(ctx context.Context, actorID string, itemID int64, roleName string) (*domain.RoleGate, error) {
	if roleName == "" {
		return nil, fmt.Errorf("role name must not be empty")
	}

	item, err := s.items.GetByID(ctx, itemID)
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

	gate := &domain.RoleGate{
		ID:       uuid.New(),
		ItemID:   item.ID,
		RoleName: roleName,
	}
	if err := s.gates.Add(ctx, gate); err != nil {
		return nil, fmt.Errorf("failed to add role gate: %w", err)
	}

	log.Printf("[Grant] Role gate %q added on item %d by %s", roleName, item.ID, actorID)
	return gate, nil
}

// RemoveGate снимает ограничение по внешней роли с узла
func (s *GrantService) RemoveGate(ctx context.Context, actorID string, itemID int64, roleName string) error {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityManagePermissions)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.ErrAccessDenied
	}

	if err := s.gates.Remove(ctx, item.ID, roleName); err != nil {
		return err
	}

	log.Printf("[Grant] Role gate %q removed from item %d by %s", roleName, item.ID, actorID)
	return nil
}

// ListGates возвращает гейты узла
func (s *GrantService) ListGates(ctx context.Context, actorID string, itemID int64) ([]domain.RoleGate, error) {
	item, err := s.items.GetByID(ctx, itemID)
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

	return s.gates.GatesByItem(ctx, item.ID)
}
