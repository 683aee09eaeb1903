package service

import (
	"context"
	"fmt"
	"log"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository"
)

// OwnershipService управляет владением узлами: определение текущего
// владельца и атомарная передача владения другому пользователю
type OwnershipService struct {
	items       repository.ItemStore
	grants      repository.GrantStore
	users       repository.UserStore
	permissions *PermissionService
}

func NewOwnershipService(
	items repository.ItemStore,
	grants repository.GrantStore,
	users repository.UserStore,
	permissions *PermissionService,
) *OwnershipService {
	return &OwnershipService{
		items:       items,
		grants:      grants,
		users:       users,
		permissions: permissions,
	}
}

// CurrentOwner возвращает идентификатор владельца узла: держатель
// владельческого назначения, при его отсутствии — создатель узла
func (s *OwnershipService) CurrentOwner(ctx context.Context, itemID int64) (string, error) {
	item, err := s.items.GetAnyByID(ctx, itemID)
	if err != nil {
		return "", err
	}

	grant, err := s.grants.OwnerGrant(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("failed to get owner grant: %w", err)
	}
	if grant != nil {
		return grant.UserID, nil
	}
	return item.CreatedBy, nil
}

// Transfer передаёт владение узлом пользователю newOwnerID. Все прежние
// владельческие назначения на узле снимаются, новый владелец получает
// роль owner (существующее назначение повышается, иначе создаётся).
// Создатель узла после передачи сохраняет ярус creator навсегда.
func (s *OwnershipService) Transfer(ctx context.Context, actorID string, itemID int64, newOwnerID string) error {
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

	if _, err := s.users.Get(ctx, newOwnerID); err != nil {
		return fmt.Errorf("failed to resolve new owner: %w", err)
	}

	if err := s.grants.TransferOwnership(ctx, item.ID, newOwnerID); err != nil {
		return fmt.Errorf("failed to transfer ownership: %w", err)
	}

	log.Printf("[Ownership] Item %d transferred to user %s by %s", item.ID, newOwnerID, actorID)
	return nil
}
