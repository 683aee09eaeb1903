package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository"
)

// TagService управляет метками и их привязкой к узлам
type TagService struct {
	items       repository.ItemStore
	tags        repository.TagStore
	permissions *PermissionService
}

func NewTagService(items repository.ItemStore, tags repository.TagStore, permissions *PermissionService) *TagService {
	return &TagService{items: items, tags: tags, permissions: permissions}
}

// Create создаёт метку. Имя уникально по слагу, дубликат — ErrSlugConflict
func (s *TagService) Create(ctx context.Context, actorID, name string, color *string) (*domain.Tag, error) {
	if actorID == "" {
		return nil, domain.ErrAccessDenied
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name must not be empty")
	}

	tag := &domain.Tag{
		Name:  name,
		Slug:  domain.Slugify(name),
		Color: color,
	}
	if err := s.tags.CreateTag(ctx, tag); err != nil {
		return nil, err
	}

	log.Printf("[Tag] Created tag %d (%s) by user %s", tag.ID, tag.Slug, actorID)
	return tag, nil
}

// List возвращает все метки
func (s *TagService) List(ctx context.Context) ([]domain.Tag, error) {
	return s.tags.ListTags(ctx)
}

// Attach привязывает метку к узлу, повторная привязка — no-op
func (s *TagService) Attach(ctx context.Context, actorID string, itemID, tagID int64) error {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityEdit)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.ErrAccessDenied
	}

	return s.tags.AttachTag(ctx, item.ID, tagID)
}

// Detach отвязывает метку от узла
func (s *TagService) Detach(ctx context.Context, actorID string, itemID, tagID int64) error {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityEdit)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.ErrAccessDenied
	}

	return s.tags.DetachTag(ctx, item.ID, tagID)
}

// ByItem возвращает метки узла
func (s *TagService) ByItem(ctx context.Context, actorID string, itemID int64) ([]domain.Tag, error) {
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

	return s.tags.TagsByItem(ctx, item.ID)
}
