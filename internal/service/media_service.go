package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository"
	"synxronlibrary/internal/service/cache"
	"synxronlibrary/internal/service/s3"
)

// PayloadInfo — разрешённая полезная нагрузка узла: для файла это
// временная ссылка на объект, для ссылки — внешний адрес
type PayloadInfo struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type,omitempty"`
	IsVideo  bool   `json:"is_video"`
}

// MediaService управляет содержимым файловых узлов в объектном хранилище
// и выдачей полезной нагрузки ссылок
type MediaService struct {
	items        repository.ItemStore
	storage      s3.Storage
	cache        *cache.Cache
	permissions  *PermissionService
	urlTTL       time.Duration
	videoDomains []string
}

func NewMediaService(
	items repository.ItemStore,
	storage s3.Storage,
	resolutionCache *cache.Cache,
	permissions *PermissionService,
	urlTTL time.Duration,
	videoDomains []string,
) *MediaService {
	return &MediaService{
		items:        items,
		storage:      storage,
		cache:        resolutionCache,
		permissions:  permissions,
		urlTTL:       urlTTL,
		videoDomains: videoDomains,
	}
}

// AttachPayload загружает содержимое файлового узла в хранилище и
// привязывает объект к узлу. Прежний объект, если был, удаляется.
func (s *MediaService) AttachPayload(ctx context.Context, actorID string, itemID int64, contentType string, data []byte) (*domain.Item, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Type != domain.ItemTypeFile {
		return nil, fmt.Errorf("item %d is not a file", itemID)
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityUpload)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrAccessDenied
	}

	key := fmt.Sprintf("library/%d/%s", item.ID, uuid.New().String())
	if err := s.storage.UploadBytes(ctx, key, contentType, data); err != nil {
		return nil, err
	}

	oldKey := item.MediaKey
	if err := s.items.AttachMedia(ctx, item, key, contentType, int64(len(data)), actorID); err != nil {
		// Узел не обновился, загруженный объект осиротел
		if delErr := s.storage.DeleteObject(ctx, key); delErr != nil {
			log.Printf("[Media] Failed to clean up orphan object %s: %v", key, delErr)
		}
		return nil, err
	}

	if oldKey != nil {
		if err := s.storage.DeleteObject(ctx, *oldKey); err != nil {
			log.Printf("[Media] Failed to delete replaced object %s: %v", *oldKey, err)
		}
	}

	s.cache.InvalidateItems(ctx, item.ID)
	log.Printf("[Media] Attached payload %s (%d bytes) to item %d by user %s", key, len(data), item.ID, actorID)
	return item, nil
}

// Payload возвращает полезную нагрузку узла: для ссылки это внешний URL,
// для файла — подписанная ссылка на объект с коротким сроком жизни
func (s *MediaService) Payload(ctx context.Context, actorID string, itemID int64) (*PayloadInfo, error) {
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

	switch item.Type {
	case domain.ItemTypeLink:
		return &PayloadInfo{
			URL:     *item.ExternalURL,
			IsVideo: item.IsVideoURL(s.videoDomains),
		}, nil
	case domain.ItemTypeFile:
		if item.MediaKey == nil {
			return nil, fmt.Errorf("item %d has no attached payload", itemID)
		}

		info := &PayloadInfo{}
		if item.MIMEType != nil {
			info.MIMEType = *item.MIMEType
		}

		if url, ok := s.cache.PayloadURL(ctx, item.ID); ok {
			info.URL = url
			return info, nil
		}

		url, err := s.storage.PresignGet(ctx, *item.MediaKey, s.urlTTL)
		if err != nil {
			return nil, err
		}
		s.cache.SetPayloadURL(ctx, item.ID, url, s.urlTTL)

		info.URL = url
		return info, nil
	default:
		return nil, fmt.Errorf("item %d is a folder and has no payload", itemID)
	}
}

// Download отдаёт содержимое файлового узла напрямую из хранилища
func (s *MediaService) Download(ctx context.Context, actorID string, itemID int64) (s3.Object, *domain.Item, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if item.Type != domain.ItemTypeFile || item.MediaKey == nil {
		return nil, nil, fmt.Errorf("item %d has no attached payload", itemID)
	}

	allowed, err := s.permissions.Can(ctx, actorID, item, domain.CapabilityView)
	if err != nil {
		return nil, nil, err
	}
	if !allowed {
		return nil, nil, domain.ErrAccessDenied
	}

	obj, err := s.storage.GetObject(ctx, *item.MediaKey)
	if err != nil {
		return nil, nil, err
	}
	return obj, item, nil
}
