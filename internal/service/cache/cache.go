package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"synxronlibrary/internal/domain"
)

const (
	generalAccessPrefix = "library:genaccess:"
	breadcrumbsPrefix   = "library:breadcrumbs:"
	payloadURLPrefix    = "library:payloadurl:"
)

// Cache — короткоживущая мемоизация производных значений поверх Redis.
// Недоступность Redis деградирует до прямого перевычисления: промах
// вместо ошибки, никогда — протухшее разрешение.
type Cache struct {
	client           *redis.Client
	generalAccessTTL time.Duration
	displayTTL       time.Duration
}

func New(cfg *Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Cache{
		client:           client,
		generalAccessTTL: cfg.GeneralAccessTTL,
		displayTTL:       cfg.DisplayTTL,
	}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) GeneralAccess(ctx context.Context, itemID int64) (domain.GeneralAccess, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, fmt.Sprintf("%s%d", generalAccessPrefix, itemID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[Cache] Failed to get general access for item %d: %v", itemID, err)
		}
		return "", false
	}
	return domain.GeneralAccess(val), true
}

func (c *Cache) SetGeneralAccess(ctx context.Context, itemID int64, access domain.GeneralAccess) {
	if c == nil {
		return
	}
	key := fmt.Sprintf("%s%d", generalAccessPrefix, itemID)
	if err := c.client.Set(ctx, key, string(access), c.generalAccessTTL).Err(); err != nil {
		log.Printf("[Cache] Failed to set general access for item %d: %v", itemID, err)
	}
}

func (c *Cache) Breadcrumbs(ctx context.Context, itemID int64) ([]domain.Breadcrumb, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, fmt.Sprintf("%s%d", breadcrumbsPrefix, itemID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[Cache] Failed to get breadcrumbs for item %d: %v", itemID, err)
		}
		return nil, false
	}

	var crumbs []domain.Breadcrumb
	if err := json.Unmarshal(raw, &crumbs); err != nil {
		log.Printf("[Cache] Failed to unmarshal breadcrumbs for item %d: %v", itemID, err)
		return nil, false
	}
	return crumbs, true
}

func (c *Cache) SetBreadcrumbs(ctx context.Context, itemID int64, crumbs []domain.Breadcrumb) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(crumbs)
	if err != nil {
		return
	}
	key := fmt.Sprintf("%s%d", breadcrumbsPrefix, itemID)
	if err := c.client.Set(ctx, key, raw, c.displayTTL).Err(); err != nil {
		log.Printf("[Cache] Failed to set breadcrumbs for item %d: %v", itemID, err)
	}
}

func (c *Cache) PayloadURL(ctx context.Context, itemID int64) (string, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, fmt.Sprintf("%s%d", payloadURLPrefix, itemID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[Cache] Failed to get payload URL for item %d: %v", itemID, err)
		}
		return "", false
	}
	return val, true
}

// SetPayloadURL кэширует подписанный URL не дольше его собственного срока
func (c *Cache) SetPayloadURL(ctx context.Context, itemID int64, url string, expiry time.Duration) {
	if c == nil {
		return
	}
	ttl := c.displayTTL
	if expiry < ttl {
		ttl = expiry
	}
	key := fmt.Sprintf("%s%d", payloadURLPrefix, itemID)
	if err := c.client.Set(ctx, key, url, ttl).Err(); err != nil {
		log.Printf("[Cache] Failed to set payload URL for item %d: %v", itemID, err)
	}
}

// InvalidateItems сбрасывает производные значения для набора узлов.
// Вызывается на каждую запись в узел или его предков — обычно со всем
// поддеревом затронутого узла.
func (c *Cache) InvalidateItems(ctx context.Context, itemIDs ...int64) {
	if c == nil || len(itemIDs) == 0 {
		return
	}

	keys := make([]string, 0, len(itemIDs)*3)
	for _, id := range itemIDs {
		keys = append(keys,
			fmt.Sprintf("%s%d", generalAccessPrefix, id),
			fmt.Sprintf("%s%d", breadcrumbsPrefix, id),
			fmt.Sprintf("%s%d", payloadURLPrefix, id),
		)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("[Cache] Failed to invalidate %d items: %v", len(itemIDs), err)
	}
}
