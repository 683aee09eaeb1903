package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository"
)

var (
	_ repository.GrantStore    = (*Store)(nil)
	_ repository.RoleGateStore = (*Store)(nil)
	_ repository.UserStore     = (*Store)(nil)
	_ repository.TagStore      = (*Store)(nil)
	_ repository.FavoriteStore = (*Store)(nil)
)

func (s *Store) Upsert(ctx context.Context, grant *domain.AccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.grants[grant.ItemID]
	if !ok {
		byUser = make(map[string]*domain.AccessGrant)
		s.grants[grant.ItemID] = byUser
	}

	now := time.Now()
	if existing, ok := byUser[grant.UserID]; ok {
		existing.Role = grant.Role
		existing.UpdatedAt = now
		*grant = *existing
		return nil
	}

	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	grant.CreatedAt = now
	grant.UpdatedAt = now
	stored := *grant
	byUser[grant.UserID] = &stored
	return nil
}

func (s *Store) Revoke(ctx context.Context, itemID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser := s.grants[itemID]
	if _, ok := byUser[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(byUser, userID)
	return nil
}

func (s *Store) ListByItem(ctx context.Context, itemID int64) ([]domain.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AccessGrant
	for _, g := range s.grants[itemID] {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RoleOf(ctx context.Context, itemID int64, userID string) (domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.grants[itemID][userID]; ok {
		return g.Role, nil
	}
	return domain.RoleNone, nil
}

func (s *Store) OwnerGrant(ctx context.Context, itemID int64) (*domain.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.grants[itemID] {
		if g.Role == domain.RoleOwner {
			c := *g
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) TransferOwnership(ctx context.Context, itemID int64, newUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.grants[itemID]
	if !ok {
		byUser = make(map[string]*domain.AccessGrant)
		s.grants[itemID] = byUser
	}

	for uid, g := range byUser {
		if g.Role == domain.RoleOwner && uid != newUserID {
			delete(byUser, uid)
		}
	}

	now := time.Now()
	if existing, ok := byUser[newUserID]; ok {
		existing.Role = domain.RoleOwner
		existing.UpdatedAt = now
		return nil
	}
	byUser[newUserID] = &domain.AccessGrant{
		ID:        uuid.New(),
		ItemID:    itemID,
		UserID:    newUserID,
		Role:      domain.RoleOwner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *Store) ListForUser(ctx context.Context, userID string) ([]domain.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AccessGrant
	for _, byUser := range s.grants {
		if g, ok := byUser[userID]; ok {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) Add(ctx context.Context, gate *domain.RoleGate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRole, ok := s.gates[gate.ItemID]
	if !ok {
		byRole = make(map[string]*domain.RoleGate)
		s.gates[gate.ItemID] = byRole
	}
	if existing, ok := byRole[gate.RoleName]; ok {
		*gate = *existing
		return nil
	}

	if gate.ID == uuid.Nil {
		gate.ID = uuid.New()
	}
	gate.CreatedAt = time.Now()
	stored := *gate
	byRole[gate.RoleName] = &stored
	return nil
}

func (s *Store) Remove(ctx context.Context, itemID int64, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRole := s.gates[itemID]
	if _, ok := byRole[roleName]; !ok {
		return domain.ErrNotFound
	}
	delete(byRole, roleName)
	return nil
}

func (s *Store) GatesByItem(ctx context.Context, itemID int64) ([]domain.RoleGate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.RoleGate
	for _, g := range s.gates[itemID] {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleName < out[j].RoleName })
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *Store) Ensure(ctx context.Context, id, displayName string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if u, ok := s.users[id]; ok {
		u.DisplayName = displayName
		u.UpdatedAt = now
		c := *u
		return &c, nil
	}
	u := &domain.User{ID: id, DisplayName: displayName, CreatedAt: now, UpdatedAt: now}
	s.users[id] = u
	c := *u
	return &c, nil
}

func (s *Store) ClaimPersonalRoot(ctx context.Context, userID string, rootID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if u.PersonalRootID != nil {
		return false, nil
	}
	rid := rootID
	u.PersonalRootID = &rid
	u.UpdatedAt = time.Now()
	return true, nil
}

func (s *Store) CreateTag(ctx context.Context, tag *domain.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slug := domain.Slugify(tag.Name)
	for _, t := range s.tags {
		if t.Slug == slug {
			return domain.ErrSlugConflict
		}
	}

	s.nextTagID++
	now := time.Now()
	tag.ID = s.nextTagID
	tag.Slug = slug
	tag.CreatedAt = now
	tag.UpdatedAt = now
	stored := *tag
	s.tags[tag.ID] = &stored
	return nil
}

func (s *Store) ListTags(ctx context.Context) ([]domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Tag
	for _, t := range s.tags {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) AttachTag(ctx context.Context, itemID, tagID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTag, ok := s.pivot[itemID]
	if !ok {
		byTag = make(map[int64]bool)
		s.pivot[itemID] = byTag
	}
	byTag[tagID] = true
	return nil
}

func (s *Store) DetachTag(ctx context.Context, itemID, tagID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTag := s.pivot[itemID]
	if !byTag[tagID] {
		return domain.ErrNotFound
	}
	delete(byTag, tagID)
	return nil
}

func (s *Store) TagsByItem(ctx context.Context, itemID int64) ([]domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Tag
	for tagID := range s.pivot[itemID] {
		if t, ok := s.tags[tagID]; ok {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ToggleFavorite(ctx context.Context, itemID int64, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byItem, ok := s.favorites[userID]
	if !ok {
		byItem = make(map[int64]time.Time)
		s.favorites[userID] = byItem
	}
	if _, ok := byItem[itemID]; ok {
		delete(byItem, itemID)
		return false, nil
	}
	byItem[itemID] = time.Now()
	return true, nil
}

func (s *Store) FavoriteItemIDs(ctx context.Context, userID string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type fav struct {
		id int64
		at time.Time
	}
	var favs []fav
	for id, at := range s.favorites[userID] {
		if it, ok := s.items[id]; ok && !it.IsDeleted() {
			favs = append(favs, fav{id, at})
		}
	}
	sort.Slice(favs, func(i, j int) bool { return favs[i].at.After(favs[j].at) })

	out := make([]int64, 0, len(favs))
	for _, f := range favs {
		out = append(out, f.id)
	}
	return out, nil
}
