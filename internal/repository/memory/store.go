package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository"
)

// Store — реализация хранилищ в памяти. Используется в тестах сервисного
// слоя; семантика повторяет Postgres-реализацию, включая оптимистические
// проверки updated_at и единую метку времени каскадного удаления.
type Store struct {
	mu       sync.Mutex
	maxDepth int

	nextItemID int64
	nextTagID  int64

	items     map[int64]*domain.Item
	grants    map[int64]map[string]*domain.AccessGrant
	gates     map[int64]map[string]*domain.RoleGate
	users     map[string]*domain.User
	tags      map[int64]*domain.Tag
	pivot     map[int64]map[int64]bool
	favorites map[string]map[int64]time.Time
}

func NewStore(maxDepth int) *Store {
	return &Store{
		maxDepth:  maxDepth,
		items:     make(map[int64]*domain.Item),
		grants:    make(map[int64]map[string]*domain.AccessGrant),
		gates:     make(map[int64]map[string]*domain.RoleGate),
		users:     make(map[string]*domain.User),
		tags:      make(map[int64]*domain.Tag),
		pivot:     make(map[int64]map[int64]bool),
		favorites: make(map[string]map[int64]time.Time),
	}
}

var _ repository.ItemStore = (*Store)(nil)

func cloneItem(i *domain.Item) *domain.Item {
	c := *i
	return &c
}

func (s *Store) Create(ctx context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ParentID != nil {
		parent, ok := s.items[*item.ParentID]
		if !ok || !parent.IsFolder() || parent.IsDeleted() {
			return domain.ErrInvalidParent
		}
		if s.depthOf(parent.ID)+1 >= s.maxDepth {
			return domain.ErrMaxDepthExceeded
		}
	}

	slug, err := s.allocateSlug(item.ParentID, domain.Slugify(item.Name), 0)
	if err != nil {
		return err
	}

	s.nextItemID++
	now := time.Now()
	item.ID = s.nextItemID
	item.Slug = slug
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.ID] = cloneItem(item)
	return nil
}

// allocateSlug повторяет поведение боевого аллокатора: кандидаты
// проверяются против всех соседей, включая мягко удалённых
func (s *Store) allocateSlug(parentID *int64, base string, excludeID int64) (string, error) {
	taken := make(map[string]bool)
	for _, it := range s.items {
		if it.ID == excludeID {
			continue
		}
		if sameParent(it.ParentID, parentID) {
			taken[it.Slug] = true
		}
	}

	for n := 0; ; n++ {
		candidate := domain.SlugCandidate(base, n)
		if !taken[candidate] {
			return candidate, nil
		}
	}
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Store) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok || item.IsDeleted() {
		return nil, domain.ErrNotFound
	}
	return cloneItem(item), nil
}

func (s *Store) GetAnyByID(ctx context.Context, id int64) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(item), nil
}

func (s *Store) Children(ctx context.Context, parentID int64) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Item
	for _, it := range s.items {
		if it.ParentID != nil && *it.ParentID == parentID && !it.IsDeleted() {
			out = append(out, *cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Ancestors(ctx context.Context, id int64) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	var chain []domain.Item
	seen := map[int64]bool{item.ID: true}
	for item.ParentID != nil {
		parent, ok := s.items[*item.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		chain = append([]domain.Item{*cloneItem(parent)}, chain...)
		item = parent
	}
	return chain, nil
}

func (s *Store) Rename(ctx context.Context, item *domain.Item, newName, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok || stored.IsDeleted() {
		return domain.ErrNotFound
	}
	if !stored.UpdatedAt.Equal(item.UpdatedAt) {
		return domain.ErrConcurrentModification
	}

	slug, err := s.allocateSlug(stored.ParentID, domain.Slugify(newName), stored.ID)
	if err != nil {
		return err
	}

	stored.Name = newName
	stored.Slug = slug
	stored.UpdatedBy = actor
	stored.UpdatedAt = time.Now()
	*item = *cloneItem(stored)
	return nil
}

func (s *Store) Move(ctx context.Context, item *domain.Item, newParentID int64, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok || stored.IsDeleted() {
		return domain.ErrNotFound
	}
	if newParentID == item.ID {
		return domain.ErrCycleDetected
	}

	parent, ok := s.items[newParentID]
	if !ok || !parent.IsFolder() || parent.IsDeleted() {
		return domain.ErrInvalidParent
	}

	// Предлагаемая цепочка предков нового родителя не должна
	// содержать перемещаемый узел
	for p := parent; p != nil; {
		if p.ID == item.ID {
			return domain.ErrCycleDetected
		}
		if p.ParentID == nil {
			break
		}
		p = s.items[*p.ParentID]
	}

	if s.depthOf(newParentID)+1+s.subtreeHeight(item.ID) >= s.maxDepth {
		return domain.ErrMaxDepthExceeded
	}

	if !stored.UpdatedAt.Equal(item.UpdatedAt) {
		return domain.ErrConcurrentModification
	}

	slug, err := s.allocateSlug(&newParentID, domain.Slugify(stored.Name), stored.ID)
	if err != nil {
		return err
	}

	pid := newParentID
	stored.ParentID = &pid
	stored.Slug = slug
	stored.UpdatedBy = actor
	stored.UpdatedAt = time.Now()
	*item = *cloneItem(stored)
	return nil
}

func (s *Store) SetGeneralAccess(ctx context.Context, item *domain.Item, access domain.GeneralAccess, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok || stored.IsDeleted() {
		return domain.ErrNotFound
	}
	if !stored.UpdatedAt.Equal(item.UpdatedAt) {
		return domain.ErrConcurrentModification
	}

	stored.GeneralAccess = access
	stored.UpdatedBy = actor
	stored.UpdatedAt = time.Now()
	*item = *cloneItem(stored)
	return nil
}

func (s *Store) AttachMedia(ctx context.Context, item *domain.Item, key, mimeType string, size int64, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok || stored.IsDeleted() {
		return domain.ErrNotFound
	}
	if !stored.UpdatedAt.Equal(item.UpdatedAt) {
		return domain.ErrConcurrentModification
	}

	stored.MediaKey = &key
	stored.MIMEType = &mimeType
	stored.SizeBytes = &size
	stored.UpdatedBy = actor
	stored.UpdatedAt = time.Now()
	*item = *cloneItem(stored)
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.items[id]
	if !ok || root.IsDeleted() {
		return domain.ErrNotFound
	}

	now := time.Now()
	for _, sid := range s.liveSubtree(id) {
		it := s.items[sid]
		deleted := now
		it.DeletedAt = &deleted
		it.UpdatedAt = now
	}
	return nil
}

func (s *Store) Restore(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !item.IsDeleted() {
		return domain.ErrNotDeleted
	}

	for p := item; p.ParentID != nil; {
		parent, ok := s.items[*p.ParentID]
		if !ok {
			break
		}
		if parent.IsDeleted() {
			return domain.ErrAncestorDeleted
		}
		p = parent
	}

	slug, err := s.allocateSlug(item.ParentID, domain.Slugify(item.Name), item.ID)
	if err != nil {
		return err
	}
	item.Slug = slug

	// Восстанавливаются только узлы того же каскада удаления
	mark := *item.DeletedAt
	now := time.Now()
	for _, sid := range s.subtree(id) {
		it := s.items[sid]
		if it.DeletedAt != nil && it.DeletedAt.Equal(mark) {
			it.DeletedAt = nil
			it.UpdatedAt = now
		}
	}
	return nil
}

func (s *Store) SubtreeIDs(ctx context.Context, id int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return nil, domain.ErrNotFound
	}
	return s.subtree(id), nil
}

func (s *Store) CreatedBy(ctx context.Context, userID string) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Item
	for _, it := range s.items {
		if it.CreatedBy == userID && !it.IsDeleted() {
			out = append(out, *cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) AnyoneVisible(ctx context.Context) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Item
	for _, it := range s.items {
		if !it.IsDeleted() && s.effectiveAnyone(it) {
			out = append(out, *cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// effectiveAnyone поднимается по inherit-цепочке до первого явного режима
func (s *Store) effectiveAnyone(item *domain.Item) bool {
	seen := make(map[int64]bool)
	for it := item; it != nil && !seen[it.ID]; {
		seen[it.ID] = true
		switch it.GeneralAccess {
		case domain.GeneralAccessAnyone:
			return true
		case domain.GeneralAccessPrivate:
			return false
		}
		if it.ParentID == nil {
			return false
		}
		it = s.items[*it.ParentID]
	}
	return false
}

func (s *Store) depthOf(id int64) int {
	depth := 0
	item := s.items[id]
	for item != nil && item.ParentID != nil {
		item = s.items[*item.ParentID]
		depth++
	}
	return depth
}

func (s *Store) subtreeHeight(id int64) int {
	height := 0
	for _, child := range s.childIDs(id) {
		if h := s.subtreeHeight(child) + 1; h > height {
			height = h
		}
	}
	return height
}

func (s *Store) childIDs(id int64) []int64 {
	var out []int64
	for _, it := range s.items {
		if it.ParentID != nil && *it.ParentID == id {
			out = append(out, it.ID)
		}
	}
	return out
}

func (s *Store) subtree(id int64) []int64 {
	out := []int64{id}
	for _, child := range s.childIDs(id) {
		out = append(out, s.subtree(child)...)
	}
	return out
}

func (s *Store) liveSubtree(id int64) []int64 {
	if it, ok := s.items[id]; !ok || it.IsDeleted() {
		return nil
	}
	out := []int64{id}
	for _, child := range s.childIDs(id) {
		out = append(out, s.liveSubtree(child)...)
	}
	return out
}
