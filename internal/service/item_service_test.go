package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository/memory"
)

type itemFixture struct {
	*permissionFixture
	svc *ItemService
}

func newItemFixture(t *testing.T, maxDepth int) *itemFixture {
	t.Helper()

	pf := &permissionFixture{
		store: memory.NewStore(maxDepth),
		roles: make(map[string][]string),
	}
	isAdmin := func(ctx context.Context, userID string) bool {
		return userID == "admin"
	}
	userRoles := func(ctx context.Context, userID string) []string {
		return pf.roles[userID]
	}
	pf.svc = NewPermissionService(pf.store, pf.store, pf.store, nil, isAdmin, userRoles, maxDepth)

	return &itemFixture{
		permissionFixture: pf,
		svc:               NewItemService(pf.store, pf.store, pf.store, pf.store, nil, pf.svc),
	}
}

func TestCreateAllocatesUniqueSlugsIncludingDeleted(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	root := f.mustCreate(t, "Library", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)

	first, err := f.svc.Create(ctx, "alice", CreateItemInput{Name: "Report", Type: domain.ItemTypeFolder, ParentID: &root.ID})
	require.NoError(t, err)
	require.Equal(t, "report", first.Slug)

	second, err := f.svc.Create(ctx, "alice", CreateItemInput{Name: "Report", Type: domain.ItemTypeFolder, ParentID: &root.ID})
	require.NoError(t, err)
	require.Equal(t, "report-1", second.Slug)

	// Мягко удалённый сосед продолжает держать свой слаг
	require.NoError(t, f.svc.Delete(ctx, "alice", first.ID))

	third, err := f.svc.Create(ctx, "alice", CreateItemInput{Name: "Report", Type: domain.ItemTypeFolder, ParentID: &root.ID})
	require.NoError(t, err)
	require.Equal(t, "report-2", third.Slug)
}

func TestCreatePermissions(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	root := f.mustCreate(t, "Library", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)

	// В корне создаёт только администратор
	_, err := f.svc.Create(ctx, "bob", CreateItemInput{Name: "Rogue", Type: domain.ItemTypeFolder})
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = f.svc.Create(ctx, "admin", CreateItemInput{Name: "Shared", Type: domain.ItemTypeFolder})
	require.NoError(t, err)

	// Без роли на родителе создавать нельзя
	_, err = f.svc.Create(ctx, "bob", CreateItemInput{Name: "Notes", Type: domain.ItemTypeFolder, ParentID: &root.ID})
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	// viewer недостаточно
	f.mustGrant(t, root.ID, "bob", domain.RoleViewer)
	_, err = f.svc.Create(ctx, "bob", CreateItemInput{Name: "Notes", Type: domain.ItemTypeFolder, ParentID: &root.ID})
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	f.mustGrant(t, root.ID, "bob", domain.RoleEditor)
	created, err := f.svc.Create(ctx, "bob", CreateItemInput{Name: "Notes", Type: domain.ItemTypeFolder, ParentID: &root.ID})
	require.NoError(t, err)
	require.Equal(t, "bob", created.CreatedBy)
}

func TestCreateValidation(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	root := f.mustCreate(t, "Library", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	file := f.mustCreate(t, "Doc", "alice", &root.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)

	_, err := f.svc.Create(ctx, "alice", CreateItemInput{Name: "", Type: domain.ItemTypeFolder, ParentID: &root.ID})
	require.Error(t, err)

	_, err = f.svc.Create(ctx, "alice", CreateItemInput{Name: "X", Type: "archive", ParentID: &root.ID})
	require.Error(t, err)

	// Ссылка без адреса не создаётся
	_, err = f.svc.Create(ctx, "alice", CreateItemInput{Name: "Link", Type: domain.ItemTypeLink, ParentID: &root.ID})
	require.Error(t, err)

	// Файл не может быть родителем
	_, err = f.svc.Create(ctx, "alice", CreateItemInput{Name: "Child", Type: domain.ItemTypeFolder, ParentID: &file.ID})
	require.ErrorIs(t, err, domain.ErrInvalidParent)
}

func TestMoveRejectsCycles(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	a := f.mustCreate(t, "A", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	b := f.mustCreate(t, "B", "alice", &a.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)
	c := f.mustCreate(t, "C", "alice", &b.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)

	_, err := f.svc.Move(ctx, "alice", a.ID, a.ID)
	require.ErrorIs(t, err, domain.ErrCycleDetected)

	_, err = f.svc.Move(ctx, "alice", a.ID, c.ID)
	require.ErrorIs(t, err, domain.ErrCycleDetected)

	// Перемещение вбок допустимо
	moved, err := f.svc.Move(ctx, "alice", c.ID, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, *moved.ParentID)
}

func TestMaxDepth(t *testing.T) {
	f := newItemFixture(t, 4)
	ctx := context.Background()

	current := f.mustCreate(t, "Root", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	var err error
	for i := 0; i < 3; i++ {
		parentID := current.ID
		current, err = f.svc.Create(ctx, "alice", CreateItemInput{Name: "Nested", Type: domain.ItemTypeFolder, ParentID: &parentID})
		if err != nil {
			break
		}
	}
	require.ErrorIs(t, err, domain.ErrMaxDepthExceeded)
}

func TestDeleteAndRestoreCascade(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	a := f.mustCreate(t, "A", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	b := f.mustCreate(t, "B", "alice", &a.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)
	c := f.mustCreate(t, "C", "alice", &b.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)

	require.NoError(t, f.svc.Delete(ctx, "alice", b.ID))

	_, err := f.svc.Get(ctx, "alice", b.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Get(ctx, "alice", c.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Восстановление возвращает весь каскад
	restored, err := f.svc.Restore(ctx, "alice", b.ID)
	require.NoError(t, err)
	require.False(t, restored.IsDeleted())

	got, err := f.svc.Get(ctx, "alice", c.ID)
	require.NoError(t, err)
	require.False(t, got.IsDeleted())
}

func TestRestoreKeepsSeparateCascadesDeleted(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	a := f.mustCreate(t, "A", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	b := f.mustCreate(t, "B", "alice", &a.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)
	c := f.mustCreate(t, "C", "alice", &b.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)

	// Сначала удаляется C отдельно, затем B своим каскадом
	require.NoError(t, f.svc.Delete(ctx, "alice", c.ID))
	require.NoError(t, f.svc.Delete(ctx, "alice", b.ID))

	_, err := f.svc.Restore(ctx, "alice", b.ID)
	require.NoError(t, err)

	// C удалялся другим каскадом и остаётся удалённым
	_, err = f.svc.Get(ctx, "alice", c.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRestoreUnderDeletedAncestor(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	a := f.mustCreate(t, "A", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	b := f.mustCreate(t, "B", "alice", &a.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)

	require.NoError(t, f.svc.Delete(ctx, "alice", a.ID))

	_, err := f.svc.Restore(ctx, "alice", b.ID)
	require.ErrorIs(t, err, domain.ErrAncestorDeleted)

	// Живой узел восстанавливать нечего
	_, err = f.svc.Restore(ctx, "alice", a.ID)
	require.NoError(t, err)
	_, err = f.svc.Restore(ctx, "alice", a.ID)
	require.ErrorIs(t, err, domain.ErrNotDeleted)
}

func TestRenamePermissionsAndSlug(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	root := f.mustCreate(t, "Library", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	item := f.mustCreate(t, "Draft", "alice", &root.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)

	_, err := f.svc.Rename(ctx, "bob", item.ID, "Final")
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	renamed, err := f.svc.Rename(ctx, "alice", item.ID, "Final Report")
	require.NoError(t, err)
	require.Equal(t, "Final Report", renamed.Name)
	require.Equal(t, "final-report", renamed.Slug)
}

func TestSetGeneralAccessRequiresManagePermissions(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	root := f.mustCreate(t, "Library", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	f.mustGrant(t, root.ID, "bob", domain.RoleEditor)

	_, err := f.svc.SetGeneralAccess(ctx, "bob", root.ID, domain.GeneralAccessAnyone)
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	updated, err := f.svc.SetGeneralAccess(ctx, "alice", root.ID, domain.GeneralAccessAnyone)
	require.NoError(t, err)
	require.Equal(t, domain.GeneralAccessAnyone, updated.GeneralAccess)

	// После открытия доступа аноним видит узел
	_, err = f.svc.Get(ctx, "", root.ID)
	require.NoError(t, err)
}

func TestBreadcrumbs(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	a := f.mustCreate(t, "Docs", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	b := f.mustCreate(t, "Reports", "alice", &a.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)
	c := f.mustCreate(t, "Q1", "alice", &b.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)

	crumbs, err := f.svc.Breadcrumbs(ctx, "alice", c.ID)
	require.NoError(t, err)
	require.Len(t, crumbs, 3)
	require.Equal(t, []int64{a.ID, b.ID, c.ID}, []int64{crumbs[0].ID, crumbs[1].ID, crumbs[2].ID})
	require.Equal(t, "reports", crumbs[1].Slug)
}

func TestContentsFiltersGatedChildren(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	root := f.mustCreate(t, "Library", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	f.mustCreate(t, "Open", "alice", &root.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)
	gated := f.mustCreate(t, "Staff", "alice", &root.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)

	f.mustGrant(t, root.ID, "bob", domain.RoleViewer)
	require.NoError(t, f.store.Add(ctx, &domain.RoleGate{ItemID: gated.ID, RoleName: "staff"}))

	content, err := f.svc.Contents(ctx, "bob", root.ID)
	require.NoError(t, err)
	require.Len(t, content.Children, 1)
	require.Equal(t, "Open", content.Children[0].Name)

	// Создатель видит всё
	content, err = f.svc.Contents(ctx, "alice", root.ID)
	require.NoError(t, err)
	require.Len(t, content.Children, 2)
}

func TestEnsurePersonalRootIdempotent(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	root, err := f.svc.EnsurePersonalRoot(ctx, "bob", "Bob")
	require.NoError(t, err)
	require.Equal(t, "Bob's Personal Folder", root.Name)
	require.Equal(t, domain.GeneralAccessPrivate, root.GeneralAccess)
	require.True(t, root.IsRoot())

	// Владельческое назначение выдано при создании
	role, err := f.store.RoleOf(ctx, root.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, role)

	again, err := f.svc.EnsurePersonalRoot(ctx, "bob", "Bob")
	require.NoError(t, err)
	require.Equal(t, root.ID, again.ID)
}

func TestEnsurePersonalRootConcurrent(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	// Оба вызова должны сойтись к одной папке: проигравший гонку
	// откатывает свою и возвращает папку победителя
	const callers = 2
	roots := make(chan *domain.Item, callers)
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			root, err := f.svc.EnsurePersonalRoot(ctx, "bob", "Bob")
			roots <- root
			errs <- err
		}()
	}
	wg.Wait()
	close(roots)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var ids []int64
	for root := range roots {
		require.NotNil(t, root)
		ids = append(ids, root.ID)
	}
	require.Len(t, ids, callers)
	require.Equal(t, ids[0], ids[1])

	// Папка-сирота проигравшего мягко удалена, живой осталась одна
	created, err := f.store.CreatedBy(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Equal(t, ids[0], created[0].ID)
}

func TestAccessibleListing(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	pub := f.mustCreate(t, "Handbook", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessAnyone)
	pubChild := f.mustCreate(t, "Chapter", "alice", &pub.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)
	private := f.mustCreate(t, "Drafts", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	shared := f.mustCreate(t, "Handover", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	f.mustGrant(t, shared.ID, "bob", domain.RoleViewer)
	mine := f.mustCreate(t, "Mine", "bob", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	// Прямое назначение на собственный узел не должно давать дубликат
	f.mustGrant(t, mine.ID, "bob", domain.RoleOwner)

	personal, err := f.svc.EnsurePersonalRoot(ctx, "bob", "Bob")
	require.NoError(t, err)

	items, err := f.svc.Accessible(ctx, "bob")
	require.NoError(t, err)

	ids := make(map[int64]int)
	for _, it := range items {
		ids[it.ID]++
	}
	require.Equal(t, 1, ids[mine.ID])
	require.Equal(t, 1, ids[shared.ID])
	require.Equal(t, 1, ids[pub.ID])
	require.Equal(t, 1, ids[pubChild.ID])

	// Чужая закрытая папка и личный корень в подборку не попадают
	require.Zero(t, ids[private.ID])
	require.Zero(t, ids[personal.ID])

	_, err = f.svc.Accessible(ctx, "")
	require.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestSharedWithMeAndFavorites(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	root := f.mustCreate(t, "Library", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	f.mustGrant(t, root.ID, "bob", domain.RoleViewer)

	shared, err := f.svc.SharedWithMe(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, shared, 1)
	require.Equal(t, root.ID, shared[0].ID)

	// Собственные узлы в shared-with-me не попадают
	shared, err = f.svc.SharedWithMe(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, shared)

	on, err := f.svc.ToggleFavorite(ctx, "bob", root.ID)
	require.NoError(t, err)
	require.True(t, on)

	favorites, err := f.svc.Favorites(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, favorites, 1)

	off, err := f.svc.ToggleFavorite(ctx, "bob", root.ID)
	require.NoError(t, err)
	require.False(t, off)

	favorites, err = f.svc.Favorites(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, favorites)
}

func TestDeletePermissions(t *testing.T) {
	f := newItemFixture(t, 16)
	ctx := context.Background()

	root := f.mustCreate(t, "Library", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	f.mustGrant(t, root.ID, "bob", domain.RoleEditor)

	// editor не удаляет
	err := f.svc.Delete(ctx, "bob", root.ID)
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	f.mustGrant(t, root.ID, "carol", domain.RoleOwner)
	require.NoError(t, f.svc.Delete(ctx, "carol", root.ID))
}
