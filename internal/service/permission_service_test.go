package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository/memory"
)

type permissionFixture struct {
	store *memory.Store
	svc   *PermissionService
	roles map[string][]string
}

func newPermissionFixture(t *testing.T) *permissionFixture {
	t.Helper()

	f := &permissionFixture{
		store: memory.NewStore(16),
		roles: make(map[string][]string),
	}
	isAdmin := func(ctx context.Context, userID string) bool {
		return userID == "admin"
	}
	userRoles := func(ctx context.Context, userID string) []string {
		return f.roles[userID]
	}
	f.svc = NewPermissionService(f.store, f.store, f.store, nil, isAdmin, userRoles, 16)
	return f
}

func (f *permissionFixture) mustCreate(t *testing.T, name, creator string, parentID *int64, typ domain.ItemType, access domain.GeneralAccess) *domain.Item {
	t.Helper()

	item := &domain.Item{
		Name:          name,
		Type:          typ,
		ParentID:      parentID,
		CreatedBy:     creator,
		UpdatedBy:     creator,
		GeneralAccess: access,
	}
	require.NoError(t, f.store.Create(context.Background(), item))
	return item
}

func (f *permissionFixture) mustGrant(t *testing.T, itemID int64, userID string, role domain.Role) {
	t.Helper()
	require.NoError(t, f.store.Upsert(context.Background(), &domain.AccessGrant{
		ID:     uuid.New(),
		ItemID: itemID,
		UserID: userID,
		Role:   role,
	}))
}

func TestEffectiveRoleInheritsGrantFromAncestor(t *testing.T) {
	f := newPermissionFixture(t)
	ctx := context.Background()

	root := f.mustCreate(t, "Docs", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	child := f.mustCreate(t, "Reports", "alice", &root.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)
	leaf := f.mustCreate(t, "Q1", "alice", &child.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)

	f.mustGrant(t, root.ID, "bob", domain.RoleViewer)

	role, err := f.svc.EffectiveRole(ctx, "bob", leaf)
	require.NoError(t, err)
	require.Equal(t, domain.RoleViewer, role)

	// Создатель числится владельцем на всей цепочке
	role, err = f.svc.EffectiveRole(ctx, "alice", leaf)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, role)
}

func TestEffectiveRoleNearestGrantWins(t *testing.T) {
	f := newPermissionFixture(t)
	ctx := context.Background()

	root := f.mustCreate(t, "Docs", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	child := f.mustCreate(t, "Reports", "alice", &root.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)

	// Ближайшее назначение побеждает, даже если оно уже родительского
	f.mustGrant(t, root.ID, "bob", domain.RoleEditor)
	f.mustGrant(t, child.ID, "bob", domain.RoleViewer)

	role, err := f.svc.EffectiveRole(ctx, "bob", child)
	require.NoError(t, err)
	require.Equal(t, domain.RoleViewer, role)

	role, err = f.svc.EffectiveRole(ctx, "bob", root)
	require.NoError(t, err)
	require.Equal(t, domain.RoleEditor, role)
}

func TestEffectiveRoleCreatorTierAfterTransfer(t *testing.T) {
	f := newPermissionFixture(t)
	ctx := context.Background()

	item := f.mustCreate(t, "Shared project", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	require.NoError(t, f.store.TransferOwnership(ctx, item.ID, "bob"))

	role, err := f.svc.EffectiveRole(ctx, "bob", item)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, role)

	// Создатель после передачи владения сохраняет полный доступ навсегда
	role, err = f.svc.EffectiveRole(ctx, "alice", item)
	require.NoError(t, err)
	require.Equal(t, domain.RoleCreator, role)

	allowed, err := f.svc.Can(ctx, "alice", item, domain.CapabilityManagePermissions)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestEffectiveRoleAnonymous(t *testing.T) {
	f := newPermissionFixture(t)
	ctx := context.Background()

	open := f.mustCreate(t, "Public", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessAnyone)
	inherited := f.mustCreate(t, "Inside", "alice", &open.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)
	closed := f.mustCreate(t, "Private", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)

	role, err := f.svc.EffectiveRole(ctx, "", open)
	require.NoError(t, err)
	require.Equal(t, domain.RoleViewer, role)

	// Общий доступ наследуется через inherit
	role, err = f.svc.EffectiveRole(ctx, "", inherited)
	require.NoError(t, err)
	require.Equal(t, domain.RoleViewer, role)

	role, err = f.svc.EffectiveRole(ctx, "", closed)
	require.NoError(t, err)
	require.Equal(t, domain.RoleNone, role)

	// Аноним с доступом anyone_can_view не может больше, чем смотреть
	allowed, err := f.svc.Can(ctx, "", open, domain.CapabilityEdit)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestEffectiveGeneralAccessChain(t *testing.T) {
	f := newPermissionFixture(t)
	ctx := context.Background()

	root := f.mustCreate(t, "Root", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessAnyone)
	mid := f.mustCreate(t, "Mid", "alice", &root.ID, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	leaf := f.mustCreate(t, "Leaf", "alice", &mid.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)
	orphan := f.mustCreate(t, "Orphan", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessInherit)

	access, err := f.svc.EffectiveGeneralAccess(ctx, leaf)
	require.NoError(t, err)
	require.Equal(t, domain.GeneralAccessPrivate, access)

	access, err = f.svc.EffectiveGeneralAccess(ctx, mid)
	require.NoError(t, err)
	require.Equal(t, domain.GeneralAccessPrivate, access)

	access, err = f.svc.EffectiveGeneralAccess(ctx, root)
	require.NoError(t, err)
	require.Equal(t, domain.GeneralAccessAnyone, access)

	// Корень с inherit трактуется как private
	access, err = f.svc.EffectiveGeneralAccess(ctx, orphan)
	require.NoError(t, err)
	require.Equal(t, domain.GeneralAccessPrivate, access)
}

func TestAdminShortCircuit(t *testing.T) {
	f := newPermissionFixture(t)
	ctx := context.Background()

	item := f.mustCreate(t, "Secret", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)

	role, err := f.svc.EffectiveRole(ctx, "admin", item)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, role)

	// Администратор проходит и гейты
	require.NoError(t, f.store.Add(ctx, &domain.RoleGate{ID: uuid.New(), ItemID: item.ID, RoleName: "staff"}))
	allowed, err := f.svc.Can(ctx, "admin", item, domain.CapabilityDelete)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRoleGates(t *testing.T) {
	f := newPermissionFixture(t)
	ctx := context.Background()

	root := f.mustCreate(t, "Docs", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	gated := f.mustCreate(t, "Staff only", "alice", &root.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)
	inside := f.mustCreate(t, "Inside", "alice", &gated.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)

	f.mustGrant(t, root.ID, "bob", domain.RoleViewer)
	require.NoError(t, f.store.Add(ctx, &domain.RoleGate{ID: uuid.New(), ItemID: gated.ID, RoleName: "staff"}))

	// Роль есть, но гейт без внешней роли не пускает
	allowed, err := f.svc.Can(ctx, "bob", gated, domain.CapabilityView)
	require.NoError(t, err)
	require.False(t, allowed)

	f.roles["bob"] = []string{"staff"}
	allowed, err = f.svc.Can(ctx, "bob", gated, domain.CapabilityView)
	require.NoError(t, err)
	require.True(t, allowed)

	// Гейт действует только на своём узле и не наследуется вниз
	f.roles["bob"] = nil
	allowed, err = f.svc.Can(ctx, "bob", inside, domain.CapabilityView)
	require.NoError(t, err)
	require.True(t, allowed)

	// Создатель узла от гейта освобождён
	allowed, err = f.svc.Can(ctx, "alice", gated, domain.CapabilityView)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestCanAcrossTree(t *testing.T) {
	f := newPermissionFixture(t)
	ctx := context.Background()

	a := f.mustCreate(t, "A", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	b := f.mustCreate(t, "B", "alice", &a.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)
	file := f.mustCreate(t, "F", "alice", &b.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)

	f.mustGrant(t, b.ID, "dave", domain.RoleEditor)

	// Назначение на B действует на F, но не поднимается к A
	allowed, err := f.svc.Can(ctx, "dave", file, domain.CapabilityEdit)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = f.svc.Can(ctx, "dave", file, domain.CapabilityManagePermissions)
	require.NoError(t, err)
	require.False(t, allowed)

	role, err := f.svc.EffectiveRole(ctx, "dave", a)
	require.NoError(t, err)
	require.Equal(t, domain.RoleNone, role)
}

func TestViewerGrantOnRootFolder(t *testing.T) {
	f := newPermissionFixture(t)
	ctx := context.Background()

	a := f.mustCreate(t, "A", "u1", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	b := f.mustCreate(t, "B", "u1", &a.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)
	file := f.mustCreate(t, "F", "u1", &b.ID, domain.ItemTypeFile, domain.GeneralAccessInherit)

	f.mustGrant(t, a.ID, "u2", domain.RoleViewer)

	allowed, err := f.svc.Can(ctx, "u2", file, domain.CapabilityView)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = f.svc.Can(ctx, "u2", file, domain.CapabilityEdit)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = f.svc.Can(ctx, "u2", a, domain.CapabilityDelete)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = f.svc.Can(ctx, "u1", file, domain.CapabilityDelete)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestCapabilities(t *testing.T) {
	f := newPermissionFixture(t)
	ctx := context.Background()

	item := f.mustCreate(t, "Docs", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	f.mustGrant(t, item.ID, "bob", domain.RoleEditor)

	caps, err := f.svc.Capabilities(ctx, "bob", item)
	require.NoError(t, err)
	require.True(t, caps[domain.CapabilityView])
	require.True(t, caps[domain.CapabilityEdit])
	require.True(t, caps[domain.CapabilityUpload])
	require.False(t, caps[domain.CapabilityShare])
	require.False(t, caps[domain.CapabilityDelete])
	require.False(t, caps[domain.CapabilityManagePermissions])
}
