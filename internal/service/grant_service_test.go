package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository/memory"
)

type accessFixture struct {
	*permissionFixture
	grants    *GrantService
	ownership *OwnershipService
}

func newAccessFixture(t *testing.T) *accessFixture {
	t.Helper()

	pf := &permissionFixture{
		store: memory.NewStore(16),
		roles: make(map[string][]string),
	}
	pf.svc = NewPermissionService(pf.store, pf.store, pf.store, nil,
		func(ctx context.Context, userID string) bool { return userID == "admin" },
		func(ctx context.Context, userID string) []string { return pf.roles[userID] },
		16)

	return &accessFixture{
		permissionFixture: pf,
		grants:            NewGrantService(pf.store, pf.store, pf.store, pf.store, nil, pf.svc),
		ownership:         NewOwnershipService(pf.store, pf.store, pf.store, pf.svc),
	}
}

func (f *accessFixture) mustUser(t *testing.T, id, name string) {
	t.Helper()
	_, err := f.store.Ensure(context.Background(), id, name)
	require.NoError(t, err)
}

func TestShareAndRevoke(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	f.mustUser(t, "bob", "Bob")
	item := f.mustCreate(t, "Docs", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)

	// Выдавать роли может только владелец или создатель
	_, err := f.grants.Share(ctx, "bob", item.ID, "bob", domain.RoleViewer)
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	grant, err := f.grants.Share(ctx, "alice", item.ID, "bob", domain.RoleViewer)
	require.NoError(t, err)
	require.Equal(t, domain.RoleViewer, grant.Role)

	// Повторная выдача перезаписывает роль, не создавая дубликат
	_, err = f.grants.Share(ctx, "alice", item.ID, "bob", domain.RoleEditor)
	require.NoError(t, err)

	all, err := f.grants.ListByItem(ctx, "alice", item.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, domain.RoleEditor, all[0].Role)

	// Синтетическую роль creator выдать нельзя
	_, err = f.grants.Share(ctx, "alice", item.ID, "bob", domain.RoleCreator)
	require.Error(t, err)

	require.NoError(t, f.grants.Revoke(ctx, "alice", item.ID, "bob"))

	role, err := f.store.RoleOf(ctx, item.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, domain.RoleNone, role)

	// Снятие несуществующего назначения — ErrNotFound
	err = f.grants.Revoke(ctx, "alice", item.ID, "bob")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRevokeKeepsInheritedAccess(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	f.mustUser(t, "bob", "Bob")
	root := f.mustCreate(t, "Docs", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	child := f.mustCreate(t, "Inside", "alice", &root.ID, domain.ItemTypeFolder, domain.GeneralAccessInherit)

	_, err := f.grants.Share(ctx, "alice", root.ID, "bob", domain.RoleViewer)
	require.NoError(t, err)
	_, err = f.grants.Share(ctx, "alice", child.ID, "bob", domain.RoleEditor)
	require.NoError(t, err)

	require.NoError(t, f.grants.Revoke(ctx, "alice", child.ID, "bob"))

	// Прямое назначение снято, но наследование от родителя осталось
	role, err := f.svc.EffectiveRole(ctx, "bob", child)
	require.NoError(t, err)
	require.Equal(t, domain.RoleViewer, role)
}

func TestGateManagement(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	item := f.mustCreate(t, "Staff area", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)
	f.mustGrant(t, item.ID, "bob", domain.RoleEditor)

	// editor не управляет гейтами
	_, err := f.grants.AddGate(ctx, "bob", item.ID, "staff")
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	gate, err := f.grants.AddGate(ctx, "alice", item.ID, "staff")
	require.NoError(t, err)
	require.Equal(t, "staff", gate.RoleName)

	gates, err := f.grants.ListGates(ctx, "alice", item.ID)
	require.NoError(t, err)
	require.Len(t, gates, 1)

	require.NoError(t, f.grants.RemoveGate(ctx, "alice", item.ID, "staff"))

	err = f.grants.RemoveGate(ctx, "alice", item.ID, "staff")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOwnershipTransfer(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	f.mustUser(t, "bob", "Bob")
	item := f.mustCreate(t, "Project", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)

	ownerID, err := f.ownership.CurrentOwner(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", ownerID)

	// Чужой пользователь передать владение не может
	err = f.ownership.Transfer(ctx, "bob", item.ID, "bob")
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	require.NoError(t, f.ownership.Transfer(ctx, "alice", item.ID, "bob"))

	ownerID, err = f.ownership.CurrentOwner(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", ownerID)

	// Создатель после передачи сохраняет полный доступ
	role, err := f.svc.EffectiveRole(ctx, "alice", item)
	require.NoError(t, err)
	require.Equal(t, domain.RoleCreator, role)

	role, err = f.svc.EffectiveRole(ctx, "bob", item)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, role)

	// И может передать владение обратно
	f.mustUser(t, "alice", "Alice")
	require.NoError(t, f.ownership.Transfer(ctx, "alice", item.ID, "alice"))

	ownerID, err = f.ownership.CurrentOwner(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", ownerID)
}

func TestTransferToUnknownUser(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	item := f.mustCreate(t, "Project", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)

	err := f.ownership.Transfer(ctx, "alice", item.ID, "ghost")
	require.Error(t, err)
}
