package domain

type Role string

type Capability string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
	// RoleCreator — синтетическая роль: создатель, передавший владение,
	// сохраняет права владельца, но не числится владельцем
	RoleCreator Role = "creator"
	// RoleNone — отсутствие какого-либо доступа
	RoleNone Role = ""

	CapabilityView              Capability = "view"
	CapabilityEdit              Capability = "edit"
	CapabilityUpload            Capability = "upload"
	CapabilityShare             Capability = "share"
	CapabilityDelete            Capability = "delete"
	CapabilityManagePermissions Capability = "manage_permissions"
)

// GrantableRoles — роли, которые можно выдавать напрямую (creator не выдается)
func GrantableRoles() []Role {
	return []Role{RoleViewer, RoleEditor, RoleOwner}
}

func (r Role) IsGrantable() bool {
	switch r {
	case RoleViewer, RoleEditor, RoleOwner:
		return true
	}
	return false
}

// Allows сообщает, разрешает ли роль указанную операцию.
// Таблица фиксированная: creator и owner намеренно равны по возможностям.
func (r Role) Allows(c Capability) bool {
	switch c {
	case CapabilityView:
		return r == RoleViewer || r == RoleEditor || r == RoleOwner || r == RoleCreator
	case CapabilityEdit, CapabilityUpload:
		return r == RoleEditor || r == RoleOwner || r == RoleCreator
	case CapabilityShare, CapabilityDelete, CapabilityManagePermissions:
		return r == RoleOwner || r == RoleCreator
	}
	return false
}

func AllCapabilities() []Capability {
	return []Capability{
		CapabilityView,
		CapabilityEdit,
		CapabilityUpload,
		CapabilityShare,
		CapabilityDelete,
		CapabilityManagePermissions,
	}
}
