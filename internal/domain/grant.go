package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccessGrant — прямое назначение роли пользователю на узле.
// На пару (item, user) существует не более одной записи,
// повторная выдача перезаписывает роль.
type AccessGrant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ItemID    int64     `json:"item_id" db:"item_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RoleGate — ограничение доступа к узлу по внешним ролям пользователя.
// Действует только на узле, который его объявил, и не наследуется вниз.
type RoleGate struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ItemID    int64     `json:"item_id" db:"item_id"`
	RoleName  string    `json:"role_name" db:"role_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
