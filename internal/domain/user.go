package domain

import "time"

// User — минимальная проекция пользователя сервиса аккаунтов.
// PersonalRootID — обратная ссылка на личную корневую папку (не более одной).
type User struct {
	ID             string    `json:"id" db:"id"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	PersonalRootID *int64    `json:"personal_root_id,omitempty" db:"personal_root_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
