package domain

import (
	"strings"
	"time"
)

type ItemType string

type GeneralAccess string

const (
	ItemTypeFolder ItemType = "folder"
	ItemTypeFile   ItemType = "file"
	ItemTypeLink   ItemType = "link"

	GeneralAccessInherit GeneralAccess = "inherit"
	GeneralAccessPrivate GeneralAccess = "private"
	GeneralAccessAnyone  GeneralAccess = "anyone_can_view"
)

// Item представляет узел дерева библиотеки: папку, файл или внешнюю ссылку
type Item struct {
	ID            int64         `json:"id" db:"id"`
	Name          string        `json:"name" db:"name"`
	Slug          string        `json:"slug" db:"slug"`
	Type          ItemType      `json:"type" db:"type"`
	ParentID      *int64        `json:"parent_id,omitempty" db:"parent_id"`
	CreatedBy     string        `json:"created_by" db:"created_by"`
	UpdatedBy     string        `json:"updated_by" db:"updated_by"`
	GeneralAccess GeneralAccess `json:"general_access" db:"general_access"`

	// Поля ссылки (только для type = link)
	ExternalURL     *string `json:"external_url,omitempty" db:"external_url"`
	LinkDescription *string `json:"link_description,omitempty" db:"link_description"`

	// Поля медиа (только для type = file)
	MediaKey  *string `json:"media_key,omitempty" db:"media_key"`
	MIMEType  *string `json:"mime_type,omitempty" db:"mime_type"`
	SizeBytes *int64  `json:"size_bytes,omitempty" db:"size_bytes"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

func (i *Item) IsFolder() bool {
	return i.Type == ItemTypeFolder
}

func (i *Item) IsDeleted() bool {
	return i.DeletedAt != nil
}

func (i *Item) IsRoot() bool {
	return i.ParentID == nil
}

// IsVideoURL проверяет, указывает ли внешняя ссылка на видео из списка доменов
func (i *Item) IsVideoURL(videoDomains []string) bool {
	if i.Type != ItemTypeLink || i.ExternalURL == nil {
		return false
	}
	for _, d := range videoDomains {
		if strings.Contains(*i.ExternalURL, d) {
			return true
		}
	}
	return false
}

// Breadcrumb — один элемент пути от корня до узла
type Breadcrumb struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ItemContent — содержимое папки для ответа листинга
type ItemContent struct {
	Item     Item   `json:"item"`
	Children []Item `json:"children"`
}
