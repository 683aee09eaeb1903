package domain

import "errors"

// Ошибки целостности дерева и доступа. Репозитории и сервисы возвращают их
// через fmt.Errorf("...: %w", err), хендлеры разбирают через errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrCycleDetected          = errors.New("move would create a cycle")
	ErrInvalidParent          = errors.New("parent is not a folder or is deleted")
	ErrSlugConflict           = errors.New("slug conflict")
	ErrAccessDenied           = errors.New("access denied")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrMaxDepthExceeded       = errors.New("maximum nesting depth exceeded")
	ErrAncestorDeleted        = errors.New("an ancestor is still deleted")
	ErrNotDeleted             = errors.New("item is not deleted")
)
