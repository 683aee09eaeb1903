package handler

import (
	"errors"
	"net/http"

	"synxronlibrary/internal/domain"
)

// writeError переводит доменные ошибки в HTTP-статусы.
// Нераспознанная ошибка — всегда 500 без деталей наружу.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrAccessDenied):
		http.Error(w, "Access denied", http.StatusForbidden)
	case errors.Is(err, domain.ErrConcurrentModification):
		http.Error(w, "Item was modified concurrently", http.StatusConflict)
	case errors.Is(err, domain.ErrSlugConflict):
		http.Error(w, "Slug conflict", http.StatusConflict)
	case errors.Is(err, domain.ErrCycleDetected):
		http.Error(w, "Move would create a cycle", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrInvalidParent):
		http.Error(w, "Parent is not a folder or is deleted", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrMaxDepthExceeded):
		http.Error(w, "Maximum nesting depth exceeded", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrAncestorDeleted):
		http.Error(w, "An ancestor is still deleted", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrNotDeleted):
		http.Error(w, "Item is not deleted", http.StatusUnprocessableEntity)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
