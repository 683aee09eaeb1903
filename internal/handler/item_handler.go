package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"synxronlibrary/internal/auth"
	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/service"
)

type ItemHandler struct {
	itemService *service.ItemService
}

func NewItemHandler(itemService *service.ItemService) *ItemHandler {
	return &ItemHandler{itemService: itemService}
}

type renameItemRequest struct {
	Name string `json:"name"`
}

type moveItemRequest struct {
	NewParentID int64 `json:"new_parent_id"`
}

type generalAccessRequest struct {
	GeneralAccess domain.GeneralAccess `json:"general_access"`
}

func itemID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req service.CreateItemInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.itemService.Create(r.Context(), userID, req)
	if err != nil {
		log.Printf("Failed to create item: %v", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}

func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	item, err := h.itemService.Get(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(item)
}

func (h *ItemHandler) GetContents(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	content, err := h.itemService.Contents(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(content)
}

func (h *ItemHandler) GetBreadcrumbs(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	crumbs, err := h.itemService.Breadcrumbs(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(crumbs)
}

func (h *ItemHandler) RenameItem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	var req renameItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.itemService.Rename(r.Context(), userID, id, req.Name)
	if err != nil {
		log.Printf("Failed to rename item %d: %v", id, err)
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(item)
}

func (h *ItemHandler) MoveItem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	var req moveItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.itemService.Move(r.Context(), userID, id, req.NewParentID)
	if err != nil {
		log.Printf("Failed to move item %d: %v", id, err)
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(item)
}

func (h *ItemHandler) SetGeneralAccess(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	var req generalAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.itemService.SetGeneralAccess(r.Context(), userID, id, req.GeneralAccess)
	if err != nil {
		log.Printf("Failed to set general access on item %d: %v", id, err)
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(item)
}

func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	if err := h.itemService.Delete(r.Context(), userID, id); err != nil {
		log.Printf("Failed to delete item %d: %v", id, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ItemHandler) RestoreItem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	item, err := h.itemService.Restore(r.Context(), userID, id)
	if err != nil {
		log.Printf("Failed to restore item %d: %v", id, err)
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(item)
}

// GetPersonalRoot возвращает личную корневую папку, создавая при первом обращении
func (h *ItemHandler) GetPersonalRoot(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	root, err := h.itemService.EnsurePersonalRoot(r.Context(), claims.UserID, claims.DisplayName)
	if err != nil {
		log.Printf("Failed to ensure personal root for %s: %v", claims.UserID, err)
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(root)
}

func (h *ItemHandler) ListCreatedByMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	items, err := h.itemService.CreatedByMe(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(items)
}

func (h *ItemHandler) ListSharedWithMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	items, err := h.itemService.SharedWithMe(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(items)
}

func (h *ItemHandler) ListAccessible(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	items, err := h.itemService.Accessible(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(items)
}

func (h *ItemHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	items, err := h.itemService.Favorites(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(items)
}

func (h *ItemHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	favorite, err := h.itemService.ToggleFavorite(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]bool{"favorite": favorite})
}
