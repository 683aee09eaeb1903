package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"synxronlibrary/internal/auth"
	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/service"
)

// AccessHandler обслуживает назначения ролей, гейты, владение
// и справку об эффективных правах
type AccessHandler struct {
	grantService     *service.GrantService
	ownershipService *service.OwnershipService
	permissions      *service.PermissionService
	itemService      *service.ItemService
}

func NewAccessHandler(
	grantService *service.GrantService,
	ownershipService *service.OwnershipService,
	permissions *service.PermissionService,
	itemService *service.ItemService,
) *AccessHandler {
	return &AccessHandler{
		grantService:     grantService,
		ownershipService: ownershipService,
		permissions:      permissions,
		itemService:      itemService,
	}
}

type shareRequest struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

type revokeRequest struct {
	UserID string `json:"user_id"`
}

type gateRequest struct {
	RoleName string `json:"role_name"`
}

type transferRequest struct {
	NewOwnerID string `json:"new_owner_id"`
}

func (h *AccessHandler) ShareItem(w http.ResponseWriter, r *http.Request) {
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

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	grant, err := h.grantService.Share(r.Context(), userID, id, req.UserID, req.Role)
	if err != nil {
		log.Printf("Failed to share item %d: %v", id, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(grant)
}

func (h *AccessHandler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
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

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.grantService.Revoke(r.Context(), userID, id, req.UserID); err != nil {
		log.Printf("Failed to revoke grant on item %d: %v", id, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AccessHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
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

	grants, err := h.grantService.ListByItem(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(grants)
}

func (h *AccessHandler) AddGate(w http.ResponseWriter, r *http.Request) {
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

	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	gate, err := h.grantService.AddGate(r.Context(), userID, id, req.RoleName)
	if err != nil {
		log.Printf("Failed to add gate on item %d: %v", id, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(gate)
}

func (h *AccessHandler) RemoveGate(w http.ResponseWriter, r *http.Request) {
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

	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.grantService.RemoveGate(r.Context(), userID, id, req.RoleName); err != nil {
		log.Printf("Failed to remove gate on item %d: %v", id, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AccessHandler) ListGates(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	gates, err := h.grantService.ListGates(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(gates)
}

func (h *AccessHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
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

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.NewOwnerID == "" {
		http.Error(w, "new_owner_id is required", http.StatusBadRequest)
		return
	}

	if err := h.ownershipService.Transfer(r.Context(), userID, id, req.NewOwnerID); err != nil {
		log.Printf("Failed to transfer ownership of item %d: %v", id, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AccessHandler) GetOwner(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	// Справка о владельце доступна тем, кто видит узел
	if _, err := h.itemService.Get(r.Context(), auth.UserID(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}

	ownerID, err := h.ownershipService.CurrentOwner(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"owner_id": ownerID})
}

// GetCapabilities возвращает решения по всем операциям для вызывающего
func (h *AccessHandler) GetCapabilities(w http.ResponseWriter, r *http.Request) {
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

	caps, err := h.permissions.Capabilities(r.Context(), auth.UserID(r.Context()), item)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(caps)
}
