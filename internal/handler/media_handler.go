package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"synxronlibrary/internal/auth"
	"synxronlibrary/internal/service"
)

const maxUploadSize = 512 << 20 // 512MB

type MediaHandler struct {
	mediaService *service.MediaService
}

func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// UploadPayload принимает содержимое файлового узла через multipart-форму
func (h *MediaHandler) UploadPayload(w http.ResponseWriter, r *http.Request) {
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

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "File is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	item, err := h.mediaService.AttachPayload(r.Context(), userID, id, header.Header.Get("Content-Type"), data)
	if err != nil {
		log.Printf("Failed to attach payload to item %d: %v", id, err)
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(item)
}

// GetPayload возвращает полезную нагрузку узла: внешний URL ссылки или
// подписанную ссылку на объект файла
func (h *MediaHandler) GetPayload(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	info, err := h.mediaService.Payload(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(info)
}

// Download отдаёт содержимое файлового узла напрямую
func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	obj, item, err := h.mediaService.Download(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer obj.Close()

	if obj.ContentType() != "" {
		w.Header().Set("Content-Type", obj.ContentType())
	}
	if obj.ContentLength() > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", obj.ContentLength()))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", item.Name))

	if _, err := io.Copy(w, obj); err != nil {
		log.Printf("Failed to stream payload of item %d: %v", id, err)
	}
}
