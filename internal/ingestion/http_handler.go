package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agrifield/backend/internal/auth"
)

// maxUploadBytes caps one uploaded spreadsheet.
const maxUploadBytes = 5 << 20

// Handler exposes the upload pipeline over HTTP.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the upload service.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Upload accepts a multipart spreadsheet and kicks off the pipeline.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid form data: %v", err)})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "CSV file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("failed to read file: %v", err)})
		return
	}
	if len(data) > maxUploadBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "File size should not exceed 5MB"})
		return
	}

	uploadID, err := h.service.Upload(r.Context(), UploadInput{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		UserID:      identity.UserID,
		Username:    identity.Username,
		Roles:       identity.Roles,
	})
	if err != nil {
		status := http.StatusInternalServerError
		var colErr *ColumnError
		if errors.As(err, &colErr) ||
			errors.Is(err, ErrUnsupportedFileType) ||
			errors.Is(err, ErrDuplicateHeaders) ||
			errors.Is(err, ErrEmptyFile) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"upload_id": uploadID,
		"message":   "csv upload in progress",
	})
}

// Status reports progress for one upload.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	uploadID := strings.TrimSpace(chi.URLParam(r, "upload_id"))
	if uploadID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Upload ID is required"})
		return
	}

	status, err := h.service.Status(r.Context(), uploadID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(payload)
}
