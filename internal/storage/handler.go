// internal/storage/handler.go
package storage

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/markb/linglite/internal/log"
	"github.com/markb/linglite/internal/storage/backend"
)

// Handler provides HTTP handlers for media storage.
type Handler struct {
	service *Service

	// userID extracts the authenticated user from the request; injected by
	// the server so this package stays free of auth plumbing.
	userID func(r *http.Request) string

	// OnAvatarSaved, if set, is called after a successful avatar upload.
	OnAvatarSaved func(userID, url string)
}

// NewHandler creates a new storage handler.
func NewHandler(service *Service, userID func(r *http.Request) string) *Handler {
	return &Handler{service: service, userID: userID}
}

// RegisterRoutes registers storage routes. Mounted at /storage/v1; the
// upload routes assume auth middleware has already run.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/avatar", h.UploadAvatar)
	r.Post("/audio", h.UploadAudio)
	r.Get("/object/*", h.GetObject)
}

// UploadAvatar stores the request body as the caller's avatar.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID := h.userID(r)
	if userID == "" {
		h.jsonError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	url, err := h.service.SaveAvatar(r.Context(), userID, r.Header.Get("Content-Type"), r.Body, bodySize(r))
	if err != nil {
		log.Warn("avatar upload failed", "user_id", userID, "error", err)
		h.jsonError(w, http.StatusBadRequest, "upload_failed", err.Error())
		return
	}

	if h.OnAvatarSaved != nil {
		h.OnAvatarSaved(userID, url)
	}

	json.NewEncoder(w).Encode(map[string]string{"avatar_url": url})
}

// UploadAudio stores the request body as a voice-note attachment and
// returns the URL to reference from a message.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	userID := h.userID(r)
	if userID == "" {
		h.jsonError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	url, err := h.service.SaveAudio(r.Context(), userID, r.Header.Get("Content-Type"), r.Body, bodySize(r))
	if err != nil {
		log.Warn("audio upload failed", "user_id", userID, "error", err)
		h.jsonError(w, http.StatusBadRequest, "upload_failed", err.Error())
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"attachment_url": url})
}

// GetObject streams a stored object.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	reader, info, err := h.service.Open(r.Context(), key)
	if err != nil {
		if backend.IsNotFound(err) || backend.IsInvalidKey(err) {
			h.jsonError(w, http.StatusNotFound, "not_found", "Object not found")
			return
		}
		log.Error("object read failed", "key", key, "error", err)
		h.jsonError(w, http.StatusInternalServerError, "server_error", "Failed to read object")
		return
	}
	defer reader.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	w.Header().Set("Content-Type", contentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.ETag != "" {
		w.Header().Set("ETag", `"`+info.ETag+`"`)
	}
	io.Copy(w, reader)
}

func (h *Handler) jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

func bodySize(r *http.Request) int64 {
	if r.ContentLength > 0 {
		return r.ContentLength
	}
	return -1
}
