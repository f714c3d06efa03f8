// internal/server/profile_handlers.go
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/markb/linglite/internal/profile"
)

func (s *Server) handleGetOwnProfile(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	p, err := s.profileService.Get(user.ID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "profile_not_found", "Profile not found")
		return
	}
	p.Online = s.realtimeService.IsOnline(p.UserID)

	json.NewEncoder(w).Encode(p)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	p, err := s.profileService.Get(userID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "profile_not_found", "Profile not found")
		return
	}
	p.Online = s.realtimeService.IsOnline(p.UserID)

	json.NewEncoder(w).Encode(p)
}

type UpdateProfileRequest struct {
	DisplayName      *string `json:"display_name,omitempty"`
	Bio              *string `json:"bio,omitempty"`
	NativeLanguage   *string `json:"native_language,omitempty"`
	LearningLanguage *string `json:"learning_language,omitempty"`
	Location         *string `json:"location,omitempty"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
		s.writeError(w, http.StatusBadRequest, "validation_failed", "Display name cannot be empty")
		return
	}

	p, err := s.profileService.Update(user.ID, profile.UpdateParams{
		DisplayName:      req.DisplayName,
		Bio:              req.Bio,
		NativeLanguage:   req.NativeLanguage,
		LearningLanguage: req.LearningLanguage,
		Location:         req.Location,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to update profile")
		return
	}
	p.Online = s.realtimeService.IsOnline(p.UserID)

	json.NewEncoder(w).Encode(p)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	q := r.URL.Query()

	params := profile.SearchParams{
		NativeLanguage:   q.Get("native_language"),
		LearningLanguage: q.Get("learning_language"),
		Query:            q.Get("q"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Offset = n
		}
	}

	profiles, err := s.profileService.Search(user.ID, params)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Search failed")
		return
	}
	for _, p := range profiles {
		p.Online = s.realtimeService.IsOnline(p.UserID)
	}

	json.NewEncoder(w).Encode(map[string]any{"profiles": profiles})
}
