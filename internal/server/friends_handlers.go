// internal/server/friends_handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markb/linglite/internal/friends"
	"github.com/markb/linglite/internal/profile"
)

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	ids, err := s.friendsService.FriendIDs(user.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to list friends")
		return
	}

	profiles := make([]*profile.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := s.profileService.Get(id)
		if err != nil {
			continue // account deleted since friendship formed
		}
		p.Online = s.realtimeService.IsOnline(p.UserID)
		profiles = append(profiles, p)
	}

	json.NewEncoder(w).Encode(map[string]any{"friends": profiles})
}

type FriendRequestBody struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleSendFriendRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	var req FriendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	if _, err := s.authService.GetUserByID(req.UserID); err != nil {
		s.writeError(w, http.StatusNotFound, "user_not_found", "User not found")
		return
	}

	fr, err := s.friendsService.SendRequest(user.ID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, friends.ErrSelfRequest):
			s.writeError(w, http.StatusBadRequest, "invalid_request", "Cannot send a friend request to yourself")
		case errors.Is(err, friends.ErrAlreadyFriends):
			s.writeError(w, http.StatusConflict, "already_friends", "Already friends with this user")
		case errors.Is(err, friends.ErrDuplicate):
			s.writeError(w, http.StatusConflict, "request_exists", "Friend request already sent")
		default:
			s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to send friend request")
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(fr)
}

func (s *Server) handleListFriendRequests(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	incoming, err := s.friendsService.IncomingRequests(user.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to list requests")
		return
	}
	outgoing, err := s.friendsService.OutgoingRequests(user.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to list requests")
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"incoming": incoming,
		"outgoing": outgoing,
	})
}

func (s *Server) handleAcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	requestID := chi.URLParam(r, "requestID")

	fr, err := s.friendsService.Accept(requestID, user.ID)
	if err != nil {
		s.writeFriendRequestError(w, err)
		return
	}

	json.NewEncoder(w).Encode(fr)
}

func (s *Server) handleDeclineFriendRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	requestID := chi.URLParam(r, "requestID")

	fr, err := s.friendsService.Decline(requestID, user.ID)
	if err != nil {
		s.writeFriendRequestError(w, err)
		return
	}

	json.NewEncoder(w).Encode(fr)
}

func (s *Server) handleCancelFriendRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	requestID := chi.URLParam(r, "requestID")

	if err := s.friendsService.Cancel(requestID, user.ID); err != nil {
		switch {
		case errors.Is(err, friends.ErrRequestNotFound):
			s.writeError(w, http.StatusNotFound, "request_not_found", "Friend request not found")
		case errors.Is(err, friends.ErrNotSender):
			s.writeError(w, http.StatusForbidden, "forbidden", "Only the sender can cancel this request")
		default:
			s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to cancel friend request")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeFriendRequestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, friends.ErrRequestNotFound):
		s.writeError(w, http.StatusNotFound, "request_not_found", "Friend request not found")
	case errors.Is(err, friends.ErrNotRecipient):
		s.writeError(w, http.StatusForbidden, "forbidden", "Only the recipient can act on this request")
	default:
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to update friend request")
	}
}

func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	otherID := chi.URLParam(r, "userID")

	if err := s.friendsService.Remove(user.ID, otherID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to remove friend")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
