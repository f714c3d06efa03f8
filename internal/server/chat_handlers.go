// internal/server/chat_handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markb/linglite/internal/chat"
	"github.com/markb/linglite/internal/profile"
)

// ChatSummary is one conversation as seen by the requesting user.
type ChatSummary struct {
	ID        string           `json:"id"`
	Peer      *profile.Profile `json:"peer,omitempty"`
	PeerID    string           `json:"peer_id"`
	CreatedAt time.Time        `json:"created_at"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	convs, err := s.chatService.ConversationsFor(user.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to list chats")
		return
	}

	chats := make([]ChatSummary, 0, len(convs))
	for _, c := range convs {
		peerID := c.UserA
		if peerID == user.ID {
			peerID = c.UserB
		}
		summary := ChatSummary{ID: c.ID, PeerID: peerID, CreatedAt: c.CreatedAt}
		if p, err := s.profileService.Get(peerID); err == nil {
			p.Online = s.realtimeService.IsOnline(peerID)
			summary.Peer = p
		}
		chats = append(chats, summary)
	}

	json.NewEncoder(w).Encode(map[string]any{"chats": chats})
}

type OpenChatRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleOpenChat(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	var req OpenChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	// Conversations only exist between friends.
	ok, err := s.friendsService.AreFriends(user.ID, req.UserID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to open chat")
		return
	}
	if !ok {
		s.writeError(w, http.StatusForbidden, "not_friends", "You can only chat with friends")
		return
	}

	conv, err := s.chatService.EnsureConversation(user.ID, req.UserID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to open chat")
		return
	}

	json.NewEncoder(w).Encode(conv)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	chatID := chi.URLParam(r, "chatID")

	ok, err := s.chatService.IsParticipant(user.ID, chatID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to load messages")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "chat_not_found", "Chat not found")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_request", "before must be an RFC 3339 timestamp")
			return
		}
		before = t
	}

	messages, err := s.chatService.History(chatID, limit, before)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to load messages")
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"messages": messages})
}

type SendMessageRequest struct {
	Body          string `json:"body"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	chatID := chi.URLParam(r, "chatID")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	msg, err := s.chatService.SaveMessage(chatID, user.ID, req.Body, req.AttachmentURL)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotParticipant):
			s.writeError(w, http.StatusNotFound, "chat_not_found", "Chat not found")
		case errors.Is(err, chat.ErrEmptyMessage):
			s.writeError(w, http.StatusBadRequest, "validation_failed", "Message must have a body or attachment")
		default:
			s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to send message")
		}
		return
	}

	// Fan out to live room members; offline peers catch up via history.
	s.realtimeService.PublishMessage(chatID, msg.ID, user.ID, msg.Body, msg.AttachmentURL, msg.CreatedAt)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

func (s *Server) handleSearchMessages(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	chatID := chi.URLParam(r, "chatID")

	ok, err := s.chatService.IsParticipant(user.ID, chatID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Search failed")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "chat_not_found", "Chat not found")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "q is required")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	messages, err := s.chatService.SearchMessages(chatID, query, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Search failed")
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"messages": messages})
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	calls, err := s.chatService.CallsFor(user.ID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to list calls")
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"calls": calls})
}
