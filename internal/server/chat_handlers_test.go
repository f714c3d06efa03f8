// internal/server/chat_handlers_test.go
package server

import (
	"encoding/json"
	"net/http"
	"testing"
)

// openChat ensures a conversation between the token holder and the peer,
// returning the conversation id.
func openChat(t *testing.T, srv *Server, token, peerID string) string {
	t.Helper()

	w := doJSON(t, srv, "POST", "/api/v1/chats/", token, `{"user_id": "`+peerID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("open chat failed: %d %s", w.Code, w.Body.String())
	}

	var conv map[string]any
	json.Unmarshal(w.Body.Bytes(), &conv)
	id, _ := conv["id"].(string)
	if id == "" {
		t.Fatalf("expected conversation id, got %s", w.Body.String())
	}
	return id
}

func TestOpenChatRequiresFriendship(t *testing.T) {
	srv := setupTestServer(t)
	_, mika := signupAndLogin(t, srv, "mika@example.com")
	anaID, _ := signupAndLogin(t, srv, "ana@example.com")

	w := doJSON(t, srv, "POST", "/api/v1/chats/", mika, `{"user_id": "`+anaID+`"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for non-friends, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOpenChatIsIdempotent(t *testing.T) {
	srv := setupTestServer(t)
	mikaID, mika := signupAndLogin(t, srv, "mika@example.com")
	anaID, ana := signupAndLogin(t, srv, "ana@example.com")
	befriend(t, srv, mika, ana, anaID)

	id1 := openChat(t, srv, mika, anaID)
	id2 := openChat(t, srv, ana, mikaID)
	if id1 != id2 {
		t.Errorf("expected the same conversation from both sides, got %s and %s", id1, id2)
	}
}

func TestSendAndFetchMessages(t *testing.T) {
	srv := setupTestServer(t)
	_, mika := signupAndLogin(t, srv, "mika@example.com")
	anaID, ana := signupAndLogin(t, srv, "ana@example.com")
	befriend(t, srv, mika, ana, anaID)
	chatID := openChat(t, srv, mika, anaID)

	w := doJSON(t, srv, "POST", "/api/v1/chats/"+chatID+"/messages", mika, `{"body": "hola"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("send message failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, srv, "POST", "/api/v1/chats/"+chatID+"/messages", ana, `{"body": "moi"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("send message failed: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, "GET", "/api/v1/chats/"+chatID+"/messages", mika, "")
	if w.Code != http.StatusOK {
		t.Fatalf("fetch messages failed: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		Messages []map[string]any `json:"messages"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(resp.Messages))
	}
	if resp.Messages[0]["body"] != "hola" || resp.Messages[1]["body"] != "moi" {
		t.Errorf("expected chronological order, got %v", resp.Messages)
	}
}

func TestSendMessageEmptyBody(t *testing.T) {
	srv := setupTestServer(t)
	_, mika := signupAndLogin(t, srv, "mika@example.com")
	anaID, ana := signupAndLogin(t, srv, "ana@example.com")
	befriend(t, srv, mika, ana, anaID)
	chatID := openChat(t, srv, mika, anaID)

	w := doJSON(t, srv, "POST", "/api/v1/chats/"+chatID+"/messages", mika, `{"body": ""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMessagesHiddenFromOutsiders(t *testing.T) {
	srv := setupTestServer(t)
	_, mika := signupAndLogin(t, srv, "mika@example.com")
	anaID, ana := signupAndLogin(t, srv, "ana@example.com")
	_, jo := signupAndLogin(t, srv, "jo@example.com")
	befriend(t, srv, mika, ana, anaID)
	chatID := openChat(t, srv, mika, anaID)

	doJSON(t, srv, "POST", "/api/v1/chats/"+chatID+"/messages", mika, `{"body": "secret"}`)

	// An outsider cannot read or write, and learns nothing about the chat.
	w := doJSON(t, srv, "GET", "/api/v1/chats/"+chatID+"/messages", jo, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for outsider read, got %d", w.Code)
	}
	w = doJSON(t, srv, "POST", "/api/v1/chats/"+chatID+"/messages", jo, `{"body": "hi"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for outsider write, got %d", w.Code)
	}
}

func TestListChatsShowsPeer(t *testing.T) {
	srv := setupTestServer(t)
	_, mika := signupAndLogin(t, srv, "mika@example.com")
	anaID, ana := signupAndLogin(t, srv, "ana@example.com")
	befriend(t, srv, mika, ana, anaID)
	openChat(t, srv, mika, anaID)

	w := doJSON(t, srv, "GET", "/api/v1/chats/", mika, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list chats failed: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		Chats []struct {
			PeerID string         `json:"peer_id"`
			Peer   map[string]any `json:"peer"`
		} `json:"chats"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(resp.Chats))
	}
	if resp.Chats[0].PeerID != anaID {
		t.Errorf("expected peer id %s, got %s", anaID, resp.Chats[0].PeerID)
	}
	if resp.Chats[0].Peer["display_name"] != "ana" {
		t.Errorf("expected peer profile embedded, got %v", resp.Chats[0].Peer)
	}
}

func TestInvalidBeforeTimestamp(t *testing.T) {
	srv := setupTestServer(t)
	_, mika := signupAndLogin(t, srv, "mika@example.com")
	anaID, ana := signupAndLogin(t, srv, "ana@example.com")
	befriend(t, srv, mika, ana, anaID)
	chatID := openChat(t, srv, mika, anaID)

	w := doJSON(t, srv, "GET", "/api/v1/chats/"+chatID+"/messages?before=yesterday", mika, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad timestamp, got %d", w.Code)
	}
}

func TestSearchMessages(t *testing.T) {
	srv := setupTestServer(t)
	_, mika := signupAndLogin(t, srv, "mika@example.com")
	anaID, ana := signupAndLogin(t, srv, "ana@example.com")
	_, jo := signupAndLogin(t, srv, "jo@example.com")
	befriend(t, srv, mika, ana, anaID)
	chatID := openChat(t, srv, mika, anaID)

	for _, body := range []string{"hola amigo", "hello there", "see you"} {
		w := doJSON(t, srv, "POST", "/api/v1/chats/"+chatID+"/messages", mika, `{"body": "`+body+`"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("send message failed: %d %s", w.Code, w.Body.String())
		}
	}

	w := doJSON(t, srv, "GET", "/api/v1/chats/"+chatID+"/messages/search?q=hola", ana, "")
	if w.Code != http.StatusOK {
		t.Fatalf("search failed: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Messages []map[string]any `json:"messages"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Messages) != 1 || resp.Messages[0]["body"] != "hola amigo" {
		t.Errorf("expected one match for 'hola', got %v", resp.Messages)
	}

	// A missing query is rejected.
	w = doJSON(t, srv, "GET", "/api/v1/chats/"+chatID+"/messages/search", mika, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without q, got %d", w.Code)
	}

	// Outsiders get the same 404 as for history.
	w = doJSON(t, srv, "GET", "/api/v1/chats/"+chatID+"/messages/search?q=hola", jo, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for outsider search, got %d", w.Code)
	}
}

func TestListCallsEmpty(t *testing.T) {
	srv := setupTestServer(t)
	_, mika := signupAndLogin(t, srv, "mika@example.com")

	w := doJSON(t, srv, "GET", "/api/v1/calls", mika, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list calls failed: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		Calls []map[string]any `json:"calls"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Calls) != 0 {
		t.Errorf("expected no calls, got %d", len(resp.Calls))
	}
}
