// integration_test.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/markb/linglite/internal/db"
	"github.com/markb/linglite/internal/server"
	"github.com/markb/linglite/internal/storage"
)

const testJWTSecret = "integration-test-secret-with-32-chars"

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	database, err := db.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	if err := database.RunMigrations(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	srv := server.New(database, server.Config{
		JWTSecret: testJWTSecret,
		StorageConfig: &storage.Config{
			Backend:       "local",
			LocalPath:     t.TempDir(),
			PublicBaseURL: "http://localhost/storage/v1",
		},
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path, token, body string) map[string]any {
	t.Helper()

	req, _ := http.NewRequest("POST", ts.URL+path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode >= 400 {
		t.Fatalf("POST %s returned %d: %v", path, resp.StatusCode, out)
	}
	return out
}

func getJSON(t *testing.T, ts *httptest.Server, path, token string) map[string]any {
	t.Helper()

	req, _ := http.NewRequest("GET", ts.URL+path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode >= 400 {
		t.Fatalf("GET %s returned %d: %v", path, resp.StatusCode, out)
	}
	return out
}

// registerUser signs up and logs in, returning the user id and access token.
func registerUser(t *testing.T, ts *httptest.Server, email string) (string, string) {
	t.Helper()

	creds := fmt.Sprintf(`{"email": %q, "password": "password123"}`, email)
	signup := postJSON(t, ts, "/auth/v1/signup", "", creds)
	userID, _ := signup["id"].(string)
	if userID == "" {
		t.Fatalf("no user id in signup response: %v", signup)
	}

	login := postJSON(t, ts, "/auth/v1/token?grant_type=password", "", creds)
	token, _ := login["access_token"].(string)
	if token == "" {
		t.Fatalf("no access token in login response: %v", login)
	}
	return userID, token
}

// makeFriends runs the request/accept flow between two users.
func makeFriends(t *testing.T, ts *httptest.Server, tokenA, tokenB, userBID string) {
	t.Helper()

	fr := postJSON(t, ts, "/api/v1/friends/requests", tokenA, fmt.Sprintf(`{"user_id": %q}`, userBID))
	reqID, _ := fr["id"].(string)
	postJSON(t, ts, "/api/v1/friends/requests/"+reqID+"/accept", tokenB, "")
}

// wsEvent is a decoded realtime frame.
type wsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// dialRealtime opens an identified realtime connection.
func dialRealtime(t *testing.T, ts *httptest.Server, token, userID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime/v1/websocket?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	sendEvent(t, conn, "identify", map[string]any{"user_id": userID})
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	data, _ := json.Marshal(payload)
	frame, _ := json.Marshal(wsEvent{Event: event, Payload: data})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s failed: %v", event, err)
	}
}

// waitForEvent reads frames until one matches the wanted event, skipping
// unrelated ones (typing indicators, presence noise).
func waitForEvent(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var ev wsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad frame while waiting for %s: %s", want, data)
		}
		if ev.Event == "error" {
			t.Fatalf("got error event while waiting for %s: %s", want, ev.Payload)
		}
		if ev.Event == want {
			var payload map[string]any
			json.Unmarshal(ev.Payload, &payload)
			return payload
		}
	}
	t.Fatalf("timed out waiting for %s", want)
	return nil
}

func TestFullChatFlow(t *testing.T) {
	ts := startTestServer(t)

	mikaID, mika := registerUser(t, ts, "mika@example.com")
	anaID, ana := registerUser(t, ts, "ana@example.com")
	makeFriends(t, ts, mika, ana, anaID)

	conv := postJSON(t, ts, "/api/v1/chats/", mika, fmt.Sprintf(`{"user_id": %q}`, anaID))
	chatID, _ := conv["id"].(string)
	if chatID == "" {
		t.Fatalf("no conversation id: %v", conv)
	}

	mikaWS := dialRealtime(t, ts, mika, mikaID)

	// Mika is online when Ana connects, so Mika hears about it.
	anaWS := dialRealtime(t, ts, ana, anaID)
	status := waitForEvent(t, mikaWS, "user-status-change")
	if status["user_id"] != anaID || status["online"] != true {
		t.Errorf("unexpected status change: %v", status)
	}

	sendEvent(t, mikaWS, "join-room", map[string]any{"room_id": chatID})
	sendEvent(t, anaWS, "join-room", map[string]any{"room_id": chatID})

	// Joins are processed in order per connection, but the two sockets are
	// independent; give Ana's join a moment before Mika sends.
	time.Sleep(100 * time.Millisecond)

	sendEvent(t, mikaWS, "send-message", map[string]any{"room_id": chatID, "body": "hola"})

	msg := waitForEvent(t, anaWS, "new-message")
	if msg["body"] != "hola" || msg["sender_id"] != mikaID {
		t.Errorf("unexpected message payload: %v", msg)
	}
	if msg["message_id"] == "" || msg["message_id"] == nil {
		t.Error("expected persisted message id in fan-out")
	}

	// The message was persisted before fan-out.
	hist := getJSON(t, ts, "/api/v1/chats/"+chatID+"/messages", ana)
	messages, _ := hist["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(messages))
	}

	// Typing indicators relay without persistence.
	sendEvent(t, anaWS, "typing", map[string]any{"room_id": chatID})
	typing := waitForEvent(t, mikaWS, "user-typing")
	if typing["user_id"] != anaID {
		t.Errorf("unexpected typing payload: %v", typing)
	}
}

func TestFullCallFlow(t *testing.T) {
	ts := startTestServer(t)

	mikaID, mika := registerUser(t, ts, "mika@example.com")
	anaID, ana := registerUser(t, ts, "ana@example.com")
	makeFriends(t, ts, mika, ana, anaID)

	conv := postJSON(t, ts, "/api/v1/chats/", mika, fmt.Sprintf(`{"user_id": %q}`, anaID))
	chatID, _ := conv["id"].(string)

	mikaWS := dialRealtime(t, ts, mika, mikaID)
	anaWS := dialRealtime(t, ts, ana, anaID)
	waitForEvent(t, mikaWS, "user-status-change")

	offer := map[string]any{"type": "offer", "sdp": "v=0 fake"}
	sendEvent(t, mikaWS, "call-user", map[string]any{
		"callee_id": anaID,
		"room_id":   chatID,
		"offer":     offer,
	})

	incoming := waitForEvent(t, anaWS, "incoming-call")
	callID, _ := incoming["call_id"].(string)
	if callID == "" {
		t.Fatalf("no call id in incoming-call: %v", incoming)
	}
	if incoming["caller_id"] != mikaID {
		t.Errorf("unexpected caller: %v", incoming["caller_id"])
	}

	answer := map[string]any{"type": "answer", "sdp": "v=0 fake"}
	sendEvent(t, anaWS, "accept-call", map[string]any{"call_id": callID, "answer": answer})

	accepted := waitForEvent(t, mikaWS, "call-accepted")
	if accepted["call_id"] != callID {
		t.Errorf("unexpected call id in call-accepted: %v", accepted)
	}

	// ICE candidates relay both ways during the connected call.
	sendEvent(t, mikaWS, "ice-candidate", map[string]any{
		"call_id":   callID,
		"candidate": map[string]any{"candidate": "candidate:1 1 udp 1 10.0.0.1 1234 typ host"},
	})
	ice := waitForEvent(t, anaWS, "ice-candidate")
	if ice["call_id"] != callID {
		t.Errorf("unexpected call id in ice-candidate: %v", ice)
	}

	sendEvent(t, anaWS, "end-call", map[string]any{"call_id": callID})
	ended := waitForEvent(t, mikaWS, "call-ended")
	if ended["call_id"] != callID {
		t.Errorf("unexpected call id in call-ended: %v", ended)
	}

	// Terminal calls are archived and visible to both participants.
	for _, token := range []string{mika, ana} {
		deadline := time.Now().Add(2 * time.Second)
		for {
			calls, _ := getJSON(t, ts, "/api/v1/calls", token)["calls"].([]any)
			if len(calls) == 1 {
				entry := calls[0].(map[string]any)
				if entry["state"] != "ended" {
					t.Errorf("expected ended state, got %v", entry["state"])
				}
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("call log never appeared")
			}
			time.Sleep(25 * time.Millisecond)
		}
	}
}

func TestRejectedCallArchived(t *testing.T) {
	ts := startTestServer(t)

	mikaID, mika := registerUser(t, ts, "mika@example.com")
	anaID, ana := registerUser(t, ts, "ana@example.com")
	makeFriends(t, ts, mika, ana, anaID)

	conv := postJSON(t, ts, "/api/v1/chats/", mika, fmt.Sprintf(`{"user_id": %q}`, anaID))
	chatID, _ := conv["id"].(string)

	mikaWS := dialRealtime(t, ts, mika, mikaID)
	anaWS := dialRealtime(t, ts, ana, anaID)
	waitForEvent(t, mikaWS, "user-status-change")

	sendEvent(t, mikaWS, "call-user", map[string]any{
		"callee_id": anaID,
		"room_id":   chatID,
		"offer":     map[string]any{"type": "offer", "sdp": "v=0"},
	})
	incoming := waitForEvent(t, anaWS, "incoming-call")
	callID, _ := incoming["call_id"].(string)

	sendEvent(t, anaWS, "reject-call", map[string]any{"call_id": callID})
	rejected := waitForEvent(t, mikaWS, "call-rejected")
	if rejected["call_id"] != callID {
		t.Errorf("unexpected call id in call-rejected: %v", rejected)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		calls, _ := getJSON(t, ts, "/api/v1/calls", mika)["calls"].([]any)
		if len(calls) == 1 {
			entry := calls[0].(map[string]any)
			if entry["state"] != "rejected" {
				t.Errorf("expected rejected state, got %v", entry["state"])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("rejected call never archived")
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	ts := startTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime/v1/websocket"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 response, got %v", resp)
	}
}
