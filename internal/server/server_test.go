// internal/server/server_test.go
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/markb/linglite/internal/db"
	"github.com/markb/linglite/internal/storage"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	path := t.TempDir() + "/test.db"
	database, err := db.New(path)
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	if err := database.RunMigrations(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return New(database, Config{
		JWTSecret: "test-secret-key-min-32-characters",
		StorageConfig: &storage.Config{
			Backend:       "local",
			LocalPath:     t.TempDir(),
			PublicBaseURL: "http://localhost:8080/storage/v1",
		},
	})
}

// signupAndLogin creates a user through the API and returns the user id and
// an access token.
func signupAndLogin(t *testing.T, srv *Server, email string) (string, string) {
	t.Helper()

	body := `{"email": "` + email + `", "password": "password123"}`
	req := httptest.NewRequest("POST", "/auth/v1/signup", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("signup failed: %d %s", w.Code, w.Body.String())
	}

	var signupResp map[string]any
	json.Unmarshal(w.Body.Bytes(), &signupResp)
	userID, _ := signupResp["id"].(string)
	if userID == "" {
		t.Fatalf("expected user id in signup response, got %s", w.Body.String())
	}

	req = httptest.NewRequest("POST", "/auth/v1/token?grant_type=password", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}

	var loginResp map[string]any
	json.Unmarshal(w.Body.Bytes(), &loginResp)
	token, _ := loginResp["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token in login response")
	}

	return userID, token
}

// doJSON performs an authenticated JSON request against the test server.
func doJSON(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, "GET", "/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", resp["status"])
	}
	if resp["realtime"] == nil {
		t.Error("expected realtime stats in health response")
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv := setupTestServer(t)

	paths := []struct {
		method, path string
	}{
		{"GET", "/api/v1/profile"},
		{"GET", "/api/v1/discover"},
		{"GET", "/api/v1/friends/"},
		{"GET", "/api/v1/chats/"},
		{"GET", "/api/v1/calls"},
	}

	for _, p := range paths {
		w := doJSON(t, srv, p.method, p.path, "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 without token, got %d", p.method, p.path, w.Code)
		}
	}
}
