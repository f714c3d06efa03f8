// internal/server/https_test.go
package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		domain  string
		wantErr bool
		errMsg  string
	}{
		{"example.com", false, ""},
		{"chat.example.com", false, ""},
		{"my-site.example.com", false, ""},

		{"", true, "domain required"},

		{"localhost", true, "public domain"},
		{"LOCALHOST", true, "public domain"},

		{"127.0.0.1", true, "domain name, not an IP"},
		{"192.168.1.1", true, "domain name, not an IP"},
		{"::1", true, "domain name, not an IP"},
		{"2001:db8::1", true, "domain name, not an IP"},

		{"example..com", true, "invalid domain"},
		{".example.com", true, "invalid domain"},
		{"example.com.", true, "invalid domain"},
		{"-example.com", true, "invalid domain"},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			err := ValidateDomain(tt.domain)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ValidateDomain(%q) expected error containing %q, got nil", tt.domain, tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateDomain(%q) error = %q, want containing %q", tt.domain, err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("ValidateDomain(%q) unexpected error: %v", tt.domain, err)
			}
		})
	}
}

func TestHTTPRedirectHandler(t *testing.T) {
	handler := HTTPRedirectHandler("chat.example.com")

	req := httptest.NewRequest("GET", "http://chat.example.com/api/v1/profile?x=1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusMovedPermanently {
		t.Errorf("expected status 301, got %d", w.Code)
	}
	loc := w.Header().Get("Location")
	if loc != "https://chat.example.com/api/v1/profile?x=1" {
		t.Errorf("unexpected redirect target: %s", loc)
	}
}
