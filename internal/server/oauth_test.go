package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`)
	}))
}

func testOAuthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://127.0.0.1:8080/callback",
		Scopes:       []string{"playlist-modify-private"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/authorize",
			TokenURL: tokenURL,
		},
	}
}

func waitToken(t *testing.T, h *OAuthHandler) (*oauth2.Token, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.Wait(ctx)
}

func TestOAuthHandler(t *testing.T) {
	tokens := newTokenServer(t)
	defer tokens.Close()

	t.Run("exchanges the code", func(t *testing.T) {
		h := NewOAuthHandler(testOAuthConfig(tokens.URL), "state123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=state123&code=good-code", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "Spotify connected") {
			t.Error("expected success page")
		}
		token, err := waitToken(t, h)
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		if token.RefreshToken != "refresh" {
			t.Errorf("expected refresh token, got %+v", token)
		}
	})

	tests := []struct {
		name   string
		query  string
		status int
		errMsg string
	}{
		{"state mismatch", "state=other&code=good-code", http.StatusBadRequest, "invalid state"},
		{"denied", "state=state123&error=access_denied", http.StatusBadRequest, "access_denied"},
		{"bad code", "state=state123&code=bad-code", http.StatusInternalServerError, "token exchange failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOAuthHandler(testOAuthConfig(tokens.URL), "state123")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			_, err := waitToken(t, h)
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}

	t.Run("second callback rejected", func(t *testing.T) {
		h := NewOAuthHandler(testOAuthConfig(tokens.URL), "state123")
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=state123&code=good-code", nil))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=state123&code=good-code", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 on replay, got %d", rec.Code)
		}
	})

	t.Run("wait honours context", func(t *testing.T) {
		h := NewOAuthHandler(testOAuthConfig(tokens.URL), "state123")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := h.Wait(ctx); err == nil {
			t.Error("expected context error")
		}
	})

	t.Run("auth url carries state", func(t *testing.T) {
		h := NewOAuthHandler(testOAuthConfig(tokens.URL), "state123")
		if u := h.AuthCodeURL(); !strings.Contains(u, "state=state123") || !strings.Contains(u, "access_type=offline") {
			t.Errorf("unexpected auth url %s", u)
		}
	})
}

func TestNewState(t *testing.T) {
	a, err := NewState()
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}
	b, _ := NewState()
	if a == "" || a == b {
		t.Errorf("expected distinct non-empty states, got %q and %q", a, b)
	}
}
