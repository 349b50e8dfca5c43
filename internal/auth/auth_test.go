package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artl-app/artl-service/internal/models"
)

const testSecret = "0123456789abcdef0123"

func initAuth(t *testing.T) {
	t.Helper()
	if err := Init(testSecret, time.Hour); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func TestInitRejectsShortSecret(t *testing.T) {
	if err := Init("short", time.Hour); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	initAuth(t)

	token, expires, err := GenerateToken("ana")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Errorf("expires = %v, want in the future", expires)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "ana" {
		t.Errorf("username = %q", claims.Username)
	}

	if _, err := ValidateToken(token + "x"); err == nil {
		t.Error("tampered token accepted")
	}
}

func TestJWTMiddleware(t *testing.T) {
	initAuth(t)
	token, _, _ := GenerateToken("ana")

	var seen string
	h := JWTMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := GetClaimsFromContext(r.Context()); ok {
			seen = c.Username
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	testCases := []struct {
		name   string
		path   string
		header string
		want   int
		user   string
	}{
		{name: "public health", path: "/health", want: http.StatusNoContent},
		{name: "public login", path: "/api/login", want: http.StatusNoContent},
		{name: "missing token", path: "/api/state", want: http.StatusUnauthorized},
		{name: "bad token", path: "/api/state", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "bearer token", path: "/api/state", header: "Bearer " + token, want: http.StatusNoContent, user: "ana"},
		{name: "query token", path: "/api/state/stream?token=" + token, want: http.StatusNoContent, user: "ana"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
			if seen != tc.user {
				t.Errorf("claims user = %q, want %q", seen, tc.user)
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	initAuth(t)
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	a := NewAuthenticator([]models.UserConfig{{Username: "ana", PasswordHash: hash}})

	testCases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{name: "valid", method: http.MethodPost, body: `{"username":"ana","password":"s3cret"}`, want: http.StatusOK},
		{name: "wrong password", method: http.MethodPost, body: `{"username":"ana","password":"nope"}`, want: http.StatusUnauthorized},
		{name: "unknown user", method: http.MethodPost, body: `{"username":"bob","password":"s3cret"}`, want: http.StatusUnauthorized},
		{name: "missing fields", method: http.MethodPost, body: `{"username":"ana"}`, want: http.StatusBadRequest},
		{name: "bad json", method: http.MethodPost, body: `{`, want: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, want: http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/login", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			a.LoginHandler(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want != http.StatusOK {
				return
			}
			var resp LoginResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if _, err := ValidateToken(resp.Token); err != nil || resp.Username != "ana" {
				t.Errorf("response = %+v, token err %v", resp, err)
			}
		})
	}
}
