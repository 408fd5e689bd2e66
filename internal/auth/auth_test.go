package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestAuthenticate(t *testing.T) {
	m := NewJWTMiddleware(testSecret)
	var seen *Claims
	h := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(t, "other", Claims{Sub: "u1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, testSecret, Claims{Sub: "u1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: past}}), http.StatusUnauthorized},
		{"no subject", "Bearer " + sign(t, testSecret, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}), http.StatusUnauthorized},
		{"valid", "Bearer " + sign(t, testSecret, Claims{Sub: "u1", Email: "a@b.c", Role: "reviewer", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && (seen == nil || seen.Sub != "u1" || seen.Role != "reviewer") {
				t.Fatalf("claims not propagated: %+v", seen)
			}
		})
	}
}

func TestRejectsNonHMAC(t *testing.T) {
	m := NewJWTMiddleware(testSecret)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Sub: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Parse(tok); err == nil {
		t.Fatal("expected alg none to be rejected")
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireRole(RoleReviewer)(ok)

	tests := []struct {
		name   string
		claims *Claims
		want   int
	}{
		{"no claims", nil, http.StatusForbidden},
		{"viewer", &Claims{Sub: "u", Role: "viewer"}, http.StatusForbidden},
		{"unknown", &Claims{Sub: "u", Role: "root"}, http.StatusForbidden},
		{"reviewer", &Claims{Sub: "u", Role: "reviewer"}, http.StatusOK},
		{"admin", &Claims{Sub: "u", Role: "admin"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestWebsocketQueryToken(t *testing.T) {
	m := NewJWTMiddleware(testSecret)
	tok := sign(t, testSecret, Claims{Sub: "u1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})
	h := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+tok, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("plain request with query token: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?access_token="+tok, nil)
	req.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upgrade with query token: status = %d", rec.Code)
	}
}
