package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/memberhub/memberhub/libs/auth"
)

func okHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/booking/dates", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRequireAuth_ValidToken(t *testing.T) {
	token, err := auth.SignHS256(auth.Claims{Sub: "member-1", Name: "Sam", Role: "member"}, "secret")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	var gotUser, gotRole string
	handler := requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-Id")
		gotRole = r.Header.Get("X-Role")
		w.WriteHeader(http.StatusOK)
	}), "secret", nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest(token))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser != "member-1" || gotRole != "member" {
		t.Fatalf("identity headers = (%q, %q), want (member-1, member)", gotUser, gotRole)
	}
}

func TestRequireAuth_BadSignatureRejected(t *testing.T) {
	token, err := auth.SignHS256(auth.Claims{Sub: "member-1", Role: "member"}, "wrong-secret")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	for _, tc := range []struct {
		name string
		jwks *auth.JWKSClient
	}{
		{name: "hs256 only"},
		{name: "jwks configured", jwks: auth.NewJWKSClient("http://127.0.0.1:0/jwks", time.Minute)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			handler := requireAuth(okHandler(t), "secret", tc.jwks)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, bearerRequest(token))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireAuth_StripsClientSuppliedIdentity(t *testing.T) {
	token, err := auth.SignHS256(auth.Claims{Sub: "member-1", Role: "member"}, "secret")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	var gotRole string
	handler := requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole = r.Header.Get("X-Role")
	}), "secret", nil)

	req := bearerRequest(token)
	req.Header.Set("X-Role", "admin")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotRole != "member" {
		t.Fatalf("X-Role = %q, want member from the token", gotRole)
	}
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	handler := requireAuth(okHandler(t), "secret", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/booking/dates", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	handler := requireRole(okHandler(t), "staff", "admin")

	for role, want := range map[string]int{
		"staff":  http.StatusOK,
		"admin":  http.StatusOK,
		"member": http.StatusForbidden,
		"":       http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/availability", nil)
		req.Header.Set("X-Role", role)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("role %q: status = %d, want %d", role, rec.Code, want)
		}
	}
}
