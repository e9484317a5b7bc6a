package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/domain"
)

func authConfig() config.Config {
	return config.Config{AuthEnabled: true, SessionCookieName: "docvault_session"}
}

func TestAuthDisabledUsesAnonymousUser(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var user domain.User
	decodeBody(t, res, &user)
	if user.ID != "" || user.DisplayName != "anonymous" {
		t.Fatalf("unexpected anonymous user: %+v", user)
	}
}

func TestAuthEnabledRejectsMissingToken(t *testing.T) {
	handler := newTestHandler(authConfig())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/files", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestAuthEnabledAcceptsBearerToken(t *testing.T) {
	svc := newTestServices()
	handler := newTestHandlerWith(authConfig(), svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if svc.catalog.lastQuery.UserID != "user-1" {
		t.Fatalf("expected query scoped to user-1, got %q", svc.catalog.lastQuery.UserID)
	}
}

func TestAuthEnabledAcceptsSessionCookie(t *testing.T) {
	handler := newTestHandler(authConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "docvault_session", Value: "valid-token"})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestLoginSetsCookieAndLogoutClearsIt(t *testing.T) {
	svc := newTestServices()
	handler := newTestHandlerWith(authConfig(), svc)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"email":"a@example.com","password":"correct-password"}`)))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	cookies := res.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "tok-1" || !cookies[0].HttpOnly {
		t.Fatalf("unexpected login cookies: %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if _, ok := svc.auth.tokens["tok-1"]; ok {
		t.Fatalf("expected session removed on logout")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	handler := newTestHandler(authConfig())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"email":"a@example.com","password":"nope"}`)))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestRegisterHidesPasswordHashAndMapsConflict(t *testing.T) {
	handler := newTestHandler(authConfig())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/auth/register",
		strings.NewReader(`{"email":"new@example.com","password":"long-enough","display_name":"New"}`)))
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "secret-hash") {
		t.Fatalf("password hash leaked: %s", res.Body.String())
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/auth/register",
		strings.NewReader(`{"email":"taken@example.com","password":"long-enough"}`)))
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}
