package httpadapter

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type userContextKey struct{}

// anonymousUser is the identity of every request when auth is disabled. Its empty id
// makes repositories return all rows.
var anonymousUser = &domain.User{DisplayName: "anonymous"}

func userFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userContextKey{}).(*domain.User)
	if user == nil {
		return anonymousUser
	}
	return user
}

func userIDFromContext(ctx context.Context) string {
	return userFromContext(ctx).ID
}

func (rt *Router) authenticated(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rt.cfg.AuthEnabled {
			h(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, anonymousUser)))
			return
		}

		user, err := rt.svc.Auth.Authenticate(r.Context(), sessionToken(r, rt.cfg.SessionCookieName))
		if err != nil {
			writeError(w, r, err)
			return
		}
		setLogUserID(r.Context(), user.ID)
		h(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
	})
}

// sessionToken reads a bearer token first and falls back to the session cookie.
func sessionToken(r *http.Request, cookieName string) string {
	const bearerPrefix = "Bearer "
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	}
	if cookieName == "" {
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func (rt *Router) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	user, err := rt.svc.Auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (rt *Router) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	session, err := rt.svc.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.cfg.SessionCookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     rt.cfg.SessionCookieName,
			Value:    session.Token,
			Path:     "/",
			Expires:  session.ExpiresAt,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) logout(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Auth.Logout(r.Context(), sessionToken(r, rt.cfg.SessionCookieName)); err != nil {
		writeError(w, r, err)
		return
	}
	if rt.cfg.SessionCookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     rt.cfg.SessionCookieName,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFromContext(r.Context()))
}
