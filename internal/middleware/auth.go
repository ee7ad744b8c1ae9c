package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/parlorhq/parlor/internal/auth"
	"github.com/parlorhq/parlor/internal/store"
)

const sessionCookieName = "parlor_session"

// SessionCookieName is exported for handlers that set or clear the cookie.
const SessionCookieName = sessionCookieName

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

func resolveSession(r *http.Request, sessionStore *store.SessionStore, userStore *store.UserStore) (auth.AuthContext, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return auth.AuthContext{}, false
	}

	sess, err := sessionStore.GetByToken(cookie.Value)
	if err != nil || sess == nil {
		return auth.AuthContext{}, false
	}

	user, err := userStore.GetByID(sess.UserID)
	if err != nil || user == nil || user.Suspended() {
		return auth.AuthContext{}, false
	}

	perms, err := userStore.Permissions(user.Role)
	if err != nil {
		return auth.AuthContext{}, false
	}

	return auth.AuthContext{
		UserID:      user.ID,
		Role:        user.Role,
		SessionID:   sess.ID,
		Permissions: perms,
	}, true
}

// RequireAuth validates the session cookie and populates AuthContext,
// rejecting unauthenticated requests with a 401 JSON body.
func RequireAuth(sessionStore *store.SessionStore, userStore *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := resolveSession(r, sessionStore, userStore)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// OptionalAuth populates AuthContext when a valid session cookie is present
// and passes the request through anonymously otherwise. Endpoints that
// degrade gracefully for anonymous callers (puzzle check-played, public
// listings) sit behind this instead of RequireAuth.
func OptionalAuth(sessionStore *store.SessionStore, userStore *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ac, ok := resolveSession(r, sessionStore, userStore); ok {
				r = r.WithContext(auth.WithAuth(r.Context(), ac))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission enforces a single named capability. It assumes
// RequireAuth already ran.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Can(r.Context(), permission) {
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
