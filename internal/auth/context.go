package auth

import "context"

type contextKey struct{}

// AuthContext carries the authenticated identity and its resolved
// capabilities. Permissions are loaded once at session validation; handlers
// ask Can rather than comparing role names.
type AuthContext struct {
	UserID      int64
	Role        string
	SessionID   int64
	Permissions map[string]struct{}
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// UserID returns the authenticated user id, or 0 for anonymous requests.
func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// Can reports whether the request's identity holds the named permission.
// Anonymous requests hold none.
func Can(ctx context.Context, permission string) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	_, ok = ac.Permissions[permission]
	return ok
}
