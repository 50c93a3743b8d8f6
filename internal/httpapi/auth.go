package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Permission names a capability checked per route.
type Permission string

const (
	PermView   Permission = "timekeeping.view"
	PermManage Permission = "timekeeping.manage"
)

// Roles recognised in api_tokens.
const (
	RoleViewer  = "viewer"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

var rolePermissions = map[string][]Permission{
	RoleViewer:  {PermView},
	RoleManager: {PermView, PermManage},
	RoleAdmin:   {PermView, PermManage},
}

type tokenRole struct {
	token []byte
	role  string
}

// Authorizer maps bearer tokens to roles. An Authorizer without tokens
// allows every request.
type Authorizer struct {
	tokens []tokenRole
}

// NewAuthorizer takes a token -> role map.
func NewAuthorizer(tokens map[string]string) *Authorizer {
	a := &Authorizer{tokens: make([]tokenRole, 0, len(tokens))}
	for tok, role := range tokens {
		a.tokens = append(a.tokens, tokenRole{token: []byte(tok), role: role})
	}
	return a
}

// Role returns the role bound to token. Every configured token is compared
// in constant time, whether or not an earlier one matched.
func (a *Authorizer) Role(token string) (string, bool) {
	provided := []byte(token)
	role, found := "", false
	for _, tr := range a.tokens {
		if subtle.ConstantTimeCompare(provided, tr.token) == 1 && !found {
			role, found = tr.role, true
		}
	}
	return role, found
}

func (a *Authorizer) Enabled() bool { return a != nil && len(a.tokens) > 0 }

// Allows reports whether role grants perm.
func Allows(role string, perm Permission) bool {
	for _, p := range rolePermissions[strings.ToLower(role)] {
		if p == perm {
			return true
		}
	}
	return false
}

// Require rejects requests without a known bearer token (401) or whose role
// lacks perm (403).
func (a *Authorizer) Require(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ledgerwatch"`)
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			role, ok := a.Role(token)
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			if !Allows(role, perm) {
				writeError(w, r, http.StatusForbidden, "forbidden", "missing permission "+string(perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
