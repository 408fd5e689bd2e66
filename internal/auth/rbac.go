package auth

import (
	"net/http"
)

type Role string

const (
	RoleViewer   Role = "viewer"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// rank orders roles so that a higher role satisfies any lower requirement.
var rank = map[Role]int{
	RoleViewer:   1,
	RoleReviewer: 2,
	RoleAdmin:    3,
}

// Allows reports whether a token role satisfies min. Unknown roles satisfy nothing.
func Allows(role string, min Role) bool {
	have, ok := rank[Role(role)]
	if !ok {
		return false
	}
	return have >= rank[min]
}

// RequireRole rejects requests whose claims carry a role below min.
func RequireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := ClaimsFromContext(req.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "no claims in context")
				return
			}
			if !Allows(claims.Role, min) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
