package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yooproctor/internal/utils"
)

// Roles come from app_metadata.role in the token; see JWTAuth.
const (
	RoleCandidate = "candidate"
	RoleReviewer  = "reviewer"
	RoleAdmin     = "admin"
)

func normalizeRole(r string) string { return strings.ToLower(strings.TrimSpace(r)) }

// RequireRole must run after JWTAuth.
func RequireRole(allowed ...string) gin.HandlerFunc {
	allow := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		if a = normalizeRole(a); a != "" {
			allow[a] = true
		}
	}

	return func(c *gin.Context) {
		if !allow[normalizeRole(c.GetString("role"))] {
			c.AbortWithStatusJSON(http.StatusForbidden, apiError{
				Code:    utils.CodeForbidden,
				Message: "forbidden",
			})
			return
		}
		c.Next()
	}
}

// RequireReviewer admits hiring staff who review recordings.
func RequireReviewer() gin.HandlerFunc { return RequireRole(RoleReviewer, RoleAdmin) }
