package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/AIVisibility/internal/database"
	"github.com/TobiSchelling/AIVisibility/internal/functions"
)

const (
	keyUserID = "user_id"
	keyEmail  = "email"
	keyRole   = "role"
)

// requireAuth validates the bearer token and stores the user on the
// context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortError(c, http.StatusUnauthorized, "Missing authorization header")
			return
		}
		token := header
		if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
			token = header[7:]
		}

		userID, claims, err := s.issuer.Verify(token)
		if err != nil {
			s.log.Debug("token rejected", "error", err)
			abortError(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		c.Set(keyUserID, userID.String())
		c.Set(keyEmail, claims.Email)
		c.Next()
	}
}

// activity refreshes the session when the client was idle past the stale
// threshold, then records the request as activity.
func (s *Server) activity() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.exec.EnsureFresh(c.Request.Context())
		s.exec.Touch()
		c.Next()
	}
}

// requireMember checks the user belongs to the company in the path.
func (s *Server) requireMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := s.functions.Authorize(c.Request.Context(), userID(c), c.Param("companyID"))
		if errors.Is(err, functions.ErrForbidden) {
			abortError(c, http.StatusForbidden, "Access denied to this company")
			return
		}
		if err != nil {
			s.internalError(c, err)
			return
		}
		c.Set(keyRole, role)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(keyRole) != database.RoleAdmin {
			abortError(c, http.StatusForbidden, "Read-only access to this company")
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(keyUserID)
}
