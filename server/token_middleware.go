package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/localfirst/syncd/errors"
	"github.com/localfirst/syncd/generates"
	"github.com/localfirst/syncd/permission"
)

const (
	ctxUserID       = "user_id"
	ctxSessionID    = "session_id"
	ctxAccessClaims = "access_claims"
	ctxAccessToken  = "access_token"
)

// TokenMiddleware validates the bearer access token and sets the caller in
// context. Revoked, rotated or expired tokens are rejected alike.
func (s *Server) TokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			s.writeError(c, errors.AccessUnauthorized("", "missing authorization header"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], s.Config.TokenType) || parts[1] == "" {
			s.writeError(c, errors.AccessUnauthorized("", "invalid authorization header format"))
			return
		}

		claims, ok := s.Manager.ValidateAccess(c.Request.Context(), parts[1])
		if !ok {
			s.writeError(c, errors.AccessUnauthorized("", "invalid access token"))
			return
		}

		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxSessionID, claims.GroupID)
		c.Set(ctxAccessClaims, claims)
		c.Set(ctxAccessToken, parts[1])
		c.Next()
	}
}

// GetUserIDFromContext retrieves the user ID from the gin context.
// Returns empty string if not found.
func GetUserIDFromContext(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// GetSessionIDFromContext retrieves the session group of the access token.
func GetSessionIDFromContext(c *gin.Context) string {
	return c.GetString(ctxSessionID)
}

// GetClaimsFromContext retrieves the validated access claims, or nil.
func GetClaimsFromContext(c *gin.Context) *generates.AccessClaims {
	if v, exists := c.Get(ctxAccessClaims); exists {
		if claims, ok := v.(*generates.AccessClaims); ok {
			return claims
		}
	}
	return nil
}

// requestingUser builds the gate input from the access claims. The role is
// resolved on every request so role table changes apply immediately.
func (s *Server) requestingUser(c *gin.Context) permission.RequestingUser {
	claims := GetClaimsFromContext(c)
	if claims == nil {
		return permission.RequestingUser{Permissions: permission.Set{}}
	}
	u := permission.RequestingUser{
		ID:          claims.Subject,
		Permissions: s.Resolver.Resolve(claims.Role),
	}
	if claims.IsVerified && claims.IssuedAt != nil {
		at := claims.IssuedAt.Time
		u.VerifiedAt = &at
	}
	return u
}
