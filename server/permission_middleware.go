package server

import (
	"github.com/gin-gonic/gin"
	"github.com/localfirst/syncd/permission"
)

// AccessRule describes who may call a route that targets a user.
type AccessRule struct {
	// TargetParam names the path parameter holding the target user id.
	TargetParam string
	// UserScoped grant access when the target is the caller.
	UserScoped []string
	// Unscoped grant access regardless of the target.
	Unscoped []string

	AllowUnverifiedRequestingUser bool
	AllowUnverifiedTargetUser     bool
}

func mustPermissions(names []string) []permission.Permission {
	out := make([]permission.Permission, 0, len(names))
	for _, n := range names {
		out = append(out, permission.MustValueOf(n))
	}
	return out
}

// RequireAccess returns a middleware that runs the access control gate
// before handler execution. It must be chained after TokenMiddleware.
// Permission strings are parsed once, so a typo panics at route setup.
func (s *Server) RequireAccess(rule AccessRule) gin.HandlerFunc {
	if rule.TargetParam == "" {
		rule.TargetParam = "userId"
	}
	userScoped := mustPermissions(rule.UserScoped)
	unscoped := mustPermissions(rule.Unscoped)

	return func(c *gin.Context) {
		var lookup permission.TargetLookup
		if s.Users != nil {
			lookup = s.Users.IsVerified
		}
		err := permission.Check(c.Request.Context(), permission.CheckOptions{
			UserScopedPermissions:         userScoped,
			UnscopedPermissions:           unscoped,
			RequestingUser:                s.requestingUser(c),
			TargetUserID:                  c.Param(rule.TargetParam),
			TargetLookup:                  lookup,
			AllowUnverifiedRequestingUser: rule.AllowUnverifiedRequestingUser,
			AllowUnverifiedTargetUser:     rule.AllowUnverifiedTargetUser,
		})
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.Next()
	}
}
