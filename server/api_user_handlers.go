package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/localfirst/syncd/dto"
	"github.com/localfirst/syncd/events"
)

// HandleGetUserGin returns the account of a user.
func (s *Server) HandleGetUserGin(c *gin.Context) {
	u, err := s.Users.GetByID(c.Request.Context(), c.Param("userId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromUser(u))
}

// HandleGetUserPermissionsGin returns the effective permissions of a user.
// For the caller itself the answer comes from the access token, so an
// unverified account can always learn its own state.
func (s *Server) HandleGetUserPermissionsGin(c *gin.Context) {
	target := c.Param("userId")
	resp := dto.PermissionsResponse{UserID: target}

	if claims := GetClaimsFromContext(c); claims != nil && claims.Subject == target {
		resp.Role, resp.Verified = claims.Role, claims.IsVerified
	} else {
		u, err := s.Users.GetByID(c.Request.Context(), target)
		if err != nil {
			s.writeError(c, err)
			return
		}
		resp.Role, resp.Verified = u.Role, u.IsVerified()
	}
	resp.Permissions = s.Resolver.Resolve(resp.Role).Strings()
	c.JSON(http.StatusOK, resp)
}

// HandleDisconnectUserGin closes every real-time connection of the user.
func (s *Server) HandleDisconnectUserGin(c *gin.Context) {
	s.publish(c.Request.Context(), events.Event{
		Type:   events.UserDisconnect,
		UserID: c.Param("userId"),
	})
	c.Status(http.StatusNoContent)
}
