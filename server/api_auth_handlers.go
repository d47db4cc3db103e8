package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/localfirst/syncd/dto"
	"github.com/localfirst/syncd/errors"
	"github.com/localfirst/syncd/events"
	"github.com/localfirst/syncd/manage"
	"github.com/localfirst/syncd/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// HandleLoginGin checks email and password and starts a new session group.
func (s *Server) HandleLoginGin(c *gin.Context) {
	var payload dto.LoginRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.writeError(c, errors.RequestInvalid("", "invalid JSON payload"))
		return
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		s.writeError(c, errors.RequestInvalid("", "email and password are required"))
		return
	}

	ctx := c.Request.Context()
	u, err := s.Users.GetByEmail(ctx, models.NormalizeEmail(payload.Email))
	if err != nil {
		if errors.KindOf(err) == errors.KindResourceNotFound {
			s.writeError(c, errors.AccessUnauthorized("", "invalid email or password"))
			return
		}
		s.writeError(c, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(payload.Password)) != nil {
		s.writeError(c, errors.AccessUnauthorized("", "invalid email or password"))
		return
	}

	pair, err := s.Manager.IssueNewPair(ctx, identityOf(u))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.logger.Info("login", zap.String("user_id", u.ID), zap.String("session_id", pair.SessionID))
	s.token(c, pair)
}

// HandleRefreshGin rotates a session group. The user is re-read so role and
// verification changes show up in the new access token.
func (s *Server) HandleRefreshGin(c *gin.Context) {
	var payload dto.RefreshRequest
	if err := c.ShouldBindJSON(&payload); err != nil || payload.RefreshToken == "" {
		s.writeError(c, errors.RequestInvalid("", "refreshToken is required"))
		return
	}

	ctx := c.Request.Context()
	claims, ok := s.Manager.ValidateRefresh(ctx, payload.RefreshToken)
	if !ok {
		s.writeError(c, errors.AccessUnauthorized("", "invalid refresh token"))
		return
	}
	u, err := s.Users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.KindOf(err) == errors.KindResourceNotFound {
			s.writeError(c, errors.AccessUnauthorized("", "invalid refresh token"))
			return
		}
		s.writeError(c, err)
		return
	}

	pair, err := s.Manager.Rotate(ctx, identityOf(u), claims.GroupID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.token(c, pair)
}

// HandleLogoutGin revokes the caller's session group and closes its
// real-time connection.
func (s *Server) HandleLogoutGin(c *gin.Context) {
	ctx := c.Request.Context()
	gid := GetSessionIDFromContext(c)
	expiry := s.Manager.Clock().Now().Add(s.Manager.Config().RefreshTTL)
	if err := s.Manager.RevokeGroup(ctx, gid, expiry); err != nil {
		s.writeError(c, err)
		return
	}
	s.publish(ctx, events.Event{
		Type:            events.AuthLogout,
		UserID:          GetUserIDFromContext(c),
		OriginSessionID: gid,
	})
	c.Status(http.StatusNoContent)
}

// HandleTicketGin issues a connection ticket for the caller's session.
func (s *Server) HandleTicketGin(c *gin.Context) {
	if !s.limiter.allow(GetUserIDFromContext(c)) {
		c.Header("Retry-After", retryAfter(s.Config))
		s.writeError(c, errors.RateLimited("too many ticket requests"))
		return
	}
	t, err := s.Tickets.RequestTicket(c.Request.Context(), c.GetString(ctxAccessToken))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.token(c, t)
}

func identityOf(u *models.User) manage.Identity {
	return manage.Identity{UserID: u.ID, Role: u.Role, Verified: u.IsVerified()}
}

func retryAfter(cfg *Config) string {
	secs := int(cfg.TicketEvery.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// publish hands ev to the bus and waits for subscribers, bounded by ctx.
func (s *Server) publish(ctx context.Context, ev events.Event) {
	if s.Bus == nil {
		return
	}
	select {
	case <-s.Bus.Publish(ev):
	case <-ctx.Done():
		s.logger.Warn("event delivery abandoned", zap.String("type", string(ev.Type)), zap.Error(ctx.Err()))
	}
}
