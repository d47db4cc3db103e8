package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/localfirst/syncd/errors"
	"github.com/localfirst/syncd/events"
	"github.com/localfirst/syncd/manage"
	"github.com/localfirst/syncd/models"
	"github.com/localfirst/syncd/permission"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// UserDirectory looks up accounts. store.UserStore is one.
type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	IsVerified(ctx context.Context, userID string) (bool, error)
}

// NewServer create the HTTP server around the token engine.
func NewServer(cfg *Config, manager *manage.Manager, users UserDirectory, bus *events.Bus) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	srv := &Server{
		Config:   cfg,
		Manager:  manager,
		Tickets:  manage.NewTicketIssuer(manager),
		Resolver: permission.MustResolver(permission.DefaultTable()),
		Users:    users,
		Bus:      bus,
		logger:   zap.NewNop(),
	}
	srv.limiter = newUserLimiter(cfg.TicketEvery, cfg.TicketBurst, manager.Clock())
	return srv
}

// Server serves the session, ticket and user endpoints and mounts the
// real-time upgrade handler.
type Server struct {
	Config   *Config
	Manager  *manage.Manager
	Tickets  *manage.TicketIssuer
	Resolver *permission.Resolver
	Users    UserDirectory
	Bus      *events.Bus

	syncPath string
	sync     http.Handler
	gatherer prometheus.Gatherer
	limiter  *userLimiter
	logger   *zap.Logger
}

// SetRealtimeHandler mounts h, usually a *realtime.Server, at path.
func (s *Server) SetRealtimeHandler(path string, h http.Handler) {
	s.syncPath = path
	s.sync = h
}

// SetMetricsGatherer exposes g on /metrics.
func (s *Server) SetMetricsGatherer(g prometheus.Gatherer) {
	s.gatherer = g
}

// SetLogger set the request and handler logger
func (s *Server) SetLogger(l *zap.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetResolver replaces the default role table.
func (s *Server) SetResolver(r *permission.Resolver) {
	if r != nil {
		s.Resolver = r
	}
}

// writeError renders err as {"error","error_description"}. System faults
// are logged and answered without detail.
func (s *Server) writeError(c *gin.Context, err error) {
	resp := errors.ResponseFor(err)
	if resp.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(resp.StatusCode, resp)
}

// token writes a credential-bearing response that must not be cached.
func (s *Server) token(c *gin.Context, data any) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, data)
}
