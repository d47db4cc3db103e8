package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewGinEngine builds a Gin router and registers every route.
func NewGinEngine(s *Server) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	// The upgrade handler checks path, origin and ticket itself.
	if s.sync != nil {
		r.GET(s.syncPath, gin.WrapH(s.sync))
	}

	api := r.Group("/v1")
	api.Use(maxBodyMiddleware(s.Config.MaxBodyBytes))

	api.POST("/auth/login", s.HandleLoginGin)
	api.POST("/auth/refresh", s.HandleRefreshGin)

	// Bearer routes. TokenMiddleware sets user_id, session_id and claims in context.
	authed := api.Group("")
	authed.Use(s.TokenMiddleware())

	authed.POST("/auth/logout", s.HandleLogoutGin)
	authed.POST("/sync/ticket", s.HandleTicketGin)

	readUser := s.RequireAccess(AccessRule{
		UserScoped:                    []string{"users:read"},
		Unscoped:                      []string{"users:read:all"},
		AllowUnverifiedRequestingUser: true,
		AllowUnverifiedTargetUser:     true,
	})
	authed.GET("/users/:userId", readUser, s.HandleGetUserGin)
	authed.GET("/users/:userId/permissions", readUser, s.HandleGetUserPermissionsGin)
	authed.POST("/users/:userId/disconnect", s.RequireAccess(AccessRule{
		UserScoped: []string{"sessions:delete"},
		Unscoped:   []string{"sessions:delete:all"},
	}), s.HandleDisconnectUserGin)

	return r
}

// requestLogger logs request metadata only, never bodies.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		)
	}
}

func maxBodyMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
