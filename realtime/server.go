package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/clock"
	"github.com/localfirst/syncd/manage"
	"go.uber.org/zap"
)

// TicketRedeemer consumes connection tickets. manage.TicketIssuer is one.
type TicketRedeemer interface {
	Redeem(ctx context.Context, ticket string) (*manage.TicketRecord, error)
}

// VaultOwnership checks that a user owns every listed vault.
// store.VaultStore is one.
type VaultOwnership interface {
	CheckOwnership(ctx context.Context, userID string, vaultIDs []string) error
}

// Config tunes the upgrade endpoint and the per-connection loops.
type Config struct {
	Path           string
	AllowedOrigins []string
	// ProtocolPrefix is the part of the subprotocol before ".<ticket>".
	ProtocolPrefix string

	SendBuffer     int
	MaxMessageSize int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	// RefreshLead is how long before expiry refresh-ticket is sent.
	RefreshLead   time.Duration
	LookupTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Path:           "/sync",
		ProtocolPrefix: "syncd",
		SendBuffer:     64,
		MaxMessageSize: 64 * 1024,
		PingPeriod:     50 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		RefreshLead:    time.Minute,
		LookupTimeout:  5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.ProtocolPrefix == "" {
		c.ProtocolPrefix = d.ProtocolPrefix
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.RefreshLead <= 0 {
		c.RefreshLead = d.RefreshLead
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = d.LookupTimeout
	}
	return c
}

// Server is the /sync upgrade endpoint plus the hub it feeds.
type Server struct {
	cfg      Config
	hub      *Hub
	tickets  TicketRedeemer
	vaults   VaultOwnership
	origins  map[string]struct{}
	upgrader websocket.Upgrader
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *Metrics
}

// Option configures a Server.
type Option func(*Server)

func WithClock(c clock.Clock) Option { return func(s *Server) { s.clock = c } }
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }
func WithMetrics(m *Metrics) Option { return func(s *Server) { s.metrics = m } }

// NewServer creates the delivery engine.
func NewServer(cfg Config, tickets TicketRedeemer, vaults VaultOwnership, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg.withDefaults(),
		tickets: tickets,
		vaults:  vaults,
		clock:   clock.WallClock,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	s.origins = make(map[string]struct{}, len(s.cfg.AllowedOrigins))
	for _, o := range s.cfg.AllowedOrigins {
		s.origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	s.hub = NewHub(s.metrics, s.logger)
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: s.cfg.WriteWait,
		// Origin is checked before the upgrade.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return s
}

// Hub returns the hub; its Dispatch method is the action callback.
func (s *Server) Hub() *Hub { return s.hub }

// Path returns the configured upgrade path.
func (s *Server) Path() string { return s.cfg.Path }

// ticketFromProtocols returns the subprotocol carrying the ticket and the
// ticket itself.
func (s *Server) ticketFromProtocols(r *http.Request) (string, string, bool) {
	prefix := s.cfg.ProtocolPrefix + "."
	for _, p := range websocket.Subprotocols(r) {
		if strings.HasPrefix(p, prefix) && len(p) > len(prefix) {
			return p, p[len(prefix):], true
		}
	}
	return "", "", false
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.cfg.Path {
		s.reject(w, rejectPath)
		return
	}
	if _, ok := s.origins[strings.TrimRight(r.Header.Get("Origin"), "/")]; !ok {
		s.reject(w, rejectOrigin)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		s.reject(w, rejectProtocol)
		return
	}
	protocol, ticket, ok := s.ticketFromProtocols(r)
	if !ok {
		s.reject(w, rejectProtocol)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.LookupTimeout)
	rec, err := s.tickets.Redeem(ctx, ticket)
	cancel()
	if err != nil {
		s.logger.Debug("upgrade ticket refused", zap.Error(err))
		s.reject(w, rejectTicket)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, http.Header{"Sec-Websocket-Protocol": {protocol}})
	if err != nil {
		// Upgrade already answered the request.
		s.metrics.Rejected.WithLabelValues(rejectUpgrade).Inc()
		return
	}

	c := newConn(s, ws, rec.SessionID, rec.UserID, rec.ConnectionExpiry)
	c.enqueueEvent(Welcome(c.sessionID, c.userID, c.expiry))
	s.hub.register(c)
	go c.writeLoop()
	go c.readLoop()
}

// reject tears the raw connection down without an HTTP response.
func (s *Server) reject(w http.ResponseWriter, reason string) {
	s.metrics.Rejected.WithLabelValues(reason).Inc()
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	netConn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	_ = netConn.Close()
}
