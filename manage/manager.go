// Package manage issues, rotates, validates and revokes session tokens, and
// mints the short-lived tickets used to open a real-time connection.
package manage

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/localfirst/syncd/errors"
	"github.com/localfirst/syncd/generates"
	"github.com/localfirst/syncd/store"
	"go.uber.org/zap"
)

// Identity is the subject a token pair is issued for.
type Identity struct {
	UserID   string
	Role     string
	Verified bool
}

// TokenPair is an access/refresh pair sharing one session group.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	SessionID        string    `json:"sessionId"`
}

func counterKey(gid string) string   { return "cid-" + gid }
func blacklistKey(gid string) string { return "bl-" + gid }

// Manager is the token engine.
type Manager struct {
	cfg     Config
	store   store.ExpiringStore
	access  *generates.JWTGenerate
	refresh *generates.JWTGenerate
	clock   clock.Clock
	logger  *zap.Logger
}

// NewManager create to authorization management instance
func NewManager(cfg Config, st store.ExpiringStore) (*Manager, error) {
	cfg = cfg.withDefaults()
	if st == nil {
		return nil, errors.New("manage: expiring store is required")
	}
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("manage: access and refresh secrets are required")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("manage: access and refresh secrets must differ")
	}
	return &Manager{
		cfg:     cfg,
		store:   st,
		access:  generates.NewJWTGenerate(cfg.Issuer, cfg.Audience, cfg.AccessSecret, jwt.SigningMethodHS256),
		refresh: generates.NewJWTGenerate(cfg.Issuer, cfg.Audience, cfg.RefreshSecret, jwt.SigningMethodHS256),
		clock:   clock.WallClock,
		logger:  zap.NewNop(),
	}, nil
}

// MapClock mapping the clock used for signing and verification
func (m *Manager) MapClock(c clock.Clock) { m.clock = c }

// MapLogger mapping the logger
func (m *Manager) MapLogger(l *zap.Logger) { m.logger = l }

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Clock returns the clock in use.
func (m *Manager) Clock() clock.Clock { return m.clock }

func (m *Manager) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.StoreTimeout)
}

// IssueNewPair starts a new session group with counter 1.
func (m *Manager) IssueNewPair(ctx context.Context, id Identity) (*TokenPair, error) {
	if id.UserID == "" {
		return nil, errors.RequestInvalid("", "identity without user id")
	}
	gid := uuid.NewString()

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	if err := m.store.Set(sctx, counterKey(gid), "1", m.cfg.RefreshTTL); err != nil {
		return nil, errors.System(err, "store session counter")
	}
	return m.sign(id, gid, 1)
}

// Rotate advances the counter of gid and signs a new pair with it. Tokens
// carrying the previous counter stop validating.
func (m *Manager) Rotate(ctx context.Context, id Identity, gid string) (*TokenPair, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	cur, err := m.store.Get(sctx, counterKey(gid))
	if err == store.ErrNotFound {
		return nil, errors.System(nil, "unknown session group or rotation race")
	}
	if err != nil {
		return nil, errors.System(err, "read session counter")
	}
	n, err := strconv.ParseInt(cur, 10, 64)
	if err != nil || n < 1 {
		return nil, errors.System(err, "corrupt session counter %q", cur)
	}
	next := n + 1
	ok, err := m.store.CompareAndSwap(sctx, counterKey(gid), cur, strconv.FormatInt(next, 10), m.cfg.RefreshTTL)
	if err == store.ErrNotFound {
		return nil, errors.System(nil, "session group expired during rotation")
	}
	if err != nil {
		return nil, errors.System(err, "swap session counter")
	}
	if !ok {
		return nil, errors.System(nil, "concurrent rotation of session group")
	}
	return m.sign(id, gid, next)
}

func (m *Manager) sign(id Identity, gid string, cid int64) (*TokenPair, error) {
	now := m.clock.Now()

	ac := &generates.AccessClaims{IsVerified: id.Verified, Role: id.Role}
	ac.GroupID, ac.CounterID, ac.Type = gid, cid, generates.TypeAccess
	m.access.Stamp(&ac.SessionClaims, id.UserID, now, m.cfg.AccessTTL)
	access, err := m.access.Token(ac)
	if err != nil {
		return nil, errors.System(err, "sign access token")
	}

	rc := &generates.RefreshClaims{}
	rc.GroupID, rc.CounterID, rc.Type = gid, cid, generates.TypeRefresh
	m.refresh.Stamp(&rc.SessionClaims, id.UserID, now, m.cfg.RefreshTTL)
	refresh, err := m.refresh.Token(rc)
	if err != nil {
		return nil, errors.System(err, "sign refresh token")
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  ac.ExpiresAt.Time,
		RefreshExpiresAt: rc.ExpiresAt.Time,
		SessionID:        gid,
	}, nil
}

// ValidateAccess verifies an access token and its session group. Every
// failure reports false.
func (m *Manager) ValidateAccess(ctx context.Context, token string) (*generates.AccessClaims, bool) {
	claims := &generates.AccessClaims{}
	if err := m.access.Parse(token, claims, generates.TypeAccess, m.clock.Now); err != nil {
		return nil, false
	}
	if !m.groupValid(ctx, &claims.SessionClaims) {
		return nil, false
	}
	return claims, true
}

// ValidateRefresh verifies a refresh token and its session group. Every
// failure reports false.
func (m *Manager) ValidateRefresh(ctx context.Context, token string) (*generates.RefreshClaims, bool) {
	claims := &generates.RefreshClaims{}
	if err := m.refresh.Parse(token, claims, generates.TypeRefresh, m.clock.Now); err != nil {
		return nil, false
	}
	if !m.groupValid(ctx, &claims.SessionClaims) {
		return nil, false
	}
	return claims, true
}

func (m *Manager) groupValid(ctx context.Context, c *generates.SessionClaims) bool {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	revoked, err := m.store.Exists(sctx, blacklistKey(c.GroupID))
	if err != nil {
		m.logger.Warn("blacklist lookup failed", zap.String("session_id", c.GroupID), zap.Error(err))
		return false
	}
	if revoked {
		return false
	}
	cur, err := m.store.Get(sctx, counterKey(c.GroupID))
	if err != nil {
		if err != store.ErrNotFound {
			m.logger.Warn("counter lookup failed", zap.String("session_id", c.GroupID), zap.Error(err))
		}
		return false
	}
	return cur == strconv.FormatInt(c.CounterID, 10)
}

// RevokeGroup blacklists gid until expiry. An expiry in the past is a no-op
// since every token of the group has already expired.
func (m *Manager) RevokeGroup(ctx context.Context, gid string, expiry time.Time) error {
	if gid == "" {
		return errors.RequestInvalid("", "empty session group")
	}
	ttl := expiry.Sub(m.clock.Now())
	if ttl <= 0 {
		return nil
	}
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	if err := m.store.Set(sctx, blacklistKey(gid), "1", ttl); err != nil {
		return errors.System(err, "store revocation marker")
	}
	m.logger.Debug("session group revoked", zap.String("session_id", gid), zap.Duration("ttl", ttl))
	return nil
}

