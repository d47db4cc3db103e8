package generates

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/localfirst/syncd/errors"
)

// Token types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrUnsupportedMethod = errors.New("unsupported sign method")
	ErrInvalidToken      = errors.New("invalid token")
)

// SessionClaims are the claims shared by access and refresh tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	GroupID   string `json:"gid"`
	CounterID int64  `json:"cid"`
	Type      string `json:"type"`
}

// AccessClaims jwt claims of an access token.
type AccessClaims struct {
	SessionClaims
	IsVerified bool   `json:"isVerified"`
	Role       string `json:"role"`
}

// RefreshClaims jwt claims of a refresh token.
type RefreshClaims struct {
	SessionClaims
}

// Session exposes the shared claims of either token variant.
type Session interface {
	jwt.Claims
	Session() *SessionClaims
}

func (c *SessionClaims) Session() *SessionClaims { return c }

// NewJWTGenerate create to generate the jwt token instance
func NewJWTGenerate(issuer, audience string, key []byte, method jwt.SigningMethod) *JWTGenerate {
	return &JWTGenerate{
		Issuer:       issuer,
		Audience:     audience,
		SignedKey:    key,
		SignedMethod: method,
	}
}

// JWTGenerate signs and verifies one kind of token with one HMAC secret.
type JWTGenerate struct {
	Issuer       string
	Audience     string
	SignedKey    []byte
	SignedMethod jwt.SigningMethod
}

// Stamp fills the registered claims for a token issued at now.
func (g *JWTGenerate) Stamp(c *SessionClaims, subject string, now time.Time, ttl time.Duration) {
	c.Issuer = g.Issuer
	c.Audience = jwt.ClaimStrings{g.Audience}
	c.Subject = subject
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
}

// Token signs the claims.
func (g *JWTGenerate) Token(claims jwt.Claims) (string, error) {
	if !g.isHs() {
		return "", ErrUnsupportedMethod
	}
	token := jwt.NewWithClaims(g.SignedMethod, claims)
	return token.SignedString(g.SignedKey)
}

// Parse verifies signature, algorithm, issuer, audience, expiry and the
// token type. now supplies the verification clock.
func (g *JWTGenerate) Parse(tokenString string, claims Session, wantType string, now func() time.Time) error {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != g.SignedMethod.Alg() {
			return nil, ErrUnsupportedMethod
		}
		return g.SignedKey, nil
	},
		jwt.WithValidMethods([]string{g.SignedMethod.Alg()}),
		jwt.WithIssuer(g.Issuer),
		jwt.WithAudience(g.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	s := claims.Session()
	if s.Type != wantType || s.GroupID == "" || s.CounterID < 1 || s.Subject == "" {
		return ErrInvalidToken
	}
	return nil
}

func (g *JWTGenerate) isHs() bool {
	return g.SignedMethod != nil && strings.HasPrefix(g.SignedMethod.Alg(), "HS")
}
