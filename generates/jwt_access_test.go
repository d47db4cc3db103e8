package generates

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestGenerate(key string) *JWTGenerate {
	return NewJWTGenerate("syncd", "syncd-clients", []byte(key), jwt.SigningMethodHS256)
}

func signAccess(t *testing.T, g *JWTGenerate, now time.Time, ttl time.Duration) string {
	t.Helper()
	claims := &AccessClaims{
		SessionClaims: SessionClaims{GroupID: "g1", CounterID: 1, Type: TypeAccess},
		IsVerified:    true,
		Role:          "user",
	}
	g.Stamp(&claims.SessionClaims, "u1", now, ttl)
	token, err := g.Token(claims)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	return token
}

func TestTokenRoundTrip(t *testing.T) {
	g := newTestGenerate("access-secret")
	now := time.Now()
	token := signAccess(t, g, now, time.Minute)

	var got AccessClaims
	if err := g.Parse(token, &got, TypeAccess, func() time.Time { return now }); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Subject != "u1" || got.GroupID != "g1" || got.CounterID != 1 || !got.IsVerified || got.Role != "user" {
		t.Fatalf("unexpected claims %+v", got)
	}
}

func TestParseRejects(t *testing.T) {
	g := newTestGenerate("access-secret")
	now := time.Now()
	token := signAccess(t, g, now, time.Minute)
	clock := func() time.Time { return now }

	var c AccessClaims
	if err := newTestGenerate("other-secret").Parse(token, &c, TypeAccess, clock); err == nil {
		t.Fatal("expected failure with a different secret")
	}
	var r RefreshClaims
	if err := g.Parse(token, &r, TypeRefresh, clock); err == nil {
		t.Fatal("expected failure for the wrong token type")
	}
	later := func() time.Time { return now.Add(2 * time.Minute) }
	if err := g.Parse(token, &c, TypeAccess, later); err == nil {
		t.Fatal("expected failure after expiry")
	}
	other := NewJWTGenerate("syncd", "someone-else", []byte("access-secret"), jwt.SigningMethodHS256)
	if err := other.Parse(token, &c, TypeAccess, clock); err == nil {
		t.Fatal("expected failure for the wrong audience")
	}
	if err := g.Parse("", &c, TypeAccess, clock); err == nil {
		t.Fatal("expected failure for empty token")
	}
	if err := g.Parse("not.a.jwt", &c, TypeAccess, clock); err == nil {
		t.Fatal("expected failure for garbage")
	}
}

func TestTokenRejectsNonHMAC(t *testing.T) {
	g := NewJWTGenerate("syncd", "syncd-clients", []byte("k"), jwt.SigningMethodRS256)
	if _, err := g.Token(&RefreshClaims{}); err != ErrUnsupportedMethod {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}
