package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesKindAndIdentifier(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", AccessForbidden(IdentifierAuthNotVerified, "caller %s", "u1"))
	if !errors.Is(err, AccessForbidden(IdentifierAuthNotVerified, "")) {
		t.Fatal("expected wrapped error to match sentinel")
	}
	if errors.Is(err, AccessForbidden(IdentifierAccessForbidden, "")) {
		t.Fatal("different identifier must not match")
	}
	if errors.Is(err, RequestInvalid(IdentifierAuthNotVerified, "")) {
		t.Fatal("different kind must not match")
	}
}

func TestIsAccessError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{AccessUnauthorized("", "x"), true},
		{AccessForbidden("", "x"), true},
		{RequestInvalid("", "x"), false},
		{System(errors.New("boom"), "store"), false},
		{errors.New("plain"), false},
	}
	for _, c := range cases {
		if got := IsAccessError(c.err); got != c.want {
			t.Fatalf("IsAccessError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestResponseForHidesSystemDetail(t *testing.T) {
	resp := ResponseFor(System(errors.New("dial tcp: refused"), "store unavailable"))
	if resp.StatusCode != http.StatusInternalServerError || resp.Description != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	resp = ResponseFor(errors.New("foreign"))
	if resp.Error != IdentifierSystemError {
		t.Fatalf("unexpected identifier %q", resp.Error)
	}
	resp = ResponseFor(RequestInvalid(IdentifierUserNotVerified, "target not verified"))
	if resp.StatusCode != http.StatusBadRequest || resp.Error != IdentifierUserNotVerified {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRateLimitedStatus(t *testing.T) {
	resp := ResponseFor(RateLimited("retry in %s", "1s"))
	if resp.StatusCode != http.StatusTooManyRequests || resp.Error != IdentifierRateLimited {
		t.Fatalf("unexpected response %+v", resp)
	}
	if KindRateLimited.String() != "rate_limited" {
		t.Fatalf("unexpected kind name %q", KindRateLimited.String())
	}
}
