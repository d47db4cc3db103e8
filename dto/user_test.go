package dto

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/localfirst/syncd/models"
)

func TestFromUserVerified(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	u := &models.User{ID: "u1", Email: "a@example.test", PasswordHash: "secret-hash", Role: "user", VerifiedAt: &at}

	resp := FromUser(u)
	if !resp.Verified || resp.VerifiedAt == nil || !resp.VerifiedAt.Equal(at) {
		t.Fatalf("unexpected verification fields %+v", resp)
	}

	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "secret-hash") {
		t.Errorf("password hash leaked: %s", b)
	}
}

func TestFromUserUnverifiedOmitsVerifiedAt(t *testing.T) {
	resp := FromUser(&models.User{ID: "u2", Role: "user"})
	if resp.Verified {
		t.Errorf("expected unverified")
	}
	b, _ := json.Marshal(resp)
	if strings.Contains(string(b), "verifiedAt") {
		t.Errorf("verifiedAt should be omitted: %s", b)
	}
}
