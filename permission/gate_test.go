package permission

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/localfirst/syncd/errors"
)

var verifiedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type lookupRecorder struct {
	calls    []string
	verified map[string]bool
	err      error
}

func (l *lookupRecorder) lookup(_ context.Context, userID string) (bool, error) {
	l.calls = append(l.calls, userID)
	if l.err != nil {
		return false, l.err
	}
	return l.verified[userID], nil
}

func vaultUpdateOptions(caller RequestingUser, target string, lookup TargetLookup) CheckOptions {
	return CheckOptions{
		UserScopedPermissions: []Permission{MustValueOf("vaults:update")},
		UnscopedPermissions:   []Permission{MustValueOf("vaults:update:all")},
		RequestingUser:        caller,
		TargetUserID:          target,
		TargetLookup:          lookup,
	}
}

func TestCheckDeniesUnverifiedCaller(t *testing.T) {
	rec := &lookupRecorder{}
	caller := RequestingUser{ID: "a", Permissions: NewSet(MustValueOf("vaults:update"))}
	err := Check(context.Background(), vaultUpdateOptions(caller, "a", rec.lookup))
	if !stderrors.Is(err, errors.AccessForbidden(errors.IdentifierAuthNotVerified, "")) {
		t.Fatalf("expected AUTH_NOT_VERIFIED, got %v", err)
	}

	opts := vaultUpdateOptions(caller, "a", rec.lookup)
	opts.AllowUnverifiedRequestingUser = true
	if err := Check(context.Background(), opts); err != nil {
		t.Fatalf("expected allow with AllowUnverifiedRequestingUser, got %v", err)
	}
}

func TestCheckScopedPermissionOnlyForSelf(t *testing.T) {
	rec := &lookupRecorder{verified: map[string]bool{"b": true}}
	caller := RequestingUser{ID: "a", Permissions: NewSet(MustValueOf("vaults:update")), VerifiedAt: &verifiedAt}

	if err := Check(context.Background(), vaultUpdateOptions(caller, "a", rec.lookup)); err != nil {
		t.Fatalf("expected allow on self, got %v", err)
	}
	err := Check(context.Background(), vaultUpdateOptions(caller, "b", rec.lookup))
	if !stderrors.Is(err, errors.AccessForbidden(errors.IdentifierAccessForbidden, "")) {
		t.Fatalf("expected ACCESS_FORBIDDEN, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("target must not be looked up for denied callers, got %v", rec.calls)
	}
}

func TestCheckUnscopedPermissionForAnyTarget(t *testing.T) {
	rec := &lookupRecorder{verified: map[string]bool{"b": true}}
	caller := RequestingUser{ID: "a", Permissions: NewSet(MustValueOf("vaults:update:all")), VerifiedAt: &verifiedAt}
	if err := Check(context.Background(), vaultUpdateOptions(caller, "b", rec.lookup)); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "b" {
		t.Fatalf("expected one lookup of b, got %v", rec.calls)
	}
}

func TestCheckUnverifiedTargetIsRequestInvalid(t *testing.T) {
	rec := &lookupRecorder{verified: map[string]bool{}}
	caller := RequestingUser{ID: "a", Permissions: NewSet(MustValueOf("vaults:update:all")), VerifiedAt: &verifiedAt}
	err := Check(context.Background(), vaultUpdateOptions(caller, "b", rec.lookup))
	if errors.KindOf(err) != errors.KindRequestInvalid || errors.IdentifierOf(err) != errors.IdentifierUserNotVerified {
		t.Fatalf("expected USER_NOT_VERIFIED request error, got %v", err)
	}

	opts := vaultUpdateOptions(caller, "b", rec.lookup)
	opts.AllowUnverifiedTargetUser = true
	if err := Check(context.Background(), opts); err != nil {
		t.Fatalf("expected allow with AllowUnverifiedTargetUser, got %v", err)
	}
}

func TestCheckNeverLooksUpSelf(t *testing.T) {
	rec := &lookupRecorder{verified: map[string]bool{}}
	caller := RequestingUser{ID: "a", Permissions: NewSet(MustValueOf("vaults:update:all")), VerifiedAt: &verifiedAt}
	if err := Check(context.Background(), vaultUpdateOptions(caller, "a", rec.lookup)); err != nil {
		t.Fatalf("expected allow on self, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("self target must not trigger a lookup, got %v", rec.calls)
	}
}

func TestCheckLookupFailureIsSystemError(t *testing.T) {
	rec := &lookupRecorder{err: stderrors.New("db down")}
	caller := RequestingUser{ID: "a", Permissions: NewSet(MustValueOf("vaults:update:all")), VerifiedAt: &verifiedAt}
	err := Check(context.Background(), vaultUpdateOptions(caller, "b", rec.lookup))
	if errors.KindOf(err) != errors.KindSystem {
		t.Fatalf("expected system error, got %v", err)
	}
}
