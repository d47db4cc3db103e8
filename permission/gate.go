package permission

import (
	"context"
	"time"

	"github.com/localfirst/syncd/errors"
)

// RequestingUser describes the authenticated caller.
type RequestingUser struct {
	ID          string
	Permissions Set
	// VerifiedAt is nil for an unverified account.
	VerifiedAt *time.Time
}

// TargetLookup reports whether the target account is verified. It is only
// called after the caller passed the permission checks.
type TargetLookup func(ctx context.Context, userID string) (verified bool, err error)

// CheckOptions are the inputs of Check.
type CheckOptions struct {
	// UserScopedPermissions grant access only when caller and target coincide.
	UserScopedPermissions []Permission
	// UnscopedPermissions grant access regardless of the target.
	UnscopedPermissions []Permission

	RequestingUser RequestingUser
	TargetUserID   string
	TargetLookup   TargetLookup

	AllowUnverifiedRequestingUser bool
	AllowUnverifiedTargetUser     bool
}

// Check decides whether the caller may perform the action. The order is
// caller verification, then permissions, then target verification; the
// target is never looked up for callers that were already denied.
func Check(ctx context.Context, opts CheckOptions) error {
	caller := opts.RequestingUser
	if caller.VerifiedAt == nil && !opts.AllowUnverifiedRequestingUser {
		return errors.AccessForbidden(errors.IdentifierAuthNotVerified, "requesting user is not verified")
	}

	allowed := caller.Permissions.HasAny(opts.UnscopedPermissions)
	if !allowed && caller.Permissions.HasAny(opts.UserScopedPermissions) && caller.ID == opts.TargetUserID {
		allowed = true
	}
	if !allowed {
		return errors.AccessForbidden(errors.IdentifierAccessForbidden, "insufficient permissions")
	}

	if opts.TargetUserID == caller.ID || opts.AllowUnverifiedTargetUser {
		return nil
	}
	if opts.TargetLookup == nil {
		return errors.System(nil, "no target lookup configured")
	}
	verified, err := opts.TargetLookup(ctx, opts.TargetUserID)
	if err != nil {
		if errors.KindOf(err) == errors.KindResourceNotFound {
			return err
		}
		return errors.System(err, "target lookup failed")
	}
	if !verified {
		return errors.RequestInvalid(errors.IdentifierUserNotVerified, "target user is not verified")
	}
	return nil
}
