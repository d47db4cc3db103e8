// Package seed creates a bootstrap account so a fresh deployment can log in.
package seed

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/localfirst/syncd/errors"
	"github.com/localfirst/syncd/models"
	"github.com/localfirst/syncd/permission"
	"golang.org/x/crypto/bcrypt"
)

// Accounts is the part of store.UserStore the seeder writes through.
type Accounts interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	MarkVerified(ctx context.Context, userID string, at time.Time) error
}

// Options defines the account to seed.
type Options struct {
	Email    string
	Password string
	Role     string      // defaults to admin
	Logger   *log.Logger // optional logger
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

// Run ensures an account with opts.Email exists, is verified and has
// opts.Role. An existing account keeps its password. If Email is empty, it
// is a no-op.
func Run(ctx context.Context, accounts Accounts, opts Options) (*models.User, error) {
	email := models.NormalizeEmail(opts.Email)
	if email == "" {
		return nil, nil
	}
	if opts.Role == "" {
		opts.Role = permission.RoleAdmin
	}
	logf := func(format string, args ...any) {
		if opts.Logger != nil {
			opts.Logger.Printf(format, args...)
		}
	}

	u, err := accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !u.IsVerified() {
			if err := accounts.MarkVerified(ctx, u.ID, time.Now()); err != nil {
				return nil, fmt.Errorf("verify %s: %w", email, err)
			}
		}
		logf("seed: account %s already present", email)
		return u, nil
	case errors.KindOf(err) != errors.KindResourceNotFound:
		return nil, fmt.Errorf("lookup %s: %w", email, err)
	}

	if opts.Password == "" {
		return nil, fmt.Errorf("seed: password required to create %s", email)
	}
	cost := opts.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	u = &models.User{Email: email, PasswordHash: string(hash), Role: opts.Role, VerifiedAt: &now}
	if err := accounts.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create %s: %w", email, err)
	}
	logf("seed: created %s account %s", u.Role, email)
	return u, nil
}

// OptionsFromEnv reads SYNCD_SEED_EMAIL, SYNCD_SEED_PASSWORD and
// SYNCD_SEED_ROLE.
func OptionsFromEnv() Options {
	return Options{
		Email:    strings.TrimSpace(os.Getenv("SYNCD_SEED_EMAIL")),
		Password: os.Getenv("SYNCD_SEED_PASSWORD"),
		Role:     strings.TrimSpace(os.Getenv("SYNCD_SEED_ROLE")),
		Logger:   log.New(os.Stdout, "", log.LstdFlags),
	}
}
