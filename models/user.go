package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account that owns vaults and devices.
type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Role         string     `json:"role" db:"role"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

func (User) TableName() string { return "users" }

// IsVerified reports whether the user confirmed their email.
func (u *User) IsVerified() bool { return u != nil && u.VerifiedAt != nil }

// Vault is a synced container owned by a single user.
type Vault struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (Vault) TableName() string { return "vaults" }

// NewID returns a random identifier for a persisted entity.
func NewID() string {
	return uuid.NewString()
}

// NormalizeEmail lowercases and trims an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
