package dto

import (
	"time"

	"github.com/localfirst/syncd/models"
)

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// FromUser converts a models.User to UserResponse.
func FromUser(u *models.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		Role:       u.Role,
		Verified:   u.IsVerified(),
		VerifiedAt: u.VerifiedAt,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// PermissionsResponse is the body of GET /v1/users/:userId/permissions.
type PermissionsResponse struct {
	UserID      string   `json:"userId"`
	Role        string   `json:"role"`
	Verified    bool     `json:"verified"`
	Permissions []string `json:"permissions"`
}
