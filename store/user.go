package store

import (
	"context"
	"time"

	"github.com/localfirst/syncd/errors"
	"github.com/localfirst/syncd/models"
	"gorm.io/gorm"
)

// UserStore provides operations for users.
type UserStore struct {
	DB *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore { return &UserStore{DB: db} }

const userColumns = `id, email, password_hash, role, verified_at, created_at, updated_at`

// Create inserts a user. An existing email is a ResourceConflict.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = models.NewID()
	}
	u.Email = models.NormalizeEmail(u.Email)
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	var taken int64
	if err := s.DB.WithContext(ctx).Raw(`SELECT COUNT(1) FROM users WHERE email=?`, u.Email).Scan(&taken).Error; err != nil {
		return errors.System(err, "count users by email")
	}
	if taken > 0 {
		return errors.ResourceConflict("", "email %s already registered", u.Email)
	}
	err := s.DB.WithContext(ctx).Exec(`INSERT INTO users(`+userColumns+`) VALUES(?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.Role, u.VerifiedAt, u.CreatedAt, u.UpdatedAt).Error
	if err != nil {
		return errors.System(err, "insert user")
	}
	return nil
}

// GetByID returns the user or ResourceNotFound.
func (s *UserStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, userID)
}

// GetByEmail returns the user or ResourceNotFound.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, models.NormalizeEmail(email))
}

func (s *UserStore) getOne(ctx context.Context, q string, arg string) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).Raw(q, arg).Scan(&u).Error; err != nil {
		return nil, errors.System(err, "select user")
	}
	if u.ID == "" {
		return nil, errors.ResourceNotFound("", "user not found")
	}
	return &u, nil
}

// IsVerified reports the verification state of userID. It satisfies
// permission.TargetLookup.
func (s *UserStore) IsVerified(ctx context.Context, userID string) (bool, error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsVerified(), nil
}

// MarkVerified sets verified_at for userID.
func (s *UserStore) MarkVerified(ctx context.Context, userID string, at time.Time) error {
	res := s.DB.WithContext(ctx).Exec(`UPDATE users SET verified_at=?, updated_at=? WHERE id=?`, at.UTC(), time.Now().UTC(), userID)
	if res.Error != nil {
		return errors.System(res.Error, "update user")
	}
	if res.RowsAffected == 0 {
		return errors.ResourceNotFound("", "user not found")
	}
	return nil
}

// Delete removes the user and their vaults.
func (s *UserStore) Delete(ctx context.Context, userID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM vaults WHERE owner_id=?`, userID).Error; err != nil {
			return errors.System(err, "delete vaults")
		}
		res := tx.Exec(`DELETE FROM users WHERE id=?`, userID)
		if res.Error != nil {
			return errors.System(res.Error, "delete user")
		}
		if res.RowsAffected == 0 {
			return errors.ResourceNotFound("", "user not found")
		}
		return nil
	})
}
