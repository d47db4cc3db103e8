package store

import (
	"context"
	"time"

	"github.com/localfirst/syncd/errors"
	"github.com/localfirst/syncd/models"
	"gorm.io/gorm"
)

// VaultStore provides operations for vaults.
type VaultStore struct {
	DB *gorm.DB
}

func NewVaultStore(db *gorm.DB) *VaultStore { return &VaultStore{DB: db} }

// Create inserts a vault for its owner.
func (s *VaultStore) Create(ctx context.Context, v *models.Vault) error {
	if v.ID == "" {
		v.ID = models.NewID()
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	err := s.DB.WithContext(ctx).Exec(`INSERT INTO vaults(id, owner_id, name, created_at, updated_at) VALUES(?,?,?,?,?)`,
		v.ID, v.OwnerID, v.Name, v.CreatedAt, v.UpdatedAt).Error
	if err != nil {
		return errors.System(err, "insert vault")
	}
	return nil
}

// GetByID returns the vault or ResourceNotFound.
func (s *VaultStore) GetByID(ctx context.Context, vaultID string) (*models.Vault, error) {
	var v models.Vault
	if err := s.DB.WithContext(ctx).Raw(`SELECT id, owner_id, name, created_at, updated_at FROM vaults WHERE id=?`, vaultID).Scan(&v).Error; err != nil {
		return nil, errors.System(err, "select vault")
	}
	if v.ID == "" {
		return nil, errors.ResourceNotFound("", "vault not found")
	}
	return &v, nil
}

// ListByOwner returns the vaults of ownerID ordered by creation.
func (s *VaultStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Vault, error) {
	var out []models.Vault
	if err := s.DB.WithContext(ctx).Raw(`SELECT id, owner_id, name, created_at, updated_at FROM vaults WHERE owner_id=? ORDER BY created_at`, ownerID).Scan(&out).Error; err != nil {
		return nil, errors.System(err, "list vaults")
	}
	return out, nil
}

// Delete removes a vault.
func (s *VaultStore) Delete(ctx context.Context, vaultID string) error {
	res := s.DB.WithContext(ctx).Exec(`DELETE FROM vaults WHERE id=?`, vaultID)
	if res.Error != nil {
		return errors.System(res.Error, "delete vault")
	}
	if res.RowsAffected == 0 {
		return errors.ResourceNotFound("", "vault not found")
	}
	return nil
}

// CheckOwnership returns AccessForbidden(VAULT_NOT_OWNED) unless userID owns
// every vault in vaultIDs. Unknown vaults count as not owned.
func (s *VaultStore) CheckOwnership(ctx context.Context, userID string, vaultIDs []string) error {
	if len(vaultIDs) == 0 {
		return nil
	}
	var owned []string
	if err := s.DB.WithContext(ctx).Raw(`SELECT id FROM vaults WHERE owner_id=? AND id IN ?`, userID, vaultIDs).Scan(&owned).Error; err != nil {
		return errors.System(err, "select owned vaults")
	}
	set := make(map[string]struct{}, len(owned))
	for _, id := range owned {
		set[id] = struct{}{}
	}
	for _, id := range vaultIDs {
		if _, ok := set[id]; !ok {
			return errors.AccessForbidden(errors.IdentifierVaultNotOwned, "vault %s is not owned by the user", id)
		}
	}
	return nil
}
