package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/crypto"
	"github.com/storelink/backend/internal/infrastructure/persistence/models"
)

// GormTenantRepository implements TenantRepository using GORM. Access tokens
// are encrypted before they reach the database and decrypted on the way out,
// so domain code only ever sees plaintext tokens.
type GormTenantRepository struct {
	db     *gorm.DB
	cipher *crypto.TokenCipher
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB, cipher *crypto.TokenCipher) *GormTenantRepository {
	return &GormTenantRepository{db: db, cipher: cipher}
}

// Create persists a new tenant
func (r *GormTenantRepository) Create(ctx context.Context, tenant *identity.Tenant) error {
	var model models.TenantModel
	model.FromDomain(tenant)

	encrypted, err := r.cipher.Encrypt(model.AccessToken)
	if err != nil {
		return err
	}
	model.AccessToken = encrypted

	return r.db.WithContext(ctx).Create(&model).Error
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return r.toDomain(&model)
}

// FindActiveByDomain finds the active tenant installed on the given shop domain.
// Uninstalled rows for the same domain are ignored.
func (r *GormTenantRepository) FindActiveByDomain(ctx context.Context, shopDomain string) (*identity.Tenant, error) {
	if shopDomain == "" {
		return nil, shared.ErrNotFound
	}
	var model models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("LOWER(shop_domain) = ? AND status = ?", strings.ToLower(shopDomain), identity.InstallStatusActive).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return r.toDomain(&model)
}

// FindByOwner finds all tenants belonging to an owner, newest first
func (r *GormTenantRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]identity.Tenant, error) {
	var tenantModels []models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&tenantModels).Error; err != nil {
		return nil, err
	}

	tenants := make([]identity.Tenant, len(tenantModels))
	for i := range tenantModels {
		t, err := r.toDomain(&tenantModels[i])
		if err != nil {
			return nil, err
		}
		tenants[i] = *t
	}
	return tenants, nil
}

// SetCharge stamps the recurring-charge reference on an active tenant in a
// single conditional update. Returns false when the tenant is not active;
// status and access token are never written here, so a stale caller cannot
// resurrect an uninstalled row.
func (r *GormTenantRepository) SetCharge(ctx context.Context, id uuid.UUID, chargeID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TenantModel{}).
		Where("id = ? AND status = ?", id, identity.InstallStatusActive).
		Update("charge_id", chargeID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Deactivate marks an active tenant uninstalled and scrubs its credentials in
// a single conditional update. Returns false when the tenant was already
// uninstalled, so repeated uninstall webhooks are harmless.
func (r *GormTenantRepository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TenantModel{}).
		Where("id = ? AND status = ?", id, identity.InstallStatusActive).
		Updates(map[string]interface{}{
			"status":         identity.InstallStatusUninstalled,
			"access_token":   "",
			"charge_id":      "",
			"uninstalled_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RotateToken replaces the stored access token for an active tenant. Returns
// false when the tenant is not active; an uninstalled tenant never gets a
// token back this way.
func (r *GormTenantRepository) RotateToken(ctx context.Context, id uuid.UUID, accessToken string) (bool, error) {
	encrypted, err := r.cipher.Encrypt(accessToken)
	if err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).
		Model(&models.TenantModel{}).
		Where("id = ? AND status = ?", id, identity.InstallStatusActive).
		Update("access_token", encrypted)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// HardDelete removes a tenant row entirely. Used by data redaction.
func (r *GormTenantRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.TenantModel{}, "id = ?", id).Error
}

func (r *GormTenantRepository) toDomain(model *models.TenantModel) (*identity.Tenant, error) {
	tenant := model.ToDomain()
	token, err := r.cipher.Decrypt(tenant.AccessToken)
	if err != nil {
		return nil, err
	}
	tenant.AccessToken = token
	return tenant, nil
}
