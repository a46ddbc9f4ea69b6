package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelink/backend/internal/domain/billing"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/persistence/models"
)

// GormSubscriptionRepository implements SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// Create persists a new subscription
func (r *GormSubscriptionRepository) Create(ctx context.Context, sub *billing.Subscription) error {
	var model models.SubscriptionModel
	model.FromDomain(sub)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByTenant finds the subscription for a tenant
func (r *GormSubscriptionRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Update persists a state transition, guarded so a stale write can never
// leave the terminal uninstalled state. Returns ErrSubscriptionUninstalled
// when the stored row is already uninstalled.
func (r *GormSubscriptionRepository) Update(ctx context.Context, sub *billing.Subscription) error {
	var model models.SubscriptionModel
	model.FromDomain(sub)
	result := r.db.WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("id = ? AND state <> ?", sub.ID, billing.StateUninstalled).
		Updates(map[string]interface{}{
			"state":        model.State,
			"charge_id":    model.ChargeID,
			"activated_at": model.ActivatedAt,
			"cancelled_at": model.CancelledAt,
			"updated_at":   model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&models.SubscriptionModel{}).
			Where("id = ?", sub.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return billing.ErrSubscriptionUninstalled
	}
	return nil
}

// DeleteByTenant removes the subscription row for a tenant. Used by data
// redaction.
func (r *GormSubscriptionRepository) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.SubscriptionModel{}, "tenant_id = ?", tenantID).Error
}
