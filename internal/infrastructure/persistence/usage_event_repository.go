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

// GormUsageEventRepository implements UsageEventRepository using GORM
type GormUsageEventRepository struct {
	db *gorm.DB
}

// NewGormUsageEventRepository creates a new GormUsageEventRepository
func NewGormUsageEventRepository(db *gorm.DB) *GormUsageEventRepository {
	return &GormUsageEventRepository{db: db}
}

// Create persists a new usage event. The idempotency key carries a unique
// index, so recording the same event twice surfaces as ErrAlreadyExists.
func (r *GormUsageEventRepository) Create(ctx context.Context, event *billing.UsageEvent) error {
	var model models.UsageEventModel
	model.FromDomain(event)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByID finds a usage event by its ID
func (r *GormUsageEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.UsageEvent, error) {
	var model models.UsageEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindUnsynced returns up to limit usage events that have not been pushed to
// the platform yet, oldest first.
func (r *GormUsageEventRepository) FindUnsynced(ctx context.Context, limit int) ([]billing.UsageEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var eventModels []models.UsageEventModel
	if err := r.db.WithContext(ctx).
		Where("synced_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&eventModels).Error; err != nil {
		return nil, err
	}

	events := make([]billing.UsageEvent, len(eventModels))
	for i, model := range eventModels {
		events[i] = *model.ToDomain()
	}
	return events, nil
}

// MarkSynced stamps an event with the platform record ID in a conditional
// update. Returns false when the event was already stamped, which keeps
// concurrent sync runs from double-recording.
func (r *GormUsageEventRepository) MarkSynced(ctx context.Context, event *billing.UsageEvent) (bool, error) {
	if event.SyncedAt == nil || event.PlatformRecordID == nil {
		return false, shared.ErrInvalidState
	}
	result := r.db.WithContext(ctx).
		Model(&models.UsageEventModel{}).
		Where("id = ? AND synced_at IS NULL", event.ID).
		Updates(map[string]interface{}{
			"platform_record_id": *event.PlatformRecordID,
			"synced_at":          *event.SyncedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteByTenant removes all usage events for a tenant. Used by data redaction.
func (r *GormUsageEventRepository) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.UsageEventModel{}, "tenant_id = ?", tenantID).Error
}
