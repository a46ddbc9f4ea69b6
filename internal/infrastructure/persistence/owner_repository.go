package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/persistence/models"
)

// GormOwnerRepository implements OwnerRepository using GORM
type GormOwnerRepository struct {
	db *gorm.DB
}

// NewGormOwnerRepository creates a new GormOwnerRepository
func NewGormOwnerRepository(db *gorm.DB) *GormOwnerRepository {
	return &GormOwnerRepository{db: db}
}

// Create persists a new owner
func (r *GormOwnerRepository) Create(ctx context.Context, owner *identity.Owner) error {
	var model models.OwnerModel
	model.FromDomain(owner)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByID finds an owner by its ID
func (r *GormOwnerRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Owner, error) {
	var model models.OwnerModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByEmail finds an owner by email, case-insensitively
func (r *GormOwnerRepository) FindByEmail(ctx context.Context, email string) (*identity.Owner, error) {
	var model models.OwnerModel
	if err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Update persists changes to an existing owner
func (r *GormOwnerRepository) Update(ctx context.Context, owner *identity.Owner) error {
	var model models.OwnerModel
	model.FromDomain(owner)
	result := r.db.WithContext(ctx).Save(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
