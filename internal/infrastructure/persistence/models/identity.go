package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
)

// TenantModel is the persistence model for the Tenant domain entity. The
// access token column holds the encrypted value; the repository owns
// encryption and decryption.
type TenantModel struct {
	ID                uuid.UUID              `gorm:"type:uuid;primaryKey"`
	ShopDomain        string                 `gorm:"type:varchar(255);not null;index"`
	PlatformAccountID int64                  `gorm:"not null"`
	OwnerID           uuid.UUID              `gorm:"type:uuid;not null;index"`
	AccessToken       string                 `gorm:"type:text"`
	Status            identity.InstallStatus `gorm:"type:varchar(20);not null;default:'active';index"`
	ChargeID          string                 `gorm:"type:varchar(100)"`
	InstalledAt       time.Time              `gorm:"not null"`
	UninstalledAt     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// ToDomain converts the persistence model to a domain Tenant entity.
func (m *TenantModel) ToDomain() *identity.Tenant {
	return &identity.Tenant{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ShopDomain:        m.ShopDomain,
		PlatformAccountID: m.PlatformAccountID,
		OwnerID:           m.OwnerID,
		AccessToken:       m.AccessToken,
		Status:            m.Status,
		ChargeID:          m.ChargeID,
		InstalledAt:       m.InstalledAt,
		UninstalledAt:     m.UninstalledAt,
	}
}

// FromDomain populates the persistence model from a domain Tenant entity.
func (m *TenantModel) FromDomain(t *identity.Tenant) {
	m.ID = t.ID
	m.ShopDomain = t.ShopDomain
	m.PlatformAccountID = t.PlatformAccountID
	m.OwnerID = t.OwnerID
	m.AccessToken = t.AccessToken
	m.Status = t.Status
	m.ChargeID = t.ChargeID
	m.InstalledAt = t.InstalledAt
	m.UninstalledAt = t.UninstalledAt
	m.CreatedAt = t.CreatedAt
	m.UpdatedAt = t.UpdatedAt
}

// OwnerModel is the persistence model for the Owner domain entity.
type OwnerModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	TrialEndsAt  time.Time `gorm:"not null"`
	Subscribed   bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM
func (OwnerModel) TableName() string {
	return "owners"
}

// ToDomain converts the persistence model to a domain Owner entity.
func (m *OwnerModel) ToDomain() *identity.Owner {
	return &identity.Owner{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		TrialEndsAt:  m.TrialEndsAt,
		Subscribed:   m.Subscribed,
	}
}

// FromDomain populates the persistence model from a domain Owner entity.
func (m *OwnerModel) FromDomain(o *identity.Owner) {
	m.ID = o.ID
	m.Email = o.Email
	m.PasswordHash = o.PasswordHash
	m.TrialEndsAt = o.TrialEndsAt
	m.Subscribed = o.Subscribed
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.UpdatedAt
}
