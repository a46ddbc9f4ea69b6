package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storelink/backend/internal/domain/billing"
	"github.com/storelink/backend/internal/domain/shared"
)

// SubscriptionModel is the persistence model for the Subscription entity.
type SubscriptionModel struct {
	ID          uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex"`
	OwnerID     uuid.UUID                 `gorm:"type:uuid;not null;index"`
	State       billing.SubscriptionState `gorm:"type:varchar(20);not null;index"`
	TrialEndsAt time.Time                 `gorm:"not null"`
	ChargeID    string                    `gorm:"type:varchar(100)"`
	ActivatedAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription entity.
func (m *SubscriptionModel) ToDomain() *billing.Subscription {
	return &billing.Subscription{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:    m.TenantID,
		OwnerID:     m.OwnerID,
		State:       m.State,
		TrialEndsAt: m.TrialEndsAt,
		ChargeID:    m.ChargeID,
		ActivatedAt: m.ActivatedAt,
		CancelledAt: m.CancelledAt,
	}
}

// FromDomain populates the persistence model from a domain Subscription entity.
func (m *SubscriptionModel) FromDomain(s *billing.Subscription) {
	m.ID = s.ID
	m.TenantID = s.TenantID
	m.OwnerID = s.OwnerID
	m.State = s.State
	m.TrialEndsAt = s.TrialEndsAt
	m.ChargeID = s.ChargeID
	m.ActivatedAt = s.ActivatedAt
	m.CancelledAt = s.CancelledAt
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}

// UsageEventModel is the persistence model for the UsageEvent entity.
type UsageEventModel struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID         `gorm:"type:uuid;not null;index:idx_usage_tenant_synced"`
	Type             billing.UsageType `gorm:"type:varchar(30);not null"`
	Description      string            `gorm:"type:varchar(255);not null"`
	Price            decimal.Decimal   `gorm:"type:decimal(12,2);not null"`
	IdempotencyKey   string            `gorm:"type:varchar(64);not null;uniqueIndex"`
	PlatformRecordID *string           `gorm:"type:varchar(100)"`
	SyncedAt         *time.Time        `gorm:"index:idx_usage_tenant_synced"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM
func (UsageEventModel) TableName() string {
	return "usage_events"
}

// ToDomain converts the persistence model to a domain UsageEvent entity.
func (m *UsageEventModel) ToDomain() *billing.UsageEvent {
	return &billing.UsageEvent{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:         m.TenantID,
		Type:             m.Type,
		Description:      m.Description,
		Price:            m.Price,
		IdempotencyKey:   m.IdempotencyKey,
		PlatformRecordID: m.PlatformRecordID,
		SyncedAt:         m.SyncedAt,
	}
}

// FromDomain populates the persistence model from a domain UsageEvent entity.
func (m *UsageEventModel) FromDomain(e *billing.UsageEvent) {
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.Type = e.Type
	m.Description = e.Description
	m.Price = e.Price
	m.IdempotencyKey = e.IdempotencyKey
	m.PlatformRecordID = e.PlatformRecordID
	m.SyncedAt = e.SyncedAt
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}
