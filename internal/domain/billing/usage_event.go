package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storelink/backend/internal/domain/shared"
)

// UsageType classifies a billable activity
type UsageType string

const (
	UsageTypeOrderExport UsageType = "order_export"
	UsageTypeBulkSync    UsageType = "bulk_sync"
	UsageTypeAPIOverage  UsageType = "api_overage"
)

// IsValid reports whether the usage type is known.
func (t UsageType) IsValid() bool {
	switch t {
	case UsageTypeOrderExport, UsageTypeBulkSync, UsageTypeAPIOverage:
		return true
	}
	return false
}

// UsageEvent is an append-only record of a single billable activity. Events
// are never deleted; the only mutation permitted is stamping the sync result
// after the platform has confirmed the charge. The idempotency key makes
// at-least-once submission safe: the platform applies each key at most once.
type UsageEvent struct {
	shared.BaseEntity
	TenantID         uuid.UUID
	Type             UsageType
	Description      string
	Price            decimal.Decimal
	IdempotencyKey   string // unique
	PlatformRecordID *string
	SyncedAt         *time.Time
}

// NewUsageEvent creates an unsynced usage event with a fresh idempotency key.
func NewUsageEvent(tenantID uuid.UUID, usageType UsageType, description string, price decimal.Decimal) (*UsageEvent, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !usageType.IsValid() {
		return nil, shared.NewDomainError("INVALID_USAGE_TYPE", "Invalid usage type")
	}
	if price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Price cannot be negative")
	}

	return &UsageEvent{
		BaseEntity:     shared.NewBaseEntity(),
		TenantID:       tenantID,
		Type:           usageType,
		Description:    description,
		Price:          price,
		IdempotencyKey: uuid.New().String(),
	}, nil
}

// Synced reports whether the event has been confirmed by the platform.
func (e *UsageEvent) Synced() bool {
	return e.SyncedAt != nil
}

// MarkSynced stamps the platform record ID and sync time. It must be called
// only after the platform confirmed the charge, and is rejected once set.
func (e *UsageEvent) MarkSynced(platformRecordID string, at time.Time) error {
	if e.Synced() {
		return shared.ErrInvalidState
	}
	e.PlatformRecordID = &platformRecordID
	e.SyncedAt = &at
	e.UpdatedAt = at
	return nil
}
