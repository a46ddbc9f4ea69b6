package billing

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionRepository defines the persistence interface for
// subscriptions. There is at most one subscription row per tenant.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *Subscription) error
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)
	// Update persists a state transition. Implementations refuse a write
	// over a stored uninstalled row and return ErrSubscriptionUninstalled,
	// so a stale load can never resurrect the terminal state.
	Update(ctx context.Context, sub *Subscription) error
	// DeleteByTenant removes the subscription row. Used only for explicit
	// data-redaction requests.
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}

// UsageEventRepository defines the persistence interface for usage events.
// Events are append-only; Update exists solely to stamp sync results.
type UsageEventRepository interface {
	Create(ctx context.Context, event *UsageEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (*UsageEvent, error)
	// FindUnsynced returns events that have not been confirmed by the
	// platform, oldest first, across all tenants.
	FindUnsynced(ctx context.Context, limit int) ([]UsageEvent, error)
	// MarkSynced atomically stamps the sync result, only if the event is
	// still unsynced. Returns false when another sync already stamped it.
	MarkSynced(ctx context.Context, event *UsageEvent) (bool, error)
	// DeleteByTenant removes all events for a tenant. Used only for
	// explicit data-redaction requests.
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}
