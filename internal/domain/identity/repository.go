package identity

import (
	"context"

	"github.com/google/uuid"
)

// TenantRepository defines the persistence interface for tenants.
// Token-mutating operations must be implemented as atomic conditional
// updates: multiple triggers (disconnect, uninstall webhook, reconnect) race
// on the same row.
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	// FindActiveByDomain returns the single active tenant for a normalized
	// domain, or shared.ErrNotFound.
	FindActiveByDomain(ctx context.Context, shopDomain string) (*Tenant, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]Tenant, error)
	// SetCharge atomically stamps the recurring-charge reference on an
	// active tenant. Returns false when the tenant is not active, so a late
	// activation can never touch an uninstalled row.
	SetCharge(ctx context.Context, id uuid.UUID, chargeID string) (bool, error)
	// Deactivate atomically scrubs the access token and charge reference and
	// marks the tenant uninstalled, only if it is still active. Returns
	// false when the tenant was already uninstalled.
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
	// RotateToken atomically replaces the access token of an active tenant.
	// Returns false when the tenant is not active.
	RotateToken(ctx context.Context, id uuid.UUID, accessToken string) (bool, error)
	// HardDelete removes the tenant row entirely. Used only for explicit
	// data-redaction requests.
	HardDelete(ctx context.Context, id uuid.UUID) error
}

// OwnerRepository defines the persistence interface for owners.
type OwnerRepository interface {
	Create(ctx context.Context, owner *Owner) error
	FindByID(ctx context.Context, id uuid.UUID) (*Owner, error)
	FindByEmail(ctx context.Context, email string) (*Owner, error)
	Update(ctx context.Context, owner *Owner) error
}
