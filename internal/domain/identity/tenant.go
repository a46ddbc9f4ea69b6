package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storelink/backend/internal/domain/shared"
)

// InstallStatus represents the installation status of a tenant
type InstallStatus string

const (
	InstallStatusActive      InstallStatus = "active"
	InstallStatusUninstalled InstallStatus = "uninstalled"
)

// Tenant represents one installation of the app on one host-platform
// merchant account. It is the aggregate root for installation state: the
// encrypted platform access token, the recurring charge reference, and the
// install status all live here.
type Tenant struct {
	shared.BaseEntity
	ShopDomain        string // normalized, unique among active tenants
	PlatformAccountID int64
	OwnerID           uuid.UUID
	AccessToken       string // encrypted at rest by the repository layer
	Status            InstallStatus
	ChargeID          string
	InstalledAt       time.Time
	UninstalledAt     *time.Time
}

// NewTenant creates a new active tenant for a normalized shop domain.
func NewTenant(shopDomain string, platformAccountID int64, ownerID uuid.UUID, accessToken string) (*Tenant, error) {
	if shopDomain == "" {
		return nil, shared.NewDomainError("INVALID_SHOP_DOMAIN", "Shop domain cannot be empty")
	}
	if accessToken == "" {
		return nil, shared.NewDomainError("INVALID_ACCESS_TOKEN", "Access token cannot be empty")
	}

	return &Tenant{
		BaseEntity:        shared.NewBaseEntity(),
		ShopDomain:        shopDomain,
		PlatformAccountID: platformAccountID,
		OwnerID:           ownerID,
		AccessToken:       accessToken,
		Status:            InstallStatusActive,
		InstalledAt:       time.Now(),
	}, nil
}

// IsActive reports whether the installation is currently active.
func (t *Tenant) IsActive() bool {
	return t.Status == InstallStatusActive
}

// Uninstall scrubs the access token and marks the tenant uninstalled.
// Uninstall is terminal: a fresh install creates a new active tenant for the
// same domain rather than resurrecting this one.
func (t *Tenant) Uninstall() {
	now := time.Now()
	t.AccessToken = ""
	t.ChargeID = ""
	t.Status = InstallStatusUninstalled
	t.UninstalledAt = &now
	t.UpdatedAt = now
}

// SetCharge records the platform recurring-charge reference.
func (t *Tenant) SetCharge(chargeID string) error {
	if !t.IsActive() {
		return shared.ErrInvalidState
	}
	t.ChargeID = chargeID
	t.UpdatedAt = time.Now()
	return nil
}

// NormalizeShopDomain canonicalizes a claimed shop domain: lower-case,
// scheme and "www." stripped, trailing slash and path removed, and a bare
// store handle expanded to the full platform domain suffix. An empty input
// normalizes to "".
func NormalizeShopDomain(raw, platformSuffix string) string {
	domain := strings.TrimSpace(strings.ToLower(raw))
	if domain == "" {
		return ""
	}

	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "www.")

	if idx := strings.IndexAny(domain, "/?#"); idx >= 0 {
		domain = domain[:idx]
	}
	domain = strings.TrimSuffix(domain, ".")

	if domain == "" {
		return ""
	}

	// Bare handles ("acme") become fully qualified platform domains.
	if platformSuffix != "" && !strings.HasSuffix(domain, platformSuffix) && !strings.Contains(domain, ".") {
		domain += platformSuffix
	}

	return domain
}
