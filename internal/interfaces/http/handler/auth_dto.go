package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/storelink/backend/internal/domain/billing"
	"github.com/storelink/backend/internal/domain/identity"
)

// SignupRequest represents the owner registration request
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest represents the owner login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// OwnerResponse represents an owner account in responses
type OwnerResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	TrialEndsAt time.Time `json:"trial_ends_at"`
	Subscribed  bool      `json:"subscribed"`
}

// TenantResponse represents a connected store in responses
type TenantResponse struct {
	ID          uuid.UUID `json:"id"`
	ShopDomain  string    `json:"shop_domain"`
	Status      string    `json:"status"`
	InstalledAt time.Time `json:"installed_at"`
}

// SubscriptionResponse represents a billing subscription in responses
type SubscriptionResponse struct {
	State       string    `json:"state"`
	TrialEndsAt time.Time `json:"trial_ends_at"`
	ChargeID    string    `json:"charge_id,omitempty"`
}

// ConnectResponse represents a completed install callback
type ConnectResponse struct {
	Tenant       TenantResponse       `json:"tenant"`
	Subscription SubscriptionResponse `json:"subscription"`
	Reconnected  bool                 `json:"reconnected"`
}

// InstallStatusResponse answers the unsigned install probe
type InstallStatusResponse struct {
	ShopDomain string `json:"shop_domain"`
	Installed  bool   `json:"installed"`
}

func toOwnerResponse(owner *identity.Owner) OwnerResponse {
	return OwnerResponse{
		ID:          owner.ID,
		Email:       owner.Email,
		TrialEndsAt: owner.TrialEndsAt,
		Subscribed:  owner.Subscribed,
	}
}

func toTenantResponse(tenant *identity.Tenant) TenantResponse {
	return TenantResponse{
		ID:          tenant.ID,
		ShopDomain:  tenant.ShopDomain,
		Status:      string(tenant.Status),
		InstalledAt: tenant.InstalledAt,
	}
}

func toSubscriptionResponse(sub *billing.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		State:       string(sub.State),
		TrialEndsAt: sub.TrialEndsAt,
		ChargeID:    sub.ChargeID,
	}
}
