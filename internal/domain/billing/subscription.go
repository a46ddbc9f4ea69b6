package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/storelink/backend/internal/domain/shared"
)

// SubscriptionState represents the billing state of a tenant
type SubscriptionState string

const (
	StateTrialing    SubscriptionState = "trialing"
	StateActive      SubscriptionState = "active"
	StatePastDue     SubscriptionState = "past_due"
	StateCancelled   SubscriptionState = "cancelled"
	StateUninstalled SubscriptionState = "uninstalled"
)

// ErrSubscriptionUninstalled is returned by transitions attempted on an
// uninstalled subscription. Uninstalled is terminal; only a fresh install
// (which creates a new tenant and a new subscription) unblocks the domain.
var ErrSubscriptionUninstalled = shared.NewDomainError("SUBSCRIPTION_UNINSTALLED", "Subscription is terminally uninstalled")

// Subscription tracks the billing state machine for one tenant. It is
// mutated from two directions: explicit owner actions (subscribe confirm,
// cancel) and asynchronous platform webhooks. Both converge on the same
// transitions, so every transition is idempotent.
type Subscription struct {
	shared.BaseEntity
	TenantID    uuid.UUID
	OwnerID     uuid.UUID
	State       SubscriptionState
	TrialEndsAt time.Time
	ChargeID    string
	ActivatedAt *time.Time
	CancelledAt *time.Time
}

// NewSubscription starts a subscription in trial for a freshly installed
// tenant. The trial window is inherited from the owner so reinstalls do not
// restart the clock.
func NewSubscription(tenantID, ownerID uuid.UUID, trialEndsAt time.Time) *Subscription {
	return &Subscription{
		BaseEntity:  shared.NewBaseEntity(),
		TenantID:    tenantID,
		OwnerID:     ownerID,
		State:       StateTrialing,
		TrialEndsAt: trialEndsAt,
	}
}

// HasAccess is the single access predicate consulted before every protected
// operation. Access is granted when the subscription is active, or when it
// is trialing and the trial window is still open at now (exclusive at the
// boundary: no access at exactly TrialEndsAt).
func (s *Subscription) HasAccess(now time.Time) bool {
	switch s.State {
	case StateActive:
		return true
	case StateTrialing:
		return now.Before(s.TrialEndsAt)
	default:
		return false
	}
}

// Activate transitions to Active. Both the explicit subscribe confirmation
// and the activation webhook land here; when both fire, the second is a
// no-op. Returns whether the state changed.
func (s *Subscription) Activate(chargeID string) (bool, error) {
	if s.State == StateUninstalled {
		return false, ErrSubscriptionUninstalled
	}
	if chargeID != "" {
		s.ChargeID = chargeID
	}
	if s.State == StateActive {
		return false, nil
	}
	now := time.Now()
	s.State = StateActive
	s.ActivatedAt = &now
	s.UpdatedAt = now
	return true, nil
}

// PaymentFailed transitions Active -> PastDue.
func (s *Subscription) PaymentFailed() (bool, error) {
	if s.State == StateUninstalled {
		return false, ErrSubscriptionUninstalled
	}
	if s.State != StateActive {
		return false, nil
	}
	s.State = StatePastDue
	s.UpdatedAt = time.Now()
	return true, nil
}

// PaymentSucceeded transitions PastDue -> Active.
func (s *Subscription) PaymentSucceeded() (bool, error) {
	if s.State == StateUninstalled {
		return false, ErrSubscriptionUninstalled
	}
	if s.State != StatePastDue {
		return false, nil
	}
	s.State = StateActive
	s.UpdatedAt = time.Now()
	return true, nil
}

// Cancel transitions any live state to Cancelled.
func (s *Subscription) Cancel() (bool, error) {
	if s.State == StateUninstalled {
		return false, ErrSubscriptionUninstalled
	}
	if s.State == StateCancelled {
		return false, nil
	}
	now := time.Now()
	s.State = StateCancelled
	s.CancelledAt = &now
	s.UpdatedAt = now
	return true, nil
}

// MarkUninstalled transitions to the terminal Uninstalled state. Safe to
// call repeatedly; a late activation webhook can never leave this state.
func (s *Subscription) MarkUninstalled() bool {
	if s.State == StateUninstalled {
		return false
	}
	s.State = StateUninstalled
	s.ChargeID = ""
	s.UpdatedAt = time.Now()
	return true
}
