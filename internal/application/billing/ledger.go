package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storelink/backend/internal/domain/billing"
	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/cache"
	"github.com/storelink/backend/internal/infrastructure/notification"
)

// Webhook topics delivered by the platform.
const (
	TopicAppUninstalled   = "app/uninstalled"
	TopicActivated        = "subscription/activated"
	TopicPaymentFailed    = "subscription/payment_failed"
	TopicPaymentSucceeded = "subscription/payment_succeeded"
	TopicCancelled        = "subscription/cancelled"
)

// WebhookEvent is a platform billing webhook after signature verification
// and payload parsing.
type WebhookEvent struct {
	EventID    string
	Topic      string
	ShopDomain string // normalized
	ChargeID   string // set on activation events
}

// LedgerServiceConfig contains configuration for the ledger service
type LedgerServiceConfig struct {
	WebhookDedupTTL time.Duration
}

// DefaultLedgerServiceConfig returns default configuration
func DefaultLedgerServiceConfig() LedgerServiceConfig {
	return LedgerServiceConfig{
		WebhookDedupTTL: 48 * time.Hour,
	}
}

// LedgerService owns the subscription state machine. Webhooks and explicit
// owner actions both land here, so a transition applied twice (once per
// direction) settles as a no-op the second time.
type LedgerService struct {
	subscriptions billing.SubscriptionRepository
	usageEvents   billing.UsageEventRepository
	tenants       identity.TenantRepository
	owners        identity.OwnerRepository
	dedup         cache.IdempotencyStore
	notifier      notification.Notifier
	config        LedgerServiceConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	subscriptions billing.SubscriptionRepository,
	usageEvents billing.UsageEventRepository,
	tenants identity.TenantRepository,
	owners identity.OwnerRepository,
	dedup cache.IdempotencyStore,
	notifier notification.Notifier,
	config LedgerServiceConfig,
	logger *zap.Logger,
) *LedgerService {
	if config.WebhookDedupTTL <= 0 {
		config.WebhookDedupTTL = DefaultLedgerServiceConfig().WebhookDedupTTL
	}
	return &LedgerService{
		subscriptions: subscriptions,
		usageEvents:   usageEvents,
		tenants:       tenants,
		owners:        owners,
		dedup:         dedup,
		notifier:      notifier,
		config:        config,
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// StartTrial creates the subscription for a freshly installed tenant. The
// trial window is the owner's, so a reinstall does not restart the clock.
func (s *LedgerService) StartTrial(ctx context.Context, tenant *identity.Tenant, owner *identity.Owner) (*billing.Subscription, error) {
	sub := billing.NewSubscription(tenant.ID, owner.ID, owner.TrialEndsAt)
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return s.subscriptions.FindByTenant(ctx, tenant.ID)
		}
		return nil, err
	}
	return sub, nil
}

// HasAccess is the gate consulted before every protected operation. A tenant
// without a subscription row has no access.
func (s *LedgerService) HasAccess(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.HasAccess(s.now()), nil
}

// ApplyWebhook applies one billing webhook exactly once. Duplicate
// deliveries (same event id) are acknowledged without effect; unknown topics
// are acknowledged so the platform stops redelivering them.
func (s *LedgerService) ApplyWebhook(ctx context.Context, event WebhookEvent) error {
	fresh, err := s.dedup.MarkProcessed(ctx, event.EventID, s.config.WebhookDedupTTL)
	if err != nil {
		return err
	}
	if !fresh {
		s.logger.Debug("Duplicate webhook delivery ignored",
			zap.String("event_id", event.EventID),
			zap.String("topic", event.Topic),
		)
		return nil
	}

	if err := s.applyTopic(ctx, event); err != nil {
		// Release the event id so the platform's redelivery can retry.
		if forgetErr := s.dedup.Forget(ctx, event.EventID); forgetErr != nil {
			s.logger.Error("Failed to release webhook event id",
				zap.String("event_id", event.EventID),
				zap.Error(forgetErr),
			)
		}
		return err
	}
	return nil
}

func (s *LedgerService) applyTopic(ctx context.Context, event WebhookEvent) error {
	switch event.Topic {
	case TopicAppUninstalled:
		return s.applyUninstalled(ctx, event)
	case TopicActivated:
		return s.applyTransition(ctx, event, "activated", func(sub *billing.Subscription) (bool, error) {
			return sub.Activate(event.ChargeID)
		})
	case TopicPaymentFailed:
		return s.applyTransition(ctx, event, "payment_failed", (*billing.Subscription).PaymentFailed)
	case TopicPaymentSucceeded:
		return s.applyTransition(ctx, event, "payment_succeeded", (*billing.Subscription).PaymentSucceeded)
	case TopicCancelled:
		return s.applyTransition(ctx, event, "cancelled", (*billing.Subscription).Cancel)
	default:
		s.logger.Warn("Unknown webhook topic acknowledged",
			zap.String("topic", event.Topic),
			zap.String("event_id", event.EventID),
		)
		return nil
	}
}

// applyUninstalled scrubs the tenant's credentials and parks the
// subscription in its terminal state.
func (s *LedgerService) applyUninstalled(ctx context.Context, event WebhookEvent) error {
	tenant, err := s.tenants.FindActiveByDomain(ctx, event.ShopDomain)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Already uninstalled, or never installed. Either way the
			// delivery is satisfied.
			return nil
		}
		return err
	}
	return s.uninstall(ctx, tenant)
}

// Uninstall is the owner-initiated disconnect. It converges on the same
// terminal state as the platform's uninstall webhook.
func (s *LedgerService) Uninstall(ctx context.Context, tenantID uuid.UUID) error {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.uninstall(ctx, tenant)
}

func (s *LedgerService) uninstall(ctx context.Context, tenant *identity.Tenant) error {
	deactivated, err := s.tenants.Deactivate(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if !deactivated {
		return nil
	}

	sub, err := s.subscriptions.FindByTenant(ctx, tenant.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if sub.MarkUninstalled() {
		err := s.subscriptions.Update(ctx, sub)
		if err != nil && !errors.Is(err, billing.ErrSubscriptionUninstalled) {
			return err
		}
	}

	s.logger.Info("Tenant uninstalled",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("shop_domain", tenant.ShopDomain),
	)
	s.notifier.Notify(notification.BillingEvent{
		TenantID:   tenant.ID,
		OwnerID:    tenant.OwnerID,
		ShopDomain: tenant.ShopDomain,
		Kind:       "uninstalled",
	})
	return nil
}

func (s *LedgerService) applyTransition(ctx context.Context, event WebhookEvent, kind string, transition func(*billing.Subscription) (bool, error)) error {
	tenant, sub, err := s.findByDomain(ctx, event.ShopDomain)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Webhook for unknown tenant acknowledged",
				zap.String("topic", event.Topic),
				zap.String("shop_domain", event.ShopDomain),
			)
			return nil
		}
		return err
	}

	changed, err := transition(sub)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionUninstalled) {
			// A late webhook can never resurrect a terminal subscription.
			s.logger.Warn("Webhook ignored for uninstalled subscription",
				zap.String("topic", event.Topic),
				zap.String("tenant_id", tenant.ID.String()),
			)
			return nil
		}
		return err
	}
	if !changed {
		return nil
	}

	if err := s.subscriptions.Update(ctx, sub); err != nil {
		if errors.Is(err, billing.ErrSubscriptionUninstalled) {
			// An uninstall landed between the load and this write.
			s.logger.Warn("Webhook ignored for uninstalled subscription",
				zap.String("topic", event.Topic),
				zap.String("tenant_id", tenant.ID.String()),
			)
			return nil
		}
		return err
	}
	if err := s.afterTransition(ctx, kind, tenant, sub); err != nil {
		return err
	}

	s.logger.Info("Subscription transition applied",
		zap.String("topic", event.Topic),
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("state", string(sub.State)),
	)
	s.notifier.Notify(notification.BillingEvent{
		TenantID:   tenant.ID,
		OwnerID:    sub.OwnerID,
		ShopDomain: tenant.ShopDomain,
		Kind:       kind,
	})
	return nil
}

// afterTransition propagates side effects of a state change onto the tenant
// and owner aggregates.
func (s *LedgerService) afterTransition(ctx context.Context, kind string, tenant *identity.Tenant, sub *billing.Subscription) error {
	switch kind {
	case "activated":
		if sub.ChargeID != "" && tenant.ChargeID != sub.ChargeID {
			// Conditional on the row still being active; a concurrent
			// uninstall wins and the stamp is skipped.
			if _, err := s.tenants.SetCharge(ctx, tenant.ID, sub.ChargeID); err != nil {
				return err
			}
		}
		return s.setOwnerSubscribed(ctx, sub.OwnerID, true)
	case "cancelled":
		return s.setOwnerSubscribed(ctx, sub.OwnerID, false)
	}
	return nil
}

func (s *LedgerService) setOwnerSubscribed(ctx context.Context, ownerID uuid.UUID, subscribed bool) error {
	owner, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		return err
	}
	if owner.Subscribed == subscribed {
		return nil
	}
	if subscribed {
		owner.MarkSubscribed()
	} else {
		owner.MarkUnsubscribed()
	}
	return s.owners.Update(ctx, owner)
}

// findByDomain loads the active tenant and its subscription for a webhook's
// shop domain.
func (s *LedgerService) findByDomain(ctx context.Context, shopDomain string) (*identity.Tenant, *billing.Subscription, error) {
	tenant, err := s.tenants.FindActiveByDomain(ctx, shopDomain)
	if err != nil {
		return nil, nil, err
	}
	sub, err := s.subscriptions.FindByTenant(ctx, tenant.ID)
	if err != nil {
		return nil, nil, err
	}
	return tenant, sub, nil
}

// ConfirmSubscribe is the explicit owner-side activation, fired when the
// merchant returns from the platform's charge approval screen.
func (s *LedgerService) ConfirmSubscribe(ctx context.Context, tenantID uuid.UUID, chargeID string) (*billing.Subscription, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	changed, err := sub.Activate(chargeID)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.subscriptions.Update(ctx, sub); err != nil {
			return nil, err
		}
		if err := s.afterTransition(ctx, "activated", tenant, sub); err != nil {
			return nil, err
		}
		s.notifier.Notify(notification.BillingEvent{
			TenantID:   tenant.ID,
			OwnerID:    sub.OwnerID,
			ShopDomain: tenant.ShopDomain,
			Kind:       "activated",
		})
	}
	return sub, nil
}

// CancelSubscription is the explicit owner-side cancellation.
func (s *LedgerService) CancelSubscription(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	changed, err := sub.Cancel()
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.subscriptions.Update(ctx, sub); err != nil {
			return nil, err
		}
		if err := s.afterTransition(ctx, "cancelled", tenant, sub); err != nil {
			return nil, err
		}
		s.notifier.Notify(notification.BillingEvent{
			TenantID:   tenant.ID,
			OwnerID:    sub.OwnerID,
			ShopDomain: tenant.ShopDomain,
			Kind:       "cancelled",
		})
	}
	return sub, nil
}

// RecordUsage appends a billable activity for later sync. The event gets a
// fresh idempotency key; recording never calls the platform.
func (s *LedgerService) RecordUsage(ctx context.Context, tenantID uuid.UUID, usageType billing.UsageType, description string, price decimal.Decimal) (*billing.UsageEvent, error) {
	event, err := billing.NewUsageEvent(tenantID, usageType, description, price)
	if err != nil {
		return nil, err
	}
	if err := s.usageEvents.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}
