package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/storelink/backend/internal/domain/billing"
	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/infrastructure/cache"
	"github.com/storelink/backend/internal/infrastructure/platform"
)

// PlatformBilling is the slice of the platform client the usage sync needs.
type PlatformBilling interface {
	ActiveCharge(ctx context.Context, creds platform.Credentials) (*platform.RecurringCharge, error)
	CreateUsageRecord(ctx context.Context, creds platform.Credentials, lineItemID, description string, price decimal.Decimal, idempotencyKey string) (*platform.UsageRecordResult, error)
}

// UsageSyncConfig contains configuration for the usage sync service
type UsageSyncConfig struct {
	BatchSize        int
	LineItemCacheTTL time.Duration
}

// DefaultUsageSyncConfig returns default configuration
func DefaultUsageSyncConfig() UsageSyncConfig {
	return UsageSyncConfig{
		BatchSize:        100,
		LineItemCacheTTL: 10 * time.Minute,
	}
}

// UsageSyncService pushes unsynced usage events to the platform. Submission
// is at-least-once; the per-event idempotency key makes the platform-side
// effect at-most-once, and the conditional MarkSynced keeps concurrent runs
// from double-stamping. Runs for the same tenant are collapsed through
// singleflight so two schedulers never interleave one tenant's backlog.
type UsageSyncService struct {
	usageEvents billing.UsageEventRepository
	tenants     identity.TenantRepository
	client      PlatformBilling
	cache       cache.Cache
	config      UsageSyncConfig
	logger      *zap.Logger
	group       singleflight.Group
	now         func() time.Time
}

// NewUsageSyncService creates a new usage sync service
func NewUsageSyncService(
	usageEvents billing.UsageEventRepository,
	tenants identity.TenantRepository,
	client PlatformBilling,
	c cache.Cache,
	config UsageSyncConfig,
	logger *zap.Logger,
) *UsageSyncService {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultUsageSyncConfig().BatchSize
	}
	if config.LineItemCacheTTL <= 0 {
		config.LineItemCacheTTL = DefaultUsageSyncConfig().LineItemCacheTTL
	}
	return &UsageSyncService{
		usageEvents: usageEvents,
		tenants:     tenants,
		client:      client,
		cache:       c,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *UsageSyncService) WithClock(now func() time.Time) *UsageSyncService {
	s.now = now
	return s
}

type syncCounts struct {
	synced int
	failed int
}

// SyncPending drains one batch of unsynced events, grouped per tenant.
// A tenant whose sync fails does not block the other tenants in the batch.
func (s *UsageSyncService) SyncPending(ctx context.Context) (int, int, error) {
	events, err := s.usageEvents.FindUnsynced(ctx, s.config.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("load unsynced usage events: %w", err)
	}
	if len(events) == 0 {
		return 0, 0, nil
	}

	byTenant := make(map[uuid.UUID][]billing.UsageEvent)
	for _, event := range events {
		byTenant[event.TenantID] = append(byTenant[event.TenantID], event)
	}

	var total syncCounts
	for tenantID, group := range byTenant {
		tenantID, group := tenantID, group
		result, err, _ := s.group.Do(tenantID.String(), func() (any, error) {
			return s.syncTenant(ctx, tenantID, group)
		})
		if err != nil {
			s.logger.Warn("Usage sync failed for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Int("pending", len(group)),
				zap.Error(err),
			)
			total.failed += len(group)
			continue
		}
		counts := result.(syncCounts)
		total.synced += counts.synced
		total.failed += counts.failed
	}
	return total.synced, total.failed, nil
}

func (s *UsageSyncService) syncTenant(ctx context.Context, tenantID uuid.UUID, events []billing.UsageEvent) (syncCounts, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return syncCounts{}, err
	}
	if !tenant.IsActive() {
		// Events for an uninstalled tenant can never be charged.
		return syncCounts{failed: len(events)}, nil
	}

	creds := platform.Credentials{ShopDomain: tenant.ShopDomain, AccessToken: tenant.AccessToken}
	lineItemID, err := s.lineItemID(ctx, tenantID, creds)
	if err != nil {
		return syncCounts{}, err
	}

	var counts syncCounts
	for i := range events {
		event := &events[i]
		result, err := s.client.CreateUsageRecord(ctx, creds, lineItemID, event.Description, event.Price, event.IdempotencyKey)
		if err != nil {
			// Auth and permission failures poison the whole tenant run;
			// anything else just skips this event until the next pass.
			if platform.IsKind(err, platform.KindAuthExpired) || platform.IsKind(err, platform.KindPermissionDenied) {
				counts.failed += len(events) - i
				return counts, err
			}
			counts.failed++
			continue
		}

		if err := event.MarkSynced(result.ID, s.now()); err != nil {
			counts.failed++
			continue
		}
		stamped, err := s.usageEvents.MarkSynced(ctx, event)
		if err != nil {
			counts.failed++
			continue
		}
		if stamped {
			counts.synced++
		}
	}
	return counts, nil
}

// lineItemID resolves the usage line item of the tenant's active charge,
// via a short-lived cache so each sync run does not re-fetch the charge.
func (s *UsageSyncService) lineItemID(ctx context.Context, tenantID uuid.UUID, creds platform.Credentials) (string, error) {
	key := lineItemCacheKey(tenantID)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return cached, nil
	}

	charge, err := s.client.ActiveCharge(ctx, creds)
	if err != nil {
		return "", err
	}
	if charge == nil || charge.LineItemID == "" {
		return "", errors.New("tenant has no active charge with a usage line item")
	}

	if err := s.cache.Set(ctx, key, charge.LineItemID, s.config.LineItemCacheTTL); err != nil {
		s.logger.Warn("Failed to cache line item id", zap.Error(err))
	}
	return charge.LineItemID, nil
}

// InvalidateLineItem drops the cached line item for a tenant. Called when
// the tenant's token or charge changes.
func (s *UsageSyncService) InvalidateLineItem(ctx context.Context, tenantID uuid.UUID) error {
	return s.cache.Invalidate(ctx, lineItemCacheKey(tenantID))
}

func lineItemCacheKey(tenantID uuid.UUID) string {
	return "lineitem:" + tenantID.String()
}
