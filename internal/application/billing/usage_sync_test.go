package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storelink/backend/internal/domain/billing"
	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/infrastructure/cache"
	"github.com/storelink/backend/internal/infrastructure/platform"
)

type syncFixture struct {
	service *UsageSyncService
	tenants *fakeTenantRepo
	usage   *fakeUsageRepo
	client  *fakePlatformBilling
	tenant  *identity.Tenant
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	tenants := newFakeTenantRepo()
	usage := newFakeUsageRepo()
	client := &fakePlatformBilling{
		charge: &platform.RecurringCharge{ID: "charge_1", Status: "active", LineItemID: "li_1"},
	}
	c := cache.NewInMemoryCache()
	t.Cleanup(func() { _ = c.Close() })

	tenant, err := identity.NewTenant("acme.mystorelink.com", 42, uuid.New(), "shpat_token")
	require.NoError(t, err)
	require.NoError(t, tenants.Create(context.Background(), tenant))

	service := NewUsageSyncService(usage, tenants, client, c, DefaultUsageSyncConfig(), zap.NewNop())

	return &syncFixture{service: service, tenants: tenants, usage: usage, client: client, tenant: tenant}
}

func addPending(t *testing.T, f *syncFixture, n int) []*billing.UsageEvent {
	t.Helper()
	events := make([]*billing.UsageEvent, n)
	for i := range events {
		event, err := billing.NewUsageEvent(f.tenant.ID, billing.UsageTypeOrderExport, "export", decimal.NewFromFloat(0.05))
		require.NoError(t, err)
		require.NoError(t, f.usage.Create(context.Background(), event))
		events[i] = event
	}
	return events
}

func TestUsageSyncService_SyncPending(t *testing.T) {
	t.Run("syncs every pending event exactly once", func(t *testing.T) {
		f := newSyncFixture(t)
		addPending(t, f, 3)

		synced, failed, err := f.service.SyncPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, synced)
		assert.Equal(t, 0, failed)
		assert.Equal(t, 3, f.client.recordCalls)
		assert.Len(t, f.client.idempotencyKeys, 3)

		// A second run finds nothing and calls the platform zero times.
		synced, failed, err = f.service.SyncPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, synced)
		assert.Equal(t, 0, failed)
		assert.Equal(t, 3, f.client.recordCalls)
	})

	t.Run("caches the line item across a run", func(t *testing.T) {
		f := newSyncFixture(t)
		addPending(t, f, 5)

		_, _, err := f.service.SyncPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, f.client.chargeCalls)

		addPending(t, f, 2)
		_, _, err = f.service.SyncPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, f.client.chargeCalls, "line item should come from cache")
	})

	t.Run("invalidating the line item forces a re-fetch", func(t *testing.T) {
		f := newSyncFixture(t)
		addPending(t, f, 1)
		_, _, err := f.service.SyncPending(context.Background())
		require.NoError(t, err)

		require.NoError(t, f.service.InvalidateLineItem(context.Background(), f.tenant.ID))

		addPending(t, f, 1)
		_, _, err = f.service.SyncPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, f.client.chargeCalls)
	})

	t.Run("skips events for an uninstalled tenant", func(t *testing.T) {
		f := newSyncFixture(t)
		addPending(t, f, 2)
		_, err := f.tenants.Deactivate(context.Background(), f.tenant.ID)
		require.NoError(t, err)

		synced, failed, err := f.service.SyncPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, synced)
		assert.Equal(t, 2, failed)
		assert.Equal(t, 0, f.client.recordCalls)
	})

	t.Run("an expired token fails the tenant batch without stamping", func(t *testing.T) {
		f := newSyncFixture(t)
		addPending(t, f, 2)
		f.client.recordErr = &platform.Error{Kind: platform.KindAuthExpired, Status: 401}

		synced, _, err := f.service.SyncPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, synced)

		pending, err := f.usage.FindUnsynced(context.Background(), 10)
		require.NoError(t, err)
		assert.Len(t, pending, 2, "nothing may be stamped without platform confirmation")
	})

	t.Run("a transient failure leaves the event for the next run", func(t *testing.T) {
		f := newSyncFixture(t)
		addPending(t, f, 1)
		f.client.recordErr = &platform.Error{Kind: platform.KindPlatformError, Status: 500}

		synced, failed, err := f.service.SyncPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, synced)
		assert.Equal(t, 1, failed)

		f.client.recordErr = nil
		synced, failed, err = f.service.SyncPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, synced)
		assert.Equal(t, 0, failed)
	})

	t.Run("reuses the stored idempotency key on retry", func(t *testing.T) {
		f := newSyncFixture(t)
		events := addPending(t, f, 1)
		f.client.recordErr = &platform.Error{Kind: platform.KindNetworkTransient}

		_, _, err := f.service.SyncPending(context.Background())
		require.NoError(t, err)

		f.client.recordErr = nil
		_, _, err = f.service.SyncPending(context.Background())
		require.NoError(t, err)
		require.Len(t, f.client.idempotencyKeys, 1)
		assert.Equal(t, events[0].IdempotencyKey, f.client.idempotencyKeys[0])
	})
}
