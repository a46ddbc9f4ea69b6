package billing

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storelink/backend/internal/domain/billing"
	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/notification"
	"github.com/storelink/backend/internal/infrastructure/platform"
)

type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*identity.Tenant
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{tenants: make(map[uuid.UUID]*identity.Tenant)}
}

func (r *fakeTenantRepo) Create(_ context.Context, tenant *identity.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *tenant
	r.tenants[tenant.ID] = &clone
	return nil
}

func (r *fakeTenantRepo) FindByID(_ context.Context, id uuid.UUID) (*identity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTenantRepo) FindActiveByDomain(_ context.Context, shopDomain string) (*identity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.IsActive() && strings.EqualFold(t.ShopDomain, shopDomain) {
			clone := *t
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTenantRepo) FindByOwner(_ context.Context, ownerID uuid.UUID) ([]identity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []identity.Tenant
	for _, t := range r.tenants {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTenantRepo) SetCharge(_ context.Context, id uuid.UUID, chargeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok || !t.IsActive() {
		return false, nil
	}
	t.ChargeID = chargeID
	return true, nil
}

func (r *fakeTenantRepo) Deactivate(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok || !t.IsActive() {
		return false, nil
	}
	t.Uninstall()
	return true, nil
}

func (r *fakeTenantRepo) RotateToken(_ context.Context, id uuid.UUID, accessToken string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok || !t.IsActive() {
		return false, nil
	}
	t.AccessToken = accessToken
	return true, nil
}

func (r *fakeTenantRepo) HardDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tenants, id)
	return nil
}

type fakeOwnerRepo struct {
	mu     sync.Mutex
	owners map[uuid.UUID]*identity.Owner
}

func newFakeOwnerRepo() *fakeOwnerRepo {
	return &fakeOwnerRepo{owners: make(map[uuid.UUID]*identity.Owner)}
}

func (r *fakeOwnerRepo) Create(_ context.Context, owner *identity.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.owners {
		if o.Email == owner.Email {
			return shared.ErrAlreadyExists
		}
	}
	clone := *owner
	r.owners[owner.ID] = &clone
	return nil
}

func (r *fakeOwnerRepo) FindByID(_ context.Context, id uuid.UUID) (*identity.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.owners[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *o
	return &clone, nil
}

func (r *fakeOwnerRepo) FindByEmail(_ context.Context, email string) (*identity.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.owners {
		if strings.EqualFold(o.Email, email) {
			clone := *o
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeOwnerRepo) Update(_ context.Context, owner *identity.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[owner.ID]; !ok {
		return shared.ErrNotFound
	}
	clone := *owner
	r.owners[owner.ID] = &clone
	return nil
}

type fakeSubRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*billing.Subscription // keyed by tenant id
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{subs: make(map[uuid.UUID]*billing.Subscription)}
}

func (r *fakeSubRepo) Create(_ context.Context, sub *billing.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.TenantID]; ok {
		return shared.ErrAlreadyExists
	}
	clone := *sub
	r.subs[sub.TenantID] = &clone
	return nil
}

func (r *fakeSubRepo) FindByTenant(_ context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[tenantID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *fakeSubRepo) Update(_ context.Context, sub *billing.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.subs[sub.TenantID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.State == billing.StateUninstalled {
		return billing.ErrSubscriptionUninstalled
	}
	clone := *sub
	r.subs[sub.TenantID] = &clone
	return nil
}

func (r *fakeSubRepo) DeleteByTenant(_ context.Context, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, tenantID)
	return nil
}

type fakeUsageRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*billing.UsageEvent
	order  []uuid.UUID
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{events: make(map[uuid.UUID]*billing.UsageEvent)}
}

func (r *fakeUsageRepo) Create(_ context.Context, event *billing.UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.IdempotencyKey == event.IdempotencyKey {
			return shared.ErrAlreadyExists
		}
	}
	clone := *event
	r.events[event.ID] = &clone
	r.order = append(r.order, event.ID)
	return nil
}

func (r *fakeUsageRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.UsageEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (r *fakeUsageRepo) FindUnsynced(_ context.Context, limit int) ([]billing.UsageEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []billing.UsageEvent
	for _, id := range r.order {
		if len(out) >= limit {
			break
		}
		if e := r.events[id]; e != nil && !e.Synced() {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeUsageRepo) MarkSynced(_ context.Context, event *billing.UsageEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.events[event.ID]
	if !ok {
		return false, shared.ErrNotFound
	}
	if stored.Synced() {
		return false, nil
	}
	clone := *event
	r.events[event.ID] = &clone
	return true, nil
}

func (r *fakeUsageRepo) DeleteByTenant(_ context.Context, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.events {
		if e.TenantID == tenantID {
			delete(r.events, id)
		}
	}
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification.BillingEvent
}

func (n *fakeNotifier) Notify(event notification.BillingEvent) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *fakeNotifier) Close() {}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Kind
	}
	return out
}

// fakePlatformBilling counts calls so tests can assert exactly-once
// submission per idempotency key.
type fakePlatformBilling struct {
	mu              sync.Mutex
	charge          *platform.RecurringCharge
	chargeErr       error
	recordErr       error
	chargeCalls     int
	recordCalls     int
	idempotencyKeys []string
}

func (f *fakePlatformBilling) ActiveCharge(_ context.Context, _ platform.Credentials) (*platform.RecurringCharge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeCalls++
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return f.charge, nil
}

func (f *fakePlatformBilling) CreateUsageRecord(_ context.Context, _ platform.Credentials, _, _ string, _ decimal.Decimal, idempotencyKey string) (*platform.UsageRecordResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCalls++
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	f.idempotencyKeys = append(f.idempotencyKeys, idempotencyKey)
	return &platform.UsageRecordResult{ID: "rec_" + idempotencyKey[:8]}, nil
}
