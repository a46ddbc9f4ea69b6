package identity

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appbilling "github.com/storelink/backend/internal/application/billing"
	"github.com/storelink/backend/internal/domain/billing"
	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/auth"
	"github.com/storelink/backend/internal/infrastructure/platform"
)

// PlatformConnector is the slice of the platform client the install flow
// needs.
type PlatformConnector interface {
	ExchangeCode(ctx context.Context, shopDomain, code string) (string, error)
	Shop(ctx context.Context, creds platform.Credentials) (*platform.ShopInfo, error)
}

// LineItemInvalidator drops cached billing state for a tenant whose
// credentials changed.
type LineItemInvalidator interface {
	InvalidateLineItem(ctx context.Context, tenantID uuid.UUID) error
}

// ConnectService handles the OAuth install callback and the owner-side
// disconnect and data-redaction flows.
type ConnectService struct {
	tenants      identity.TenantRepository
	owners       identity.OwnerRepository
	usageEvents  billing.UsageEventRepository
	subs         billing.SubscriptionRepository
	ledger       *appbilling.LedgerService
	connector    PlatformConnector
	hmac         *auth.HMACVerifier
	cookies      *auth.CookieSessionCodec
	invalidator  LineItemInvalidator
	domainSuffix string
	logger       *zap.Logger
}

// NewConnectService creates a new connect service
func NewConnectService(
	tenants identity.TenantRepository,
	owners identity.OwnerRepository,
	usageEvents billing.UsageEventRepository,
	subs billing.SubscriptionRepository,
	ledger *appbilling.LedgerService,
	connector PlatformConnector,
	hmac *auth.HMACVerifier,
	cookies *auth.CookieSessionCodec,
	invalidator LineItemInvalidator,
	domainSuffix string,
	logger *zap.Logger,
) *ConnectService {
	return &ConnectService{
		tenants:      tenants,
		owners:       owners,
		usageEvents:  usageEvents,
		subs:         subs,
		ledger:       ledger,
		connector:    connector,
		hmac:         hmac,
		cookies:      cookies,
		invalidator:  invalidator,
		domainSuffix: domainSuffix,
		logger:       logger,
	}
}

// ConnectResult is the outcome of a completed install callback.
type ConnectResult struct {
	Tenant        *identity.Tenant
	Subscription  *billing.Subscription
	SessionCookie string
	Reconnected   bool
}

// HandleCallback completes an OAuth install. The query must carry a valid
// platform HMAC; the authorization code is exchanged for an access token and
// the tenant is created or, on reconnect, re-credentialed.
func (s *ConnectService) HandleCallback(ctx context.Context, ownerID uuid.UUID, query url.Values) (*ConnectResult, error) {
	if err := s.hmac.VerifyQuery(query); err != nil {
		s.logger.Warn("Install callback signature rejected", zap.Error(err))
		return nil, ErrSignatureInvalid
	}

	shopDomain := identity.NormalizeShopDomain(query.Get("shop"), s.domainSuffix)
	code := query.Get("code")
	if shopDomain == "" || code == "" {
		return nil, shared.ErrInvalidInput
	}

	owner, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.connector.ExchangeCode(ctx, shopDomain, code)
	if err != nil {
		return nil, err
	}
	creds := platform.Credentials{ShopDomain: shopDomain, AccessToken: accessToken}

	existing, err := s.tenants.FindActiveByDomain(ctx, shopDomain)
	switch {
	case err == nil:
		return s.reconnect(ctx, owner, existing, accessToken)
	case errors.Is(err, shared.ErrNotFound):
		return s.install(ctx, owner, creds)
	default:
		return nil, err
	}
}

// reconnect rotates the token of an existing installation. A shop already
// connected to a different owner account is refused.
func (s *ConnectService) reconnect(ctx context.Context, owner *identity.Owner, tenant *identity.Tenant, accessToken string) (*ConnectResult, error) {
	if tenant.OwnerID != owner.ID {
		s.logger.Warn("Install callback for shop owned by another account",
			zap.String("shop_domain", tenant.ShopDomain),
			zap.String("owner_id", owner.ID.String()),
		)
		return nil, shared.NewDomainError("SHOP_CLAIMED", "This shop is connected to a different account")
	}

	rotated, err := s.tenants.RotateToken(ctx, tenant.ID, accessToken)
	if err != nil {
		return nil, err
	}
	if !rotated {
		// The tenant was uninstalled between lookup and rotation; fall back
		// to a fresh install.
		return s.install(ctx, owner, platform.Credentials{ShopDomain: tenant.ShopDomain, AccessToken: accessToken})
	}
	if err := s.invalidator.InvalidateLineItem(ctx, tenant.ID); err != nil {
		s.logger.Warn("Failed to invalidate line item cache", zap.Error(err))
	}

	sub, err := s.subs.FindByTenant(ctx, tenant.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	cookie, err := s.cookies.Encode(auth.CookieSession{
		OwnerID:    owner.ID,
		TenantID:   tenant.ID,
		ShopDomain: tenant.ShopDomain,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Tenant reconnected",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("shop_domain", tenant.ShopDomain),
	)
	return &ConnectResult{Tenant: tenant, Subscription: sub, SessionCookie: cookie, Reconnected: true}, nil
}

func (s *ConnectService) install(ctx context.Context, owner *identity.Owner, creds platform.Credentials) (*ConnectResult, error) {
	shop, err := s.connector.Shop(ctx, creds)
	if err != nil {
		return nil, err
	}

	tenant, err := identity.NewTenant(creds.ShopDomain, shop.ID, owner.ID, creds.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, err
	}

	sub, err := s.ledger.StartTrial(ctx, tenant, owner)
	if err != nil {
		return nil, err
	}

	cookie, err := s.cookies.Encode(auth.CookieSession{
		OwnerID:    owner.ID,
		TenantID:   tenant.ID,
		ShopDomain: tenant.ShopDomain,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Tenant installed",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("shop_domain", tenant.ShopDomain),
		zap.Int64("platform_account_id", shop.ID),
	)
	return &ConnectResult{Tenant: tenant, Subscription: sub, SessionCookie: cookie}, nil
}

// Disconnect scrubs the tenant's token and parks its subscription. Only the
// owning account may disconnect a tenant.
func (s *ConnectService) Disconnect(ctx context.Context, ownerID, tenantID uuid.UUID) error {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.OwnerID != ownerID {
		return shared.ErrForbidden
	}

	if err := s.ledger.Uninstall(ctx, tenantID); err != nil {
		return err
	}
	if err := s.invalidator.InvalidateLineItem(ctx, tenantID); err != nil {
		s.logger.Warn("Failed to invalidate line item cache", zap.Error(err))
	}
	return nil
}

// Redact hard-deletes a tenant and everything recorded for it. This is the
// only path that removes rows instead of scrubbing them.
func (s *ConnectService) Redact(ctx context.Context, ownerID, tenantID uuid.UUID) error {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.OwnerID != ownerID {
		return shared.ErrForbidden
	}

	if err := s.usageEvents.DeleteByTenant(ctx, tenantID); err != nil {
		return err
	}
	if err := s.subs.DeleteByTenant(ctx, tenantID); err != nil {
		return err
	}
	if err := s.tenants.HardDelete(ctx, tenantID); err != nil {
		return err
	}
	if err := s.invalidator.InvalidateLineItem(ctx, tenantID); err != nil {
		s.logger.Warn("Failed to invalidate line item cache", zap.Error(err))
	}

	s.logger.Info("Tenant data redacted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("shop_domain", tenant.ShopDomain),
	)
	return nil
}
