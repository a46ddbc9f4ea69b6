package identity

import (
	"context"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/auth"
)

// Resolver errors. Signature and token failures are reported without detail;
// the caller only learns that the request could not be authenticated.
var (
	ErrUnauthenticated  = shared.NewDomainError("UNAUTHENTICATED", "Request carries no valid identity signal")
	ErrSignatureInvalid = shared.NewDomainError("SIGNATURE_INVALID", "Request signature could not be verified")
	ErrTokenRejected    = shared.NewDomainError("TOKEN_REJECTED", "Session token could not be verified")
	ErrIdentityMismatch = shared.NewDomainError("IDENTITY_MISMATCH", "Session does not match the requested shop")
	ErrNotInstalled     = shared.NewDomainError("NOT_INSTALLED", "App is not installed on this shop")
)

// Source records which signal authenticated the request.
type Source string

const (
	SourceSessionToken Source = "session_token"
	SourceSignedQuery  Source = "signed_query"
	SourceCookie       Source = "cookie"
	// SourceDomainOnly is an unsigned domain claim. It carries no authority
	// and is accepted only for the install status probe.
	SourceDomainOnly Source = "domain_only"
)

// Signals are the raw identity inputs extracted from one HTTP request.
type Signals struct {
	SessionToken  string     // bearer token from the Authorization header
	Query         url.Values // full query string, possibly carrying hmac + shop
	CookieSession string     // encoded session cookie, if present
	ClaimedDomain string     // unsigned shop parameter, raw form
}

// Identity is the outcome of resolution. Tenant and Owner are set for every
// authenticated source; a domain-only identity has just the shop domain.
type Identity struct {
	Source     Source
	ShopDomain string
	Tenant     *identity.Tenant
	Owner      *identity.Owner

	// ClearSession tells the transport layer to drop the session cookie:
	// it was expired, malformed, or contradicted a stronger signal.
	ClearSession bool
}

// Authenticated reports whether the identity carries real authority.
func (id *Identity) Authenticated() bool {
	return id.Source == SourceSessionToken || id.Source == SourceSignedQuery || id.Source == SourceCookie
}

// Resolver turns request signals into a tenant identity. Signals are tried
// strongest first: platform session token, then signed query, then the
// app's own session cookie. A cookie is never trusted against a conflicting
// domain claim from a stronger signal or an explicit shop parameter.
type Resolver struct {
	tenants      identity.TenantRepository
	owners       identity.OwnerRepository
	sessionToken *auth.SessionTokenVerifier
	hmac         *auth.HMACVerifier
	cookies      *auth.CookieSessionCodec
	domainSuffix string
	logger       *zap.Logger
}

// NewResolver creates a new identity resolver
func NewResolver(
	tenants identity.TenantRepository,
	owners identity.OwnerRepository,
	sessionToken *auth.SessionTokenVerifier,
	hmac *auth.HMACVerifier,
	cookies *auth.CookieSessionCodec,
	domainSuffix string,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		tenants:      tenants,
		owners:       owners,
		sessionToken: sessionToken,
		hmac:         hmac,
		cookies:      cookies,
		domainSuffix: domainSuffix,
		logger:       logger,
	}
}

// Resolve authenticates one request. Any present-but-invalid signature or
// token fails the whole request; resolution never falls through to a weaker
// signal after a stronger one was presented and rejected.
func (r *Resolver) Resolve(ctx context.Context, signals Signals) (*Identity, error) {
	if signals.SessionToken != "" {
		return r.resolveSessionToken(ctx, signals)
	}
	if signals.Query != nil && signals.Query.Get("hmac") != "" {
		return r.resolveSignedQuery(ctx, signals)
	}
	if signals.CookieSession != "" {
		return r.resolveCookie(ctx, signals)
	}
	if domain := identity.NormalizeShopDomain(signals.ClaimedDomain, r.domainSuffix); domain != "" {
		return &Identity{Source: SourceDomainOnly, ShopDomain: domain}, nil
	}
	return nil, ErrUnauthenticated
}

func (r *Resolver) resolveSessionToken(ctx context.Context, signals Signals) (*Identity, error) {
	domain, _, err := r.sessionToken.Verify(signals.SessionToken)
	if err != nil {
		r.logger.Warn("Session token rejected", zap.Error(err))
		return nil, ErrTokenRejected
	}
	return r.resolveDomain(ctx, SourceSessionToken, domain, signals.CookieSession)
}

func (r *Resolver) resolveSignedQuery(ctx context.Context, signals Signals) (*Identity, error) {
	if err := r.hmac.VerifyQuery(signals.Query); err != nil {
		r.logger.Warn("Query signature rejected", zap.Error(err))
		return nil, ErrSignatureInvalid
	}
	domain := identity.NormalizeShopDomain(signals.Query.Get("shop"), r.domainSuffix)
	if domain == "" {
		return nil, ErrSignatureInvalid
	}
	return r.resolveDomain(ctx, SourceSignedQuery, domain, signals.CookieSession)
}

// resolveDomain loads the tenant and owner for a domain proven by a strong
// signal. A cookie naming a different shop is discarded.
func (r *Resolver) resolveDomain(ctx context.Context, source Source, domain, cookieSession string) (*Identity, error) {
	tenant, err := r.tenants.FindActiveByDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrNotInstalled
		}
		return nil, err
	}

	owner, err := r.owners.FindByID(ctx, tenant.OwnerID)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		Source:     source,
		ShopDomain: domain,
		Tenant:     tenant,
		Owner:      owner,
	}
	if cookieSession != "" {
		if session, err := r.cookies.Decode(cookieSession); err != nil || session.ShopDomain != domain {
			id.ClearSession = true
		}
	}
	return id, nil
}

func (r *Resolver) resolveCookie(ctx context.Context, signals Signals) (*Identity, error) {
	session, err := r.cookies.Decode(signals.CookieSession)
	if err != nil {
		return nil, r.clearAnd(ErrUnauthenticated)
	}

	// An owner-only session names no shop. It stays valid for the install
	// callback but grants nothing here.
	if session.ShopDomain == "" {
		return nil, ErrNotInstalled
	}

	// An explicit shop parameter that names a different store invalidates
	// the session outright instead of answering for the wrong store.
	if claimed := identity.NormalizeShopDomain(signals.ClaimedDomain, r.domainSuffix); claimed != "" && claimed != session.ShopDomain {
		r.logger.Warn("Session domain conflicts with claimed shop",
			zap.String("session_domain", session.ShopDomain),
			zap.String("claimed_domain", claimed),
		)
		return nil, r.clearAnd(ErrIdentityMismatch)
	}

	tenant, err := r.tenants.FindActiveByDomain(ctx, session.ShopDomain)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, r.clearAnd(ErrNotInstalled)
		}
		return nil, err
	}

	// The session must still agree with the installation it was minted for.
	if tenant.ID != session.TenantID || tenant.OwnerID != session.OwnerID {
		return nil, r.clearAnd(ErrIdentityMismatch)
	}

	owner, err := r.owners.FindByID(ctx, tenant.OwnerID)
	if err != nil {
		return nil, err
	}

	return &Identity{
		Source:     SourceCookie,
		ShopDomain: session.ShopDomain,
		Tenant:     tenant,
		Owner:      owner,
	}, nil
}

// clearAnd wraps a resolver error so the transport layer also drops the
// session cookie.
func (r *Resolver) clearAnd(err *shared.DomainError) error {
	return &SessionClearError{Err: err}
}

// SessionClearError signals that the session cookie must be cleared in
// addition to rejecting the request.
type SessionClearError struct {
	Err *shared.DomainError
}

func (e *SessionClearError) Error() string { return e.Err.Error() }

func (e *SessionClearError) Unwrap() error { return e.Err }
