package identity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/auth"
)

const bcryptCost = 12

// AuthServiceConfig contains configuration for the auth service
type AuthServiceConfig struct {
	TrialWindow time.Duration
	MinPassword int
}

// DefaultAuthServiceConfig returns default configuration
func DefaultAuthServiceConfig() AuthServiceConfig {
	return AuthServiceConfig{
		TrialWindow: 14 * 24 * time.Hour,
		MinPassword: 8,
	}
}

// AuthService handles owner signup and login.
type AuthService struct {
	owners  identity.OwnerRepository
	tenants identity.TenantRepository
	cookies *auth.CookieSessionCodec
	config  AuthServiceConfig
	logger  *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	owners identity.OwnerRepository,
	tenants identity.TenantRepository,
	cookies *auth.CookieSessionCodec,
	config AuthServiceConfig,
	logger *zap.Logger,
) *AuthService {
	if config.TrialWindow <= 0 {
		config.TrialWindow = DefaultAuthServiceConfig().TrialWindow
	}
	if config.MinPassword <= 0 {
		config.MinPassword = DefaultAuthServiceConfig().MinPassword
	}
	return &AuthService{
		owners:  owners,
		tenants: tenants,
		cookies: cookies,
		config:  config,
		logger:  logger,
	}
}

// SignupInput contains the data for owner registration
type SignupInput struct {
	Email    string
	Password string
}

// LoginInput contains the data for owner login
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is the outcome of signup or login. The session binds to the
// owner's active tenant when one exists; otherwise it is an owner-only
// session that carries no shop authority but lets the owner complete an
// install callback.
type AuthResult struct {
	Owner         *identity.Owner
	SessionCookie string
}

// Signup registers a new owner and starts the trial clock.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	if len(input.Password) < s.config.MinPassword {
		return nil, shared.NewDomainError("WEAK_PASSWORD", "Password is too short")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, err
	}

	owner, err := identity.NewOwner(input.Email, string(hash), s.config.TrialWindow)
	if err != nil {
		return nil, err
	}

	if err := s.owners.Create(ctx, owner); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shared.NewDomainError("EMAIL_TAKEN", "An account with this email already exists")
		}
		return nil, err
	}

	s.logger.Info("Owner registered",
		zap.String("owner_id", owner.ID.String()),
		zap.Time("trial_ends_at", owner.TrialEndsAt),
	)

	cookie, err := s.mintSession(ctx, owner)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Owner: owner, SessionCookie: cookie}, nil
}

// Login authenticates an owner. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	owner, err := s.owners.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errInvalidCredentials()
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(owner.PasswordHash), []byte(input.Password)); err != nil {
		s.logger.Warn("Failed login attempt", zap.String("owner_id", owner.ID.String()))
		return nil, errInvalidCredentials()
	}

	cookie, err := s.mintSession(ctx, owner)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Owner: owner, SessionCookie: cookie}, nil
}

// mintSession binds a session to the owner's active tenant. An owner without
// one gets an owner-only session: it authorizes the install callback and
// nothing else.
func (s *AuthService) mintSession(ctx context.Context, owner *identity.Owner) (string, error) {
	tenants, err := s.tenants.FindByOwner(ctx, owner.ID)
	if err != nil {
		return "", err
	}
	for i := range tenants {
		if tenants[i].IsActive() {
			return s.cookies.Encode(auth.CookieSession{
				OwnerID:    owner.ID,
				TenantID:   tenants[i].ID,
				ShopDomain: tenants[i].ShopDomain,
			})
		}
	}
	return s.cookies.Encode(auth.CookieSession{OwnerID: owner.ID})
}

func errInvalidCredentials() error {
	return shared.NewDomainError("INVALID_CREDENTIALS", "Invalid email or password")
}
