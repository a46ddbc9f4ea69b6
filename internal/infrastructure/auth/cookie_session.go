package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Cookie session errors
var (
	ErrSessionInvalid = errors.New("cookie session is invalid")
	ErrSessionExpired = errors.New("cookie session has expired")
)

// CookieSession is the first-party session stored in the browser after an
// owner has been resolved once. It is evidence only: the resolver
// cross-checks its domain against the request before trusting it.
type CookieSession struct {
	OwnerID    uuid.UUID
	TenantID   uuid.UUID
	ShopDomain string
}

type cookieSessionClaims struct {
	jwt.RegisteredClaims
	OwnerID    string `json:"owner_id"`
	TenantID   string `json:"tenant_id"`
	ShopDomain string `json:"shop_domain"`
}

// CookieSessionCodec signs and verifies cookie session tokens.
type CookieSessionCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewCookieSessionCodec creates a codec with the cookie signing secret and
// session TTL.
func NewCookieSessionCodec(secret string, ttl time.Duration) *CookieSessionCodec {
	return &CookieSessionCodec{secret: []byte(secret), ttl: ttl}
}

// TTL returns the session lifetime, for setting cookie max-age.
func (c *CookieSessionCodec) TTL() time.Duration {
	return c.ttl
}

// Encode signs a session into a compact token.
func (c *CookieSessionCodec) Encode(session CookieSession) (string, error) {
	now := time.Now()
	claims := &cookieSessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   session.OwnerID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OwnerID:    session.OwnerID.String(),
		TenantID:   session.TenantID.String(),
		ShopDomain: session.ShopDomain,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies and parses a session token.
func (c *CookieSessionCodec) Decode(tokenString string) (*CookieSession, error) {
	claims := &cookieSessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrSessionInvalid
		}
		return c.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid
	}
	if !token.Valid {
		return nil, ErrSessionInvalid
	}

	ownerID, err := uuid.Parse(claims.OwnerID)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return nil, ErrSessionInvalid
	}

	return &CookieSession{
		OwnerID:    ownerID,
		TenantID:   tenantID,
		ShopDomain: claims.ShopDomain,
	}, nil
}
