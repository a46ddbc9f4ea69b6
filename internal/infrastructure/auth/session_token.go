package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/storelink/backend/internal/domain/identity"
)

// Common errors for session token verification
var (
	ErrTokenInvalid     = errors.New("session token is invalid")
	ErrTokenExpired     = errors.New("session token has expired")
	ErrTokenNotYetValid = errors.New("session token is not yet valid")
	ErrTokenAudience    = errors.New("session token audience does not match app client id")
	ErrTokenIssuer      = errors.New("session token issuer does not match its destination")
	ErrTokenDomain      = errors.New("session token destination is not a platform domain")
)

// SessionTokenClaims are the claims carried by an embedded-app session
// token. The platform signs one per page load: iss is the shop's admin URL,
// dest is the shop's origin, aud is the app's client id.
type SessionTokenClaims struct {
	jwt.RegisteredClaims
	Dest      string `json:"dest"`
	SessionID string `json:"sid,omitempty"`
}

// SessionTokenVerifier validates inbound platform session tokens.
type SessionTokenVerifier struct {
	clientID     string
	secret       []byte
	domainSuffix string
}

// NewSessionTokenVerifier creates a verifier bound to the app's client id
// and shared secret.
func NewSessionTokenVerifier(clientID, clientSecret, domainSuffix string) *SessionTokenVerifier {
	return &SessionTokenVerifier{
		clientID:     clientID,
		secret:       []byte(clientSecret),
		domainSuffix: domainSuffix,
	}
}

// Verify checks signature, audience, issuer/destination agreement, and the
// time claims (exp, nbf, iat), and returns the normalized shop domain the
// token was issued for. Any failure is terminal for the request: a session
// token that fails verification must never fall through to weaker signals.
func (v *SessionTokenVerifier) Verify(tokenString string) (string, *SessionTokenClaims, error) {
	claims := &SessionTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return v.secret, nil
	},
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithValidMethods([]string{"HS256"}),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return "", nil, ErrTokenNotYetValid
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return "", nil, ErrTokenAudience
		default:
			return "", nil, ErrTokenInvalid
		}
	}
	if !token.Valid {
		return "", nil, ErrTokenInvalid
	}

	// The issuer is the shop admin URL and must sit under the destination
	// origin; a mismatch means the token was minted for a different shop.
	issuer := strings.TrimSuffix(claims.Issuer, "/")
	dest := strings.TrimSuffix(claims.Dest, "/")
	if dest == "" || issuer == "" || !strings.HasPrefix(issuer, dest) {
		return "", nil, ErrTokenIssuer
	}

	shopDomain := identity.NormalizeShopDomain(dest, v.domainSuffix)
	if shopDomain == "" || !strings.HasSuffix(shopDomain, v.domainSuffix) {
		return "", nil, ErrTokenDomain
	}

	return shopDomain, claims, nil
}
