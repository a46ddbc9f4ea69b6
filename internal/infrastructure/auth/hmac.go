package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// HMAC verification errors
var (
	ErrSignatureMissing = errors.New("hmac signature is missing")
	ErrSignatureInvalid = errors.New("hmac signature does not match")
)

// hmacQueryField is the query parameter carrying the signature on
// callback-style requests. It is excluded from the signed message.
const hmacQueryField = "hmac"

// HMACVerifier validates platform-signed requests: hex HMAC-SHA256 over the
// canonical sorted query string for OAuth callbacks, and base64 HMAC-SHA256
// over the raw body for webhook deliveries. All comparisons are
// constant-time.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier with the app's shared secret.
func NewHMACVerifier(clientSecret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(clientSecret)}
}

// VerifyQuery checks the hmac parameter of a callback query. The message is
// every other parameter, sorted by key, joined as key=value&key=value.
func (v *HMACVerifier) VerifyQuery(query url.Values) error {
	provided := query.Get(hmacQueryField)
	if provided == "" {
		return ErrSignatureMissing
	}

	expected := v.SignQuery(query)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrSignatureInvalid
	}
	return nil
}

// SignQuery computes the hex HMAC over the canonical query string,
// excluding the signature field itself.
func (v *HMACVerifier) SignQuery(query url.Values) string {
	keys := make([]string, 0, len(query))
	for key := range query {
		if key == hmacQueryField {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for i, key := range keys {
		if i > 0 {
			builder.WriteByte('&')
		}
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(strings.Join(query[key], ","))
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(builder.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyBody checks the base64 HMAC header of a webhook delivery against
// the raw request body.
func (v *HMACVerifier) VerifyBody(body []byte, providedBase64 string) error {
	if providedBase64 == "" {
		return ErrSignatureMissing
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(providedBase64)) {
		return ErrSignatureInvalid
	}
	return nil
}

// SignBody computes the base64 HMAC for a payload. Used by tests and by
// outbound verification fixtures.
func (v *HMACVerifier) SignBody(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
