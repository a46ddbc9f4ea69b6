package handler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	appidentity "github.com/storelink/backend/internal/application/identity"
	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testShopDomain = "acme.mystorelink.com"
	testSuffix     = ".mystorelink.com"
)

var testCookie = SessionCookieConfig{Name: "storelink_session", TTL: time.Hour}

// testIdentity builds an authenticated cookie identity for one tenant.
func testIdentity() *appidentity.Identity {
	ownerID := uuid.New()
	return &appidentity.Identity{
		Source:     appidentity.SourceCookie,
		ShopDomain: testShopDomain,
		Tenant: &identity.Tenant{
			BaseEntity:  shared.BaseEntity{ID: uuid.New()},
			OwnerID:     ownerID,
			ShopDomain:  testShopDomain,
			AccessToken: "shpat_test",
			Status:      identity.InstallStatusActive,
			InstalledAt: time.Now(),
		},
		Owner: &identity.Owner{
			BaseEntity: shared.BaseEntity{ID: ownerID},
			Email:      "merchant@example.com",
		},
	}
}

// injectIdentity places a resolved identity into the request context, the
// way the identity middleware would.
func injectIdentity(id *appidentity.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id != nil {
			c.Set(middleware.IdentityKey, id)
		}
		c.Next()
	}
}

// envelope mirrors the response wrapper for assertions.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}
