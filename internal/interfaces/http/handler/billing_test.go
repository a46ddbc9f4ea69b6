package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appidentity "github.com/storelink/backend/internal/application/identity"
	"github.com/storelink/backend/internal/domain/billing"
)

// fakeSubscriptionLedger answers subscription transitions with a canned
// subscription or error.
type fakeSubscriptionLedger struct {
	sub      *billing.Subscription
	err      error
	tenantID uuid.UUID
	chargeID string
}

func (f *fakeSubscriptionLedger) ConfirmSubscribe(_ context.Context, tenantID uuid.UUID, chargeID string) (*billing.Subscription, error) {
	f.tenantID = tenantID
	f.chargeID = chargeID
	return f.sub, f.err
}

func (f *fakeSubscriptionLedger) CancelSubscription(_ context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	f.tenantID = tenantID
	return f.sub, f.err
}

func billingTestRouter(ledger SubscriptionLedger, id *appidentity.Identity) *gin.Engine {
	h := NewBillingHandler(ledger, zap.NewNop())
	router := gin.New()
	group := router.Group("/billing", injectIdentity(id))
	group.POST("/subscribe/confirm", h.ConfirmSubscribe)
	group.POST("/cancel", h.Cancel)
	return router
}

func activeSubscription() *billing.Subscription {
	return &billing.Subscription{
		State:       billing.StateActive,
		TrialEndsAt: time.Now().Add(7 * 24 * time.Hour),
		ChargeID:    "rac_1",
	}
}

func TestBillingHandler_ConfirmSubscribe(t *testing.T) {
	t.Run("activates with a valid charge id", func(t *testing.T) {
		id := testIdentity()
		ledger := &fakeSubscriptionLedger{sub: activeSubscription()}
		router := billingTestRouter(ledger, id)

		req := httptest.NewRequest(http.MethodPost, "/billing/subscribe/confirm",
			strings.NewReader(`{"charge_id":"rac_1"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id.Tenant.ID, ledger.tenantID)
		assert.Equal(t, "rac_1", ledger.chargeID)
		assert.Contains(t, rec.Body.String(), `"state":"active"`)
	})

	t.Run("rejects a missing charge id", func(t *testing.T) {
		ledger := &fakeSubscriptionLedger{sub: activeSubscription()}
		router := billingTestRouter(ledger, testIdentity())

		req := httptest.NewRequest(http.MethodPost, "/billing/subscribe/confirm",
			strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, ledger.chargeID)
	})

	t.Run("rejects an unauthenticated request", func(t *testing.T) {
		router := billingTestRouter(&fakeSubscriptionLedger{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/billing/subscribe/confirm",
			strings.NewReader(`{"charge_id":"rac_1"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("maps an uninstalled subscription to 402", func(t *testing.T) {
		ledger := &fakeSubscriptionLedger{err: billing.ErrSubscriptionUninstalled}
		router := billingTestRouter(ledger, testIdentity())

		req := httptest.NewRequest(http.MethodPost, "/billing/subscribe/confirm",
			strings.NewReader(`{"charge_id":"rac_1"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		env := decodeEnvelope(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, "SUBSCRIPTION_UNINSTALLED", env.Error.Code)
	})
}

func TestBillingHandler_Cancel(t *testing.T) {
	t.Run("cancels the tenant subscription", func(t *testing.T) {
		id := testIdentity()
		sub := activeSubscription()
		sub.State = billing.StateCancelled
		ledger := &fakeSubscriptionLedger{sub: sub}
		router := billingTestRouter(ledger, id)

		req := httptest.NewRequest(http.MethodPost, "/billing/cancel", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id.Tenant.ID, ledger.tenantID)
		assert.Contains(t, rec.Body.String(), `"state":"cancelled"`)
	})

	t.Run("rejects an unauthenticated request", func(t *testing.T) {
		router := billingTestRouter(&fakeSubscriptionLedger{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/billing/cancel", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
