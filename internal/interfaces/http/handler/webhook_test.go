package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appbilling "github.com/storelink/backend/internal/application/billing"
	"github.com/storelink/backend/internal/interfaces/http/middleware"
)

// fakeWebhookLedger records applied events.
type fakeWebhookLedger struct {
	events []appbilling.WebhookEvent
	err    error
}

func (f *fakeWebhookLedger) ApplyWebhook(_ context.Context, event appbilling.WebhookEvent) error {
	f.events = append(f.events, event)
	return f.err
}

// webhookTestRouter wires the handler behind a stand-in for the signature
// gate that stores the verified body.
func webhookTestRouter(ledger WebhookLedger, body string) *gin.Engine {
	h := NewWebhookHandler(ledger, testSuffix, zap.NewNop())
	router := gin.New()
	router.POST("/webhooks/platform", func(c *gin.Context) {
		c.Set(middleware.WebhookBodyKey, []byte(body))
		c.Next()
	}, h.Receive)
	return router
}

func postWebhook(router *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/platform", strings.NewReader(""))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func standardHeaders() map[string]string {
	return map[string]string{
		TopicHeader:      "app_subscriptions/update",
		EventIDHeader:    "evt-1",
		ShopDomainHeader: testShopDomain,
	}
}

func TestWebhookHandler_AppliesEvent(t *testing.T) {
	ledger := &fakeWebhookLedger{}
	router := webhookTestRouter(ledger, `{"app_subscription":{"charge_id":"rac_1","status":"ACTIVE"}}`)

	rec := postWebhook(router, standardHeaders())

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ledger.events, 1)
	event := ledger.events[0]
	assert.Equal(t, "evt-1", event.EventID)
	assert.Equal(t, "app_subscriptions/update", event.Topic)
	assert.Equal(t, testShopDomain, event.ShopDomain)
	assert.Equal(t, "rac_1", event.ChargeID)
}

func TestWebhookHandler_TopLevelChargeID(t *testing.T) {
	ledger := &fakeWebhookLedger{}
	router := webhookTestRouter(ledger, `{"charge_id":"rac_7"}`)

	rec := postWebhook(router, standardHeaders())

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ledger.events, 1)
	assert.Equal(t, "rac_7", ledger.events[0].ChargeID)
}

func TestWebhookHandler_NormalizesShopDomainHeader(t *testing.T) {
	ledger := &fakeWebhookLedger{}
	router := webhookTestRouter(ledger, `{}`)

	headers := standardHeaders()
	headers[ShopDomainHeader] = "https://ACME.mystorelink.com/"
	rec := postWebhook(router, headers)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ledger.events, 1)
	assert.Equal(t, testShopDomain, ledger.events[0].ShopDomain)
}

func TestWebhookHandler_MissingHeaders(t *testing.T) {
	cases := []struct {
		name   string
		drop   string
		status int
	}{
		{"missing topic", TopicHeader, http.StatusBadRequest},
		{"missing event id", EventIDHeader, http.StatusBadRequest},
		{"missing shop domain", ShopDomainHeader, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := &fakeWebhookLedger{}
			router := webhookTestRouter(ledger, `{}`)

			headers := standardHeaders()
			delete(headers, tc.drop)
			rec := postWebhook(router, headers)

			assert.Equal(t, tc.status, rec.Code)
			assert.Empty(t, ledger.events)
		})
	}
}

func TestWebhookHandler_MalformedPayload(t *testing.T) {
	ledger := &fakeWebhookLedger{}
	router := webhookTestRouter(ledger, `{not json`)

	rec := postWebhook(router, standardHeaders())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ledger.events)
}

func TestWebhookHandler_ApplyFailureTriggersRedelivery(t *testing.T) {
	ledger := &fakeWebhookLedger{err: errors.New("db unavailable")}
	router := webhookTestRouter(ledger, `{}`)

	rec := postWebhook(router, standardHeaders())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "WEBHOOK_APPLY_FAILED", env.Error.Code)
}

func TestWebhookHandler_MissingVerifiedBody(t *testing.T) {
	h := NewWebhookHandler(&fakeWebhookLedger{}, testSuffix, zap.NewNop())
	router := gin.New()
	router.POST("/webhooks/platform", h.Receive)

	rec := postWebhook(router, standardHeaders())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
