package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storelink/backend/internal/domain/billing"
	"github.com/storelink/backend/internal/infrastructure/platform"
	"github.com/storelink/backend/internal/interfaces/http/middleware"
)

// orderFilterParams are the query parameters forwarded to the platform.
var orderFilterParams = []string{"status", "created_at_min", "created_at_max", "financial_status"}

const defaultOrderPageSize = 50

// OrdersResponse is one page of orders. NextPageInfo addresses the following
// page; absent means the listing is exhausted.
type OrdersResponse struct {
	Orders       []json.RawMessage `json:"orders"`
	Count        int               `json:"count"`
	NextPageInfo string            `json:"next_page_info,omitempty"`
}

// OrdersHandlerConfig holds configuration for the orders handler
type OrdersHandlerConfig struct {
	// ExportPrice is the metered price charged per order export
	ExportPrice decimal.Decimal
	// PageSize caps how many orders one response may carry
	PageSize int
}

// UsageRecorder records metered usage events. Implemented by the billing
// ledger service.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, tenantID uuid.UUID, usageType billing.UsageType, description string, price decimal.Decimal) (*billing.UsageEvent, error)
}

// OrdersHandler serves the gated order listing backed by the platform API
type OrdersHandler struct {
	BaseHandler
	client *platform.Client
	ledger UsageRecorder
	config OrdersHandlerConfig
	logger *zap.Logger
}

// NewOrdersHandler creates a new orders handler
func NewOrdersHandler(client *platform.Client, ledger UsageRecorder, config OrdersHandlerConfig, logger *zap.Logger) *OrdersHandler {
	if config.PageSize <= 0 {
		config.PageSize = defaultOrderPageSize
	}
	return &OrdersHandler{
		client: client,
		ledger: ledger,
		config: config,
		logger: logger,
	}
}

// List serves one page of the tenant's orders from the platform, so response
// memory never exceeds a page. Clients follow next_page_info (and may shrink
// pages with limit) to walk the rest. With export=true the page is also
// billed as a metered usage event, recorded locally and synced to the
// platform in the background.
func (h *OrdersHandler) List(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok || identity.Tenant == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	filter := url.Values{}
	for _, param := range orderFilterParams {
		if value := c.Query(param); value != "" {
			filter.Set(param, value)
		}
	}

	creds := platform.Credentials{
		ShopDomain:  identity.Tenant.ShopDomain,
		AccessToken: identity.Tenant.AccessToken,
	}

	fetcher := h.client.Fetch(creds, "orders", filter).WithPageSize(h.pageLimit(c))
	if cursor := c.Query("page_info"); cursor != "" {
		fetcher.Resume(cursor)
	}

	orders, more, err := fetcher.Page(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if orders == nil {
		orders = make([]json.RawMessage, 0)
	}

	if c.Query("export") == "true" {
		description := fmt.Sprintf("Order export (%d orders)", len(orders))
		_, err := h.ledger.RecordUsage(c.Request.Context(), identity.Tenant.ID,
			billing.UsageTypeOrderExport, description, h.config.ExportPrice)
		if err != nil {
			// The listing already succeeded; the gap is logged, not returned.
			h.logger.Error("Failed to record export usage",
				zap.String("tenant_id", identity.Tenant.ID.String()),
				zap.Error(err))
		}
	}

	response := OrdersResponse{Orders: orders, Count: len(orders)}
	if more {
		response.NextPageInfo = fetcher.Cursor()
	}
	h.Success(c, response)
}

// pageLimit reads the limit query parameter, clamped to the configured page
// size.
func (h *OrdersHandler) pageLimit(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < h.config.PageSize {
			return n
		}
	}
	return h.config.PageSize
}
