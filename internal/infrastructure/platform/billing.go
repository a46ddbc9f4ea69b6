package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// RecurringCharge is the platform's view of the tenant's subscription
// charge. The metered line item id is what usage records attach to.
type RecurringCharge struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	LineItemID string `json:"line_item_id"`
}

// UsageRecordResult is the platform's confirmation of a submitted usage
// charge.
type UsageRecordResult struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// ActiveCharge fetches the tenant's current recurring charge. Returns a
// classified error; a tenant without an active charge yields
// KindPlatformError with status 404.
func (c *Client) ActiveCharge(ctx context.Context, creds Credentials) (*RecurringCharge, error) {
	body, _, err := c.Get(ctx, creds, "recurring_application_charge.json", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		RecurringApplicationCharge *RecurringCharge `json:"recurring_application_charge"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.RecurringApplicationCharge == nil {
		return nil, &Error{Kind: KindPlatformError, Message: "malformed recurring charge response"}
	}
	return envelope.RecurringApplicationCharge, nil
}

// CreateUsageRecord submits one metered usage charge against a line item.
// The idempotency key makes resubmission safe: the platform applies each
// key at most once and returns the original record on duplicates.
func (c *Client) CreateUsageRecord(ctx context.Context, creds Credentials, lineItemID, description string, price decimal.Decimal, idempotencyKey string) (*UsageRecordResult, error) {
	payload := map[string]any{
		"usage_charge": map[string]any{
			"description":     description,
			"price":           price.StringFixed(2),
			"idempotency_key": idempotencyKey,
		},
	}
	path := fmt.Sprintf("recurring_application_charges/%s/usage_charges", lineItemID)

	var result UsageRecordResult
	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		body, _, attemptErr := c.doOnce(ctx, creds, http.MethodPost, path+".json", nil, payload)
		if attemptErr != nil {
			return attemptErr
		}

		var envelope struct {
			UsageCharge *UsageRecordResult `json:"usage_charge"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.UsageCharge == nil {
			return &Error{Kind: KindPlatformError, Message: "malformed usage charge response"}
		}
		result = *envelope.UsageCharge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
