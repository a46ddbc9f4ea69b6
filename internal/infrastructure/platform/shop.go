package platform

import (
	"context"
	"encoding/json"
	"fmt"
)

// ShopInfo is the subset of the platform's shop resource the app needs.
type ShopInfo struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"platform_domain"`
	Email  string `json:"email"`
}

// Shop fetches the shop resource for the credentialed store.
func (c *Client) Shop(ctx context.Context, creds Credentials) (*ShopInfo, error) {
	body, _, err := c.Get(ctx, creds, "shop.json", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Shop ShopInfo `json:"shop"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode shop resource: %w", err)
	}
	return &envelope.Shop, nil
}
