package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storelink/backend/internal/infrastructure/config"
)

const (
	// AccessTokenHeader carries the tenant's decrypted token on every call
	AccessTokenHeader = "X-Platform-Access-Token"
	// maxResponseSize limits response bodies to prevent memory exhaustion
	maxResponseSize = 10 * 1024 * 1024
	// maxErrorMessageLen caps platform error text surfaced to callers
	maxErrorMessageLen = 200
)

// Credentials identify one tenant against the platform. The token is the
// decrypted value; decryption happens in the repository layer.
type Credentials struct {
	ShopDomain  string
	AccessToken string
}

// Client is a resilient client for the host platform's REST and GraphQL
// APIs. Every call is retried per the policy, returns a classified error,
// and is bounded by the per-attempt timeout.
type Client struct {
	cfg        config.PlatformConfig
	httpClient *http.Client
	policy     *RetryPolicy
	logger     *zap.Logger

	// endpoint overrides the per-shop base URL when non-empty. Tests point
	// it at a local httptest server.
	endpoint string
}

// NewClient creates a platform client with the default retry policy.
func NewClient(cfg config.PlatformConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		policy:     DefaultRetryPolicy(cfg.MaxAttempts),
		logger:     logger,
	}
}

// WithRetryPolicy replaces the retry policy. Used by tests for
// deterministic sleeps.
func (c *Client) WithRetryPolicy(policy *RetryPolicy) *Client {
	c.policy = policy
	return c
}

// WithEndpoint routes all requests to a fixed base URL instead of the shop
// domain. Used by tests.
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = strings.TrimSuffix(endpoint, "/")
	return c
}

func (c *Client) baseURL(shopDomain string) string {
	if c.endpoint != "" {
		return fmt.Sprintf("%s/admin/api/%s", c.endpoint, c.cfg.APIVersion)
	}
	return fmt.Sprintf("https://%s/admin/api/%s", shopDomain, c.cfg.APIVersion)
}

// Get performs a retried GET against a shop-scoped REST path and returns
// the raw body and response headers.
func (c *Client) Get(ctx context.Context, creds Credentials, path string, query url.Values) ([]byte, http.Header, error) {
	var body []byte
	var header http.Header

	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		var attemptErr error
		body, header, attemptErr = c.doOnce(ctx, creds, http.MethodGet, path, query, nil)
		return attemptErr
	})
	if err != nil {
		return nil, nil, err
	}
	return body, header, nil
}

// Mutate performs a retried write against the platform. The mutation name
// is the REST resource path (e.g. "application_charges"); the payload is
// serialized as the request body. Retries follow the same policy as reads;
// mutations against this platform are idempotent by key where it matters.
func (c *Client) Mutate(ctx context.Context, creds Credentials, name string, payload any) (json.RawMessage, error) {
	var body []byte

	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		var attemptErr error
		body, _, attemptErr = c.doOnce(ctx, creds, http.MethodPost, name+".json", nil, payload)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// ExchangeCode exchanges an OAuth authorization code for a permanent access
// token. The exchange endpoint is shop-scoped but unauthenticated.
func (c *Client) ExchangeCode(ctx context.Context, shopDomain, code string) (string, error) {
	target := fmt.Sprintf("https://%s/admin/oauth/access_token", shopDomain)
	if c.endpoint != "" {
		target = c.endpoint + "/admin/oauth/access_token"
	}

	payload := map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"code":          code,
	}

	var token string
	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("platform: failed to marshal exchange request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("platform: failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &Error{Kind: KindNetworkTransient, Message: err.Error()}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return &Error{Kind: KindNetworkTransient, Message: err.Error()}
		}
		if resp.StatusCode >= 400 {
			return classifyStatus(resp.StatusCode, resp.Header, body)
		}

		var out struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
			return &Error{Kind: KindPlatformError, Status: resp.StatusCode, Message: "malformed token exchange response"}
		}
		token = out.AccessToken
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// doOnce performs a single authenticated attempt. Classification happens
// here; the retry policy decides what to do with the classified error.
func (c *Client) doOnce(ctx context.Context, creds Credentials, method, path string, query url.Values, payload any) ([]byte, http.Header, error) {
	target := c.baseURL(creds.ShopDomain) + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("platform: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("platform: failed to create request: %w", err)
	}
	req.Header.Set(AccessTokenHeader, creds.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &Error{Kind: KindNetworkTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, &Error{Kind: KindNetworkTransient, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		classified := classifyStatus(resp.StatusCode, resp.Header, body)
		c.logger.Debug("platform call failed",
			zap.String("shop_domain", creds.ShopDomain),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(classified.Kind)))
		return nil, nil, classified
	}

	return body, resp.Header, nil
}

// classifyStatus maps an HTTP failure to the error taxonomy.
func classifyStatus(status int, header http.Header, body []byte) *Error {
	switch status {
	case http.StatusUnauthorized:
		return &Error{Kind: KindAuthExpired, Status: status, Message: "access token rejected"}
	case http.StatusForbidden:
		return &Error{
			Kind:         KindPermissionDenied,
			Status:       status,
			Message:      "missing access scope",
			MissingScope: header.Get("X-Missing-Scopes"),
		}
	case http.StatusTooManyRequests:
		return &Error{
			Kind:       KindRateLimited,
			Status:     status,
			Message:    "rate limited",
			RetryAfter: parseRetryAfter(header.Get("Retry-After")),
		}
	default:
		return &Error{Kind: KindPlatformError, Status: status, Message: extractErrorMessage(body)}
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// extractErrorMessage pulls the platform's error text out of a failure
// body, capped so internal detail never leaks verbatim to users.
func extractErrorMessage(body []byte) string {
	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		message = strings.Trim(string(envelope.Errors), `"`)
	}
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}
	return message
}
