// Package client is a typed HTTP client for a running facilitator, for
// resource servers that delegate verification and settlement rather than
// holding keys themselves.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/x402-teller/facilitator-go/pkg/types"
)

const (
	headerContentType   = "Content-Type"
	mimeApplicationJSON = "application/json"
)

// Client calls a facilitator over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// New creates a client for the facilitator at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify asks the facilitator to verify a payment.
func (c *Client) Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error) {
	body := types.VerifyRequest{
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	}
	var resp types.VerifyResponse
	if err := c.post(ctx, "/verify", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settle asks the facilitator to settle a payment on-chain.
func (c *Client) Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error) {
	body := types.SettleRequest{
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	}
	var resp types.SettleResponse
	if err := c.post(ctx, "/settle", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Supported lists the scheme-network pairs the facilitator serves.
func (c *Client) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	var resp types.SupportedResponse
	if err := c.get(ctx, "/supported", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublicKeys returns the facilitator's settlement addresses.
func (c *Client) PublicKeys(ctx context.Context) (*types.PublicKeysResponse, error) {
	var resp types.PublicKeysResponse
	if err := c.get(ctx, "/public-keys", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Balance returns the facilitator's fee payer balance on a Solana network.
func (c *Client) Balance(ctx context.Context, network string) (*types.BalanceResponse, error) {
	var resp types.BalanceResponse
	query := url.Values{"network": {network}}
	if err := c.get(ctx, "/balance", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error != "" {
			return fmt.Errorf("facilitator returned %s: %s", resp.Status, errBody.Error)
		}
		return fmt.Errorf("facilitator returned %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
