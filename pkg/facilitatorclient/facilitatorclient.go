// Package facilitatorclient is the resource server's HTTP client for the
// facilitator's /verify, /settle and /supported endpoints.
package facilitatorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/x402labs/x402-go/pkg/types"
)

// DefaultTimeout bounds verify and supported calls.
const DefaultTimeout = 30 * time.Second

// DefaultSettleTimeout bounds settle calls, which block on on-chain
// confirmation.
const DefaultSettleTimeout = 120 * time.Second

// Client talks to one facilitator.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	settleClient *http.Client
}

// NewClient builds a client for the facilitator at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		settleClient: &http.Client{Timeout: DefaultSettleTimeout},
	}
}

func (c *Client) post(ctx context.Context, httpClient *http.Client, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read facilitator response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode facilitator response: %w", err)
	}

	return nil
}

// Verify asks the facilitator whether the payment would settle.
func (c *Client) Verify(ctx context.Context, paymentHeader string, requirements *types.PaymentRequirements) (*types.VerificationResponse, error) {
	request := &types.VerificationRequest{
		X402Version:         types.X402Version,
		PaymentHeader:       paymentHeader,
		PaymentRequirements: *requirements,
	}

	var response types.VerificationResponse
	if err := c.post(ctx, c.httpClient, "/verify", request, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// Settle asks the facilitator to execute the payment on-chain. The call
// blocks until the facilitator reports an outcome or the settle timeout
// expires.
func (c *Client) Settle(ctx context.Context, paymentHeader string, requirements *types.PaymentRequirements) (*types.SettlementResponse, error) {
	request := &types.SettlementRequest{
		X402Version:         types.X402Version,
		PaymentHeader:       paymentHeader,
		PaymentRequirements: *requirements,
	}

	var response types.SettlementResponse
	if err := c.post(ctx, c.settleClient, "/settle", request, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// Supported fetches the (scheme, network) pairs the facilitator can settle.
func (c *Client) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facilitator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("facilitator returned status %d: %s", resp.StatusCode, string(raw))
	}

	var response types.SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode facilitator response: %w", err)
	}

	return &response, nil
}
