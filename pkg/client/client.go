// Package client implements the payer side of the protocol: it signs
// exact-scheme payments and drives the 402 challenge/retry handshake.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/x402labs/x402-go/mechanisms/evm"
	"github.com/x402labs/x402-go/pkg/types"
	"github.com/x402labs/x402-go/pkg/x402"
	signerevm "github.com/x402labs/x402-go/signers/evm"
)

// DefaultValidityWindow is how long a freshly signed payment stays valid.
const DefaultValidityWindow = 300 * time.Second

// validAfterSkew is subtracted from "now" so that small clock differences
// between the payer and the chain never make a fresh payment not-yet-valid.
const validAfterSkew = 10 * time.Second

// ChainTime optionally supplies chain-tip time for the validity window.
// Without one the client falls back to its wall clock.
type ChainTime interface {
	LatestTimestamp(ctx context.Context) (uint64, error)
}

// Client pays for protected resources with a single signing key.
type Client struct {
	signer         *signerevm.ClientSigner
	httpClient     *http.Client
	chainTime      ChainTime
	validityWindow time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithChainTime sources the validity window from chain time instead of the
// local clock.
func WithChainTime(chainTime ChainTime) Option {
	return func(c *Client) { c.chainTime = chainTime }
}

// WithValidityWindow overrides the default payment validity duration.
func WithValidityWindow(window time.Duration) Option {
	return func(c *Client) { c.validityWindow = window }
}

// New builds a payer client around a signer.
func New(signer *signerevm.ClientSigner, opts ...Option) *Client {
	c := &Client{
		signer:         signer,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		validityWindow: DefaultValidityWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) now(ctx context.Context) uint64 {
	if c.chainTime != nil {
		if ts, err := c.chainTime.LatestTimestamp(ctx); err == nil {
			return ts
		}
	}
	return uint64(time.Now().Unix())
}

// CreatePayment signs an exact-scheme payment satisfying the requirements
// and returns the X-PAYMENT header value.
func (c *Client) CreatePayment(ctx context.Context, requirements *types.PaymentRequirements) (string, error) {
	if requirements.Scheme != types.SchemeExact {
		return "", fmt.Errorf("unsupported payment scheme: %s", requirements.Scheme)
	}

	if requirements.Extra == nil || requirements.Extra.Name == "" || requirements.Extra.Version == "" {
		return "", fmt.Errorf("missing EIP-712 domain parameters in extra")
	}

	chainID, err := evm.ParseChainID(requirements.Network)
	if err != nil {
		return "", err
	}

	if !common.IsHexAddress(requirements.PayTo) {
		return "", fmt.Errorf("invalid payTo address: %q", requirements.PayTo)
	}
	if !common.IsHexAddress(requirements.Asset) {
		return "", fmt.Errorf("invalid asset address: %q", requirements.Asset)
	}

	value, err := evm.ParseUint256(requirements.MaxAmountRequired)
	if err != nil {
		return "", fmt.Errorf("invalid maxAmountRequired: %w", err)
	}

	nonce, err := evm.CreateNonce()
	if err != nil {
		return "", err
	}

	now := c.now(ctx)
	validAfter := now - uint64(validAfterSkew.Seconds())
	validBefore := now + uint64(c.validityWindow.Seconds())

	auth := &evm.Authorization{
		From:        c.signer.Address(),
		To:          common.HexToAddress(requirements.PayTo),
		Value:       value,
		ValidAfter:  new(big.Int).SetUint64(validAfter),
		ValidBefore: new(big.Int).SetUint64(validBefore),
		Nonce:       nonce,
	}

	domain := evm.Domain{
		Name:              requirements.Extra.Name,
		Version:           requirements.Extra.Version,
		ChainID:           chainID,
		VerifyingContract: common.HexToAddress(requirements.Asset),
	}

	sig, err := c.signer.SignAuthorization(domain, auth)
	if err != nil {
		return "", err
	}

	exact := &types.ExactPaymentPayload{
		From:        auth.From.Hex(),
		To:          auth.To.Hex(),
		Value:       auth.Value.String(),
		ValidAfter:  auth.ValidAfter.String(),
		ValidBefore: auth.ValidBefore.String(),
		Nonce:       hexutil.Encode(auth.Nonce[:]),
		V:           sig.V,
		R:           hexutil.Encode(sig.R[:]),
		S:           hexutil.Encode(sig.S[:]),
	}

	payload, err := types.NewExactPaymentPayload(requirements.Network, exact)
	if err != nil {
		return "", err
	}

	return payload.EncodeToBase64String()
}

// Resource is the outcome of a RequestResource call.
type Resource struct {
	StatusCode int
	Body       []byte
	Paid       bool
	Receipt    *types.PaymentReceipt
}

// selectRequirements picks the first accepted option the client can pay:
// exact scheme on an eip155 network.
func selectRequirements(accepts []types.PaymentRequirements) (*types.PaymentRequirements, error) {
	for i := range accepts {
		if accepts[i].Scheme == types.SchemeExact && strings.HasPrefix(accepts[i].Network, evm.NetworkPrefix) {
			return &accepts[i], nil
		}
	}
	return nil, x402.ErrNoMatchingRequirements
}

// RequestResource fetches url, paying automatically when the server answers
// with a 402 challenge. A second 402 after payment is reported as an error.
func (c *Client) RequestResource(ctx context.Context, url string) (*Resource, error) {
	resp, err := c.get(ctx, url, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		return readResource(resp, false)
	}

	var challenge types.PaymentRequiredResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read 402 response: %w", err)
	}
	if err := json.Unmarshal(body, &challenge); err != nil {
		return nil, fmt.Errorf("failed to decode 402 response: %w", err)
	}
	if len(challenge.Accepts) == 0 {
		return nil, x402.ErrNoAcceptedMethods
	}

	requirements, err := selectRequirements(challenge.Accepts)
	if err != nil {
		return nil, err
	}

	paymentHeader, err := c.CreatePayment(ctx, requirements)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	paid, err := c.get(ctx, url, paymentHeader)
	if err != nil {
		return nil, err
	}
	defer paid.Body.Close()

	if paid.StatusCode == http.StatusPaymentRequired {
		return nil, x402.ErrPaymentRequired
	}

	resource, err := readResource(paid, true)
	if err != nil {
		return nil, err
	}

	if resource.StatusCode == http.StatusOK {
		if err := x402.ValidateOutputSchema(requirements, resource.Body); err != nil {
			return nil, err
		}
	}

	return resource, nil
}

func (c *Client) get(ctx context.Context, url, paymentHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if paymentHeader != "" {
		req.Header.Set(types.PaymentHeader, paymentHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func readResource(resp *http.Response, paid bool) (*Resource, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resource := &Resource{
		StatusCode: resp.StatusCode,
		Body:       body,
		Paid:       paid,
	}

	if header := resp.Header.Get(types.PaymentResponseHeader); header != "" {
		receipt, err := types.DecodePaymentReceiptFromBase64(header)
		if err == nil {
			resource.Receipt = receipt
		}
	}

	return resource, nil
}

// DecodePaymentResponse decodes an X-PAYMENT-RESPONSE header value.
func DecodePaymentResponse(header string) (*types.PaymentReceipt, error) {
	return types.DecodePaymentReceiptFromBase64(header)
}
