// Package stdlib provides the resource-server payment middleware for plain
// net/http handlers.
package stdlib

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/x402labs/x402-go/pkg/facilitatorclient"
	"github.com/x402labs/x402-go/pkg/types"
	"github.com/x402labs/x402-go/pkg/x402"
)

// Facilitator settles payments on behalf of the resource server.
// *facilitatorclient.Client satisfies it.
type Facilitator interface {
	Settle(ctx context.Context, paymentHeader string, requirements *types.PaymentRequirements) (*types.SettlementResponse, error)
}

// PaymentMiddlewareOptions is the options for the PaymentMiddleware.
type PaymentMiddlewareOptions struct {
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	OutputSchema      *json.RawMessage
	Resource          string
	ResourceRootURL   string
	Network           string
	Asset             string
	AssetDecimals     int
	AssetName         string
	AssetVersion      string
	Facilitator       Facilitator
}

// Options is the type for the options for the PaymentMiddleware.
type Options func(*PaymentMiddlewareOptions)

// WithDescription sets the human-readable description of the resource.
func WithDescription(description string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Description = description
	}
}

// WithMimeType sets the mime type of the protected response.
func WithMimeType(mimeType string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MimeType = mimeType
	}
}

// WithMaxTimeoutSeconds sets the advisory settlement deadline advertised to
// payers.
func WithMaxTimeoutSeconds(maxTimeoutSeconds int) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MaxTimeoutSeconds = maxTimeoutSeconds
	}
}

// WithOutputSchema advertises a JSON schema for the protected response body.
func WithOutputSchema(outputSchema *json.RawMessage) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.OutputSchema = outputSchema
	}
}

// WithFacilitator replaces the facilitator client, mainly for tests.
func WithFacilitator(facilitator Facilitator) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Facilitator = facilitator
	}
}

// WithFacilitatorURL points the middleware at a facilitator.
func WithFacilitatorURL(url string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Facilitator = facilitatorclient.NewClient(url)
	}
}

// WithResource sets the full resource URL instead of deriving it from the
// request path.
func WithResource(resource string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Resource = resource
	}
}

// WithResourceRootURL sets the base URL prepended to request paths when
// deriving the resource identifier.
func WithResourceRootURL(resourceRootURL string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.ResourceRootURL = resourceRootURL
	}
}

// WithNetwork sets the network payments must be made on.
func WithNetwork(network string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Network = network
	}
}

// WithAsset sets the payment token contract and its EIP-712 identity.
func WithAsset(address string, decimals int, name, version string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Asset = address
		options.AssetDecimals = decimals
		options.AssetName = name
		options.AssetVersion = version
	}
}

func defaultOptions() *PaymentMiddlewareOptions {
	return &PaymentMiddlewareOptions{
		MimeType:          "application/json",
		MaxTimeoutSeconds: 60,
		Network:           x402.DefaultNetwork,
		Asset:             x402.DefaultTokenAddress,
		AssetDecimals:     x402.DefaultTokenDecimals,
		AssetName:         x402.DefaultTokenName,
		AssetVersion:      x402.DefaultTokenVersion,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// PaymentMiddleware guards a handler behind an exact-scheme payment.
// price is the human-denominated amount ("$0.01"); payTo receives the funds.
func PaymentMiddleware(price string, payTo string, opts ...Options) func(http.Handler) http.Handler {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Facilitator == nil {
		options.Facilitator = facilitatorclient.NewClient(x402.DefaultFacilitatorURL)
	}

	maxAmountRequired, priceErr := x402.ParseMoney(price, options.AssetDecimals)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if priceErr != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error":       priceErr.Error(),
					"x402Version": types.X402Version,
				})
				return
			}

			resource := options.Resource
			if resource == "" {
				resource = options.ResourceRootURL + r.URL.Path
			}

			requirements := &types.PaymentRequirements{
				Scheme:            types.SchemeExact,
				Network:           options.Network,
				MaxAmountRequired: maxAmountRequired,
				Resource:          resource,
				Description:       options.Description,
				MimeType:          options.MimeType,
				OutputSchema:      options.OutputSchema,
				PayTo:             payTo,
				MaxTimeoutSeconds: options.MaxTimeoutSeconds,
				Asset:             options.Asset,
				Extra: &types.PaymentExtra{
					Name:    options.AssetName,
					Version: options.AssetVersion,
				},
			}

			paymentHeader := r.Header.Get(types.PaymentHeader)
			if paymentHeader == "" {
				writeJSON(w, http.StatusPaymentRequired, types.PaymentRequiredResponse{
					X402Version: types.X402Version,
					Accepts:     []types.PaymentRequirements{*requirements},
					Error:       "X-PAYMENT header is required",
				})
				return
			}

			settlement, err := options.Facilitator.Settle(r.Context(), paymentHeader, requirements)
			if err != nil {
				if x402.IsTimeout(err) {
					writeJSON(w, http.StatusRequestTimeout, map[string]string{
						"error": "Payment settlement timeout",
					})
					return
				}
				log.Printf("settlement request failed: %v", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "Payment settlement failed",
				})
				return
			}

			if !settlement.Success {
				writeJSON(w, http.StatusPaymentRequired, types.PaymentRequiredResponse{
					X402Version: types.X402Version,
					Accepts:     []types.PaymentRequirements{*requirements},
					Error:       settlement.Error,
				})
				return
			}

			receipt := &types.PaymentReceipt{
				TxHash:    settlement.TxHash,
				NetworkID: settlement.NetworkID,
			}
			encoded, err := receipt.EncodeToBase64String()
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "Failed to encode payment receipt",
				})
				return
			}

			w.Header().Set(types.PaymentResponseHeader, encoded)
			next.ServeHTTP(w, r)
		})
	}
}
