package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// X402Version is the protocol version carried in every envelope and request body.
const X402Version = 1

// SchemeExact is the only payment scheme supported by this version of the protocol.
const SchemeExact = "exact"

// HTTP header names used by the x402 handshake.
const (
	PaymentHeader         = "X-PAYMENT"
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
)

// PaymentRequirements is the server's challenge: how a client must pay for a resource.
// The field names form the wire contract and must not be renamed.
type PaymentRequirements struct {
	Scheme            string           `json:"scheme"`
	Network           string           `json:"network"`
	MaxAmountRequired string           `json:"maxAmountRequired"`
	Resource          string           `json:"resource"`
	Description       string           `json:"description,omitempty"`
	MimeType          string           `json:"mimeType,omitempty"`
	OutputSchema      *json.RawMessage `json:"outputSchema,omitempty"`
	PayTo             string           `json:"payTo"`
	MaxTimeoutSeconds int              `json:"maxTimeoutSeconds,omitempty"`
	Asset             string           `json:"asset"`

	// Extra carries the token's EIP-712 domain parameters. Mandatory for
	// the exact scheme: without name and version the authorization digest
	// cannot be reconstructed.
	Extra *PaymentExtra `json:"extra,omitempty"`
}

// PaymentExtra holds the EIP-712 domain name and version of the token contract.
type PaymentExtra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PaymentRequiredResponse is the 402 response body minted by the resource server.
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// ExactPaymentPayload is the signed EIP-3009 TransferWithAuthorization struct
// plus its ECDSA signature components. All integer fields are decimal strings;
// Nonce, R and S are 0x-prefixed 32-byte hex.
type ExactPaymentPayload struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
	V           uint8  `json:"v"`
	R           string `json:"r"`
	S           string `json:"s"`
}

// PaymentPayload is the envelope carried in the X-PAYMENT header (base64 of JSON).
// Payload is scheme-dependent and kept raw until the scheme is known; use
// ExactPayload to decode the "exact" arm.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

// ExactPayload decodes the scheme-dependent payload as an ExactPaymentPayload.
// It fails when the envelope advertises a different scheme.
func (p *PaymentPayload) ExactPayload() (*ExactPaymentPayload, error) {
	if p.Scheme != SchemeExact {
		return nil, fmt.Errorf("payload scheme is %q, not %q", p.Scheme, SchemeExact)
	}

	var exact ExactPaymentPayload
	if err := json.Unmarshal(p.Payload, &exact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exact payload: %w", err)
	}

	return &exact, nil
}

// NewExactPaymentPayload wraps an exact-scheme authorization in an envelope.
func NewExactPaymentPayload(network string, exact *ExactPaymentPayload) (*PaymentPayload, error) {
	raw, err := json.Marshal(exact)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exact payload: %w", err)
	}

	return &PaymentPayload{
		X402Version: X402Version,
		Scheme:      SchemeExact,
		Network:     network,
		Payload:     raw,
	}, nil
}

// EncodeToBase64String serializes the envelope for the X-PAYMENT header.
func (p *PaymentPayload) EncodeToBase64String() (string, error) {
	jsonBytes, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}

	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodePaymentPayloadFromBase64 decodes an X-PAYMENT header value into a PaymentPayload.
func DecodePaymentPayloadFromBase64(encoded string) (*PaymentPayload, error) {
	decodedBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 string: %w", err)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(decodedBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment payload: %w", err)
	}

	return &payload, nil
}

// VerificationRequest is the body of the facilitator's POST /verify endpoint.
type VerificationRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentHeader       string              `json:"paymentHeader"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerificationResponse reports whether a payment would settle, without settling it.
type VerificationResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SettlementRequest is the body of the facilitator's POST /settle endpoint.
type SettlementRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentHeader       string              `json:"paymentHeader"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// SettlementResponse reports the outcome of an on-chain settlement attempt.
// TxHash is populated whenever a transaction was submitted, including
// reverted and timed-out attempts.
type SettlementResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	TxHash    string `json:"txHash,omitempty"`
	NetworkID string `json:"networkId,omitempty"`
}

// PaymentReceipt is the decoded X-PAYMENT-RESPONSE header attached to a paid response.
type PaymentReceipt struct {
	TxHash    string `json:"txHash"`
	NetworkID string `json:"networkId"`
}

// EncodeToBase64String serializes the receipt for the X-PAYMENT-RESPONSE header.
func (r *PaymentReceipt) EncodeToBase64String() (string, error) {
	jsonBytes, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment receipt: %w", err)
	}

	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodePaymentReceiptFromBase64 decodes an X-PAYMENT-RESPONSE header value.
func DecodePaymentReceiptFromBase64(encoded string) (*PaymentReceipt, error) {
	decodedBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 string: %w", err)
	}

	var receipt PaymentReceipt
	if err := json.Unmarshal(decodedBytes, &receipt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment receipt: %w", err)
	}

	return &receipt, nil
}

// SupportedKind is a (scheme, network) pair the facilitator can settle.
type SupportedKind struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
}

// SupportedResponse is the body of the facilitator's GET /supported endpoint.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
