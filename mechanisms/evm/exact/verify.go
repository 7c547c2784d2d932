// Package exact implements the facilitator side of the "exact" payment
// scheme: off-chain verification of EIP-3009 authorizations and on-chain
// settlement through transferWithAuthorization.
package exact

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/x402labs/x402-go/mechanisms/evm"
	"github.com/x402labs/x402-go/pkg/types"
)

// ChainTime reports the latest block timestamp. The verifier treats it as
// "now" so that validity windows are judged against chain time, not the
// facilitator's wall clock.
type ChainTime interface {
	LatestTimestamp(ctx context.Context) (uint64, error)
}

// HeaderChainTime sources chain time from the tip header over an RPC client.
type HeaderChainTime struct {
	client *ethclient.Client
}

func NewHeaderChainTime(client *ethclient.Client) *HeaderChainTime {
	return &HeaderChainTime{client: client}
}

func (h *HeaderChainTime) LatestTimestamp(ctx context.Context) (uint64, error) {
	header, err := h.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch chain tip: %w", err)
	}

	return header.Time, nil
}

// Verifier checks exact-scheme payments against their requirements without
// touching chain state. Every policy failure is reported as data in the
// response; the returned error is reserved for transport faults.
type Verifier struct {
	chainTime ChainTime
}

func NewVerifier(chainTime ChainTime) *Verifier {
	return &Verifier{chainTime: chainTime}
}

func invalid(format string, args ...any) *types.VerificationResponse {
	return &types.VerificationResponse{
		IsValid:       false,
		InvalidReason: fmt.Sprintf(format, args...),
	}
}

// Verify decodes the X-PAYMENT header and runs the full check sequence:
// protocol version, scheme and network binding, recipient, exact amount,
// validity window against chain time, and EIP-712 signature recovery.
func (v *Verifier) Verify(ctx context.Context, paymentHeader string, requirements *types.PaymentRequirements) (*types.VerificationResponse, error) {
	payload, err := types.DecodePaymentPayloadFromBase64(paymentHeader)
	if err != nil {
		return invalid("Invalid payment header: %v", err), nil
	}

	if payload.X402Version != types.X402Version {
		return invalid("Unsupported protocol version: %d", payload.X402Version), nil
	}

	if payload.Scheme != requirements.Scheme {
		return invalid("Scheme mismatch: expected %s, got %s", requirements.Scheme, payload.Scheme), nil
	}

	if payload.Network != requirements.Network {
		return invalid("Network mismatch: expected %s, got %s", requirements.Network, payload.Network), nil
	}

	if payload.Scheme != types.SchemeExact {
		return invalid("Unsupported payment scheme: %s", payload.Scheme), nil
	}

	exact, err := payload.ExactPayload()
	if err != nil {
		return invalid("Exact scheme verification error: %v", err), nil
	}

	return v.verifyExact(ctx, exact, requirements)
}

func (v *Verifier) verifyExact(ctx context.Context, exact *types.ExactPaymentPayload, requirements *types.PaymentRequirements) (*types.VerificationResponse, error) {
	for _, addr := range []string{exact.From, exact.To, requirements.PayTo} {
		if !common.IsHexAddress(addr) {
			return invalid("Invalid address format: %s", addr), nil
		}
	}

	from := common.HexToAddress(exact.From)
	to := common.HexToAddress(exact.To)
	payTo := common.HexToAddress(requirements.PayTo)

	if to != payTo {
		return invalid("Recipient mismatch: expected %s, got %s", payTo.Hex(), to.Hex()), nil
	}

	value, err := evm.ParseUint256(exact.Value)
	if err != nil {
		return invalid("Exact scheme verification error: %v", err), nil
	}

	required, err := evm.ParseUint256(requirements.MaxAmountRequired)
	if err != nil {
		return invalid("Exact scheme verification error: %v", err), nil
	}

	// The scheme is "exact": the authorization must carry precisely the
	// required amount, not merely cover it.
	if value.Cmp(required) != 0 {
		return invalid("Amount mismatch: expected %s, got %s", requirements.MaxAmountRequired, exact.Value), nil
	}

	validAfter, err := evm.ParseUint256(exact.ValidAfter)
	if err != nil {
		return invalid("Exact scheme verification error: %v", err), nil
	}

	validBefore, err := evm.ParseUint256(exact.ValidBefore)
	if err != nil {
		return invalid("Exact scheme verification error: %v", err), nil
	}

	now, err := v.chainTime.LatestTimestamp(ctx)
	if err != nil {
		return nil, err
	}

	currentTime := new(big.Int).SetUint64(now)

	if currentTime.Cmp(validAfter) < 0 {
		return invalid("Payment not yet valid: current time %d < validAfter %s", now, exact.ValidAfter), nil
	}

	if currentTime.Cmp(validBefore) > 0 {
		return invalid("Payment expired: current time %d > validBefore %s", now, exact.ValidBefore), nil
	}

	return v.verifySignature(exact, requirements, from)
}

func (v *Verifier) verifySignature(exact *types.ExactPaymentPayload, requirements *types.PaymentRequirements, from common.Address) (*types.VerificationResponse, error) {
	if requirements.Extra == nil {
		return invalid("Missing EIP-712 domain parameters in extra"), nil
	}

	if requirements.Extra.Name == "" || requirements.Extra.Version == "" {
		return invalid("Missing name or version in extra"), nil
	}

	chainID, err := evm.ParseChainID(requirements.Network)
	if err != nil {
		return invalid("Invalid network format: %s", requirements.Network), nil
	}

	if !common.IsHexAddress(requirements.Asset) {
		return invalid("Invalid address format: %s", requirements.Asset), nil
	}

	auth, err := evm.AuthorizationFromPayload(exact)
	if err != nil {
		return invalid("Exact scheme verification error: %v", err), nil
	}

	sig, err := evm.SignatureFromPayload(exact)
	if err != nil {
		return invalid("Signature verification error: %v", err), nil
	}

	domain := evm.Domain{
		Name:              requirements.Extra.Name,
		Version:           requirements.Extra.Version,
		ChainID:           chainID,
		VerifyingContract: common.HexToAddress(requirements.Asset),
	}

	digest, err := evm.HashTransferWithAuthorization(domain, auth)
	if err != nil {
		return invalid("Signature verification error: %v", err), nil
	}

	recovered, err := evm.RecoverAuthorizationSigner(digest, sig)
	if err != nil {
		return invalid("Signature verification error: %v", err), nil
	}

	if recovered != from {
		return invalid("Signature verification failed: recovered %s, expected %s", recovered.Hex(), from.Hex()), nil
	}

	return &types.VerificationResponse{IsValid: true}, nil
}
