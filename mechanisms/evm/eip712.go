package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/x402labs/x402-go/pkg/types"
)

// Authorization is the EIP-3009 TransferWithAuthorization message in native
// form, after wire-level parsing.
type Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
}

// Signature holds the ECDSA components of a signed authorization.
// V uses the Ethereum convention (27 or 28).
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// Domain binds an authorization digest to one token contract on one chain.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// AuthorizationFromPayload parses the wire payload's string fields into
// native EVM types, rejecting malformed addresses, amounts and nonces.
func AuthorizationFromPayload(p *types.ExactPaymentPayload) (*Authorization, error) {
	if !common.IsHexAddress(p.From) {
		return nil, fmt.Errorf("invalid from address: %q", p.From)
	}
	if !common.IsHexAddress(p.To) {
		return nil, fmt.Errorf("invalid to address: %q", p.To)
	}

	value, err := ParseUint256(p.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}

	validAfter, err := ParseUint256(p.ValidAfter)
	if err != nil {
		return nil, fmt.Errorf("invalid validAfter: %w", err)
	}

	validBefore, err := ParseUint256(p.ValidBefore)
	if err != nil {
		return nil, fmt.Errorf("invalid validBefore: %w", err)
	}

	nonce, err := HexToBytes32(p.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	return &Authorization{
		From:        common.HexToAddress(p.From),
		To:          common.HexToAddress(p.To),
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       nonce,
	}, nil
}

// SignatureFromPayload parses the wire payload's v, r, s fields.
func SignatureFromPayload(p *types.ExactPaymentPayload) (*Signature, error) {
	if p.V != 27 && p.V != 28 {
		return nil, fmt.Errorf("invalid signature v value: %d", p.V)
	}

	r, err := HexToBytes32(p.R)
	if err != nil {
		return nil, fmt.Errorf("invalid signature r: %w", err)
	}

	s, err := HexToBytes32(p.S)
	if err != nil {
		return nil, fmt.Errorf("invalid signature s: %w", err)
	}

	return &Signature{V: p.V, R: r, S: s}, nil
}

func typedData(domain Domain, auth *Authorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			EIP712DomainType: []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			TransferWithAuthorizationType: []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: TransferWithAuthorizationType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       auth.Value.String(),
			"validAfter":  auth.ValidAfter.String(),
			"validBefore": auth.ValidBefore.String(),
			"nonce":       hexutil.Encode(auth.Nonce[:]),
		},
	}
}

// HashTransferWithAuthorization computes the EIP-712 digest of an EIP-3009
// authorization: keccak256(0x19 0x01 || domainSeparator || structHash).
// The signer and the verifier both derive their digest here, so any drift
// between the two sides is impossible.
func HashTransferWithAuthorization(domain Domain, auth *Authorization) ([]byte, error) {
	data := typedData(domain, auth)

	domainSeparator, err := data.HashStruct(EIP712DomainType, data.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash EIP-712 domain: %w", err)
	}

	structHash, err := data.HashStruct(data.PrimaryType, data.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash authorization struct: %w", err)
	}

	digest := crypto.Keccak256(
		[]byte{0x19, 0x01},
		domainSeparator,
		structHash,
	)

	return digest, nil
}

// RecoverAuthorizationSigner recovers the address that produced sig over the
// EIP-712 digest.
func RecoverAuthorizationSigner(digest []byte, sig *Signature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, fmt.Errorf("invalid signature v value: %d", sig.V)
	}

	compact := make([]byte, 65)
	copy(compact[0:32], sig.R[:])
	copy(compact[32:64], sig.S[:])
	compact[64] = sig.V - 27

	pubKey, err := crypto.SigToPub(digest, compact)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}
