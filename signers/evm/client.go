// Package evm implements the payer-side ECDSA signer for exact-scheme
// payments: it derives the payer address from a private key and signs
// EIP-3009 authorization digests.
package evm

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	mechevm "github.com/x402labs/x402-go/mechanisms/evm"
)

// ClientSigner signs EIP-712 authorization digests with a single ECDSA key.
type ClientSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewClientSigner wraps an existing private key.
func NewClientSigner(privateKey *ecdsa.PrivateKey) *ClientSigner {
	return &ClientSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// NewClientSignerFromHex parses a hex-encoded private key, with or without
// the 0x prefix.
func NewClientSignerFromHex(hexKey string) (*ClientSigner, error) {
	trimmed := strings.TrimPrefix(hexKey, "0x")

	privateKey, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return NewClientSigner(privateKey), nil
}

// Address returns the checksummed payer address derived from the key.
func (s *ClientSigner) Address() common.Address {
	return s.address
}

// SignAuthorization computes the EIP-712 digest for the authorization and
// signs it, returning the signature with v normalized to 27/28.
func (s *ClientSigner) SignAuthorization(domain mechevm.Domain, auth *mechevm.Authorization) (*mechevm.Signature, error) {
	digest, err := mechevm.HashTransferWithAuthorization(domain, auth)
	if err != nil {
		return nil, err
	}

	raw, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	sig := &mechevm.Signature{V: raw[64] + 27}
	copy(sig.R[:], raw[0:32])
	copy(sig.S[:], raw[32:64])

	return sig, nil
}
