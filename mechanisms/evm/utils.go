package evm

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// ParseChainID extracts the numeric chain ID from an "eip155:<chainId>"
// network identifier.
func ParseChainID(network string) (*big.Int, error) {
	if !strings.HasPrefix(network, NetworkPrefix) {
		return nil, fmt.Errorf("invalid network format: %s", network)
	}

	chainID, ok := new(big.Int).SetString(strings.TrimPrefix(network, NetworkPrefix), 10)
	if !ok || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid network format: %s", network)
	}

	return chainID, nil
}

// NetworkForChainID is the inverse of ParseChainID.
func NetworkForChainID(chainID *big.Int) string {
	return NetworkPrefix + chainID.String()
}

// CreateNonce draws a fresh 32-byte authorization nonce from crypto/rand.
func CreateNonce() ([32]byte, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return nonce, nil
}

// HexToBytes32 decodes a 0x-prefixed hex string into exactly 32 bytes.
func HexToBytes32(s string) ([32]byte, error) {
	var out [32]byte

	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return out, fmt.Errorf("hex value %q missing 0x prefix", s)
	}

	// common.FromHex zero-pads odd-length input, so the digit count has to
	// be checked up front: bytes32 is exactly 64 hex digits.
	if len(s) != 66 {
		return out, fmt.Errorf("hex value %q is %d hex digits, want 64", s, len(s)-2)
	}

	decoded := common.FromHex(s)
	if len(decoded) != 32 {
		return out, fmt.Errorf("hex value %q is %d bytes, want 32", s, len(decoded))
	}

	copy(out[:], decoded)
	return out, nil
}

// ParseUint256 parses a non-negative decimal string into a big.Int.
func ParseUint256(s string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(s, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid uint256 value: %q", s)
	}

	return value, nil
}

// GweiToWei converts a whole-gwei amount into wei.
func GweiToWei(gwei int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(gwei), big.NewInt(params.GWei))
}
