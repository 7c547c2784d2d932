// Package x402 carries the shared configuration, sentinel errors and
// response-schema validation used by the servers and the payer client.
package x402

import (
	"fmt"
	"os"
	"strconv"

	"github.com/x402labs/x402-go/mechanisms/evm"
)

// Defaults target Base Sepolia with its native USDC deployment.
const (
	DefaultNetwork        = "eip155:84532"
	DefaultFacilitatorURL = "http://localhost:8000"
	DefaultTokenAddress   = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	DefaultTokenDecimals  = 6
	DefaultTokenName      = "USDC"
	DefaultTokenVersion   = "2"
)

// Config holds everything the binaries read from the environment.
type Config struct {
	RPCURL                string
	Network               string
	FacilitatorURL        string
	FacilitatorPrivateKey string
	ClientPrivateKey      string
	ResourceServerAddress string
	TokenContractAddress  string
	TokenDecimals         int
	TokenName             string
	TokenVersion          string
	MaxGasPriceGwei       int64
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// ConfigFromEnv reads the shared configuration. Credentials are left empty
// when unset; each binary validates the fields it actually needs.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{
		RPCURL:                os.Getenv("RPC_URL"),
		Network:               getenv("NETWORK", DefaultNetwork),
		FacilitatorURL:        getenv("FACILITATOR_URL", DefaultFacilitatorURL),
		FacilitatorPrivateKey: os.Getenv("FACILITATOR_PRIVATE_KEY"),
		ClientPrivateKey:      os.Getenv("CLIENT_PRIVATE_KEY"),
		ResourceServerAddress: os.Getenv("RESOURCE_SERVER_ADDRESS"),
		TokenContractAddress:  getenv("TOKEN_CONTRACT_ADDRESS", DefaultTokenAddress),
		TokenDecimals:         DefaultTokenDecimals,
		TokenName:             getenv("TOKEN_NAME", DefaultTokenName),
		TokenVersion:          getenv("TOKEN_VERSION", DefaultTokenVersion),
	}

	if raw := os.Getenv("TOKEN_DECIMALS"); raw != "" {
		decimals, err := strconv.Atoi(raw)
		if err != nil || decimals < 0 {
			return nil, fmt.Errorf("invalid TOKEN_DECIMALS: %q", raw)
		}
		cfg.TokenDecimals = decimals
	}

	if raw := os.Getenv("MAX_GAS_PRICE_GWEI"); raw != "" {
		gwei, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || gwei < 0 {
			return nil, fmt.Errorf("invalid MAX_GAS_PRICE_GWEI: %q", raw)
		}
		cfg.MaxGasPriceGwei = gwei
	}

	if _, err := evm.ParseChainID(cfg.Network); err != nil {
		return nil, fmt.Errorf("invalid NETWORK: %w", err)
	}

	return cfg, nil
}
