// The facilitator binary verifies and settles exact-scheme payments over
// HTTP on behalf of resource servers.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"github.com/x402labs/x402-go/mechanisms/evm"
	"github.com/x402labs/x402-go/mechanisms/evm/exact"
	"github.com/x402labs/x402-go/pkg/facilitator"
	"github.com/x402labs/x402-go/pkg/x402"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg, err := x402.ConfigFromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if cfg.RPCURL == "" {
		log.Fatalf("%v: RPC_URL", x402.ErrMissingConfig)
	}
	if cfg.FacilitatorPrivateKey == "" {
		log.Fatalf("%v: FACILITATOR_PRIVATE_KEY", x402.ErrMissingConfig)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		log.Fatalf("failed to connect to RPC at %s: %v", cfg.RPCURL, err)
	}
	defer client.Close()

	chainID, err := evm.ParseChainID(cfg.Network)
	if err != nil {
		log.Fatalf("invalid network: %v", err)
	}

	verifier := exact.NewVerifier(exact.NewHeaderChainTime(client))

	settler, err := exact.NewSettler(client, chainID, cfg.FacilitatorPrivateKey, cfg.MaxGasPriceGwei)
	if err != nil {
		log.Fatalf("failed to initialize settler: %v", err)
	}
	log.Printf("settler initialized with address %s", settler.Address().Hex())

	server := facilitator.NewServer(verifier, settler, cfg.Network)

	port := os.Getenv("FACILITATOR_SERVER_PORT")
	if port == "" {
		port = "8000"
	}

	log.Printf("starting facilitator server on port %s (network %s)", port, cfg.Network)
	if err := server.Router().Run(fmt.Sprintf(":%s", port)); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
