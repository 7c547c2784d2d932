// The x402cli binary fetches a protected resource, paying automatically when
// the server answers with a 402 challenge.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"github.com/x402labs/x402-go/mechanisms/evm/exact"
	"github.com/x402labs/x402-go/pkg/client"
	"github.com/x402labs/x402-go/pkg/x402"
	signerevm "github.com/x402labs/x402-go/signers/evm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	var (
		url     = flag.String("url", "", "resource URL to fetch (required)")
		key     = flag.String("key", "", "payer private key (defaults to CLIENT_PRIVATE_KEY)")
		rpcURL  = flag.String("rpc", "", "RPC URL for chain-time validity windows (defaults to RPC_URL)")
		timeout = flag.Duration("timeout", 150*time.Second, "overall request timeout")
	)
	flag.Parse()

	if *url == "" {
		flag.Usage()
		os.Exit(2)
	}

	privateKey := *key
	if privateKey == "" {
		privateKey = os.Getenv("CLIENT_PRIVATE_KEY")
	}
	if privateKey == "" {
		log.Fatalf("%v: CLIENT_PRIVATE_KEY", x402.ErrMissingConfig)
	}

	signer, err := signerevm.NewClientSignerFromHex(privateKey)
	if err != nil {
		log.Fatalf("invalid private key: %v", err)
	}
	log.Printf("paying as %s", signer.Address().Hex())

	opts := []client.Option{}
	rpc := *rpcURL
	if rpc == "" {
		rpc = os.Getenv("RPC_URL")
	}
	if rpc != "" {
		ethClient, err := ethclient.Dial(rpc)
		if err != nil {
			log.Fatalf("failed to connect to RPC at %s: %v", rpc, err)
		}
		defer ethClient.Close()
		opts = append(opts, client.WithChainTime(exact.NewHeaderChainTime(ethClient)))
	}

	payer := client.New(signer, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resource, err := payer.RequestResource(ctx, *url)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}

	if resource.Paid {
		if resource.Receipt != nil {
			log.Printf("payment settled: tx=%s network=%s", resource.Receipt.TxHash, resource.Receipt.NetworkID)
		} else {
			log.Printf("payment accepted, no receipt header returned")
		}
	} else {
		log.Printf("resource was free")
	}

	fmt.Println(string(resource.Body))
}
