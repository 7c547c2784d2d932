// The resource-server binary serves demo endpoints protected by exact-scheme
// payments, settling through a facilitator.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	x402gin "github.com/x402labs/x402-go/pkg/gin"
	"github.com/x402labs/x402-go/pkg/x402"
)

var weatherSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"location": {"type": "string"},
		"temperature": {"type": "string"},
		"conditions": {"type": "string"},
		"humidity": {"type": "string"},
		"wind": {"type": "string"},
		"timestamp": {"type": "string"}
	},
	"required": ["location", "temperature", "conditions"]
}`)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg, err := x402.ConfigFromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if cfg.ResourceServerAddress == "" {
		log.Fatalf("%v: RESOURCE_SERVER_ADDRESS", x402.ErrMissingConfig)
	}

	protect := func(price, description string, opts ...x402gin.Options) gin.HandlerFunc {
		base := []x402gin.Options{
			x402gin.WithFacilitatorURL(cfg.FacilitatorURL),
			x402gin.WithNetwork(cfg.Network),
			x402gin.WithAsset(cfg.TokenContractAddress, cfg.TokenDecimals, cfg.TokenName, cfg.TokenVersion),
			x402gin.WithDescription(description),
		}
		return x402gin.PaymentMiddleware(price, cfg.ResourceServerAddress, append(base, opts...)...)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "x402 Resource Server",
			"version": "1.0.0",
			"status":  "running",
			"endpoints": []gin.H{
				{"path": "/weather", "price": "$0.01", "description": "Weather information"},
				{"path": "/article", "price": "$0.05", "description": "Premium article content"},
				{"path": "/data", "price": "$0.10", "description": "Analytics data"},
			},
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/weather",
		protect("$0.01", "Current weather information", x402gin.WithOutputSchema(&weatherSchema)),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"location":    "San Francisco, CA",
				"temperature": "68°F",
				"conditions":  "Partly Cloudy",
				"humidity":    "65%",
				"wind":        "10 mph NW",
				"timestamp":   "2025-10-31T12:00:00Z",
			})
		},
	)

	router.GET("/article",
		protect("$0.05", "Premium article content"),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"title":  "The Future of Machine-to-Machine Payments",
				"author": "Jane Doe",
				"content": "HTTP 402 was reserved in 1997 and waited a quarter of a " +
					"century for infrastructure able to honor it. Stablecoin rails " +
					"finally give APIs a way to charge per request without accounts, " +
					"API keys or invoices.",
				"published": "2025-10-30",
			})
		},
	)

	router.GET("/data",
		protect("$0.10", "Analytics data"),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"period":          "2025-10",
				"requests":        184223,
				"unique_payers":   417,
				"settled_volume":  "1842.23",
				"top_endpoint":    "/weather",
				"mean_latency_ms": 243,
			})
		},
	)

	port := os.Getenv("RESOURCE_SERVER_PORT")
	if port == "" {
		port = "8001"
	}

	log.Printf("starting resource server on port %s (paying to %s)", port, cfg.ResourceServerAddress)
	if err := router.Run(fmt.Sprintf(":%s", port)); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
