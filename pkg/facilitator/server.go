// Package facilitator exposes the verifier and settler over HTTP:
// POST /verify, POST /settle, GET /supported and GET /health.
package facilitator

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/x402labs/x402-go/mechanisms/evm/exact"
	"github.com/x402labs/x402-go/pkg/types"
)

// DefaultMaxConcurrentSettles bounds how many settlements may be in flight
// at once. Submissions are serialized at the settler's account mutex anyway;
// the bound keeps a burst of long confirmation waits from exhausting the
// server.
const DefaultMaxConcurrentSettles = 8

// Verifier checks payments without settling them.
type Verifier interface {
	Verify(ctx context.Context, paymentHeader string, requirements *types.PaymentRequirements) (*types.VerificationResponse, error)
}

// Settler executes payments on-chain.
type Settler interface {
	Settle(ctx context.Context, paymentHeader string, requirements *types.PaymentRequirements, timeout time.Duration) *types.SettlementResponse
}

// Server is the facilitator HTTP surface.
type Server struct {
	verifier      Verifier
	settler       Settler
	network       string
	settleTimeout time.Duration
	settleSem     chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithSettleTimeout overrides how long a settlement waits for confirmation.
func WithSettleTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.settleTimeout = timeout }
}

// WithMaxConcurrentSettles overrides the settlement concurrency bound.
func WithMaxConcurrentSettles(n int) Option {
	return func(s *Server) { s.settleSem = make(chan struct{}, n) }
}

// NewServer wires the verifier and settler for the given network.
func NewServer(verifier Verifier, settler Settler, network string, opts ...Option) *Server {
	s := &Server{
		verifier:      verifier,
		settler:       settler,
		network:       network,
		settleTimeout: exact.DefaultSettleTimeout,
		settleSem:     make(chan struct{}, DefaultMaxConcurrentSettles),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("requestID", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Router builds the gin engine with all facilitator routes mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID())

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.POST("/verify", s.handleVerify)
	router.POST("/settle", s.handleSettle)
	router.GET("/supported", s.handleSupported)

	return router
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "x402 Facilitator Server",
		"version": "1.0.0",
		"status":  "running",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":               "healthy",
		"verifier_initialized": s.verifier != nil,
		"settler_initialized":  s.settler != nil,
	})
}

func (s *Server) handleVerify(c *gin.Context) {
	var request types.VerificationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	id := c.GetString("requestID")
	log.Printf("[%s] verification request for resource %s", id, request.PaymentRequirements.Resource)

	response, err := s.verifier.Verify(c.Request.Context(), request.PaymentHeader, &request.PaymentRequirements)
	if err != nil {
		log.Printf("[%s] verification error: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed: " + err.Error()})
		return
	}

	log.Printf("[%s] verification result: valid=%t reason=%q", id, response.IsValid, response.InvalidReason)
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleSettle(c *gin.Context) {
	var request types.SettlementRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	id := c.GetString("requestID")
	log.Printf("[%s] settlement request for resource %s", id, request.PaymentRequirements.Resource)

	select {
	case s.settleSem <- struct{}{}:
		defer func() { <-s.settleSem }()
	case <-c.Request.Context().Done():
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Settlement capacity exhausted"})
		return
	}

	verification, err := s.verifier.Verify(c.Request.Context(), request.PaymentHeader, &request.PaymentRequirements)
	if err != nil {
		log.Printf("[%s] verification error: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Settlement failed: " + err.Error()})
		return
	}

	if !verification.IsValid {
		log.Printf("[%s] verification failed: %s", id, verification.InvalidReason)
		c.JSON(http.StatusOK, types.SettlementResponse{
			Success: false,
			Error:   "Verification failed: " + verification.InvalidReason,
		})
		return
	}

	response := s.settler.Settle(c.Request.Context(), request.PaymentHeader, &request.PaymentRequirements, s.settleTimeout)
	if response.Success {
		log.Printf("[%s] payment settled: tx=%s", id, response.TxHash)
	} else {
		log.Printf("[%s] settlement failed: %s", id, response.Error)
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleSupported(c *gin.Context) {
	c.JSON(http.StatusOK, types.SupportedResponse{
		Kinds: []types.SupportedKind{
			{Scheme: types.SchemeExact, Network: s.network},
		},
	})
}
