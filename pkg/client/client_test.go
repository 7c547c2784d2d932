package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402labs/x402-go/mechanisms/evm/exact"
	"github.com/x402labs/x402-go/pkg/types"
	"github.com/x402labs/x402-go/pkg/x402"
	signerevm "github.com/x402labs/x402-go/signers/evm"
)

// Well-known hardhat test key, never used on a real network.
const payerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fixedChainTime uint64

func (f fixedChainTime) LatestTimestamp(context.Context) (uint64, error) {
	return uint64(f), nil
}

func testRequirements() *types.PaymentRequirements {
	return &types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           "eip155:84532",
		MaxAmountRequired: "10000",
		Resource:          "https://example.com/weather",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Extra:             &types.PaymentExtra{Name: "USDC", Version: "2"},
	}
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	signer, err := signerevm.NewClientSignerFromHex(payerKey)
	require.NoError(t, err)
	return New(signer, opts...)
}

func TestCreatePaymentVerifies(t *testing.T) {
	payer := newTestClient(t, WithChainTime(fixedChainTime(1700000000)))
	requirements := testRequirements()

	header, err := payer.CreatePayment(context.Background(), requirements)
	require.NoError(t, err)

	payload, err := types.DecodePaymentPayloadFromBase64(header)
	require.NoError(t, err)
	assert.Equal(t, types.X402Version, payload.X402Version)
	assert.Equal(t, requirements.Network, payload.Network)

	pay, err := payload.ExactPayload()
	require.NoError(t, err)
	assert.Equal(t, "10000", pay.Value)
	assert.Equal(t, "1699999990", pay.ValidAfter)
	assert.Equal(t, "1700000300", pay.ValidBefore)
	assert.Contains(t, []uint8{27, 28}, pay.V)

	verifier := exact.NewVerifier(fixedChainTime(1700000000))
	response, err := verifier.Verify(context.Background(), header, requirements)
	require.NoError(t, err)
	assert.True(t, response.IsValid, response.InvalidReason)
}

func TestCreatePaymentNoncesAreUnique(t *testing.T) {
	payer := newTestClient(t, WithChainTime(fixedChainTime(1700000000)))
	requirements := testRequirements()

	first, err := payer.CreatePayment(context.Background(), requirements)
	require.NoError(t, err)
	second, err := payer.CreatePayment(context.Background(), requirements)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCreatePaymentRejections(t *testing.T) {
	payer := newTestClient(t)

	t.Run("unsupported scheme", func(t *testing.T) {
		requirements := testRequirements()
		requirements.Scheme = "upto"
		_, err := payer.CreatePayment(context.Background(), requirements)
		require.Error(t, err)
	})

	t.Run("missing extra", func(t *testing.T) {
		requirements := testRequirements()
		requirements.Extra = nil
		_, err := payer.CreatePayment(context.Background(), requirements)
		require.Error(t, err)
	})

	t.Run("bad network", func(t *testing.T) {
		requirements := testRequirements()
		requirements.Network = "base-sepolia"
		_, err := payer.CreatePayment(context.Background(), requirements)
		require.Error(t, err)
	})

	t.Run("bad amount", func(t *testing.T) {
		requirements := testRequirements()
		requirements.MaxAmountRequired = "a lot"
		_, err := payer.CreatePayment(context.Background(), requirements)
		require.Error(t, err)
	})
}

func TestRequestResourcePaysOn402(t *testing.T) {
	requirements := testRequirements()
	receipt := &types.PaymentReceipt{TxHash: "0xabc", NetworkID: requirements.Network}

	var sawPayment string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(types.PaymentHeader)
		if header == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(types.PaymentRequiredResponse{
				X402Version: types.X402Version,
				Accepts:     []types.PaymentRequirements{*requirements},
				Error:       "Payment required",
			})
			return
		}

		sawPayment = header
		encoded, err := receipt.EncodeToBase64String()
		require.NoError(t, err)
		w.Header().Set(types.PaymentResponseHeader, encoded)
		w.Write([]byte(`{"temperature": 21.5}`))
	}))
	defer server.Close()

	payer := newTestClient(t)
	resource, err := payer.RequestResource(context.Background(), server.URL+"/weather")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resource.StatusCode)
	assert.True(t, resource.Paid)
	assert.JSONEq(t, `{"temperature": 21.5}`, string(resource.Body))
	require.NotNil(t, resource.Receipt)
	assert.Equal(t, "0xabc", resource.Receipt.TxHash)

	payload, err := types.DecodePaymentPayloadFromBase64(sawPayment)
	require.NoError(t, err)
	assert.Equal(t, types.SchemeExact, payload.Scheme)
}

func TestRequestResourceFreeEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("free"))
	}))
	defer server.Close()

	resource, err := newTestClient(t).RequestResource(context.Background(), server.URL)
	require.NoError(t, err)
	assert.False(t, resource.Paid)
	assert.Nil(t, resource.Receipt)
	assert.Equal(t, "free", string(resource.Body))
}

func TestRequestResourceRejectedPayment(t *testing.T) {
	requirements := testRequirements()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(types.PaymentRequiredResponse{
			X402Version: types.X402Version,
			Accepts:     []types.PaymentRequirements{*requirements},
		})
	}))
	defer server.Close()

	_, err := newTestClient(t).RequestResource(context.Background(), server.URL)
	require.ErrorIs(t, err, x402.ErrPaymentRequired)
}

func TestRequestResourceEmptyAccepts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(types.PaymentRequiredResponse{
			X402Version: types.X402Version,
			Error:       "Payment required",
		})
	}))
	defer server.Close()

	_, err := newTestClient(t).RequestResource(context.Background(), server.URL)
	require.ErrorIs(t, err, x402.ErrNoAcceptedMethods)
}

func TestRequestResourceNoMatchingRequirements(t *testing.T) {
	requirements := testRequirements()
	requirements.Network = "solana:mainnet"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(types.PaymentRequiredResponse{
			X402Version: types.X402Version,
			Accepts:     []types.PaymentRequirements{*requirements},
		})
	}))
	defer server.Close()

	_, err := newTestClient(t).RequestResource(context.Background(), server.URL)
	require.ErrorIs(t, err, x402.ErrNoMatchingRequirements)
}

func TestDecodePaymentResponse(t *testing.T) {
	receipt := &types.PaymentReceipt{TxHash: "0xabc", NetworkID: "eip155:84532"}
	encoded, err := receipt.EncodeToBase64String()
	require.NoError(t, err)

	decoded, err := DecodePaymentResponse(encoded)
	require.NoError(t, err)
	assert.Equal(t, receipt, decoded)

	_, err = DecodePaymentResponse("!!garbage!!")
	require.Error(t, err)
}
