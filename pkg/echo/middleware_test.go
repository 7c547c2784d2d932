package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402labs/x402-go/pkg/types"
)

const testPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

type mockFacilitator struct {
	response *types.SettlementResponse
	err      error
}

func (m *mockFacilitator) Settle(context.Context, string, *types.PaymentRequirements) (*types.SettlementResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func newTestServer(facilitator Facilitator) *echo.Echo {
	e := echo.New()
	e.GET("/data",
		func(c echo.Context) error {
			return c.JSON(http.StatusOK, map[string]string{"report": "analytics"})
		},
		PaymentMiddleware("$0.10", testPayTo,
			WithFacilitator(facilitator),
			WithDescription("Analytics data"),
		),
	)
	return e
}

func TestMissingPaymentHeaderReturns402(t *testing.T) {
	server := newTestServer(&mockFacilitator{})

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/data", nil))

	assert.Equal(t, http.StatusPaymentRequired, recorder.Code)

	var challenge types.PaymentRequiredResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &challenge))
	require.Len(t, challenge.Accepts, 1)
	assert.Equal(t, "100000", challenge.Accepts[0].MaxAmountRequired)
	assert.Equal(t, "/data", challenge.Accepts[0].Resource)
}

func TestSettledPaymentServesResource(t *testing.T) {
	server := newTestServer(&mockFacilitator{
		response: &types.SettlementResponse{Success: true, TxHash: "0xabc", NetworkID: "eip155:84532"},
	})

	request := httptest.NewRequest(http.MethodGet, "/data", nil)
	request.Header.Set(types.PaymentHeader, "payment-header-value")
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)

	receipt, err := types.DecodePaymentReceiptFromBase64(recorder.Header().Get(types.PaymentResponseHeader))
	require.NoError(t, err)
	assert.Equal(t, "0xabc", receipt.TxHash)
}

func TestFailedSettlementReturns402(t *testing.T) {
	server := newTestServer(&mockFacilitator{
		response: &types.SettlementResponse{Success: false, Error: "Payment expired: current time 20 > validBefore 10"},
	})

	request := httptest.NewRequest(http.MethodGet, "/data", nil)
	request.Header.Set(types.PaymentHeader, "payment-header-value")
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusPaymentRequired, recorder.Code)

	var challenge types.PaymentRequiredResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &challenge))
	assert.Contains(t, challenge.Error, "Payment expired")
}
