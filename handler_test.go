package facilitator

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402-teller/facilitator-go/ledger"
	"github.com/x402-teller/facilitator-go/pkg/types"
)

func TestHandleRequestSupported(t *testing.T) {
	f := newTestFacilitator(t, evmConfig())

	resp := f.HandleRequest(context.Background(), &HTTPRequest{
		Method: http.MethodGet,
		Path:   "/supported",
	})

	require.Equal(t, http.StatusOK, resp.Status)
	supported, ok := resp.Body.(*types.SupportedResponse)
	require.True(t, ok)
	require.Len(t, supported.Kinds, 1)
	assert.Equal(t, "base-sepolia", supported.Kinds[0].Network)
}

func TestHandleRequestPublicKeys(t *testing.T) {
	f := newTestFacilitator(t, evmConfig())

	resp := f.HandleRequest(context.Background(), &HTTPRequest{
		Method: http.MethodGet,
		Path:   "/public-keys",
	})

	require.Equal(t, http.StatusOK, resp.Status)
	keys, ok := resp.Body.(*types.PublicKeysResponse)
	require.True(t, ok)
	assert.NotEmpty(t, keys.EvmPublicKey)
}

func TestHandleRequestUnknownRoute(t *testing.T) {
	f := newTestFacilitator(t, evmConfig())

	resp := f.HandleRequest(context.Background(), &HTTPRequest{
		Method: http.MethodGet,
		Path:   "/nope",
	})

	require.Equal(t, http.StatusNotFound, resp.Status)
	body, ok := resp.Body.(ErrorBody)
	require.True(t, ok)
	assert.Equal(t, "Not found", body.Error)
}

func TestHandleVerifyRejectsMalformedBodyBeforeGateway(t *testing.T) {
	gw := &mockGateway{}
	f := newTestFacilitator(t, evmConfig(), WithEVMGateway(gw))

	for _, body := range []string{
		``,
		`{}`,
		`{"paymentPayload": {}}`,
		`{"paymentRequirements": {}}`,
		`not json`,
	} {
		resp := f.HandleRequest(context.Background(), &HTTPRequest{
			Method: http.MethodPost,
			Path:   "/verify",
			Body:   []byte(body),
		})
		assert.Equal(t, http.StatusBadRequest, resp.Status, "body %q", body)
		errBody, ok := resp.Body.(ErrorBody)
		require.True(t, ok)
		assert.Equal(t, "Missing paymentPayload or paymentRequirements", errBody.Error)
	}
	assert.Zero(t, gw.verifyCalls)
}

func TestHandleVerifyDispatches(t *testing.T) {
	gw := &mockGateway{
		verifyResp: &types.VerifyResponse{IsValid: true, Payer: testPayer},
	}
	f := newTestFacilitator(t, evmConfig(), WithEVMGateway(gw))

	body, err := json.Marshal(verifyRequest("base-sepolia"))
	require.NoError(t, err)

	resp := f.HandleRequest(context.Background(), &HTTPRequest{
		Method: http.MethodPost,
		Path:   "/verify",
		Body:   body,
	})

	require.Equal(t, http.StatusOK, resp.Status)
	verify, ok := resp.Body.(*types.VerifyResponse)
	require.True(t, ok)
	assert.True(t, verify.IsValid)
	assert.Equal(t, 1, gw.verifyCalls)
	assert.Zero(t, gw.settleCalls)
}

func TestHandleSettleDispatches(t *testing.T) {
	gw := &mockGateway{
		settleResp: &types.SettleResponse{
			Success:     true,
			Transaction: "0xabc123",
			Network:     "base-sepolia",
			Payer:       testPayer,
		},
	}
	f := newTestFacilitator(t, evmConfig(), WithEVMGateway(gw))

	body, err := json.Marshal(settleRequest("base-sepolia"))
	require.NoError(t, err)

	resp := f.HandleRequest(context.Background(), &HTTPRequest{
		Method: http.MethodPost,
		Path:   "/settle",
		Body:   body,
	})

	require.Equal(t, http.StatusOK, resp.Status)
	settle, ok := resp.Body.(*types.SettleResponse)
	require.True(t, ok)
	assert.True(t, settle.Success)
	assert.Equal(t, 1, gw.settleCalls)
	assert.Zero(t, gw.verifyCalls)
}

func TestHandleBalanceRequiresNetwork(t *testing.T) {
	f := newTestFacilitator(t, evmConfig())

	resp := f.HandleRequest(context.Background(), &HTTPRequest{
		Method: http.MethodGet,
		Path:   "/balance",
	})

	require.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestHandleDashboardTransactionsDefaults(t *testing.T) {
	gw := &mockGateway{
		verifyResp: &types.VerifyResponse{IsValid: true, Payer: testPayer},
	}
	f := newTestFacilitator(t, evmConfig(), WithEVMGateway(gw))

	_, err := f.VerifyPayment(context.Background(), verifyRequest("base-sepolia"))
	require.NoError(t, err)

	resp := f.HandleRequest(context.Background(), &HTTPRequest{
		Method: http.MethodGet,
		Path:   "/dashboard/transactions",
		Query:  map[string]string{"limit": "not-a-number"},
	})

	require.Equal(t, http.StatusOK, resp.Status)
	txs, ok := resp.Body.([]ledger.Transaction)
	require.True(t, ok)
	assert.Len(t, txs, 1)
}

func TestOperationLabelBounded(t *testing.T) {
	tests := map[string]string{
		"/supported":              "supported",
		"/public-keys":            "public_keys",
		"/verify":                 "verify",
		"/settle":                 "settle",
		"/dashboard":              "dashboard",
		"/dashboard/endpoints":    "dashboard_endpoints",
		"/dashboard/transactions": "dashboard_transactions",
		"/api/balance":            "balance",
	}
	for path, want := range tests {
		assert.Equal(t, want, operationLabel(&HTTPRequest{Path: path}), path)
	}

	// Unmatched paths collapse to one label instead of growing the set.
	assert.Equal(t, "unknown", operationLabel(&HTTPRequest{Path: "/nope"}))
	assert.Equal(t, "unknown", operationLabel(&HTTPRequest{Path: "/scan/123456"}))
}

func TestHandleDashboardStats(t *testing.T) {
	f := newTestFacilitator(t, evmConfig())

	resp := f.HandleRequest(context.Background(), &HTTPRequest{
		Method: http.MethodGet,
		Path:   "/dashboard",
	})

	require.Equal(t, http.StatusOK, resp.Status)
}
