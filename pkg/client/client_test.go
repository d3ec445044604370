package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402-teller/facilitator-go/pkg/types"
)

func TestVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/verify", r.URL.Path)

		var req types.VerifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.PaymentPayload)
		assert.Equal(t, "base-sepolia", req.PaymentPayload.Network)

		json.NewEncoder(w).Encode(types.VerifyResponse{IsValid: true, Payer: "0xpayer"})
	}))
	defer server.Close()

	c := New(server.URL)
	resp, err := c.Verify(context.Background(), &types.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload:     map[string]interface{}{},
	}, &types.PaymentRequirements{
		Scheme:            "exact",
		Network:           "base-sepolia",
		MaxAmountRequired: "10000",
		PayTo:             "0xto",
	})
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Equal(t, "0xpayer", resp.Payer)
}

func TestSettleErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to settle payment"})
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Settle(context.Background(), &types.PaymentPayload{}, &types.PaymentRequirements{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to settle payment")
}

func TestSupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/supported", r.URL.Path)
		json.NewEncoder(w).Encode(types.SupportedResponse{
			Kinds: []types.SupportedKind{{X402Version: 1, Scheme: "exact", Network: "base"}},
		})
	}))
	defer server.Close()

	resp, err := New(server.URL).Supported(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Kinds, 1)
	assert.Equal(t, "base", resp.Kinds[0].Network)
}

func TestBalanceQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/balance", r.URL.Path)
		require.Equal(t, "solana-devnet", r.URL.Query().Get("network"))
		json.NewEncoder(w).Encode(types.BalanceResponse{Success: true, Balance: "5000000"})
	}))
	defer server.Close()

	resp, err := New(server.URL).Balance(context.Background(), "solana-devnet")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "5000000", resp.Balance)
}
