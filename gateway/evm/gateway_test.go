package evm

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402-teller/facilitator-go/pkg/types"
)

const testRecipient = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

func testAuthorization(from string) *Authorization {
	now := time.Now().Unix()
	return &Authorization{
		From:        from,
		To:          testRecipient,
		Value:       "10000",
		ValidAfter:  "0",
		ValidBefore: fmt.Sprintf("%d", now+600),
		Nonce:       "0x" + hex.EncodeToString(make([]byte, 32)),
	}
}

func paymentFor(auth *Authorization, signature string) *types.PaymentPayload {
	return &types.PaymentPayload{
		X402Version: 1,
		Scheme:      SchemeExact,
		Network:     "base-sepolia",
		Payload: map[string]interface{}{
			"signature": signature,
			"authorization": map[string]interface{}{
				"from":        auth.From,
				"to":          auth.To,
				"value":       auth.Value,
				"validAfter":  auth.ValidAfter,
				"validBefore": auth.ValidBefore,
				"nonce":       auth.Nonce,
			},
		},
	}
}

func requirementsFor(amount string) *types.PaymentRequirements {
	return &types.PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           "base-sepolia",
		MaxAmountRequired: amount,
		Resource:          "/api/weather",
		PayTo:             testRecipient,
	}
}

func TestPayloadFromMap(t *testing.T) {
	auth := testAuthorization("0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574")
	payload, err := PayloadFromMap(paymentFor(auth, "0xsig").Payload)
	require.NoError(t, err)
	assert.Equal(t, "0xsig", payload.Signature)
	require.NotNil(t, payload.Authorization)
	assert.Equal(t, auth.From, payload.Authorization.From)
	assert.Equal(t, auth.Value, payload.Authorization.Value)

	_, err = PayloadFromMap(map[string]interface{}{"signature": "0xsig"})
	assert.Error(t, err)
}

func TestNetworkConfigs(t *testing.T) {
	for _, network := range []string{"ethereum", "sepolia", "base", "base-sepolia", "polygon", "avalanche", "avalanche-fuji"} {
		config, ok := GetNetworkConfig(network)
		require.True(t, ok, network)
		assert.NotNil(t, config.ChainID, network)
		assert.NotEmpty(t, config.RPCURL, network)
		assert.NotEmpty(t, config.DefaultAsset.Address, network)
	}

	assert.False(t, IsSupported("dogechain"))
	_, ok := GetNetworkConfig("dogechain")
	assert.False(t, ok)
}

func TestVerifyRejectsSchemeAndNetworkMismatch(t *testing.T) {
	g := New(nil)
	ctx := context.Background()
	auth := testAuthorization("0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574")

	payload := paymentFor(auth, "0xsig")
	payload.Scheme = "subscription"
	resp, err := g.Verify(ctx, payload, requirementsFor("10000"))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, "unsupported_scheme", resp.InvalidReason)

	payload = paymentFor(auth, "0xsig")
	payload.Network = "base"
	resp, err = g.Verify(ctx, payload, requirementsFor("10000"))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, "network_mismatch", resp.InvalidReason)
}

func TestVerifyRejectsRecipientMismatch(t *testing.T) {
	g := New(nil)
	auth := testAuthorization("0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574")
	auth.To = "0x0000000000000000000000000000000000000001"

	resp, err := g.Verify(context.Background(), paymentFor(auth, "0xsig"), requirementsFor("10000"))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrRecipientMismatch, resp.InvalidReason)
	assert.Equal(t, auth.From, resp.Payer)
}

func TestVerifyRejectsInsufficientAuthorization(t *testing.T) {
	g := New(nil)
	auth := testAuthorization("0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574")
	auth.Value = "5000"

	resp, err := g.Verify(context.Background(), paymentFor(auth, "0xsig"), requirementsFor("10000"))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrAuthorizationValue, resp.InvalidReason)
}

func TestVerifyRejectsExpiredAuthorization(t *testing.T) {
	g := New(nil)
	ctx := context.Background()

	auth := testAuthorization("0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574")
	auth.ValidBefore = fmt.Sprintf("%d", time.Now().Unix()-10)
	resp, err := g.Verify(ctx, paymentFor(auth, "0xsig"), requirementsFor("10000"))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrValidBefore, resp.InvalidReason)

	auth = testAuthorization("0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574")
	auth.ValidAfter = fmt.Sprintf("%d", time.Now().Unix()+600)
	resp, err = g.Verify(ctx, paymentFor(auth, "0xsig"), requirementsFor("10000"))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrValidAfter, resp.InvalidReason)
}

func TestVerifyRejectsMissingSignature(t *testing.T) {
	g := New(nil)
	auth := testAuthorization("0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574")

	resp, err := g.Verify(context.Background(), paymentFor(auth, ""), requirementsFor("10000"))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, "missing signature", resp.InvalidReason)
}

func TestVerifySignatureRoundtrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey).Hex()

	config, ok := GetNetworkConfig("base-sepolia")
	require.True(t, ok)
	auth := testAuthorization(from)

	digest, err := typedDataDigest(auth, config.ChainID, config.DefaultAsset)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)
	sig[64] += 27

	valid, err := verifySignature(auth, sig, config.ChainID, config.DefaultAsset)
	require.NoError(t, err)
	assert.True(t, valid)

	// Any change to the signed message invalidates the signature.
	tampered := *auth
	tampered.Value = "999999"
	valid, err = verifySignature(&tampered, sig, config.ChainID, config.DefaultAsset)
	require.NoError(t, err)
	assert.False(t, valid)

	// A signature from a different key does not recover the claimed payer.
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherSig, err := crypto.Sign(digest, otherKey)
	require.NoError(t, err)
	otherSig[64] += 27
	valid, err = verifySignature(auth, otherSig, config.ChainID, config.DefaultAsset)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestResolveAsset(t *testing.T) {
	config, ok := GetNetworkConfig("base")
	require.True(t, ok)

	// Default asset when unspecified.
	asset, reason := resolveAsset(config, requirementsFor("1"))
	assert.Empty(t, reason)
	assert.Equal(t, config.DefaultAsset.Address, asset.Address)

	// Custom asset requires the EIP-712 domain in extra.
	reqs := requirementsFor("1")
	reqs.Asset = "0x0000000000000000000000000000000000000042"
	_, reason = resolveAsset(config, reqs)
	assert.Equal(t, "missing_eip712_domain", reason)

	reqs.Extra = map[string]interface{}{"name": "Tether USD", "version": "1"}
	asset, reason = resolveAsset(config, reqs)
	assert.Empty(t, reason)
	assert.Equal(t, "Tether USD", asset.Name)
	assert.Equal(t, reqs.Asset, asset.Address)
}

func TestPackTransferWithAuthorization(t *testing.T) {
	auth := testAuthorization("0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574")
	sig := make([]byte, 65)
	sig[64] = 27

	data, err := packTransferWithAuthorization(auth, sig)
	require.NoError(t, err)
	// 4-byte selector plus 9 words.
	assert.Len(t, data, 4+9*32)

	auth.Nonce = "0xshort"
	_, err = packTransferWithAuthorization(auth, sig)
	assert.Error(t, err)
}

func TestSignerDeriveAddress(t *testing.T) {
	key := "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

	signer, err := NewSigner(key)
	require.NoError(t, err)

	addr, err := DeriveAddress(key)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), addr)

	_, err = NewSigner("not-hex")
	assert.Error(t, err)
}

func TestVerifyAmountParsing(t *testing.T) {
	g := New(nil)
	auth := testAuthorization("0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574")
	auth.Value = "not-a-number"

	resp, err := g.Verify(context.Background(), paymentFor(auth, "0xsig"), requirementsFor("10000"))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "invalid authorization value")

	auth = testAuthorization("0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574")
	resp, err = g.Verify(context.Background(), paymentFor(auth, "0xsig"), requirementsFor("not-a-number"))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "invalid required amount")
}
