// Package evm implements the payment gateway for EVM networks using the
// EIP-3009 transferWithAuthorization flow: verification recovers the payer's
// EIP-712 signature locally, settlement broadcasts the authorization through
// the facilitator's own account.
package evm

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/x402-teller/facilitator-go/pkg/types"
)

// SchemeExact is the only payment scheme this gateway supports.
const SchemeExact = "exact"

// Error codes shared with the x402 TypeScript facilitators.
const (
	ErrRecipientMismatch  = "invalid_exact_evm_payload_recipient_mismatch"
	ErrAuthorizationValue = "invalid_exact_evm_payload_authorization_value"
	ErrValidBefore        = "invalid_exact_evm_payload_authorization_valid_before"
	ErrValidAfter         = "invalid_exact_evm_payload_authorization_valid_after"
	ErrInvalidSignature   = "invalid_exact_evm_payload_signature"
	ErrInsufficientFunds  = "insufficient_funds"
)

// validBeforeBuffer accounts for block propagation time when checking the
// authorization window, in seconds.
const validBeforeBuffer = 6

const receiptPollInterval = 500 * time.Millisecond

var transferWithAuthorizationABI = []byte(`[
	{
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "validAfter", "type": "uint256"},
			{"name": "validBefore", "type": "uint256"},
			{"name": "nonce", "type": "bytes32"},
			{"name": "v", "type": "uint8"},
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"}
		],
		"name": "transferWithAuthorization",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`)

var erc20BalanceOfABI = []byte(`[
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

// Authorization is the EIP-3009 TransferWithAuthorization message.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayload is the EVM payment payload: an authorization plus the payer's
// EIP-712 signature over it.
type ExactPayload struct {
	Signature     string         `json:"signature"`
	Authorization *Authorization `json:"authorization"`
}

// PayloadFromMap extracts the typed EVM payload from the generic payload map.
func PayloadFromMap(m map[string]interface{}) (*ExactPayload, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var payload ExactPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal EVM payload: %w", err)
	}
	if payload.Authorization == nil {
		return nil, fmt.Errorf("missing authorization")
	}
	return &payload, nil
}

// Gateway verifies and settles exact-scheme payments on EVM networks.
// A nil signer yields a verify-only gateway; settlement requires key material.
type Gateway struct {
	signer       *Signer
	rpcOverrides map[string]string

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRPCOverride replaces the default RPC endpoint for a network.
func WithRPCOverride(network, url string) Option {
	return func(g *Gateway) {
		g.rpcOverrides[network] = url
	}
}

// New creates an EVM gateway. Signer may be nil for verify-only use.
func New(signer *Signer, opts ...Option) *Gateway {
	g := &Gateway{
		signer:       signer,
		rpcOverrides: make(map[string]string),
		clients:      make(map[string]*ethclient.Client),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) client(network string) (*ethclient.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.clients[network]; ok {
		return client, nil
	}

	config, ok := GetNetworkConfig(network)
	if !ok {
		return nil, fmt.Errorf("no configuration for network %s", network)
	}
	url := config.RPCURL
	if override, ok := g.rpcOverrides[network]; ok {
		url = override
	}

	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", network, err)
	}
	g.clients[network] = client
	return client, nil
}

// Verify checks an exact-scheme EVM payment without broadcasting it.
func (g *Gateway) Verify(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.VerifyResponse, error) {
	if payload.Scheme != SchemeExact || requirements.Scheme != SchemeExact {
		return &types.VerifyResponse{IsValid: false, InvalidReason: "unsupported_scheme"}, nil
	}
	if payload.Network != requirements.Network {
		return &types.VerifyResponse{IsValid: false, InvalidReason: "network_mismatch"}, nil
	}

	config, ok := GetNetworkConfig(requirements.Network)
	if !ok {
		return &types.VerifyResponse{IsValid: false, InvalidReason: "unsupported_network"}, nil
	}

	evmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return &types.VerifyResponse{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("invalid payload: %v", err),
		}, nil
	}
	auth := evmPayload.Authorization

	if evmPayload.Signature == "" {
		return &types.VerifyResponse{IsValid: false, InvalidReason: "missing signature"}, nil
	}

	assetInfo, reason := resolveAsset(config, requirements)
	if reason != "" {
		return &types.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: auth.From}, nil
	}

	if !strings.EqualFold(auth.To, requirements.PayTo) {
		return &types.VerifyResponse{IsValid: false, InvalidReason: ErrRecipientMismatch, Payer: auth.From}, nil
	}

	authValue, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok || auth.Value == "" {
		return &types.VerifyResponse{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("invalid authorization value: %s", auth.Value),
			Payer:         auth.From,
		}, nil
	}
	requiredValue, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return &types.VerifyResponse{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("invalid required amount: %s", requirements.MaxAmountRequired),
			Payer:         auth.From,
		}, nil
	}
	if authValue.Cmp(requiredValue) < 0 {
		return &types.VerifyResponse{IsValid: false, InvalidReason: ErrAuthorizationValue, Payer: auth.From}, nil
	}

	now := time.Now().Unix()
	validBefore, _ := new(big.Int).SetString(auth.ValidBefore, 10)
	if validBefore == nil || validBefore.Cmp(big.NewInt(now+validBeforeBuffer)) < 0 {
		return &types.VerifyResponse{IsValid: false, InvalidReason: ErrValidBefore, Payer: auth.From}, nil
	}
	validAfter, _ := new(big.Int).SetString(auth.ValidAfter, 10)
	if validAfter == nil || validAfter.Cmp(big.NewInt(now)) > 0 {
		return &types.VerifyResponse{IsValid: false, InvalidReason: ErrValidAfter, Payer: auth.From}, nil
	}

	// Balance check is best effort: an unreachable RPC endpoint must not turn
	// an otherwise valid payment into a negative.
	if balance, err := g.tokenBalance(ctx, requirements.Network, assetInfo.Address, auth.From); err == nil {
		if balance.Cmp(requiredValue) < 0 {
			return &types.VerifyResponse{IsValid: false, InvalidReason: ErrInsufficientFunds, Payer: auth.From}, nil
		}
	}

	signatureBytes, err := hexToBytes(evmPayload.Signature)
	if err != nil {
		return &types.VerifyResponse{IsValid: false, InvalidReason: "invalid signature format", Payer: auth.From}, nil
	}

	valid, err := verifySignature(auth, signatureBytes, config.ChainID, assetInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to verify signature: %w", err)
	}
	if !valid {
		return &types.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidSignature, Payer: auth.From}, nil
	}

	return &types.VerifyResponse{IsValid: true, Payer: auth.From}, nil
}

// Settle verifies and then broadcasts an exact-scheme EVM payment by calling
// transferWithAuthorization on the settlement asset.
func (g *Gateway) Settle(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.SettleResponse, error) {
	verifyResp, err := g.Verify(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}
	if !verifyResp.IsValid {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: verifyResp.InvalidReason,
			Network:     requirements.Network,
			Payer:       verifyResp.Payer,
		}, nil
	}

	if g.signer == nil {
		return nil, fmt.Errorf("EVM signer not configured")
	}

	evmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	auth := evmPayload.Authorization

	config, _ := GetNetworkConfig(requirements.Network)
	assetInfo, _ := resolveAsset(config, requirements)

	client, err := g.client(requirements.Network)
	if err != nil {
		return nil, err
	}

	signatureBytes, _ := hexToBytes(evmPayload.Signature)
	if len(signatureBytes) != 65 {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: "invalid signature length",
			Network:     requirements.Network,
			Payer:       auth.From,
		}, nil
	}

	data, err := packTransferWithAuthorization(auth, signatureBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to pack calldata: %w", err)
	}

	txHash, err := g.sendTransaction(ctx, client, config.ChainID, assetInfo.Address, data)
	if err != nil {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: fmt.Sprintf("transaction_failed: %v", err),
			Network:     requirements.Network,
			Payer:       auth.From,
		}, nil
	}

	receipt, err := g.waitForReceipt(ctx, client, txHash)
	if err != nil {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: fmt.Sprintf("failed to get receipt: %v", err),
			Transaction: txHash.Hex(),
			Network:     requirements.Network,
			Payer:       auth.From,
		}, nil
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: "invalid_transaction_state",
			Transaction: txHash.Hex(),
			Network:     requirements.Network,
			Payer:       auth.From,
		}, nil
	}

	return &types.SettleResponse{
		Success:     true,
		Transaction: txHash.Hex(),
		Network:     requirements.Network,
		Payer:       auth.From,
	}, nil
}

func (g *Gateway) sendTransaction(
	ctx context.Context,
	client *ethclient.Client,
	chainID *big.Int,
	asset string,
	data []byte,
) (common.Hash, error) {
	from := common.HexToAddress(g.signer.Address())
	to := common.HexToAddress(asset)

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasTip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas tip: %w", err)
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get head: %w", err)
	}
	gasFeeCap := new(big.Int).Add(gasTip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas estimation failed: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTip,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Data:      data,
	})

	signedTx, err := g.signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to broadcast: %w", err)
	}
	return signedTx.Hash(), nil
}

func (g *Gateway) waitForReceipt(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Gateway) tokenBalance(ctx context.Context, network, asset, account string) (*big.Int, error) {
	client, err := g.client(network)
	if err != nil {
		return nil, err
	}

	contractABI, err := abi.JSON(strings.NewReader(string(erc20BalanceOfABI)))
	if err != nil {
		return nil, err
	}
	data, err := contractABI.Pack("balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, err
	}

	assetAddr := common.HexToAddress(asset)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &assetAddr, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	outputs, err := contractABI.Unpack("balanceOf", result)
	if err != nil || len(outputs) == 0 {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %v", err)
	}
	balance, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", outputs[0])
	}
	return balance, nil
}

func packTransferWithAuthorization(auth *Authorization, signature []byte) ([]byte, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(transferWithAuthorizationABI)))
	if err != nil {
		return nil, err
	}

	value, _ := new(big.Int).SetString(auth.Value, 10)
	validAfter, _ := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(auth.ValidBefore, 10)
	nonceBytes, err := hexToBytes(auth.Nonce)
	if err != nil || len(nonceBytes) != 32 {
		return nil, fmt.Errorf("invalid authorization nonce: %s", auth.Nonce)
	}

	r := [32]byte(signature[0:32])
	s := [32]byte(signature[32:64])
	v := signature[64]

	return contractABI.Pack(
		"transferWithAuthorization",
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		value,
		validAfter,
		validBefore,
		[32]byte(nonceBytes),
		v,
		r,
		s,
	)
}

// verifySignature recovers the EIP-712 signer of a TransferWithAuthorization
// message and compares it against the claimed payer.
func verifySignature(auth *Authorization, signature []byte, chainID *big.Int, asset AssetInfo) (bool, error) {
	if len(signature) != 65 {
		return false, nil
	}

	// A malformed authorization cannot have a valid signature.
	digest, err := typedDataDigest(auth, chainID, asset)
	if err != nil {
		return false, nil
	}

	// Normalize v from 27/28 to 0/1 for recovery.
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return false, nil
	}
	recovered := crypto.PubkeyToAddress(*pubKey)

	return strings.EqualFold(recovered.Hex(), auth.From), nil
}

// typedDataDigest hashes the authorization as EIP-712 typed data under the
// asset's domain.
func typedDataDigest(auth *Authorization, chainID *big.Int, asset AssetInfo) ([]byte, error) {
	nonceBytes, err := hexToBytes(auth.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization nonce: %w", err)
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              asset.Name,
			Version:           asset.Version,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: asset.Address,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       nonceBytes,
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return digest, nil
}

func resolveAsset(config *NetworkConfig, requirements *types.PaymentRequirements) (AssetInfo, string) {
	if requirements.Asset == "" || strings.EqualFold(requirements.Asset, config.DefaultAsset.Address) {
		return config.DefaultAsset, ""
	}

	name, _ := requirements.Extra["name"].(string)
	version, _ := requirements.Extra["version"].(string)
	if name == "" || version == "" {
		return AssetInfo{}, "missing_eip712_domain"
	}
	return AssetInfo{
		Address:  requirements.Asset,
		Name:     name,
		Version:  version,
		Decimals: DefaultDecimals,
	}, ""
}

func hexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}
