// Package svm implements the payment gateway for Solana networks. Payments
// are pre-built SPL TransferChecked transactions signed by the client;
// verification co-signs with the fee payer key and simulates the transaction,
// settlement broadcasts it and waits for confirmation.
package svm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402-teller/facilitator-go/pkg/types"
)

// SchemeExact is the only payment scheme this gateway supports.
const SchemeExact = "exact"

// Error codes shared with the x402 TypeScript facilitators.
const (
	ErrFeePayerMismatch  = "invalid_exact_solana_payload_fee_payer_mismatch"
	ErrNoTransfer        = "invalid_exact_solana_payload_missing_transfer"
	ErrRecipientMismatch = "invalid_exact_solana_payload_recipient_mismatch"
	ErrAssetMismatch     = "invalid_exact_solana_payload_asset_mismatch"
	ErrTransferAmount    = "invalid_exact_solana_payload_transfer_amount"
)

// transferCheckedIndex is the SPL Token instruction discriminator for
// TransferChecked.
const transferCheckedIndex = 12

const statusPollInterval = time.Second

// ExactPayload is the Solana payment payload: a base64-encoded transaction
// partially signed by the client.
type ExactPayload struct {
	Transaction string `json:"transaction"`
}

// PayloadFromMap extracts the typed Solana payload from the generic payload map.
func PayloadFromMap(m map[string]interface{}) (*ExactPayload, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var payload ExactPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Solana payload: %w", err)
	}
	if payload.Transaction == "" {
		return nil, fmt.Errorf("missing transaction")
	}
	return &payload, nil
}

// transferDetails is what verification extracts from the embedded transaction.
type transferDetails struct {
	payer       string
	mint        solana.PublicKey
	destination solana.PublicKey
	amount      uint64
}

// Gateway verifies and settles exact-scheme payments on Solana networks.
type Gateway struct {
	signer           *Signer
	feePayer         solana.PublicKey
	minConfirmations uint64
	rpcOverrides     map[string]string

	mu      sync.Mutex
	clients map[string]*rpc.Client
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRPCOverride replaces the default RPC endpoint for a network.
func WithRPCOverride(network, url string) Option {
	return func(g *Gateway) {
		g.rpcOverrides[network] = url
	}
}

// WithMinConfirmations sets how many confirmations settlement waits for.
func WithMinConfirmations(n uint64) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.minConfirmations = n
		}
	}
}

// New creates a Solana gateway. Both a signer and the fee payer address are
// required: verification simulates the transaction, which needs the fee
// payer's signature in place.
func New(signer *Signer, feePayer string, opts ...Option) (*Gateway, error) {
	if signer == nil {
		return nil, fmt.Errorf("solana signer is required")
	}
	feePayerKey, err := solana.PublicKeyFromBase58(feePayer)
	if err != nil {
		return nil, fmt.Errorf("invalid fee payer address: %w", err)
	}

	g := &Gateway{
		signer:           signer,
		feePayer:         feePayerKey,
		minConfirmations: 1,
		rpcOverrides:     make(map[string]string),
		clients:          make(map[string]*rpc.Client),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) client(network string) (*rpc.Client, error) {
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

	client := rpc.New(url)
	g.clients[network] = client
	return client, nil
}

// Verify checks an exact-scheme Solana payment by co-signing and simulating
// the embedded transaction.
func (g *Gateway) Verify(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.VerifyResponse, error) {
	tx, details, reason, err := g.decodeAndValidate(payload, requirements)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		resp := &types.VerifyResponse{IsValid: false, InvalidReason: reason}
		if details != nil {
			resp.Payer = details.payer
		}
		return resp, nil
	}

	if err := g.signer.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("failed to co-sign transaction: %w", err)
	}

	client, err := g.client(requirements.Network)
	if err != nil {
		return nil, err
	}

	result, err := client.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  true,
		Commitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return nil, fmt.Errorf("simulation request failed: %w", err)
	}
	if result.Value.Err != nil {
		return &types.VerifyResponse{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("simulation_failed: %v", result.Value.Err),
			Payer:         details.payer,
		}, nil
	}

	return &types.VerifyResponse{IsValid: true, Payer: details.payer}, nil
}

// Settle broadcasts an exact-scheme Solana payment and waits for the
// configured number of confirmations.
func (g *Gateway) Settle(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.SettleResponse, error) {
	tx, details, reason, err := g.decodeAndValidate(payload, requirements)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		resp := &types.SettleResponse{
			Success:     false,
			ErrorReason: reason,
			Network:     requirements.Network,
		}
		if details != nil {
			resp.Payer = details.payer
		}
		return resp, nil
	}

	if err := g.signer.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("failed to co-sign transaction: %w", err)
	}

	client, err := g.client(requirements.Network)
	if err != nil {
		return nil, err
	}

	sig, err := client.SendTransaction(ctx, tx)
	if err != nil {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: fmt.Sprintf("transaction_failed: %v", err),
			Network:     requirements.Network,
			Payer:       details.payer,
		}, nil
	}

	if reason := g.awaitConfirmation(ctx, client, sig); reason != "" {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: reason,
			Transaction: sig.String(),
			Network:     requirements.Network,
			Payer:       details.payer,
		}, nil
	}

	return &types.SettleResponse{
		Success:     true,
		Transaction: sig.String(),
		Network:     requirements.Network,
		Payer:       details.payer,
	}, nil
}

// Balance returns the fee payer's settlement-asset balance in base units.
func (g *Gateway) Balance(ctx context.Context, network string) (string, error) {
	config, ok := GetNetworkConfig(network)
	if !ok {
		return "", fmt.Errorf("no configuration for network %s", network)
	}
	if config.DefaultAsset == "" {
		return "", fmt.Errorf("no settlement asset configured for network %s", network)
	}

	mint, err := solana.PublicKeyFromBase58(config.DefaultAsset)
	if err != nil {
		return "", fmt.Errorf("invalid asset mint: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(g.feePayer, mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive token account: %w", err)
	}

	client, err := g.client(network)
	if err != nil {
		return "", err
	}
	result, err := client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("balance lookup failed: %w", err)
	}
	return result.Value.Amount, nil
}

func (g *Gateway) awaitConfirmation(ctx context.Context, client *rpc.Client, sig solana.Signature) string {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Sprintf("confirmation timed out: %v", ctx.Err())
		case <-ticker.C:
		}

		result, err := client.GetSignatureStatuses(ctx, true, sig)
		if err != nil || len(result.Value) == 0 || result.Value[0] == nil {
			continue
		}
		status := result.Value[0]
		if status.Err != nil {
			return fmt.Sprintf("transaction failed on-chain: %v", status.Err)
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return ""
		}
		if status.Confirmations != nil && *status.Confirmations >= g.minConfirmations {
			return ""
		}
	}
}

// decodeAndValidate decodes the embedded transaction and checks it pays the
// required amount of the required asset to the required recipient. It returns
// a structured invalid-reason for expected negatives and an error only for
// malformed requirements.
func (g *Gateway) decodeAndValidate(
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*solana.Transaction, *transferDetails, string, error) {
	if payload.Scheme != SchemeExact || requirements.Scheme != SchemeExact {
		return nil, nil, "unsupported_scheme", nil
	}
	if payload.Network != requirements.Network {
		return nil, nil, "network_mismatch", nil
	}

	config, ok := GetNetworkConfig(requirements.Network)
	if !ok {
		return nil, nil, "unsupported_network", nil
	}

	svmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, nil, fmt.Sprintf("invalid payload: %v", err), nil
	}

	raw, err := base64.StdEncoding.DecodeString(svmPayload.Transaction)
	if err != nil {
		return nil, nil, "invalid transaction encoding", nil
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, nil, fmt.Sprintf("invalid transaction: %v", err), nil
	}

	if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(g.feePayer) {
		return nil, nil, ErrFeePayerMismatch, nil
	}

	details, reason := extractTransfer(tx)
	if reason != "" {
		return nil, nil, reason, nil
	}

	assetMint := config.DefaultAsset
	if requirements.Asset != "" {
		assetMint = requirements.Asset
	}
	if assetMint == "" || details.mint.String() != assetMint {
		return nil, details, ErrAssetMismatch, nil
	}

	payTo, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return nil, details, fmt.Sprintf("invalid payTo address: %v", err), nil
	}
	expectedATA, _, err := solana.FindAssociatedTokenAddress(payTo, details.mint)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to derive destination token account: %w", err)
	}
	if !details.destination.Equals(expectedATA) {
		return nil, details, ErrRecipientMismatch, nil
	}

	required, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return nil, details, fmt.Sprintf("invalid required amount: %s", requirements.MaxAmountRequired), nil
	}
	if new(big.Int).SetUint64(details.amount).Cmp(required) < 0 {
		return nil, details, ErrTransferAmount, nil
	}

	return tx, details, "", nil
}

// extractTransfer finds the TransferChecked instruction in the transaction
// and reads out the token accounts and amount.
func extractTransfer(tx *solana.Transaction) (*transferDetails, string) {
	keys := tx.Message.AccountKeys

	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) {
			continue
		}
		program := keys[ix.ProgramIDIndex]
		if !program.Equals(solana.TokenProgramID) && !program.Equals(solana.Token2022ProgramID) {
			continue
		}
		if len(ix.Data) < 10 || ix.Data[0] != transferCheckedIndex {
			continue
		}
		// TransferChecked accounts: source, mint, destination, owner.
		if len(ix.Accounts) < 4 {
			continue
		}

		decoder := bin.NewBinDecoder(ix.Data[1:])
		amount, err := decoder.ReadUint64(bin.LE)
		if err != nil {
			continue
		}

		mintIdx, destIdx, ownerIdx := ix.Accounts[1], ix.Accounts[2], ix.Accounts[3]
		if int(mintIdx) >= len(keys) || int(destIdx) >= len(keys) || int(ownerIdx) >= len(keys) {
			continue
		}

		return &transferDetails{
			payer:       keys[ownerIdx].String(),
			mint:        keys[mintIdx],
			destination: keys[destIdx],
			amount:      amount,
		}, ""
	}

	return nil, ErrNoTransfer
}
