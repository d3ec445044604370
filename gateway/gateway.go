// Package gateway defines the chain-facing boundary of the facilitator.
// Implementations perform the actual signature verification, transaction
// construction and broadcast; the coordinator only dispatches to them.
package gateway

import (
	"context"

	"github.com/x402-teller/facilitator-go/pkg/types"
)

// PaymentGateway verifies and settles payments on a single chain family.
//
// Verify confirms a signed payment authorization is well-formed and would
// succeed without broadcasting it. Settle broadcasts the payment and reports
// the outcome. Both return structured negatives for expected failure modes;
// a non-nil error means the operation itself could not be carried out
// (RPC failure, broadcast failure).
type PaymentGateway interface {
	Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error)
	Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error)
}

// BalanceProvider reports the facilitator's own settlement-asset balance on a
// network. Only the Solana gateway implements it; EVM settlement spends the
// payer's funds directly via EIP-3009 and has no operational balance to watch.
type BalanceProvider interface {
	Balance(ctx context.Context, network string) (string, error)
}
