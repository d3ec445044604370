// Package types contains the x402 wire types shared by the facilitator
// coordinator, the chain gateways, and the HTTP adapters.
package types

// PaymentRequirements represents the payment requirements for a resource.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds,omitempty"`
	Asset             string `json:"asset"`

	// Extra contains scheme-specific metadata, e.g. the EIP-712 domain
	// name/version for EVM tokens or the fee payer for Solana.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentPayload represents the signed payment authorization from a client.
// The Payload field is generic: EIP-3009 authorizations for EVM networks,
// a base64-encoded transaction for Solana.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Payload     map[string]interface{} `json:"payload"`
}

// TransactionRef extracts the client-supplied transaction identifier from the
// payload, if any. EVM payloads carry "txHash", Solana payloads carry the
// transaction "signature". Returns "" when neither is present.
func (p *PaymentPayload) TransactionRef() string {
	if p == nil || p.Payload == nil {
		return ""
	}
	if v, ok := p.Payload["txHash"].(string); ok && v != "" {
		return v
	}
	if v, ok := p.Payload["signature"].(string); ok && v != "" {
		return v
	}
	return ""
}

// VerifyResponse represents the response from the verify endpoint.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse represents the response from the settle endpoint.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// VerifyRequest represents the request body for the /verify endpoint.
type VerifyRequest struct {
	PaymentPayload      *PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest represents the request body for the /settle endpoint.
type SettleRequest struct {
	PaymentPayload      *PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

// SupportedKind represents a supported scheme-network pair from /supported.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse represents the response from the /supported endpoint.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// PublicKeysResponse represents the response from the /public-keys endpoint.
type PublicKeysResponse struct {
	EvmPublicKey    string `json:"evmPublicKey,omitempty"`
	SolanaPublicKey string `json:"solanaPublicKey,omitempty"`
}

// BalanceResponse represents the response from the /balance endpoint.
type BalanceResponse struct {
	Success     bool   `json:"success"`
	Balance     string `json:"balance,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}
