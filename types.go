// Package facilitator coordinates x402 payment verification and settlement
// across EVM and Solana networks, with best-effort bookkeeping in a ledger
// database and a transport-agnostic request handler.
package facilitator

import (
	"strings"

	"github.com/x402-teller/facilitator-go/gateway/evm"
	"github.com/x402-teller/facilitator-go/gateway/svm"
)

// NetworkKind distinguishes the two gateway families.
type NetworkKind string

const (
	KindEVM    NetworkKind = "evm"
	KindSolana NetworkKind = "solana"
)

// KindForNetwork maps a network name to its gateway family.
func KindForNetwork(network string) NetworkKind {
	if strings.HasPrefix(network, "solana") {
		return KindSolana
	}
	return KindEVM
}

// Config configures a Facilitator.
type Config struct {
	// EVMPrivateKey is a hex-encoded secp256k1 key used to settle payments
	// on EVM networks. Optional when only Solana networks are configured.
	EVMPrivateKey string

	// SolanaPrivateKey is a base58-encoded ed25519 key used to co-sign and
	// settle payments on Solana networks.
	SolanaPrivateKey string

	// SolanaFeePayer is the base58 address that pays Solana transaction
	// fees. Required when any Solana network is configured.
	SolanaFeePayer string

	// Networks lists the networks to serve, in the order they should be
	// advertised by /supported.
	Networks []string

	// MinConfirmations is how many confirmations Solana settlement waits
	// for. Zero means the default of one.
	MinConfirmations uint64

	// LedgerDSN names the bookkeeping database. postgres:// selects
	// Postgres, anything else a SQLite path, empty an in-memory database.
	LedgerDSN string

	// EnableDashboard turns on the dashboard endpoints. Requires Routes.
	EnableDashboard bool

	// Routes describes the priced endpoints shown on the dashboard.
	Routes RoutesConfig

	// RPCOverrides replaces default RPC endpoints, keyed by network name.
	RPCOverrides map[string]string
}

// Validate checks the configuration preconditions before any network or
// database work happens.
func (c *Config) Validate() error {
	if c.EVMPrivateKey == "" && c.SolanaPrivateKey == "" {
		return ErrNoPrivateKey
	}
	if len(c.Networks) == 0 {
		return ErrNoNetworks
	}
	for _, network := range c.Networks {
		switch KindForNetwork(network) {
		case KindSolana:
			if !svm.IsSupported(network) {
				return ErrUnknownNetwork
			}
			if c.SolanaFeePayer == "" {
				return ErrFeePayerRequired
			}
		default:
			if !evm.IsSupported(network) {
				return ErrUnknownNetwork
			}
		}
	}
	if c.EnableDashboard && len(c.Routes) == 0 {
		return ErrRoutesRequired
	}
	return nil
}

func (c *Config) hasKind(kind NetworkKind) bool {
	for _, network := range c.Networks {
		if KindForNetwork(network) == kind {
			return true
		}
	}
	return false
}

// HTTPRequest is the transport-independent request shape consumed by
// Facilitator.HandleRequest. Adapters translate their framework's request
// into this form.
type HTTPRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   []byte
}

// HTTPResponse is the transport-independent response produced by
// Facilitator.HandleRequest. Body is JSON-marshalable.
type HTTPResponse struct {
	Status int
	Body   interface{}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
