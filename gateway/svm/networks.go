package svm

import "github.com/gagliardetto/solana-go/rpc"

// NetworkConfig holds the per-network parameters the gateway needs.
type NetworkConfig struct {
	RPCURL string
	// DefaultAsset is the USDC mint for the network, empty when the network
	// has no canonical settlement asset and requirements must name one.
	DefaultAsset string
}

// NetworkConfigs maps x402 network names to their configuration.
var NetworkConfigs = map[string]NetworkConfig{
	"solana": {
		RPCURL:       rpc.MainNetBeta_RPC,
		DefaultAsset: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	},
	"solana-devnet": {
		RPCURL:       rpc.DevNet_RPC,
		DefaultAsset: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
	},
	"solana-testnet": {
		RPCURL: rpc.TestNet_RPC,
	},
}

// IsSupported reports whether the gateway knows the given network name.
func IsSupported(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetNetworkConfig returns the configuration for a network name.
func GetNetworkConfig(network string) (*NetworkConfig, bool) {
	config, ok := NetworkConfigs[network]
	if !ok {
		return nil, false
	}
	return &config, true
}
