package evm

import "math/big"

// AssetInfo describes an ERC-20 settlement asset on one network.
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig holds the per-network parameters the gateway needs.
type NetworkConfig struct {
	ChainID      *big.Int
	RPCURL       string
	DefaultAsset AssetInfo
}

// DefaultDecimals is the USDC token decimal count.
const DefaultDecimals = 6

// NetworkConfigs maps x402 network names to their configuration. Lookups are
// exact-match on the name used in PaymentRequirements.network.
var NetworkConfigs = map[string]NetworkConfig{
	"ethereum": {
		ChainID: big.NewInt(1),
		RPCURL:  "https://ethereum-rpc.publicnode.com",
		DefaultAsset: AssetInfo{
			Address:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	},
	"sepolia": {
		ChainID: big.NewInt(11155111),
		RPCURL:  "https://ethereum-sepolia-rpc.publicnode.com",
		DefaultAsset: AssetInfo{
			Address:  "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
			Name:     "USDC",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	},
	"base": {
		ChainID: big.NewInt(8453),
		RPCURL:  "https://mainnet.base.org",
		DefaultAsset: AssetInfo{
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	},
	"base-sepolia": {
		ChainID: big.NewInt(84532),
		RPCURL:  "https://sepolia.base.org",
		DefaultAsset: AssetInfo{
			Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Name:     "USDC",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	},
	"polygon": {
		ChainID: big.NewInt(137),
		RPCURL:  "https://polygon-rpc.com",
		DefaultAsset: AssetInfo{
			Address:  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	},
	"avalanche": {
		ChainID: big.NewInt(43114),
		RPCURL:  "https://api.avax.network/ext/bc/C/rpc",
		DefaultAsset: AssetInfo{
			Address:  "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	},
	"avalanche-fuji": {
		ChainID: big.NewInt(43113),
		RPCURL:  "https://api.avax-test.network/ext/bc/C/rpc",
		DefaultAsset: AssetInfo{
			Address:  "0x5425890298aed601595a70AB815c96711a31Bc65",
			Name:     "USDC",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
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
