package ledger

import "regexp"

var (
	evmAddressPattern    = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// IsValidEvmAddress reports whether s is a 20-byte hex address with 0x prefix.
func IsValidEvmAddress(s string) bool {
	return evmAddressPattern.MatchString(s)
}

// IsValidSolanaAddress reports whether s looks like a base58-encoded Solana
// public key.
func IsValidSolanaAddress(s string) bool {
	return solanaAddressPattern.MatchString(s)
}
