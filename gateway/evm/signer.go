package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the facilitator's EVM key material. The address is derived
// once at construction and never recomputed.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a signer from a hex-encoded private key, with or without
// the "0x" prefix.
func NewSigner(privateKeyHex string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address returns the checksummed Ethereum address of the signer.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignTx signs a transaction for the given chain ID.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
}

// DeriveAddress derives the Ethereum address for a hex-encoded private key
// without retaining the key.
func DeriveAddress(privateKeyHex string) (string, error) {
	signer, err := NewSigner(privateKeyHex)
	if err != nil {
		return "", err
	}
	return signer.Address(), nil
}
