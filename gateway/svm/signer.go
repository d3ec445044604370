package svm

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// Signer holds the facilitator's Solana key material.
type Signer struct {
	privateKey solana.PrivateKey
}

// NewSigner creates a signer from a base58-encoded private key.
func NewSigner(privateKeyBase58 string) (*Signer, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{privateKey: privateKey}, nil
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() solana.PublicKey {
	return s.privateKey.PublicKey()
}

// SignTransaction partially signs a transaction, placing the signature at the
// account index of the signer's public key.
func (s *Signer) SignTransaction(tx *solana.Transaction) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	signature, err := s.privateKey.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}

	accountIndex, err := tx.GetAccountIndex(s.privateKey.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to get account index: %w", err)
	}

	if len(tx.Signatures) <= int(accountIndex) {
		newSignatures := make([]solana.Signature, accountIndex+1)
		copy(newSignatures, tx.Signatures)
		tx.Signatures = newSignatures
	}
	tx.Signatures[accountIndex] = signature

	return nil
}

// DerivePublicKey derives the base58 public key for a base58-encoded private
// key without retaining the key.
func DerivePublicKey(privateKeyBase58 string) (string, error) {
	signer, err := NewSigner(privateKeyBase58)
	if err != nil {
		return "", err
	}
	return signer.PublicKey().String(), nil
}
