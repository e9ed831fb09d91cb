// Package wallet implements the Signer capability (spec §9 "dynamic
// polymorphism": model wallet as a small capability interface, not a deep
// hierarchy) used to authorize rpcpool.SendTx calls. Key derivation and
// encrypted-key-file loading are out of scope per spec §1; this package
// only wraps an already-decrypted key the way the teacher's cmd/main.go
// expects one to arrive (ENC_PK/KEY env vars decrypted before use).
package wallet

import (
	"crypto/ed25519"
	"fmt"

	"github.com/ammtrader/ammtrader/internal/errs"
)

// Ed25519Signer implements rpcpool.Signer over an ed25519 keypair, the
// signature scheme NEAR-style accounts use.
type Ed25519Signer struct {
	accountID string
	key       ed25519.PrivateKey
}

// NewEd25519Signer wraps an already-decrypted 64-byte ed25519 private key.
func NewEd25519Signer(accountID string, key ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, errs.NewFatalProcess("wallet.NewEd25519Signer", fmt.Errorf("key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key)))
	}
	if accountID == "" {
		return nil, errs.NewFatalProcess("wallet.NewEd25519Signer", fmt.Errorf("account id must not be empty"))
	}
	return &Ed25519Signer{accountID: accountID, key: key}, nil
}

// AccountID implements rpcpool.Signer.
func (s *Ed25519Signer) AccountID() string { return s.accountID }

// Sign implements rpcpool.Signer.
func (s *Ed25519Signer) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.key, payload), nil
}
