package wallet

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEd25519SignerRejectsBadKeyLength(t *testing.T) {
	_, err := NewEd25519Signer("alice.near", ed25519.PrivateKey(make([]byte, 10)))
	assert.Error(t, err)
}

func TestNewEd25519SignerRejectsEmptyAccountID(t *testing.T) {
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = NewEd25519Signer("", key)
	assert.Error(t, err)
}

func TestSignVerifies(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	signer, err := NewEd25519Signer("alice.near", priv)
	require.NoError(t, err)
	assert.Equal(t, "alice.near", signer.AccountID())

	payload := []byte("transfer 5 native to bob.near")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, payload, sig))
}
