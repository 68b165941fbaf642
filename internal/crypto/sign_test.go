package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	pub, priv, err := GenerateSignerKeypair()
	require.NoError(t, err)

	msg := []byte("approve:request-1:signer-1")
	sig, err := Sign(msg, priv)
	require.NoError(t, err)

	assert.True(t, VerifySignature(msg, sig, pub))
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	pub1, priv1, err := GenerateSignerKeypair()
	require.NoError(t, err)
	pub2, _, err := GenerateSignerKeypair()
	require.NoError(t, err)

	msg := []byte("approve:request-1:signer-1")
	sig, err := Sign(msg, priv1)
	require.NoError(t, err)

	assert.True(t, VerifySignature(msg, sig, pub1))
	assert.False(t, VerifySignature(msg, sig, pub2))
}

func TestVerifyRejectsModifiedMessage(t *testing.T) {
	pub, priv, err := GenerateSignerKeypair()
	require.NoError(t, err)

	sig, err := Sign([]byte("original"), priv)
	require.NoError(t, err)

	assert.False(t, VerifySignature([]byte("modified"), sig, pub))
}

func TestVerifyFailsClosedOnMalformedInput(t *testing.T) {
	pub, priv, err := GenerateSignerKeypair()
	require.NoError(t, err)

	sig, err := Sign([]byte("msg"), priv)
	require.NoError(t, err)

	assert.False(t, VerifySignature([]byte("msg"), sig, "not-hex"))
	assert.False(t, VerifySignature([]byte("msg"), "not-hex", pub))
	assert.False(t, VerifySignature([]byte("msg"), "", pub))
	assert.False(t, VerifySignature([]byte("msg"), sig, ""))
	assert.False(t, VerifySignature([]byte("msg"), sig, pub[:10]))
}
