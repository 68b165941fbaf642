package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privaudit/pkg/errors"
)

func TestAEADRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	plaintext := []byte(`{"amount":"350","timestamp":"2026-01-15T00:00:00Z"}`)

	ct, err := EncryptAEAD(plaintext, key)
	require.NoError(t, err)
	assert.NotContains(t, ct, "350")

	pt, err := DecryptAEAD(ct, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestAEADWrongKeyFailsClosed(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	wrong := bytes.Repeat([]byte{0x43}, 32)

	ct, err := EncryptAEAD([]byte("secret"), key)
	require.NoError(t, err)

	_, err = DecryptAEAD(ct, wrong)
	assert.ErrorIs(t, err, errors.ErrAuthenticationFailed)
}

func TestAEADTamperedCiphertextFails(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)

	ct, err := EncryptAEAD([]byte("secret"), key)
	require.NoError(t, err)

	// Flip a character in the base64 payload.
	tampered := []byte(ct)
	if tampered[len(tampered)-5] == 'A' {
		tampered[len(tampered)-5] = 'B'
	} else {
		tampered[len(tampered)-5] = 'A'
	}

	_, err = DecryptAEAD(string(tampered), key)
	assert.ErrorIs(t, err, errors.ErrAuthenticationFailed)
}

func TestAEADGarbageInputFails(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)

	_, err := DecryptAEAD("%%% not base64 %%%", key)
	assert.ErrorIs(t, err, errors.ErrAuthenticationFailed)

	_, err = DecryptAEAD("dG9vc2hvcnQ=", key)
	assert.ErrorIs(t, err, errors.ErrAuthenticationFailed)
}

func TestAEADNoncesAreFresh(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)

	ct1, err := EncryptAEAD([]byte("same plaintext"), key)
	require.NoError(t, err)
	ct2, err := EncryptAEAD([]byte("same plaintext"), key)
	require.NoError(t, err)

	assert.NotEqual(t, ct1, ct2)
}
