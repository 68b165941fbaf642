package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"privaudit/pkg/errors"
)

// EncryptAEAD encrypts plaintext with AES-256-GCM. The nonce is prefixed
// to the ciphertext and the whole blob is base64-encoded for storage.
func EncryptAEAD(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptAEAD decrypts a base64 blob produced by EncryptAEAD. A bad tag,
// truncated blob, or wrong key all surface as ErrAuthenticationFailed.
func DecryptAEAD(cryptoText string, key []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(cryptoText)
	if err != nil {
		return nil, errors.Wrap(errors.ErrAuthenticationFailed, "ciphertext is not valid base64")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.Wrap(errors.ErrAuthenticationFailed, "ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.ErrAuthenticationFailed
	}

	return plaintext, nil
}
