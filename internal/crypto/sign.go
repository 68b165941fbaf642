package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

var errInvalidKeyEncoding = errors.New("invalid ed25519 key encoding")

// GenerateSignerKeypair creates an Ed25519 keypair, hex-encoded for
// transport and storage. Used by signer provisioning and by tests.
func GenerateSignerKeypair() (publicKey, privateKey string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(pub), hex.EncodeToString(priv), nil
}

// Sign signs a message with a hex-encoded Ed25519 private key.
func Sign(message []byte, privateKeyHex string) (string, error) {
	priv, err := hex.DecodeString(privateKeyHex)
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		return "", errInvalidKeyEncoding
	}
	return hex.EncodeToString(ed25519.Sign(ed25519.PrivateKey(priv), message)), nil
}

// VerifySignature performs real Ed25519 verification. Malformed keys or
// signatures verify as false; there is no default-accept path anywhere in
// this function.
func VerifySignature(message []byte, signatureHex, publicKeyHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}
