package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyMaterialSize is the byte length of every key in the hierarchy.
const KeyMaterialSize = 32

// DeriveChild computes child key material from a parent and a path
// segment, BIP32-style: HMAC-SHA512 keyed by the parent, truncated to 32
// bytes. The mapping is deterministic and one-way; the child reveals
// nothing about the parent.
func DeriveChild(parent []byte, segment string) []byte {
	mac := hmac.New(sha512.New, parent)
	mac.Write([]byte(segment))
	sum := mac.Sum(nil)
	return sum[:KeyMaterialSize]
}

// KeyHash returns the public identifier for key material. The digest is
// collision resistant and never reveals the material itself.
func KeyHash(material []byte) string {
	sum := sha256.Sum256(material)
	return hex.EncodeToString(sum[:])
}

// hkdfExpand derives a 32-byte subkey from input material with a label.
func hkdfExpand(material []byte, label string) ([]byte, error) {
	r := hkdf.New(sha256.New, material, nil, []byte(label))
	key := make([]byte, KeyMaterialSize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// PayloadKey derives the AEAD key used to encrypt disclosure payloads
// from viewing key material. Disclosure ciphertexts are therefore bound
// to the key that issued them but do not expose it.
func PayloadKey(viewingKeyMaterial []byte) ([]byte, error) {
	return hkdfExpand(viewingKeyMaterial, "privaudit/disclosure-payload/v1")
}

// StorageKey derives the AEAD key used to encrypt key material and
// blinding factors at rest from the protocol root secret.
func StorageKey(rootSecret []byte) ([]byte, error) {
	return hkdfExpand(rootSecret, "privaudit/storage-encryption/v1")
}
