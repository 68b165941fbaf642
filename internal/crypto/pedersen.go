// Package crypto implements the cryptographic primitives for the
// compliance engine: Pedersen commitments over edwards25519, hierarchical
// key derivation, authenticated encryption, and signature verification.
package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"io"

	"filippo.io/edwards25519"

	"privaudit/pkg/errors"
)

// generatorHSeed is the domain separation tag for the second Pedersen
// generator. H must have no known discrete log relative to G, so it is
// derived by hashing to a point rather than by scalar multiplication.
const generatorHSeed = "privaudit/pedersen/generator-H/v1"

var generatorH = deriveGeneratorH()

// deriveGeneratorH hashes the seed with an incrementing counter until the
// digest decodes as a canonical curve point, then clears the cofactor.
// The construction is deterministic, so every process derives the same H.
func deriveGeneratorH() *edwards25519.Point {
	identity := edwards25519.NewIdentityPoint()
	for counter := byte(0); counter < 255; counter++ {
		digest := sha512.Sum512(append([]byte(generatorHSeed), counter))
		p, err := new(edwards25519.Point).SetBytes(digest[:32])
		if err != nil {
			continue
		}
		p.MultByCofactor(p)
		if p.Equal(identity) == 1 {
			continue
		}
		return p
	}
	panic("pedersen: no valid generator H found")
}

// NewBlindingFactor samples a uniformly random scalar.
func NewBlindingFactor() (*edwards25519.Scalar, error) {
	var buf [64]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return nil, err
	}
	return new(edwards25519.Scalar).SetUniformBytes(buf[:])
}

// valueScalar lifts a uint64 into the scalar field.
func valueScalar(value uint64) *edwards25519.Scalar {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[:8], value)
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(buf[:])
	if err != nil {
		// A 64-bit value is always below the group order.
		panic("pedersen: uint64 outside scalar field")
	}
	return s
}

// Commit computes the Pedersen commitment C = r*G + v*H.
func Commit(value uint64, blinding *edwards25519.Scalar) []byte {
	rG := new(edwards25519.Point).ScalarBaseMult(blinding)
	vH := new(edwards25519.Point).ScalarMult(valueScalar(value), generatorH)
	return new(edwards25519.Point).Add(rG, vH).Bytes()
}

// VerifyCommitment recomputes the commitment from the claimed opening and
// compares. Any decode failure verifies as false; nothing here may fail
// open.
func VerifyCommitment(point []byte, value uint64, blinding []byte) bool {
	c, err := new(edwards25519.Point).SetBytes(point)
	if err != nil {
		return false
	}
	r, err := new(edwards25519.Scalar).SetCanonicalBytes(blinding)
	if err != nil {
		return false
	}
	expected, err := new(edwards25519.Point).SetBytes(Commit(value, r))
	if err != nil {
		return false
	}
	return c.Equal(expected) == 1
}

// AddCommitments adds two commitment points. The result commits to the
// sum of the two hidden values under the sum of the two blinding factors.
func AddCommitments(c1, c2 []byte) ([]byte, error) {
	p1, err := new(edwards25519.Point).SetBytes(c1)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidCommitment, "first point")
	}
	p2, err := new(edwards25519.Point).SetBytes(c2)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidCommitment, "second point")
	}
	return new(edwards25519.Point).Add(p1, p2).Bytes(), nil
}

// AddBlindingFactors adds two blinding scalars mod the group order.
func AddBlindingFactors(r1, r2 []byte) ([]byte, error) {
	s1, err := new(edwards25519.Scalar).SetCanonicalBytes(r1)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidBlindingValue, "first scalar")
	}
	s2, err := new(edwards25519.Scalar).SetCanonicalBytes(r2)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidBlindingValue, "second scalar")
	}
	return new(edwards25519.Scalar).Add(s1, s2).Bytes(), nil
}

// EncodePoint renders a commitment point for storage.
func EncodePoint(point []byte) string {
	return hex.EncodeToString(point)
}

// DecodePoint parses a stored commitment point.
func DecodePoint(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidCommitment, "point is not valid hex")
	}
	return b, nil
}
