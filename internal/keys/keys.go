// Package keys handles participant public keys and signature verification.
// Keys travel on the wire as "<algorithm>:<base64 raw bytes>" so the scheme
// can migrate later without a breaking format change; ed25519 is the only
// algorithm currently accepted. Verification fails closed: malformed tags,
// bad encodings, and wrong lengths all verify as false, never as a skipped
// check.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// AlgorithmEd25519 is the algorithm tag for ed25519 public keys.
const AlgorithmEd25519 = "ed25519"

// ParsePublicKey decodes a tagged public key string into raw key material.
// The tag must name a supported algorithm and the payload must decode to
// exactly the key size for that algorithm.
func ParsePublicKey(tagged string) (ed25519.PublicKey, error) {
	algo, payload, ok := strings.Cut(tagged, ":")
	if !ok {
		return nil, fmt.Errorf("public key missing algorithm tag")
	}
	if algo != AlgorithmEd25519 {
		return nil, fmt.Errorf("unsupported key algorithm %q", algo)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}

	return ed25519.PublicKey(raw), nil
}

// FormatPublicKey renders raw ed25519 key material in tagged wire form.
func FormatPublicKey(pub ed25519.PublicKey) string {
	return AlgorithmEd25519 + ":" + base64.StdEncoding.EncodeToString(pub)
}

// Verify checks a base64 detached signature over canonical payload bytes
// against a tagged public key. Any decoding or format problem is a
// verification failure.
func Verify(canonical []byte, signatureB64, taggedKey string) bool {
	pub, err := ParsePublicKey(taggedKey)
	if err != nil {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(pub, canonical, sig)
}

// Fingerprint returns a short stable identifier for a tagged key, suitable
// for logs where the full key would be noise.
func Fingerprint(taggedKey string) string {
	sum := sha256.Sum256([]byte(taggedKey))
	return hex.EncodeToString(sum[:])[:12]
}

// GenerateKeypair creates a fresh ed25519 keypair and returns the tagged
// public key plus the private key for signing.
func GenerateKeypair() (string, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("generate keypair: %w", err)
	}
	return FormatPublicKey(pub), priv, nil
}

// SignB64 signs message bytes and returns the base64 detached signature.
func SignB64(priv ed25519.PrivateKey, message []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, message))
}
