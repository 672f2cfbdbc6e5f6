// Package keyfile handles loading, generating, and persisting participant
// keypairs on disk. It provides helpers to create and load PEM key files,
// ensure secure permissions, and build a Signer used by the client tools
// for producing envelope and proof signatures.
package keyfile

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"

	"pseudo.chat/vouchd/internal/keys"
)

// Signer wraps a participant private key loaded from disk.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	tagged     string
}

// NewSigner creates a Signer from a private key
func NewSigner(privKey ed25519.PrivateKey) *Signer {
	pubKey := privKey.Public().(ed25519.PublicKey)
	return &Signer{
		privateKey: privKey,
		publicKey:  pubKey,
		tagged:     keys.FormatPublicKey(pubKey),
	}
}

// LoadOrCreate loads an existing key file or creates a new one at keyPath.
//
// The function will:
// 1. Check if a key file exists at the given path
// 2. If it exists, load and validate the key
// 3. If it doesn't exist, generate a new keypair and save it
//
// The key file is stored in PEM format with PKCS8 encoding and
// 0600 permissions.
func LoadOrCreate(keyPath string) (*Signer, error) {
	info, err := os.Stat(keyPath)
	if os.IsNotExist(err) {
		privKey, err := generateAndSave(keyPath)
		if err != nil {
			return nil, err
		}
		return NewSigner(privKey), nil
	}
	if err != nil {
		return nil, err
	}

	// An empty file is treated as missing
	if info.Size() == 0 {
		privKey, err := generateAndSave(keyPath)
		if err != nil {
			return nil, err
		}
		return NewSigner(privKey), nil
	}

	privKey, err := Load(keyPath)
	if err != nil {
		return nil, err
	}
	return NewSigner(privKey), nil
}

// Load reads an ed25519 private key from a PEM file.
func Load(keyPath string) (ed25519.PrivateKey, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	pemBlock, _ := pem.Decode(keyData)
	if pemBlock == nil {
		return nil, errors.New("failed to decode PEM block from key file")
	}

	genericKey, err := x509.ParsePKCS8PrivateKey(pemBlock.Bytes)
	if err != nil {
		return nil, err
	}

	privKey, ok := genericKey.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("key is not an ed25519 private key")
	}

	return privKey, nil
}

// Save writes a private key to keyPath in PEM format with 0600 permissions.
func Save(keyPath string, privKey ed25519.PrivateKey) error {
	x509Encoded, err := x509.MarshalPKCS8PrivateKey(privKey)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return pem.Encode(file, &pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: x509Encoded,
	})
}

func generateAndSave(keyPath string) (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	if err := Save(keyPath, priv); err != nil {
		return nil, err
	}
	return priv, nil
}

// Sign signs message bytes and returns the base64 detached signature in
// wire form.
func (s *Signer) Sign(message []byte) string {
	return keys.SignB64(s.privateKey, message)
}

// PublicKey returns the tagged wire form of the public key.
func (s *Signer) PublicKey() string {
	return s.tagged
}

// PrivateKey returns the raw private key
func (s *Signer) PrivateKey() ed25519.PrivateKey {
	return s.privateKey
}
