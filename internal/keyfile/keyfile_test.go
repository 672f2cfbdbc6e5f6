// Package keyfile tests validate key generation, loading, and signing
// behavior for the Signer abstraction. They ensure persistent key files
// can be created, re-loaded, and signed with.
package keyfile

import (
	"os"
	"path/filepath"
	"testing"

	"pseudo.chat/vouchd/internal/keys"
)

func TestSignerLifecycle(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "test_key.pem")

	signer1, err := LoadOrCreate(keyPath)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	// Loading the same file must yield the same key
	signer2, err := LoadOrCreate(keyPath)
	if err != nil {
		t.Fatalf("Failed to load signer: %v", err)
	}
	if signer1.PublicKey() != signer2.PublicKey() {
		t.Errorf("Loaded key differs from original. Got %s, want %s",
			signer2.PublicKey(), signer1.PublicKey())
	}
}

func TestEmptyFileTreatedAsMissing(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "empty_key.pem")
	if err := os.WriteFile(keyPath, nil, 0600); err != nil {
		t.Fatalf("Failed to create empty file: %v", err)
	}

	signer, err := LoadOrCreate(keyPath)
	if err != nil {
		t.Fatalf("Failed to create signer over empty file: %v", err)
	}
	if signer.PublicKey() == "" {
		t.Error("Expected a generated key")
	}
}

func TestKeyFilePermissions(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "perm_key.pem")

	if _, err := LoadOrCreate(keyPath); err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("Failed to stat key file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected permissions 0600, got %o", perm)
	}
}

func TestSignaturesVerifyAgainstWireKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "sign_key.pem")

	signer, err := LoadOrCreate(keyPath)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	message := []byte(`{"text":"hello"}`)
	sig := signer.Sign(message)

	if !keys.Verify(message, sig, signer.PublicKey()) {
		t.Error("Signature should verify against the signer's wire key")
	}
	if keys.Verify([]byte("tampered"), sig, signer.PublicKey()) {
		t.Error("Signature must not verify over different bytes")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(keyPath, []byte("not a pem file"), 0600); err != nil {
		t.Fatalf("Failed to write garbage: %v", err)
	}

	if _, err := Load(keyPath); err == nil {
		t.Error("Expected an error loading a non-PEM file")
	}
}
