// Command keygen generates the two ed25519 keypairs a participant needs:
// a day-to-day signing key and a cold recovery key. Private keys are
// written as PEM with restrictive permissions; the tagged public keys and
// a ready-to-post registration body are printed to stdout.
package main

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	"pseudo.chat/vouchd/internal/keys"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <handle> <output-prefix>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Writes <output-prefix>.signing.pem and <output-prefix>.recovery.pem\n")
		os.Exit(1)
	}

	handle := os.Args[1]
	prefix := os.Args[2]

	signingPub, signingPriv, err := keys.GenerateKeypair()
	if err != nil {
		fatalf("Failed to generate signing key: %v", err)
	}
	recoveryPub, recoveryPriv, err := keys.GenerateKeypair()
	if err != nil {
		fatalf("Failed to generate recovery key: %v", err)
	}

	writePEM(prefix+".signing.pem", signingPriv)
	writePEM(prefix+".recovery.pem", recoveryPriv)

	registration, err := json.MarshalIndent(map[string]string{
		"handle":       handle,
		"signing_key":  signingPub,
		"recovery_key": recoveryPub,
	}, "", "  ")
	if err != nil {
		fatalf("Failed to render registration body: %v", err)
	}

	fmt.Printf("✓ Signing key:  %s (%s.signing.pem)\n", signingPub, prefix)
	fmt.Printf("✓ Recovery key: %s (%s.recovery.pem)\n", recoveryPub, prefix)
	fmt.Println()
	fmt.Println("POST this to /api/identities to register:")
	fmt.Println(string(registration))
	fmt.Println()
	fmt.Println("Keep the recovery key offline. It is the only key that can rotate the signing key.")
}

func writePEM(path string, priv ed25519.PrivateKey) {
	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		fatalf("Failed to marshal key: %v", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		fatalf("Failed to create %s: %v", path, err)
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privBytes,
	}); err != nil {
		fatalf("Failed to write PEM: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
