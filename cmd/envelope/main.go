// Command envelope produces signed wire payloads from a PEM key file: chat
// message envelopes signed by a signing key, and rotation proofs signed by
// a recovery key. The JSON printed to stdout can be posted to the server
// as-is.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"pseudo.chat/vouchd/internal/auth"
	"pseudo.chat/vouchd/internal/envelope"
	"pseudo.chat/vouchd/internal/keyfile"
	"pseudo.chat/vouchd/internal/rotation"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "message":
		signMessage(os.Args[2:])
	case "rotate":
		signRotation(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  envelope message -key <signing.pem> -from <handle> -to <handle> -text <body>")
	fmt.Fprintln(os.Stderr, "  envelope rotate  -key <recovery.pem> -handle <handle> -old <key> -new <key>")
	os.Exit(1)
}

func signMessage(args []string) {
	fs := flag.NewFlagSet("message", flag.ExitOnError)
	keyPath := fs.String("key", "", "path to the signing key PEM file")
	from := fs.String("from", "", "sender handle")
	to := fs.String("to", "", "recipient handle")
	text := fs.String("text", "", "message body")
	fs.Parse(args)

	if *keyPath == "" || *from == "" || *to == "" || *text == "" {
		fs.Usage()
		os.Exit(1)
	}

	priv, err := keyfile.Load(*keyPath)
	if err != nil {
		fatalf("Failed to load key: %v", err)
	}
	signer := keyfile.NewSigner(priv)

	msg := &auth.SignedMessage{
		From: *from,
		To:   *to,
		Text: *text,
		Control: envelope.Control{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Nonce:     newNonce(),
		},
	}
	payload, err := msg.SigningPayload()
	if err != nil {
		fatalf("Failed to canonicalize: %v", err)
	}
	msg.Signature = signer.Sign(payload)

	printJSON(msg)
}

func signRotation(args []string) {
	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	keyPath := fs.String("key", "", "path to the recovery key PEM file")
	handle := fs.String("handle", "", "identity handle")
	oldKey := fs.String("old", "", "currently active signing key")
	newKey := fs.String("new", "", "replacement signing key")
	fs.Parse(args)

	if *keyPath == "" || *handle == "" || *oldKey == "" || *newKey == "" {
		fs.Usage()
		os.Exit(1)
	}

	priv, err := keyfile.Load(*keyPath)
	if err != nil {
		fatalf("Failed to load key: %v", err)
	}
	signer := keyfile.NewSigner(priv)

	proof := &rotation.Proof{
		Operation: rotation.OperationRotate,
		Handle:    *handle,
		OldKey:    *oldKey,
		NewKey:    *newKey,
		Control: envelope.Control{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Nonce:     newNonce(),
		},
	}
	payload, err := proof.SigningPayload()
	if err != nil {
		fatalf("Failed to canonicalize: %v", err)
	}
	proof.Signature = signer.Sign(payload)

	printJSON(proof)
}

func newNonce() string {
	buf := make([]byte, envelope.MinNonceBytes)
	if _, err := rand.Read(buf); err != nil {
		fatalf("Failed to read random bytes: %v", err)
	}
	return hex.EncodeToString(buf)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("Failed to render JSON: %v", err)
	}
	fmt.Println(string(out))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
