// Command generate-jwt-keys prints fresh secrets for a .env file: an ECDSA
// P-256 key for JWT_SECRET (ES256 signing) and a random ENCRYPTION_KEY for
// the local two-factor cipher used when Vault is disabled.
//
//	go run scripts/generate-jwt-keys.go [-out jwt-private-key.pem]
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"strings"
)

func main() {
	out := flag.String("out", "", "also write the PEM private key to this file")
	flag.Parse()

	if err := run(*out); err != nil {
		fmt.Fprintf(os.Stderr, "generate-jwt-keys: %v\n", err)
		os.Exit(1)
	}
}

func run(out string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	encryptionKey := make([]byte, 32)
	if _, err := rand.Read(encryptionKey); err != nil {
		return fmt.Errorf("failed to generate encryption key: %w", err)
	}

	fmt.Println("# Add to .env")
	fmt.Printf("JWT_SECRET=%s\n", strings.ReplaceAll(string(keyPEM), "\n", `\n`))
	fmt.Printf("ENCRYPTION_KEY=%s\n", base64.StdEncoding.EncodeToString(encryptionKey))

	if out != "" {
		if err := os.WriteFile(out, keyPEM, 0o600); err != nil {
			return fmt.Errorf("failed to write private key file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Private key saved to %s\n", out)
	}
	return nil
}
