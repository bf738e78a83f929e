package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// Signer produces header values the way the platform does. It exists for
// tests and local tooling that need to replay signed webhooks.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner parses a PEM-encoded RSA private key (PKCS #8 or PKCS #1).
func NewSigner(pemBytes []byte) (*Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("signature: no PEM block found")
	}

	switch block.Type {
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("signature: parse private key: %w", err)
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("signature: unsupported key type %T", k)
		}
		return &Signer{key: rk}, nil
	case "RSA PRIVATE KEY":
		rk, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("signature: parse private key: %w", err)
		}
		return &Signer{key: rk}, nil
	default:
		return nil, fmt.Errorf("signature: unexpected PEM type %q", block.Type)
	}
}

// Sign returns the base64 RSA/SHA-256 signature of payload.
func (s *Signer) Sign(payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("signature: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
