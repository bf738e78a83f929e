// Package signature authenticates inbound call-event webhooks.
//
// The platform signs the exact raw request body with RSA over SHA-256
// (PKCS #1 v1.5) and sends the base64 signature in a header. Verification
// always runs against the bytes as received; re-encoding the JSON would
// change the byte layout and break the signature.
package signature

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	_ "embed"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// Header is the request header carrying the platform signature.
const Header = "X-Wh-Signature"

//go:embed platform_public_key.pem
var platformPublicKey []byte

// PlatformPublicKey returns the embedded PEM of the platform's webhook key.
func PlatformPublicKey() []byte {
	return append([]byte(nil), platformPublicKey...)
}

// Verifier checks detached signatures with a single fixed public key.
type Verifier struct {
	key *rsa.PublicKey
}

// NewVerifier parses a PEM-encoded RSA public key (PKIX or PKCS #1).
func NewVerifier(pemBytes []byte) (*Verifier, error) {
	key, err := parsePublicKey(pemBytes)
	if err != nil {
		return nil, err
	}
	return &Verifier{key: key}, nil
}

// NewPlatformVerifier returns a Verifier for the embedded platform key.
func NewPlatformVerifier() *Verifier {
	v, err := NewVerifier(platformPublicKey)
	if err != nil {
		panic("callrelay: embedded platform key is invalid: " + err.Error())
	}
	return v
}

// Verify reports whether sig is a valid signature over raw. It never
// panics; malformed input of any kind yields false.
func (v *Verifier) Verify(raw []byte, sig string) bool {
	if v == nil || v.key == nil {
		return false
	}
	decoded, ok := decodeSignature(sig)
	if !ok {
		return false
	}
	digest := sha256.Sum256(raw)
	return rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest[:], decoded) == nil
}

func decodeSignature(sig string) ([]byte, bool) {
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return nil, false
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(sig); err == nil {
			return b, true
		}
	}
	return nil, false
}

func parsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("signature: no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("signature: parse public key: %w", err)
		}
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("signature: unsupported key type %T", pub)
		}
		return key, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("signature: parse public key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("signature: unexpected PEM type %q", block.Type)
	}
}
