package signature_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xraph/callrelay/signature"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func testVerifier(t *testing.T) *signature.Verifier {
	t.Helper()
	v, err := signature.NewVerifier(readFixture(t, "test_public.pem"))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestVerifyKnownFixture(t *testing.T) {
	v := testVerifier(t)
	payload := readFixture(t, "payload.json")
	sig := strings.TrimSpace(string(readFixture(t, "payload.sig")))

	if !v.Verify(payload, sig) {
		t.Fatal("Verify() returned false for the committed fixture")
	}
}

func TestVerifyDifferentBytes(t *testing.T) {
	v := testVerifier(t)
	payload := readFixture(t, "payload.json")
	sig := strings.TrimSpace(string(readFixture(t, "payload.sig")))

	// Same JSON value, different byte layout.
	reformatted := append(bytes.ReplaceAll(payload, []byte(`,"`), []byte(`, "`)), '\n')
	if v.Verify(reformatted, sig) {
		t.Fatal("Verify() returned true for re-serialized bytes")
	}

	tampered := bytes.Replace(payload, []byte(`42`), []byte(`43`), 1)
	if v.Verify(tampered, sig) {
		t.Fatal("Verify() returned true for tampered payload")
	}
}

func TestVerifyMalformedSignature(t *testing.T) {
	v := testVerifier(t)
	payload := readFixture(t, "payload.json")

	for _, sig := range []string{"", "   ", "!!!not-base64!!!", "dGVzdA=="} {
		if v.Verify(payload, sig) {
			t.Errorf("Verify() returned true for %q", sig)
		}
	}
}

func TestVerifyWrongKey(t *testing.T) {
	v := signature.NewPlatformVerifier()
	payload := readFixture(t, "payload.json")
	sig := strings.TrimSpace(string(readFixture(t, "payload.sig")))

	if v.Verify(payload, sig) {
		t.Fatal("platform key must not accept a test-key signature")
	}
}

func TestNilVerifier(t *testing.T) {
	var v *signature.Verifier
	if v.Verify([]byte("x"), "eA==") {
		t.Fatal("nil verifier must reject")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := signature.NewSigner(readFixture(t, "test_private.pem"))
	if err != nil {
		t.Fatal(err)
	}
	v := testVerifier(t)

	payload := []byte(`{"messageType":"CALL","locationId":"loc_9"}`)
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Verify(payload, sig) {
		t.Fatal("Verify() returned false for a fresh signature")
	}
}

func TestNewVerifierRejectsGarbage(t *testing.T) {
	if _, err := signature.NewVerifier([]byte("not pem")); err == nil {
		t.Fatal("expected error")
	}
	if _, err := signature.NewVerifier(readFixture(t, "test_private.pem")); err == nil {
		t.Fatal("expected error for a private key PEM")
	}
}

func TestPlatformPublicKeyIsCopy(t *testing.T) {
	a := signature.PlatformPublicKey()
	a[0] = 'X'
	if signature.PlatformPublicKey()[0] == 'X' {
		t.Fatal("PlatformPublicKey returned shared buffer")
	}
}
