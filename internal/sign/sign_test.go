package sign

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPAEFormat(t *testing.T) {
	got := string(PAE("application/x", []byte("hello")))
	if got != "DSSEv1 13 application/x 5 hello" {
		t.Fatalf("unexpected PAE %q", got)
	}
}

func TestCreateBundleSignsCanonicalPayload(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "key.pem")
	pubPEM, err := GeneratePEMPrivateKey(keyPath)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewPEMSigner(keyPath)
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := CreateBundle(map[string]any{"b": 2, "a": 1}, LedgerPayloadType, signer, now)
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	raw, err := b.RawPayload()
	if err != nil {
		t.Fatalf("raw payload: %v", err)
	}
	if string(raw) != `{"a":1,"b":2}` {
		t.Fatalf("payload not canonical: %s", raw)
	}
	if b.Metadata.CreatedAt != "2026-01-02T03:04:05Z" || !strings.HasPrefix(b.Metadata.PayloadDigest, "sha256:") {
		t.Fatalf("unexpected metadata %+v", b.Metadata)
	}

	sig := b.Envelope.Signatures[0]
	if sig.PublicKeyPEM != pubPEM || sig.KeyID != KeyID(signer.PublicKey) {
		t.Fatal("signature must carry the signer's public key")
	}
	pub, err := ParsePublicKeyPEM(sig.PublicKeyPEM)
	if err != nil {
		t.Fatalf("parse pub: %v", err)
	}
	rawSig, _ := base64.StdEncoding.DecodeString(sig.Sig)
	if !ed25519.Verify(pub, PAE(LedgerPayloadType, raw), rawSig) {
		t.Fatal("signature does not verify over PAE")
	}
}

func TestBundleFileRoundTrip(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	b, err := CreateBundle([]string{"x"}, LedgerPayloadType, NewEd25519Signer(priv), time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := WriteBundle(path, b); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadBundle(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out []string
	if err := DecodePayload(got, &out); err != nil || len(out) != 1 || out[0] != "x" {
		t.Fatalf("decode payload: %v %v", out, err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewPEMSigner(filepath.Join(dir, "missing.pem")); err == nil {
		t.Fatal("expected missing key error")
	}
	bad := filepath.Join(dir, "bad.pem")
	_ = os.WriteFile(bad, []byte("not pem"), 0o600)
	if _, err := NewPEMSigner(bad); err == nil {
		t.Fatal("expected invalid pem error")
	}
	keyPath := filepath.Join(dir, "key.pem")
	if _, err := GeneratePEMPrivateKey(keyPath); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := GeneratePEMPrivateKey(keyPath); err == nil {
		t.Fatal("existing key must not be overwritten")
	}
	if _, err := ReadBundle(bad); err == nil {
		t.Fatal("expected parse error")
	}
}
