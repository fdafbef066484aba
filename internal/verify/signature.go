package verify

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/ogulcanaydogan/caseprompt/internal/hash"
	"github.com/ogulcanaydogan/caseprompt/internal/sign"
)

func VerifyDigest(b sign.Bundle) error {
	raw, err := b.RawPayload()
	if err != nil {
		return err
	}
	if got := hash.DigestBytes(raw); got != b.Metadata.PayloadDigest {
		return fmt.Errorf("payload digest mismatch: metadata %s, payload %s", b.Metadata.PayloadDigest, got)
	}
	return nil
}

// VerifySignature checks the first signature over the DSSE pre-authentication
// encoding using the public key embedded in the bundle.
func VerifySignature(b sign.Bundle) error {
	if len(b.Envelope.Signatures) == 0 {
		return fmt.Errorf("no signatures in bundle")
	}
	if b.Envelope.PayloadType != sign.LedgerPayloadType {
		return fmt.Errorf("unexpected payload type %q", b.Envelope.PayloadType)
	}
	raw, err := b.RawPayload()
	if err != nil {
		return err
	}
	sig := b.Envelope.Signatures[0]
	pub, err := sign.ParsePublicKeyPEM(sig.PublicKeyPEM)
	if err != nil {
		return err
	}
	if sign.KeyID(pub) != sig.KeyID {
		return fmt.Errorf("key id %s does not match embedded public key", sig.KeyID)
	}
	rawSig, err := base64.StdEncoding.DecodeString(sig.Sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if !ed25519.Verify(pub, sign.PAE(b.Envelope.PayloadType, raw), rawSig) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

// VerifyTrustedKey requires the bundle to be signed by trustedPEM.
func VerifyTrustedKey(b sign.Bundle, trustedPEM string) error {
	trusted, err := sign.ParsePublicKeyPEM(trustedPEM)
	if err != nil {
		return fmt.Errorf("trusted key: %w", err)
	}
	embedded, err := sign.ParsePublicKeyPEM(b.Envelope.Signatures[0].PublicKeyPEM)
	if err != nil {
		return err
	}
	if !trusted.Equal(embedded) {
		return fmt.Errorf("bundle signed by untrusted key %s", sign.KeyID(embedded))
	}
	return nil
}
