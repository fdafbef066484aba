// Package sign produces DSSE envelopes over canonical JSON payloads.
package sign

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/caseprompt/internal/hash"
)

// LedgerPayloadType identifies a signed ledger export.
const LedgerPayloadType = "application/vnd.caseprompt.ledger.v1+json"

type Bundle struct {
	Envelope Envelope `json:"envelope"`
	Metadata Metadata `json:"metadata"`
}

type Envelope struct {
	PayloadType string      `json:"payloadType"`
	Payload     string      `json:"payload"`
	Signatures  []Signature `json:"signatures"`
}

type Signature struct {
	KeyID        string `json:"keyid"`
	Sig          string `json:"sig"`
	PublicKeyPEM string `json:"public_key_pem"`
}

type Metadata struct {
	BundleVersion string `json:"bundle_version"`
	CreatedAt     string `json:"created_at"`
	PayloadDigest string `json:"payload_digest"`
}

type Material struct {
	KeyID        string
	SigB64       string
	PublicKeyPEM string
}

// Signer signs the pre-authentication encoding of an envelope.
type Signer interface {
	Sign(pae []byte) (Material, error)
}

// PAE is the DSSE v1 pre-authentication encoding.
func PAE(payloadType string, payload []byte) []byte {
	out := "DSSEv1 " + strconv.Itoa(len(payloadType)) + " " + payloadType + " " + strconv.Itoa(len(payload)) + " "
	return append([]byte(out), payload...)
}

// CreateBundle canonicalizes payload and signs it with signer.
func CreateBundle(payload any, payloadType string, signer Signer, now time.Time) (Bundle, error) {
	canonical, err := hash.Canonical(payload)
	if err != nil {
		return Bundle{}, err
	}
	material, err := signer.Sign(PAE(payloadType, canonical))
	if err != nil {
		return Bundle{}, fmt.Errorf("sign payload: %w", err)
	}
	return Bundle{
		Envelope: Envelope{
			PayloadType: payloadType,
			Payload:     base64.StdEncoding.EncodeToString(canonical),
			Signatures: []Signature{{
				KeyID:        material.KeyID,
				Sig:          material.SigB64,
				PublicKeyPEM: material.PublicKeyPEM,
			}},
		},
		Metadata: Metadata{
			BundleVersion: "1",
			CreatedAt:     now.UTC().Format(time.RFC3339),
			PayloadDigest: hash.DigestBytes(canonical),
		},
	}, nil
}

func (b Bundle) RawPayload() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b.Envelope.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode bundle payload: %w", err)
	}
	return raw, nil
}

func DecodePayload(b Bundle, out any) error {
	raw, err := b.RawPayload()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal bundle payload: %w", err)
	}
	return nil
}

func WriteBundle(path string, b Bundle) error {
	raw, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func ReadBundle(path string) (Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, err
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bundle{}, fmt.Errorf("parse bundle %s: %w", path, err)
	}
	return b, nil
}
