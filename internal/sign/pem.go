package sign

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// PEMSigner signs with an ed25519 key loaded from a PKCS#8 PEM file.
type PEMSigner struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

func NewPEMSigner(keyPath string) (*PEMSigner, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read pem key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("invalid pem key")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse pkcs8 key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type: need ed25519")
	}
	return NewEd25519Signer(priv), nil
}

func NewEd25519Signer(priv ed25519.PrivateKey) *PEMSigner {
	return &PEMSigner{PrivateKey: priv, PublicKey: priv.Public().(ed25519.PublicKey)}
}

func (s *PEMSigner) Sign(pae []byte) (Material, error) {
	pubPEM, err := EncodePublicKeyPEM(s.PublicKey)
	if err != nil {
		return Material{}, err
	}
	return Material{
		KeyID:        KeyID(s.PublicKey),
		SigB64:       base64.StdEncoding.EncodeToString(ed25519.Sign(s.PrivateKey, pae)),
		PublicKeyPEM: pubPEM,
	}, nil
}

// KeyID is the first 8 bytes of the public key's SHA-256, hex encoded.
func KeyID(pub ed25519.PublicKey) string {
	h := sha256.Sum256(pub)
	return hex.EncodeToString(h[:8])
}

func EncodePublicKeyPEM(pub ed25519.PublicKey) (string, error) {
	pkix, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix})), nil
}

func ParsePublicKeyPEM(rawPEM string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(rawPEM)))
	if block == nil {
		return nil, fmt.Errorf("invalid public key pem")
	}
	pubAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := pubAny.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type")
	}
	return pub, nil
}

// GeneratePEMPrivateKey writes a new ed25519 key to path and returns the
// public key PEM. The file must not exist.
func GeneratePEMPrivateKey(path string) (string, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return "", err
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create key %s: %w", path, err)
	}
	defer f.Close()
	if err := pem.Encode(f, &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}); err != nil {
		return "", err
	}
	return EncodePublicKeyPEM(pub)
}
