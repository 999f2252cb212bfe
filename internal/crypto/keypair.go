// Package crypto mints the per-grant escrow keypair and seals key material
// before it is persisted.
package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const (
	DefaultKeyBits = 4096
	MinKeyBits     = 1024
)

// Keypair holds PEM encoded halves of a freshly minted key.
type Keypair struct {
	PublicKeyPEM  string
	PrivateKeyPEM string
}

// KeypairMinter produces a new asymmetric keypair on every call.
type KeypairMinter interface {
	Mint(ctx context.Context) (Keypair, error)
}

// RSAMinter mints RSA keys. The public half is PKIX, the private half PKCS#8.
type RSAMinter struct {
	bits int
}

var _ KeypairMinter = (*RSAMinter)(nil)

func NewRSAMinter(bits int) (*RSAMinter, error) {
	if bits < MinKeyBits {
		return nil, fmt.Errorf("rsa key size %d below minimum %d", bits, MinKeyBits)
	}
	return &RSAMinter{bits: bits}, nil
}

func (m *RSAMinter) Bits() int { return m.bits }

func (m *RSAMinter) Mint(ctx context.Context) (Keypair, error) {
	if err := ctx.Err(); err != nil {
		return Keypair{}, err
	}

	priv, err := rsa.GenerateKey(rand.Reader, m.bits)
	if err != nil {
		return Keypair{}, fmt.Errorf("generating rsa key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return Keypair{}, fmt.Errorf("marshaling public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return Keypair{}, fmt.Errorf("marshaling private key: %w", err)
	}

	return Keypair{
		PublicKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
	}, nil
}

// ParsePublicKey decodes a PEM PUBLIC KEY block produced by Mint.
func ParsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("no PUBLIC KEY block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected public key type %T", key)
	}
	return rsaKey, nil
}
