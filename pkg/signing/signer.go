package signing

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"errors"
)

var ErrInvalidSignature = errors.New("signature validation failed")

// Signer produces signatures with a private key that may live outside the
// process.
type Signer interface {
	PublicKey() []byte
	Sign(ctx context.Context, input []byte) ([]byte, error)
}

type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func NewEd25519Signer(priv ed25519.PrivateKey) Ed25519Signer {
	return Ed25519Signer{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}
}

// GenerateEd25519Signer creates a signer around a fresh random key.
func GenerateEd25519Signer() (Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Ed25519Signer{}, err
	}
	return NewEd25519Signer(priv), nil
}

func (s Ed25519Signer) PublicKey() []byte {
	return []byte(s.pub)
}

func (s Ed25519Signer) PrivateKey() ed25519.PrivateKey {
	return s.priv
}

func (s Ed25519Signer) Sign(_ context.Context, input []byte) ([]byte, error) {
	return s.priv.Sign(nil, input, crypto.Hash(0))
}

// VerifyBytes checks sig over msg with an ed25519 public key. Malformed keys
// fail verification.
func VerifyBytes(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
