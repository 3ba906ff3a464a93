// Package identity loads the certificate and key a node signs with.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"errors"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/protocol"
	"github.com/lamassuiot/dcrl/pkg/signing"
)

var ErrKeyMismatch = errors.New("private key does not match the certificate public key")

type Secrets interface {
	GetIdentityKey() (ed25519.PrivateKey, error)
	GetIdentityCert() (dcrl.Certificate, error)
	GetIdentityCertFile() string
	GetIdentityKeyFile() string
}

// Load reads both halves of the identity and checks that they belong
// together.
func Load(s Secrets) (*protocol.Identity, error) {
	cert, err := s.GetIdentityCert()
	if err != nil {
		return nil, err
	}
	key, err := s.GetIdentityKey()
	if err != nil {
		return nil, err
	}
	signer := signing.NewEd25519Signer(key)
	if !bytes.Equal(signer.PublicKey(), cert.SigningPublicKey) {
		return nil, ErrKeyMismatch
	}
	return &protocol.Identity{Certificate: cert, Signer: signer}, nil
}
