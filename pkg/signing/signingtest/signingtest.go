// Package signingtest provides deterministic keys and certificate fixtures.
package signingtest

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/signing"
)

// DeterministicSigners returns n signers whose keys are stable across runs,
// so hashes in test logs do not change between runs.
func DeterministicSigners(n int) []signing.Ed25519Signer {
	out := make([]signing.Ed25519Signer, n)
	for i := range out {
		seed := []byte(fmt.Sprintf("%032d", i))
		out[i] = signing.NewEd25519Signer(ed25519.NewKeyFromSeed(seed))
	}
	return out
}

// Template returns an unsigned certificate for signer that is valid for a
// day around now.
func Template(signer signing.Signer, subject string, usages ...dcrl.Usage) dcrl.Certificate {
	return dcrl.Certificate{
		Subject:          subject,
		ValidFrom:        time.Now().Add(-time.Hour).Unix(),
		ValidLength:      int32((24 * time.Hour).Seconds()),
		Usages:           usages,
		SigningPublicKey: signer.PublicKey(),
	}
}

// SelfSigned returns a self-signed certificate for signer. It panics on
// signing failure.
func SelfSigned(signer signing.Signer, subject string, usages ...dcrl.Usage) dcrl.Certificate {
	cert, err := signing.IssueCertificate(context.Background(), Template(signer, subject, usages...), nil, signer)
	if err != nil {
		panic(err)
	}
	return cert
}

// Issued returns a certificate for subjectKey signed by issuer.
func Issued(subjectKey signing.Signer, subject string, issuer dcrl.Certificate, issuerKey signing.Signer, usages ...dcrl.Usage) dcrl.Certificate {
	cert, err := signing.IssueCertificate(context.Background(), Template(subjectKey, subject, usages...), &issuer, issuerKey)
	if err != nil {
		panic(err)
	}
	return cert
}
