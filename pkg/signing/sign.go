// Package signing signs and verifies certificates and protocol payloads, and
// decides whether a certificate may be trusted for a given usage.
package signing

import (
	"context"
	"fmt"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
)

// DigestForSignature is the byte string an issuer signs for c. It is
// computed independently of c.IssuerSignature.
func DigestForSignature(c dcrl.Certificate) []byte {
	return hashing.SignatureDigest(c)
}

// SignatureInput returns the bytes signed for payload.
func SignatureInput(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case dcrl.Certificate:
		return DigestForSignature(p), nil
	case *dcrl.Certificate:
		return DigestForSignature(*p), nil
	default:
		return dcrl.CanonicalBytes(payload)
	}
}

func Sign(ctx context.Context, signer Signer, payload interface{}) ([]byte, error) {
	input, err := SignatureInput(payload)
	if err != nil {
		return nil, err
	}
	return signer.Sign(ctx, input)
}

// IssueCertificate fills in the issuer fields of template. A nil issuer
// produces a self-signed certificate, in which case signer must hold the key
// matching template.SigningPublicKey.
func IssueCertificate(ctx context.Context, template dcrl.Certificate, issuer *dcrl.Certificate, signer Signer) (dcrl.Certificate, error) {
	cert := template
	cert.IssuerSignature = nil
	cert.IssuerCertificateHash = nil
	if issuer != nil {
		cert.IssuerCertificateHash = hashing.HashCertificate(*issuer)
	}
	sig, err := Sign(ctx, signer, cert)
	if err != nil {
		return dcrl.Certificate{}, fmt.Errorf("sign certificate %q: %w", cert.Subject, err)
	}
	cert.IssuerSignature = sig
	return cert, nil
}

// VerifyCertificateSignature checks c.IssuerSignature with the issuer's
// public key.
func VerifyCertificateSignature(c dcrl.Certificate, issuerPublicKey []byte) bool {
	if len(c.IssuerSignature) == 0 {
		return false
	}
	return VerifyBytes(issuerPublicKey, DigestForSignature(c), c.IssuerSignature)
}

// NewSignedMessage wraps payload in a signed envelope under cert.
func NewSignedMessage(ctx context.Context, cert dcrl.Certificate, signer Signer, payload interface{}) (dcrl.Message, error) {
	sm := &dcrl.SignedMessage{Certificate: cert}
	if err := sm.SetPayload(payload); err != nil {
		return dcrl.Message{}, err
	}
	sig, err := Sign(ctx, signer, payload)
	if err != nil {
		return dcrl.Message{}, fmt.Errorf("sign %s: %w", dcrl.PayloadKind(payload), err)
	}
	sm.Signature = sig
	return dcrl.Message{Signed: sm}, nil
}

// Verify checks the envelope signature against the attached certificate.
// It never decides whether that certificate is trusted.
func Verify(sm *dcrl.SignedMessage) bool {
	if sm == nil {
		return false
	}
	payload := sm.Payload()
	if payload == nil {
		return false
	}
	if len(sm.Signature) == 0 {
		return false
	}
	if sm.Certificate.IsZero() {
		return false
	}
	if len(sm.Certificate.SigningPublicKey) == 0 {
		return false
	}
	input, err := SignatureInput(payload)
	if err != nil {
		return false
	}
	return VerifyBytes(sm.Certificate.SigningPublicKey, input, sm.Signature)
}
