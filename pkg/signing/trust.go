package signing

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
)

// TrustLookup resolves a certificate hash to a trusted certificate.
type TrustLookup interface {
	Lookup(hash []byte) (dcrl.Certificate, bool)
}

// RevokedLookup reports whether a certificate hash has been revoked.
type RevokedLookup interface {
	Contains(hash []byte) bool
}

// VerifyVerbose reports whether cert may be relied on for usage right now.
// Every failed condition is reported to sink, which may be nil.
func VerifyVerbose(cert dcrl.Certificate, sink func(string), trust TrustLookup, revoked RevokedLookup, usage dcrl.Usage) bool {
	return VerifyVerboseAt(time.Now(), cert, sink, trust, revoked, usage)
}

func VerifyVerboseAt(now time.Time, cert dcrl.Certificate, sink func(string), trust TrustLookup, revoked RevokedLookup, usage dcrl.Usage) bool {
	if sink == nil {
		sink = func(string) {}
	}
	hash := hashing.HashCertificate(cert)
	name := describe(cert, hash)
	ok := true

	if !cert.HasUsage(usage) {
		sink(fmt.Sprintf("%s does not carry usage %s", name, usage))
		ok = false
	}
	if cert.Subject == "" {
		sink(fmt.Sprintf("%s has no subject", name))
		ok = false
	}
	if !cert.ValidAt(now) {
		sink(fmt.Sprintf("%s is not valid at %d", name, now.Unix()))
		ok = false
	}
	if reason := trustFailure(cert, hash, trust); reason != "" {
		sink(fmt.Sprintf("%s %s", name, reason))
		ok = false
	}
	if revoked != nil && revoked.Contains(hash) {
		sink(fmt.Sprintf("%s is revoked", name))
		ok = false
	}
	return ok
}

func trustFailure(cert dcrl.Certificate, hash []byte, trust TrustLookup) string {
	if trust == nil {
		return "cannot be checked without a trust store"
	}
	if _, found := trust.Lookup(hash); found {
		if cert.IsSelfSigned() && !VerifyCertificateSignature(cert, cert.SigningPublicKey) {
			return "is trusted but its self-signature is invalid"
		}
		return ""
	}
	if cert.IsSelfSigned() {
		return "is self-signed and not in the trust store"
	}
	issuer, found := trust.Lookup(cert.IssuerCertificateHash)
	if !found {
		return "was issued by an untrusted certificate"
	}
	if !VerifyCertificateSignature(cert, issuer.SigningPublicKey) {
		return fmt.Sprintf("has an invalid signature from issuer %q", issuer.Subject)
	}
	return ""
}

func describe(cert dcrl.Certificate, hash []byte) string {
	return fmt.Sprintf("certificate %q (%s)", cert.Subject, base64.RawURLEncoding.EncodeToString(hash))
}
