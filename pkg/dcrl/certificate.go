package dcrl

import (
	"strings"
	"time"
)

type Usage int32

const (
	UsageUnspecified   Usage = 0
	UsageAuthority     Usage = 1
	UsageParticipation Usage = 2
)

func (u Usage) String() string {
	switch u {
	case UsageAuthority:
		return "AUTHORITY"
	case UsageParticipation:
		return "PARTICIPATION"
	default:
		return "UNSPECIFIED"
	}
}

func ParseUsage(s string) (Usage, bool) {
	switch strings.ToUpper(s) {
	case "AUTHORITY":
		return UsageAuthority, true
	case "PARTICIPATION":
		return UsageParticipation, true
	}
	return UsageUnspecified, false
}

// Certificate binds a subject to a signing key and a set of usages. It is
// self-signed when IssuerCertificateHash is empty.
type Certificate struct {
	Subject               string  `json:"subject"`
	ValidFrom             int64   `json:"valid_from"`
	ValidLength           int32   `json:"valid_length"`
	Usages                []Usage `json:"usages"`
	SigningPublicKey      []byte  `json:"signing_public_key"`
	IssuerCertificateHash []byte  `json:"issuer_certificate_hash"`
	IssuerSignature       []byte  `json:"issuer_signature"`
}

func (c Certificate) IsSelfSigned() bool {
	return len(c.IssuerCertificateHash) == 0
}

// IsZero reports whether c is the default, empty certificate.
func (c Certificate) IsZero() bool {
	return c.Subject == "" &&
		c.ValidFrom == 0 &&
		c.ValidLength == 0 &&
		len(c.Usages) == 0 &&
		len(c.SigningPublicKey) == 0 &&
		len(c.IssuerCertificateHash) == 0 &&
		len(c.IssuerSignature) == 0
}

func (c Certificate) HasUsage(u Usage) bool {
	for _, have := range c.Usages {
		if have == u {
			return true
		}
	}
	return false
}

// ValidAt reports whether t falls in [ValidFrom, ValidFrom+ValidLength).
func (c Certificate) ValidAt(t time.Time) bool {
	now := t.Unix()
	return now >= c.ValidFrom && now < c.ValidFrom+int64(c.ValidLength)
}
