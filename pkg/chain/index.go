package chain

import (
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
)

// RevokedIndex maps revoked certificate hashes to the certificates. It is a
// cache that can always be rebuilt from a chain.
type RevokedIndex map[string]dcrl.Certificate

// BuildIndex folds every revocation of c in chain order.
func BuildIndex(c Chain) RevokedIndex {
	ix := RevokedIndex{}
	for _, b := range c {
		ix.Fold(b)
	}
	return ix
}

// Fold adds the revocations carried by b.
func (ix RevokedIndex) Fold(b dcrl.Block) {
	for _, r := range b.Revocations {
		ix[string(hashing.HashCertificate(r.Certificate))] = r.Certificate
	}
}

func (ix RevokedIndex) Contains(hash []byte) bool {
	_, ok := ix[string(hash)]
	return ok
}

func (ix RevokedIndex) Lookup(hash []byte) (dcrl.Certificate, bool) {
	c, ok := ix[string(hash)]
	return c, ok
}
