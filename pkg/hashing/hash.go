// Package hashing computes content digests for certificates, revocations and
// blocks, and the merkle root over a block's revocations.
package hashing

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
)

// Size is the width of every digest produced by this package.
const Size = sha256.Size

// CertificateDigest is the field-ordered concatenation hashed by
// HashCertificate. Integers are big-endian.
func CertificateDigest(c dcrl.Certificate) []byte {
	buf := certificateFields(c)
	buf = append(buf, c.IssuerSignature...)
	return buf
}

func certificateFields(c dcrl.Certificate) []byte {
	buf := make([]byte, 0, len(c.Subject)+12+4*len(c.Usages)+len(c.SigningPublicKey)+len(c.IssuerCertificateHash)+len(c.IssuerSignature))
	buf = append(buf, c.Subject...)
	buf = appendUint64(buf, uint64(c.ValidFrom))
	buf = appendUint32(buf, uint32(c.ValidLength))
	for _, u := range c.Usages {
		buf = appendUint32(buf, uint32(u))
	}
	buf = append(buf, c.SigningPublicKey...)
	buf = append(buf, c.IssuerCertificateHash...)
	return buf
}

// SignatureDigest is the input an issuer signs: the same field list as
// CertificateDigest without the issuer signature.
func SignatureDigest(c dcrl.Certificate) []byte {
	return certificateFields(c)
}

func HashCertificate(c dcrl.Certificate) []byte {
	sum := sha256.Sum256(CertificateDigest(c))
	return sum[:]
}

// HashBlock commits to the creator, height, parent, timestamp and merkle
// root. Revocations are covered only through the merkle root.
func HashBlock(b dcrl.Block) []byte {
	h := sha256.New()
	h.Write(HashCertificate(b.Certificate))
	h.Write(appendUint64(nil, uint64(b.Height)))
	h.Write(b.PreviousBlock)
	h.Write(appendUint64(nil, uint64(b.Timestamp)))
	h.Write(b.MerkleRoot)
	return h.Sum(nil)
}

// HashCanonical hashes the canonical byte form of v.
func HashCanonical(v interface{}) ([]byte, error) {
	bs, err := dcrl.CanonicalBytes(v)
	if err != nil {
		return nil, fmt.Errorf("canonical bytes of %T: %w", v, err)
	}
	sum := sha256.Sum256(bs)
	return sum[:], nil
}

// HashRevocation hashes a revocation's canonical bytes. The encoding of a
// revocation cannot fail, so no error is returned.
func HashRevocation(r dcrl.CertificateRevocation) []byte {
	h, err := HashCanonical(r)
	if err != nil {
		panic(err)
	}
	return h
}

// Hash dispatches on the entity type.
func Hash(v interface{}) ([]byte, error) {
	switch e := v.(type) {
	case dcrl.Certificate:
		return HashCertificate(e), nil
	case *dcrl.Certificate:
		return HashCertificate(*e), nil
	case dcrl.Block:
		return HashBlock(e), nil
	case *dcrl.Block:
		return HashBlock(*e), nil
	default:
		return HashCanonical(v)
	}
}

// Sum is a plain sha256 over the concatenation of parts.
func Sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
