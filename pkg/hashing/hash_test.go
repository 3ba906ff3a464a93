package hashing_test

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/stretchr/testify/require"
)

func TestHashCertificate_FieldOrder(t *testing.T) {
	c := dcrl.Certificate{
		Subject:               "alice",
		ValidFrom:             0x0102030405060708,
		ValidLength:           300,
		Usages:                []dcrl.Usage{dcrl.UsageAuthority, dcrl.UsageParticipation},
		SigningPublicKey:      []byte{0xaa, 0xbb},
		IssuerCertificateHash: []byte{0xcc},
		IssuerSignature:       []byte{0xdd, 0xee},
	}

	var in []byte
	in = append(in, "alice"...)
	in = append(in, 1, 2, 3, 4, 5, 6, 7, 8)
	in = binary.BigEndian.AppendUint32(in, 300)
	in = binary.BigEndian.AppendUint32(in, 1)
	in = binary.BigEndian.AppendUint32(in, 2)
	in = append(in, 0xaa, 0xbb, 0xcc)
	require.Equal(t, in, hashing.SignatureDigest(c))

	in = append(in, 0xdd, 0xee)
	require.Equal(t, in, hashing.CertificateDigest(c))

	want := sha256.Sum256(in)
	require.Equal(t, want[:], hashing.HashCertificate(c))
}

func TestHashCertificate_SignatureChangesHash(t *testing.T) {
	c := dcrl.Certificate{Subject: "alice", SigningPublicKey: []byte{1}}
	signed := c
	signed.IssuerSignature = []byte{9}
	require.NotEqual(t, hashing.HashCertificate(c), hashing.HashCertificate(signed))
	require.Equal(t, hashing.SignatureDigest(c), hashing.SignatureDigest(signed))
}

func TestHashBlock_IgnoresRevocationList(t *testing.T) {
	b := dcrl.Block{
		Height:        3,
		PreviousBlock: make([]byte, hashing.Size),
		Timestamp:     42,
		MerkleRoot:    []byte{1, 2, 3},
	}
	withRevs := b
	withRevs.Revocations = []dcrl.CertificateRevocation{{Timestamp: 1}}
	require.Equal(t, hashing.HashBlock(b), hashing.HashBlock(withRevs))

	moved := b
	moved.Height = 4
	require.NotEqual(t, hashing.HashBlock(b), hashing.HashBlock(moved))

	var in []byte
	in = append(in, hashing.HashCertificate(b.Certificate)...)
	in = binary.BigEndian.AppendUint64(in, 3)
	in = append(in, b.PreviousBlock...)
	in = binary.BigEndian.AppendUint64(in, 42)
	in = append(in, 1, 2, 3)
	want := sha256.Sum256(in)
	require.Equal(t, want[:], hashing.HashBlock(b))
}

func TestHash_Dispatch(t *testing.T) {
	c := dcrl.Certificate{Subject: "bob"}
	h, err := hashing.Hash(c)
	require.NoError(t, err)
	require.Equal(t, hashing.HashCertificate(c), h)

	h, err = hashing.Hash(&c)
	require.NoError(t, err)
	require.Equal(t, hashing.HashCertificate(c), h)

	r := dcrl.CertificateRevocation{Certificate: c, Timestamp: 7}
	h, err = hashing.Hash(r)
	require.NoError(t, err)
	require.Equal(t, hashing.HashRevocation(r), h)
	require.Len(t, h, hashing.Size)
}
