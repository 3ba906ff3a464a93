package hashing_test

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/stretchr/testify/require"
)

func revocations(n int) []dcrl.CertificateRevocation {
	out := make([]dcrl.CertificateRevocation, n)
	for i := range out {
		out[i] = dcrl.CertificateRevocation{
			Certificate: dcrl.Certificate{
				Subject:     fmt.Sprintf("revoked-%d", i),
				ValidFrom:   int64(1000 + i),
				ValidLength: 300,
				Usages:      []dcrl.Usage{dcrl.UsageParticipation},
			},
			Timestamp: int64(i),
		}
	}
	return out
}

func leaf(r dcrl.CertificateRevocation) []byte {
	h := sha256.Sum256(hashing.HashRevocation(r))
	return h[:]
}

func pair(a, b []byte) []byte {
	in := append(append([]byte{}, a...), b...)
	h := sha256.Sum256(in)
	return h[:]
}

func TestMerkleRoot_Empty(t *testing.T) {
	root := hashing.MerkleRoot(nil)
	require.NotNil(t, root)
	require.Empty(t, root)
	require.NotEqual(t, sha256.Size, len(root))
}

func TestMerkleRoot_SingletonDuplicates(t *testing.T) {
	for _, r := range revocations(4) {
		require.Equal(t,
			hashing.MerkleRoot([]dcrl.CertificateRevocation{r, r}),
			hashing.MerkleRoot([]dcrl.CertificateRevocation{r}),
		)
	}
}

func TestMerkleRoot_ManualCalculation(t *testing.T) {
	rs := revocations(5)

	t.Run("pair", func(t *testing.T) {
		want := pair(leaf(rs[0]), leaf(rs[1]))
		require.Equal(t, want, hashing.MerkleRoot(rs[:2]))
	})

	t.Run("three splits two and one", func(t *testing.T) {
		left := pair(leaf(rs[0]), leaf(rs[1]))
		right := pair(leaf(rs[2]), leaf(rs[2]))
		require.Equal(t, pair(left, right), hashing.MerkleRoot(rs[:3]))
	})

	t.Run("five splits four and one", func(t *testing.T) {
		l0 := pair(leaf(rs[0]), leaf(rs[1]))
		l1 := pair(leaf(rs[2]), leaf(rs[3]))
		left := pair(l0, l1)
		right := pair(leaf(rs[4]), leaf(rs[4]))
		require.Equal(t, pair(left, right), hashing.MerkleRoot(rs))
	})
}

func TestMerkleRoot_Deterministic(t *testing.T) {
	for n := 1; n <= 17; n++ {
		rs := revocations(n)
		require.Equal(t, hashing.MerkleRoot(rs), hashing.MerkleRoot(revocations(n)), "n=%d", n)
		require.Len(t, hashing.MerkleRoot(rs), sha256.Size)
	}
}

func TestMerkleRoot_OrderDependent(t *testing.T) {
	rs := revocations(6)
	swapped := append([]dcrl.CertificateRevocation{}, rs...)
	swapped[0], swapped[5] = swapped[5], swapped[0]
	require.NotEqual(t, hashing.MerkleRoot(rs), hashing.MerkleRoot(swapped))
}

func TestMerkleSplit(t *testing.T) {
	for n := 3; n <= 1025; n++ {
		left := hashing.MerkleSplit(n)
		require.Less(t, left, n, "n=%d", n)
		require.Greater(t, n-left, 0, "n=%d", n)
		require.Equal(t, 0, left&(left-1), "left=%d is not a power of two", left)
		require.GreaterOrEqual(t, 2*left, n, "left=%d is not the largest power of two below %d", left, n)
	}

	require.Equal(t, 2, hashing.MerkleSplit(3))
	require.Equal(t, 2, hashing.MerkleSplit(4))
	require.Equal(t, 4, hashing.MerkleSplit(5))
	require.Equal(t, 4, hashing.MerkleSplit(8))
	require.Equal(t, 8, hashing.MerkleSplit(9))
}
