package hashing

import (
	"math/bits"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
)

// MerkleRoot summarises an ordered batch of revocations.
//
// An empty batch yields an empty (not nil-hash) root. A single revocation is
// paired with itself. Larger batches split into a power-of-two prefix and the
// remaining suffix (see MerkleSplit); the tree is intentionally not balanced
// and changing the split changes every root.
func MerkleRoot(revocations []dcrl.CertificateRevocation) []byte {
	switch len(revocations) {
	case 0:
		return []byte{}
	case 1:
		return MerkleRoot([]dcrl.CertificateRevocation{revocations[0], revocations[0]})
	case 2:
		left := Sum(HashRevocation(revocations[0]))
		right := Sum(HashRevocation(revocations[1]))
		return Sum(left, right)
	}

	split := MerkleSplit(len(revocations))
	return Sum(MerkleRoot(revocations[:split]), MerkleRoot(revocations[split:]))
}

// MerkleSplit returns the left subtree length for n >= 3:
// 2^(ceil(log2 n) - 1), the largest power of two strictly below n.
func MerkleSplit(n int) int {
	if n < 3 {
		panic("MerkleSplit: n must be at least 3")
	}
	k := bits.Len(uint(n - 1)) // ceil(log2 n)
	return 1 << (k - 1)
}
