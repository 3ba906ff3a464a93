// Package chain holds the block chain model: the genesis anchor, block
// construction, chain validation and the revoked-certificate index derived
// from a chain.
package chain

import (
	"bytes"
	"fmt"
	"time"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/lamassuiot/dcrl/pkg/signing"
)

// Chain is an ordered list of blocks, genesis first.
type Chain []dcrl.Block

// New returns a chain holding only the genesis block.
func New() Chain {
	return Chain{Genesis()}
}

// Tip returns the last block. It panics on an empty chain.
func (c Chain) Tip() dcrl.Block {
	return c[len(c)-1]
}

// Clone returns a copy of c that shares no slice with it.
func (c Chain) Clone() Chain {
	if c == nil {
		return nil
	}
	out := make(Chain, len(c))
	copy(out, c)
	return out
}

// Validate reports whether c may replace a local chain. Index 0 must be the
// genesis block, the trust anchor; every later block must be created by a
// trusted, unrevoked PARTICIPATION certificate, link to its predecessor by
// hash and height, and carry the revocations its merkle root commits to.
// Failure reasons go to sink, which may be nil.
func Validate(c Chain, trust signing.TrustLookup, revoked signing.RevokedLookup, sink func(string)) bool {
	return ValidateAt(time.Now(), c, trust, revoked, sink)
}

func ValidateAt(now time.Time, c Chain, trust signing.TrustLookup, revoked signing.RevokedLookup, sink func(string)) bool {
	if sink == nil {
		sink = func(string) {}
	}
	if len(c) == 0 {
		sink("empty blockchain")
		return false
	}
	if !bytes.Equal(hashing.HashBlock(c[0]), genesisHash) {
		sink("block 0 is not the genesis block")
		return false
	}

	prevHash := GenesisHash()
	prevHeight := GenesisHeight
	for i := 1; i < len(c); i++ {
		b := c[i]
		if !signing.VerifyVerboseAt(now, b.Certificate, sink, trust, revoked, dcrl.UsageParticipation) {
			sink(fmt.Sprintf("block %d: creator is not a trusted participant", i))
			return false
		}
		if !bytes.Equal(b.PreviousBlock, prevHash) {
			sink(fmt.Sprintf("block %d: previous hash does not match block %d", i, i-1))
			return false
		}
		if b.Height != prevHeight+1 {
			sink(fmt.Sprintf("block %d: height %d does not follow %d", i, b.Height, prevHeight))
			return false
		}
		if !bytes.Equal(b.MerkleRoot, hashing.MerkleRoot(b.Revocations)) {
			sink(fmt.Sprintf("block %d: revocations do not match merkle root", i))
			return false
		}
		prevHash = hashing.HashBlock(b)
		prevHeight = b.Height
	}
	return true
}
