package chain

import (
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
)

const (
	GenesisHeight    int64 = 0
	GenesisTimestamp int64 = 1586466355631
)

var genesisHash = hashing.HashBlock(Genesis())

// Genesis returns the height-0 block every chain starts from.
func Genesis() dcrl.Block {
	return dcrl.Block{
		Certificate:   dcrl.Certificate{},
		Height:        GenesisHeight,
		PreviousBlock: make([]byte, hashing.Size),
		Timestamp:     GenesisTimestamp,
		MerkleRoot:    hashing.MerkleRoot(nil),
	}
}

// GenesisHash returns a copy of the hash of the genesis block.
func GenesisHash() []byte {
	return append([]byte(nil), genesisHash...)
}

// NewBlock builds a block over revocations, computing its merkle root.
func NewBlock(creator dcrl.Certificate, height int64, previous []byte, timestamp int64, revocations []dcrl.CertificateRevocation) dcrl.Block {
	revs := append([]dcrl.CertificateRevocation(nil), revocations...)
	return dcrl.Block{
		Certificate:   creator,
		Height:        height,
		PreviousBlock: append([]byte(nil), previous...),
		Timestamp:     timestamp,
		MerkleRoot:    hashing.MerkleRoot(revs),
		Revocations:   revs,
	}
}
