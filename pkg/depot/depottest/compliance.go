// Package depottest holds a compliance suite run against every depot backend.
package depottest

import (
	"context"
	"testing"

	"github.com/lamassuiot/dcrl/pkg/chain"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/depot"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/stretchr/testify/require"
)

// DepotFactory returns a fresh, empty depot for each call.
type DepotFactory func(t *testing.T) depot.Depot

func TestDepotCompliance(t *testing.T, f DepotFactory) {
	ctx := context.Background()
	creator := dcrl.Certificate{Subject: "creator", Usages: []dcrl.Usage{dcrl.UsageParticipation}, SigningPublicKey: []byte{1, 2, 3}}

	extend := func(c chain.Chain, subjects ...string) chain.Chain {
		var revs []dcrl.CertificateRevocation
		for _, s := range subjects {
			revs = append(revs, dcrl.CertificateRevocation{Certificate: dcrl.Certificate{Subject: s}, Timestamp: 5})
		}
		tip := c.Tip()
		return append(c.Clone(), chain.NewBlock(creator, tip.Height+1, hashing.HashBlock(tip), 1000+tip.Height, revs))
	}

	t.Run("empty depot loads no blocks", func(t *testing.T) {
		d := f(t)
		c, err := d.LoadChain(ctx)
		require.NoError(t, err)
		require.Empty(t, c)
	})

	t.Run("first append stores genesis too", func(t *testing.T) {
		d := f(t)
		want := extend(chain.New(), "a", "b")
		require.NoError(t, d.AppendBlock(ctx, want[1]))

		got, err := d.LoadChain(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.Equal(t, chain.GenesisHash(), hashing.HashBlock(got[0]))
	})

	t.Run("appends keep height order", func(t *testing.T) {
		d := f(t)
		want := extend(extend(extend(chain.New(), "a"), "b", "c"), "d")
		for _, b := range want[1:] {
			require.NoError(t, d.AppendBlock(ctx, b))
		}
		got, err := d.LoadChain(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("replace overwrites", func(t *testing.T) {
		d := f(t)
		old := extend(extend(chain.New(), "a"), "b")
		for _, b := range old[1:] {
			require.NoError(t, d.AppendBlock(ctx, b))
		}

		replacement := extend(chain.New(), "x", "y", "z")
		require.NoError(t, d.ReplaceChain(ctx, replacement))
		got, err := d.LoadChain(ctx)
		require.NoError(t, err)
		require.Equal(t, replacement, got)

		next := extend(replacement, "w")
		require.NoError(t, d.AppendBlock(ctx, next.Tip()))
		got, err = d.LoadChain(ctx)
		require.NoError(t, err)
		require.Equal(t, next, got)
	})
}
