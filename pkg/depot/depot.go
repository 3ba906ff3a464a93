package depot

import (
	"context"

	"github.com/lamassuiot/dcrl/pkg/chain"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
)

// Depot persists the local chain. LoadChain returns an empty chain when
// nothing has been stored yet.
type Depot interface {
	LoadChain(ctx context.Context) (chain.Chain, error)
	AppendBlock(ctx context.Context, b dcrl.Block) error
	ReplaceChain(ctx context.Context, c chain.Chain) error
}
