// Package protocol implements the per-peer state machine that turns inbound
// DCRL messages into block production, chain extension and chain
// resynchronisation.
//
// A Machine is not safe for concurrent use. Run it behind a Runner, which
// serialises every inbound message and query through one goroutine.
package protocol

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/lamassuiot/dcrl/pkg/chain"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/depot"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/lamassuiot/dcrl/pkg/signing"
)

var (
	ErrNoPeers           = errors.New("no known peers")
	ErrNoIdentity        = errors.New("node has no signing identity")
	ErrNoTrustStore      = errors.New("trust store is required")
	ErrProduceNeedsIdent = errors.New("block production requires a signing identity")
	ErrStopped           = errors.New("protocol runner stopped")
)

// PeerID addresses a peer for the transport.
type PeerID string

// Sender delivers a message to a peer without waiting for a reply. A reply,
// if any, comes back later as its own inbound message.
type Sender interface {
	Send(ctx context.Context, to PeerID, msg dcrl.Message) error
}

// Directory lists the peers known at the time of the call.
type Directory interface {
	Peers() []PeerID
}

// StaticDirectory is a fixed peer list.
type StaticDirectory []PeerID

func (d StaticDirectory) Peers() []PeerID { return append([]PeerID(nil), d...) }

// Identity is the certificate and key a node signs with.
type Identity struct {
	Certificate dcrl.Certificate
	Signer      signing.Signer
}

func (id *Identity) usable() bool {
	return id != nil && id.Signer != nil && !id.Certificate.IsZero()
}

type Config struct {
	// Identity signs replies and produced blocks. Without it, error replies
	// are sent unsigned.
	Identity *Identity

	// Produce enables the participant capabilities: accepting revocations,
	// producing and accepting blocks, and serving chain data. Observers leave
	// it false.
	Produce bool

	Trust     signing.TrustLookup
	Sender    Sender
	Directory Directory

	// Preferences are asked first by RequestChain.
	Preferences []PeerID

	RevocationsPerBlock int

	// Depot persists the chain. Optional.
	Depot depot.Depot

	Logger log.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// Rand defaults to a time-seeded source.
	Rand *rand.Rand
}

type Machine struct {
	cfg    Config
	logger log.Logger
	now    func() time.Time
	rand   *rand.Rand

	chain      chain.Chain
	revoked    chain.RevokedIndex
	lastHeight int64
	lastHash   []byte
	pending    []dcrl.CertificateRevocation
	lastSync   time.Time
}

func NewMachine(ctx context.Context, cfg Config) (*Machine, error) {
	if cfg.Trust == nil {
		return nil, ErrNoTrustStore
	}
	if cfg.Produce && !cfg.Identity.usable() {
		return nil, ErrProduceNeedsIdent
	}
	if cfg.RevocationsPerBlock <= 0 {
		cfg.RevocationsPerBlock = 1
	}
	if cfg.Directory == nil {
		cfg.Directory = StaticDirectory(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	m := &Machine{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    cfg.Now,
		rand:   cfg.Rand,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.rand == nil {
		m.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	c := chain.New()
	if cfg.Depot != nil {
		stored, err := cfg.Depot.LoadChain(ctx)
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			c = stored
			level.Info(m.logger).Log("msg", "Chain loaded from depot", "height", stored.Tip().Height)
		}
	}
	m.setChain(c)
	return m, nil
}

func (m *Machine) setChain(c chain.Chain) {
	m.chain = c
	m.revoked = chain.BuildIndex(c)
	tip := c.Tip()
	m.lastHeight = tip.Height
	m.lastHash = hashing.HashBlock(tip)
}

// Handle processes one inbound message and returns the reply for the sender,
// or nil when there is none.
func (m *Machine) Handle(ctx context.Context, from PeerID, msg dcrl.Message) *dcrl.Message {
	switch {
	case msg.Signed != nil && msg.Unsigned == nil:
		return m.handleSigned(ctx, from, msg.Signed)
	case msg.Unsigned != nil && msg.Signed == nil:
		return m.handleUnsigned(ctx, from, msg.Unsigned)
	default:
		return m.errorReply(ctx, "malformed message")
	}
}

func (m *Machine) handleSigned(ctx context.Context, from PeerID, sm *dcrl.SignedMessage) *dcrl.Message {
	if !signing.Verify(sm) {
		level.Warn(m.logger).Log("msg", "Signature verification failed", "peer", from)
		return m.errorReply(ctx, "bad signature")
	}
	switch p := sm.Payload().(type) {
	case *dcrl.CertificateRevocation:
		if !m.cfg.Produce {
			return m.unsupported(ctx, p)
		}
		return m.handleRevocation(ctx, from, sm.Certificate, p)
	case *dcrl.Block:
		if !m.cfg.Produce {
			return m.unsupported(ctx, p)
		}
		return m.handleBlock(ctx, from, sm.Certificate, p)
	case *dcrl.BlockchainResponse:
		return m.handleBlockchainResponse(ctx, from, p)
	case *dcrl.BlockResponse:
		level.Debug(m.logger).Log("msg", "Block received", "peer", from, "height", p.Block.Height)
		return nil
	case *dcrl.ErrorMessage:
		m.logPeerError(from, sm.Certificate.Subject, p)
		return nil
	case *dcrl.Announce:
		level.Debug(m.logger).Log("msg", "Announce received", "peer", from, "subject", sm.Certificate.Subject, "nonce", p.Nonce)
		return nil
	default:
		return m.errorReply(ctx, "malformed message")
	}
}

func (m *Machine) handleUnsigned(ctx context.Context, from PeerID, um *dcrl.UnsignedMessage) *dcrl.Message {
	switch p := um.Payload().(type) {
	case *dcrl.BlockchainRequest:
		if !m.cfg.Produce {
			return m.unsupported(ctx, p)
		}
		return m.handleBlockchainRequest(ctx, from)
	case *dcrl.BlockRequest:
		if !m.cfg.Produce {
			return m.unsupported(ctx, p)
		}
		return m.handleBlockRequest(ctx, from, p)
	case *dcrl.ErrorMessage:
		m.logPeerError(from, "", p)
		return nil
	default:
		return m.errorReply(ctx, "malformed message")
	}
}

func (m *Machine) logPeerError(from PeerID, subject string, e *dcrl.ErrorMessage) {
	level.Warn(m.logger).Log("msg", "Peer reported an error", "peer", from, "subject", subject, "error", e.Message)
}

// Height returns the height of the local tip.
func (m *Machine) Height() int64 { return m.lastHeight }

// TipHash returns a copy of the hash of the local tip.
func (m *Machine) TipHash() []byte { return append([]byte(nil), m.lastHash...) }

// Chain returns a copy of the local chain.
func (m *Machine) Chain() chain.Chain { return m.chain.Clone() }

// Pending returns the number of revocations waiting for a block.
func (m *Machine) Pending() int { return len(m.pending) }

// LastSync is the time the chain was last replaced from a peer.
func (m *Machine) LastSync() time.Time { return m.lastSync }

// IsRevoked reports whether the certificate with the given hash has been
// revoked by a block in the local chain.
func (m *Machine) IsRevoked(hash []byte) bool { return m.revoked.Contains(hash) }

func (m *Machine) Produces() bool { return m.cfg.Produce }

func (m *Machine) Identity() *Identity { return m.cfg.Identity }
