package node

import (
	"context"
	"errors"
	"time"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/lamassuiot/dcrl/pkg/protocol"
)

type CertStatus string

const (
	StatusRevoked    CertStatus = "REVOKED"
	StatusNotRevoked CertStatus = "NOT_REVOKED"
)

var (
	ErrInvalidHash      = errors.New("certificate hash must be 32 bytes")
	ErrNotAuthority     = errors.New("node is not a revocation authority")
	ErrEmptyCertificate = errors.New("certificate is empty")
)

type Service interface {
	Health(ctx context.Context) bool
	Check(ctx context.Context, certHash []byte) (CertStatus, error)
	Revoke(ctx context.Context, cert dcrl.Certificate) (protocol.RevocationStatus, error)
	Deliver(ctx context.Context, from protocol.PeerID, msg dcrl.Message) (*dcrl.Message, error)
	Status(ctx context.Context, withChain bool) (ChainInfo, error)
	Sync(ctx context.Context) error
}

// ChainInfo describes the local chain tip.
type ChainInfo struct {
	Height   int64        `json:"height"`
	TipHash  []byte       `json:"tip_hash"`
	Pending  int          `json:"pending"`
	LastSync time.Time    `json:"last_sync,omitempty"`
	Produces bool         `json:"produces"`
	Blocks   []dcrl.Block `json:"blocks,omitempty"`
}

// Protocol is the part of protocol.Runner the node serves from.
type Protocol interface {
	Deliver(ctx context.Context, from protocol.PeerID, msg dcrl.Message) (*dcrl.Message, error)
	Snapshot(ctx context.Context, withChain bool) (protocol.Snapshot, error)
	IsRevoked(ctx context.Context, hash []byte) (bool, error)
	Revoke(ctx context.Context, cert dcrl.Certificate) (protocol.RevocationStatus, error)
	RequestChainDefault(ctx context.Context) error
}

type DCRLNode struct {
	proto     Protocol
	authority bool
}

// NewService serves proto. identity may be nil for observers; only an
// identity carrying AUTHORITY usage may start revocations.
func NewService(proto Protocol, identity *protocol.Identity) Service {
	return &DCRLNode{
		proto:     proto,
		authority: identity != nil && identity.Certificate.HasUsage(dcrl.UsageAuthority),
	}
}

func (n *DCRLNode) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err := n.proto.Snapshot(ctx, false)
	return err == nil
}

func (n *DCRLNode) Check(ctx context.Context, certHash []byte) (CertStatus, error) {
	if len(certHash) != hashing.Size {
		return "", ErrInvalidHash
	}
	revoked, err := n.proto.IsRevoked(ctx, certHash)
	if err != nil {
		return "", err
	}
	if revoked {
		return StatusRevoked, nil
	}
	return StatusNotRevoked, nil
}

func (n *DCRLNode) Revoke(ctx context.Context, cert dcrl.Certificate) (protocol.RevocationStatus, error) {
	if !n.authority {
		return protocol.RevocationRejected, ErrNotAuthority
	}
	if cert.IsZero() {
		return protocol.RevocationRejected, ErrEmptyCertificate
	}
	return n.proto.Revoke(ctx, cert)
}

func (n *DCRLNode) Deliver(ctx context.Context, from protocol.PeerID, msg dcrl.Message) (*dcrl.Message, error) {
	return n.proto.Deliver(ctx, from, msg)
}

func (n *DCRLNode) Status(ctx context.Context, withChain bool) (ChainInfo, error) {
	s, err := n.proto.Snapshot(ctx, withChain)
	if err != nil {
		return ChainInfo{}, err
	}
	return ChainInfo{
		Height:   s.Height,
		TipHash:  s.TipHash,
		Pending:  s.Pending,
		LastSync: s.LastSync,
		Produces: s.Produces,
		Blocks:   []dcrl.Block(s.Chain),
	}, nil
}

func (n *DCRLNode) Sync(ctx context.Context) error {
	return n.proto.RequestChainDefault(ctx)
}

// CertificateHash is the identifier accepted by Check.
func CertificateHash(c dcrl.Certificate) []byte {
	return hashing.HashCertificate(c)
}
