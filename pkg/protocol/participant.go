package protocol

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/lamassuiot/dcrl/pkg/chain"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/lamassuiot/dcrl/pkg/signing"
)

type reasons []string

func (r *reasons) add(s string) { *r = append(*r, s) }

func (r reasons) String() string { return strings.Join(r, "; ") }

func (m *Machine) handleRevocation(ctx context.Context, from PeerID, sender dcrl.Certificate, rev *dcrl.CertificateRevocation) *dcrl.Message {
	var why reasons
	if !signing.VerifyVerboseAt(m.now(), sender, why.add, m.cfg.Trust, m.revoked, dcrl.UsageAuthority) {
		return m.errorReply(ctx, "revocation rejected: "+why.String())
	}

	senderHash := hashing.HashCertificate(sender)
	if !bytes.Equal(rev.Certificate.IssuerCertificateHash, senderHash) {
		return m.errorReply(ctx, "revocation rejected: revoked certificate was not issued by the sender")
	}
	if len(rev.AuthorityCertificateHash) > 0 && !bytes.Equal(rev.AuthorityCertificateHash, senderHash) {
		return m.errorReply(ctx, "revocation rejected: revoking authority does not match the sender")
	}

	revokedHash := hashing.HashCertificate(rev.Certificate)
	if m.revoked.Contains(revokedHash) || m.isPending(revokedHash) {
		return m.errorReply(ctx, "revocation rejected: certificate is already revoked")
	}

	m.pending = append(m.pending, *rev)
	level.Info(m.logger).Log("msg", "Revocation accepted", "peer", from, "subject", rev.Certificate.Subject, "pending", len(m.pending))

	if len(m.pending) >= m.cfg.RevocationsPerBlock {
		m.produceBlock(ctx)
	}
	return nil
}

func (m *Machine) isPending(hash []byte) bool {
	for _, r := range m.pending {
		if bytes.Equal(hashing.HashCertificate(r.Certificate), hash) {
			return true
		}
	}
	return false
}

// produceBlock commits the pending batch into a new block and floods it.
func (m *Machine) produceBlock(ctx context.Context) {
	id := m.cfg.Identity
	b := chain.NewBlock(id.Certificate, m.lastHeight+1, m.lastHash, m.now().UnixMilli(), m.pending)
	m.appendBlock(ctx, b)
	m.pending = nil
	level.Info(m.logger).Log("msg", "Block produced", "height", b.Height, "revocations", len(b.Revocations))

	msg, err := signing.NewSignedMessage(ctx, id.Certificate, id.Signer, &b)
	if err != nil {
		level.Error(m.logger).Log("err", err, "msg", "Could not sign produced block, it will not be flooded")
		return
	}
	m.flood(ctx, msg)
}

func (m *Machine) appendBlock(ctx context.Context, b dcrl.Block) {
	m.chain = append(m.chain, b)
	m.revoked.Fold(b)
	m.lastHeight = b.Height
	m.lastHash = hashing.HashBlock(b)
	m.prunePending()
	if m.cfg.Depot != nil {
		if err := m.cfg.Depot.AppendBlock(ctx, b); err != nil {
			level.Error(m.logger).Log("err", err, "msg", "Could not persist block", "height", b.Height)
		}
	}
}

func (m *Machine) flood(ctx context.Context, msg dcrl.Message) {
	if m.cfg.Sender == nil {
		return
	}
	for _, p := range m.cfg.Directory.Peers() {
		if err := m.cfg.Sender.Send(ctx, p, msg); err != nil {
			level.Warn(m.logger).Log("err", err, "msg", "Could not send to peer", "peer", p, "kind", msg.Kind())
		}
	}
}

func (m *Machine) handleBlock(ctx context.Context, from PeerID, sender dcrl.Certificate, b *dcrl.Block) *dcrl.Message {
	if !bytes.Equal(hashing.HashCertificate(b.Certificate), hashing.HashCertificate(sender)) {
		return m.errorReply(ctx, "signing certificate does not match the block's certificate")
	}

	var why reasons
	if !signing.VerifyVerboseAt(m.now(), b.Certificate, why.add, m.cfg.Trust, m.revoked, dcrl.UsageParticipation) {
		return m.errorReply(ctx, "block rejected: "+why.String())
	}
	if !bytes.Equal(b.MerkleRoot, hashing.MerkleRoot(b.Revocations)) {
		return m.errorReply(ctx, "block rejected: merkle root does not match its revocations")
	}

	switch {
	case b.Height <= m.lastHeight:
		return m.errorReply(ctx, fmt.Sprintf("stale block: height %d is not above %d", b.Height, m.lastHeight))
	case b.Height > m.lastHeight+1:
		level.Info(m.logger).Log("msg", "Block ahead of local tip, requesting chain", "peer", from, "height", b.Height, "local", m.lastHeight)
		return blockchainRequest()
	case !bytes.Equal(b.PreviousBlock, m.lastHash):
		level.Info(m.logger).Log("msg", "Block parent differs from local tip, requesting chain", "peer", from, "height", b.Height)
		return blockchainRequest()
	}

	m.appendBlock(ctx, *b)
	level.Info(m.logger).Log("msg", "Block accepted", "peer", from, "height", b.Height, "revocations", len(b.Revocations))
	return nil
}

func blockchainRequest() *dcrl.Message {
	return &dcrl.Message{Unsigned: &dcrl.UnsignedMessage{BlockchainRequest: &dcrl.BlockchainRequest{}}}
}

func (m *Machine) handleBlockchainRequest(ctx context.Context, from PeerID) *dcrl.Message {
	level.Debug(m.logger).Log("msg", "Serving chain", "peer", from, "height", m.lastHeight)
	return m.signedReply(ctx, &dcrl.BlockchainResponse{Blocks: m.chain.Clone()})
}

func (m *Machine) handleBlockRequest(ctx context.Context, from PeerID, req *dcrl.BlockRequest) *dcrl.Message {
	if req.Height < 0 || req.Height >= int64(len(m.chain)) {
		return m.errorReply(ctx, fmt.Sprintf("block height %d out of range [0, %d)", req.Height, len(m.chain)))
	}
	return m.signedReply(ctx, &dcrl.BlockResponse{Block: m.chain[req.Height]})
}

func (m *Machine) handleBlockchainResponse(ctx context.Context, from PeerID, resp *dcrl.BlockchainResponse) *dcrl.Message {
	candidate := chain.Chain(resp.Blocks)
	if !m.cfg.Produce && len(candidate) == 0 {
		return m.errorReply(ctx, "empty blockchain")
	}

	var why reasons
	if !chain.ValidateAt(m.now(), candidate, m.cfg.Trust, m.revoked, why.add) {
		level.Warn(m.logger).Log("msg", "Rejected chain from peer", "peer", from, "reason", why.String())
		return m.errorReply(ctx, "invalid blockchain")
	}

	m.replaceChain(ctx, candidate.Clone())
	level.Info(m.logger).Log("msg", "Chain replaced", "peer", from, "height", m.lastHeight)
	return nil
}

func (m *Machine) replaceChain(ctx context.Context, c chain.Chain) {
	m.setChain(c)
	m.lastSync = m.now()
	m.prunePending()

	if m.cfg.Depot != nil {
		if err := m.cfg.Depot.ReplaceChain(ctx, c); err != nil {
			level.Error(m.logger).Log("err", err, "msg", "Could not persist replaced chain")
		}
	}
}

// prunePending drops pending revocations the chain already commits.
func (m *Machine) prunePending() {
	if len(m.pending) == 0 {
		return
	}
	kept := m.pending[:0]
	for _, r := range m.pending {
		if !m.revoked.Contains(hashing.HashCertificate(r.Certificate)) {
			kept = append(kept, r)
		}
	}
	m.pending = kept
}
