package protocol

import (
	"context"

	"github.com/go-kit/kit/log/level"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/lamassuiot/dcrl/pkg/signing"
)

type RevocationStatus int

const (
	RevocationRejected RevocationStatus = iota
	RevocationStarted
)

func (s RevocationStatus) String() string {
	if s == RevocationStarted {
		return "REVOCATION_STARTED"
	}
	return "REVOCATION_REJECTED"
}

// RequestChain asks peer for its full chain. The response is handled as a
// later inbound message.
func (m *Machine) RequestChain(ctx context.Context, peer PeerID) error {
	if m.cfg.Sender == nil {
		return ErrNoPeers
	}
	level.Debug(m.logger).Log("msg", "Requesting chain", "peer", peer)
	return m.cfg.Sender.Send(ctx, peer, *blockchainRequest())
}

// RequestChainDefault asks the first preferred peer, or any known peer when
// there are no preferences.
func (m *Machine) RequestChainDefault(ctx context.Context) error {
	if len(m.cfg.Preferences) > 0 {
		return m.RequestChain(ctx, m.cfg.Preferences[0])
	}
	peers := m.cfg.Directory.Peers()
	if len(peers) == 0 {
		return ErrNoPeers
	}
	return m.RequestChain(ctx, peers[m.rand.Intn(len(peers))])
}

// Announce floods a signed Announce carrying a random nonce.
func (m *Machine) Announce(ctx context.Context) error {
	id := m.cfg.Identity
	if !id.usable() {
		return ErrNoIdentity
	}
	msg, err := signing.NewSignedMessage(ctx, id.Certificate, id.Signer, &dcrl.Announce{Nonce: m.rand.Int63()})
	if err != nil {
		return err
	}
	m.flood(ctx, msg)
	return nil
}

// Revoke signs a revocation of cert under the local identity and sends it to
// a random known peer, which batches it into a block.
func (m *Machine) Revoke(ctx context.Context, cert dcrl.Certificate) (RevocationStatus, error) {
	id := m.cfg.Identity
	if !id.usable() {
		return RevocationRejected, ErrNoIdentity
	}
	if cert.IsZero() {
		return RevocationRejected, nil
	}
	peers := m.cfg.Directory.Peers()
	if len(peers) == 0 || m.cfg.Sender == nil {
		return RevocationRejected, ErrNoPeers
	}

	rev := &dcrl.CertificateRevocation{
		Certificate:              cert,
		AuthorityCertificateHash: hashing.HashCertificate(id.Certificate),
		Timestamp:                m.now().UnixMilli(),
	}
	msg, err := signing.NewSignedMessage(ctx, id.Certificate, id.Signer, rev)
	if err != nil {
		return RevocationRejected, err
	}
	peer := peers[m.rand.Intn(len(peers))]
	if err := m.cfg.Sender.Send(ctx, peer, msg); err != nil {
		return RevocationRejected, err
	}
	level.Info(m.logger).Log("msg", "Revocation sent", "peer", peer, "subject", cert.Subject)
	return RevocationStarted, nil
}
