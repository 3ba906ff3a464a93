package protocol_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/lamassuiot/dcrl/pkg/protocol"
	"github.com/lamassuiot/dcrl/pkg/signing"
	"github.com/lamassuiot/dcrl/pkg/signing/signingtest"
	"github.com/lamassuiot/dcrl/pkg/truststore"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	authority    *protocol.Identity
	participants []*protocol.Identity
	stranger     *protocol.Identity
	trust        *truststore.Memory

	targetSigners []signing.Ed25519Signer
}

const nParticipants = 3

func newFixture() *fixture {
	signers := signingtest.DeterministicSigners(2 + nParticipants + 16)
	f := &fixture{
		authority: &protocol.Identity{
			Certificate: signingtest.SelfSigned(signers[0], "authority", dcrl.UsageAuthority),
			Signer:      signers[0],
		},
		stranger: &protocol.Identity{
			Certificate: signingtest.SelfSigned(signers[1], "stranger", dcrl.UsageAuthority, dcrl.UsageParticipation),
			Signer:      signers[1],
		},
		targetSigners: signers[2+nParticipants:],
	}
	for i := 0; i < nParticipants; i++ {
		s := signers[2+i]
		f.participants = append(f.participants, &protocol.Identity{
			Certificate: signingtest.SelfSigned(s, fmt.Sprintf("participant-%d", i), dcrl.UsageParticipation),
			Signer:      s,
		})
	}
	f.trust = truststore.NewMemory(f.authority.Certificate)
	for _, p := range f.participants {
		f.trust.Add(p.Certificate)
	}
	return f
}

// target returns the i-th certificate issued by the authority.
func (f *fixture) target(i int) dcrl.Certificate {
	s := f.targetSigners[i]
	return signingtest.Issued(s, fmt.Sprintf("target-%d", i), f.authority.Certificate, f.authority.Signer, dcrl.UsageParticipation)
}

func signed(t *testing.T, id *protocol.Identity, payload interface{}) dcrl.Message {
	t.Helper()
	msg, err := signing.NewSignedMessage(context.Background(), id.Certificate, id.Signer, payload)
	require.NoError(t, err)
	return msg
}

func (f *fixture) revocation(t *testing.T, from *protocol.Identity, target dcrl.Certificate) dcrl.Message {
	return signed(t, from, &dcrl.CertificateRevocation{
		Certificate:              target,
		AuthorityCertificateHash: hashing.HashCertificate(from.Certificate),
		Timestamp:                1,
	})
}

type machineOpts struct {
	identity *protocol.Identity
	produce  bool
	sender   protocol.Sender
	dir      protocol.Directory
	prefs    []protocol.PeerID
	perBlock int
}

func (f *fixture) machine(t *testing.T, o machineOpts) *protocol.Machine {
	t.Helper()
	m, err := protocol.NewMachine(context.Background(), protocol.Config{
		Identity:            o.identity,
		Produce:             o.produce,
		Trust:               f.trust,
		Sender:              o.sender,
		Directory:           o.dir,
		Preferences:         o.prefs,
		RevocationsPerBlock: o.perBlock,
		Logger:              log.NewNopLogger(),
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) participant(t *testing.T, i int, sender protocol.Sender, dir protocol.Directory, perBlock int) *protocol.Machine {
	return f.machine(t, machineOpts{
		identity: f.participants[i],
		produce:  true,
		sender:   sender,
		dir:      dir,
		perBlock: perBlock,
	})
}

func requireError(t *testing.T, reply *dcrl.Message, contains string) {
	t.Helper()
	require.NotNil(t, reply, "expected an error reply")
	text, ok := reply.ErrorText()
	require.True(t, ok, "expected an error reply, got %s", reply.Kind())
	require.Contains(t, text, contains)
}

func requireBlockchainRequest(t *testing.T, reply *dcrl.Message) {
	t.Helper()
	require.NotNil(t, reply)
	require.NotNil(t, reply.Unsigned, "blockchain requests are unsigned")
	require.NotNil(t, reply.Unsigned.BlockchainRequest)
}

type mutableDirectory struct {
	mu    sync.Mutex
	peers []protocol.PeerID
}

func (d *mutableDirectory) Set(peers ...protocol.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers = peers
}

func (d *mutableDirectory) Peers() []protocol.PeerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.PeerID(nil), d.peers...)
}
