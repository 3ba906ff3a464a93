package peer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/lamassuiot/dcrl/pkg/node"
	"github.com/lamassuiot/dcrl/pkg/peer"
	"github.com/lamassuiot/dcrl/pkg/protocol"
	"github.com/lamassuiot/dcrl/pkg/signing"
	"github.com/lamassuiot/dcrl/pkg/signing/signingtest"
	"github.com/lamassuiot/dcrl/pkg/truststore"
	"github.com/lamassuiot/dcrl/pkg/wire"
	stdopentracing "github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu   sync.Mutex
	from []protocol.PeerID
	msgs []dcrl.Message
}

func (i *inbox) Receive(_ context.Context, from protocol.PeerID, msg dcrl.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.from = append(i.from, from)
	i.msgs = append(i.msgs, msg)
	return nil
}

func peerID(srv *httptest.Server) protocol.PeerID {
	return protocol.PeerID(strings.TrimPrefix(srv.URL, "http://"))
}

func TestSendFeedsReplyToInbound(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		msg, err := wire.Read(r.Body)
		if err != nil || msg.Kind() != "BlockchainRequest" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		reply, _ := dcrl.NewUnsigned(&dcrl.ErrorMessage{Message: "nothing here"})
		w.Header().Set("Content-Type", wire.ContentType)
		wire.Write(w, reply)
	}))
	defer srv.Close()

	in := &inbox{}
	c := peer.NewClient("me:9000", log.NewNopLogger(), stdopentracing.NoopTracer{})
	c.Attach(in)

	msg, err := dcrl.NewUnsigned(&dcrl.BlockchainRequest{})
	require.NoError(t, err)
	require.NoError(t, c.Send(context.Background(), peerID(srv), msg))
	c.Wait()

	h := <-headers
	assert.Equal(t, "me:9000", h.Get(node.PeerHeader))
	assert.Equal(t, wire.ContentType, h.Get("Content-Type"))
	require.Len(t, in.msgs, 1)
	assert.Equal(t, peerID(srv), in.from[0])
	text, ok := in.msgs[0].ErrorText()
	require.True(t, ok)
	assert.Equal(t, "nothing here", text)
}

func TestSendWithoutReply(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		in := &inbox{}
		c := peer.NewClient("me:9000", log.NewNopLogger(), nil)
		c.Attach(in)

		msg, _ := dcrl.NewUnsigned(&dcrl.BlockRequest{Height: 1})
		require.NoError(t, c.Send(context.Background(), peerID(srv), msg))
		c.Wait()
		srv.Close()
		require.Empty(t, in.msgs, "status %d", status)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	c := peer.NewClient("me:9000", log.NewNopLogger(), nil)
	require.ErrorIs(t, c.Send(context.Background(), "nowhere:1", dcrl.Message{}), wire.ErrEmpty)
}

// switchHandler lets a server exist before the node it serves.
type switchHandler struct {
	h http.Handler
}

func (s *switchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.h.ServeHTTP(w, r) }

type httpNode struct {
	srv    *httptest.Server
	sw     *switchHandler
	client *peer.Client
	runner *protocol.Runner
}

func TestBlockFloodsBetweenNodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signers := signingtest.DeterministicSigners(4)
	authority := &protocol.Identity{Certificate: signingtest.SelfSigned(signers[0], "authority", dcrl.UsageAuthority), Signer: signers[0]}
	trust := truststore.NewMemory(authority.Certificate)
	var ids []*protocol.Identity
	for i := 1; i <= 2; i++ {
		id := &protocol.Identity{Certificate: signingtest.SelfSigned(signers[i], "participant", dcrl.UsageParticipation), Signer: signers[i]}
		trust.Add(id.Certificate)
		ids = append(ids, id)
	}

	nodes := make([]*httpNode, 2)
	for i := range nodes {
		sw := &switchHandler{}
		srv := httptest.NewServer(sw)
		defer srv.Close()
		nodes[i] = &httpNode{srv: srv, sw: sw}
	}
	for i, n := range nodes {
		other := nodes[1-i]
		n.client = peer.NewClient(peerID(n.srv), log.NewNopLogger(), nil)
		m, err := protocol.NewMachine(ctx, protocol.Config{
			Identity:            ids[i],
			Produce:             true,
			Trust:               trust,
			Sender:              n.client,
			Directory:           protocol.StaticDirectory{peerID(other.srv)},
			RevocationsPerBlock: 1,
			Logger:              log.NewNopLogger(),
		})
		require.NoError(t, err)
		n.runner = protocol.NewRunner(ctx, log.NewNopLogger(), m)
		n.client.Attach(n.runner)
		n.sw.h = node.MakeHTTPHandler(node.NewService(n.runner, ids[i]), log.NewNopLogger(), true, stdopentracing.NoopTracer{})
	}

	target := signingtest.Issued(signers[3], "device", authority.Certificate, authority.Signer, dcrl.UsageParticipation)
	rev, err := signing.NewSignedMessage(ctx, authority.Certificate, authority.Signer, &dcrl.CertificateRevocation{
		Certificate:              target,
		AuthorityCertificateHash: hashing.HashCertificate(authority.Certificate),
	})
	require.NoError(t, err)
	reply, err := nodes[0].runner.Deliver(ctx, "authority:1", rev)
	require.NoError(t, err)
	require.Nil(t, reply)

	// Node 0 floods its block to node 1, which accepts it without reply.
	nodes[0].client.Wait()

	for _, n := range nodes {
		s, err := n.runner.Snapshot(ctx, false)
		require.NoError(t, err)
		require.Equal(t, int64(1), s.Height)
		revoked, err := n.runner.IsRevoked(ctx, hashing.HashCertificate(target))
		require.NoError(t, err)
		require.True(t, revoked)
	}
}
