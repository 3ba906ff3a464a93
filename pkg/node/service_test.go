package node_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
	"github.com/lamassuiot/dcrl/pkg/node"
	"github.com/lamassuiot/dcrl/pkg/protocol"
	"github.com/lamassuiot/dcrl/pkg/protocol/protocoltest"
	"github.com/lamassuiot/dcrl/pkg/signing"
	"github.com/lamassuiot/dcrl/pkg/signing/signingtest"
	"github.com/lamassuiot/dcrl/pkg/truststore"
	"github.com/lamassuiot/dcrl/pkg/wire"
	stdopentracing "github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceSetUp struct {
	authority   *protocol.Identity
	participant *protocol.Identity
	target      dcrl.Certificate
	trust       *truststore.Memory
}

func setup() *serviceSetUp {
	signers := signingtest.DeterministicSigners(3)
	stu := &serviceSetUp{
		authority: &protocol.Identity{
			Certificate: signingtest.SelfSigned(signers[0], "authority", dcrl.UsageAuthority),
			Signer:      signers[0],
		},
		participant: &protocol.Identity{
			Certificate: signingtest.SelfSigned(signers[1], "participant", dcrl.UsageParticipation),
			Signer:      signers[1],
		},
	}
	stu.target = signingtest.Issued(signers[2], "device", stu.authority.Certificate, stu.authority.Signer, dcrl.UsageParticipation)
	stu.trust = truststore.NewMemory(stu.authority.Certificate, stu.participant.Certificate)
	return stu
}

// serve starts a node around a fresh runner. produce selects a participant
// node; otherwise the identity only issues revocations.
func (stu *serviceSetUp) serve(t *testing.T, id *protocol.Identity, produce bool) (*httptest.Server, *protocoltest.Recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rec := &protocoltest.Recorder{}
	m, err := protocol.NewMachine(ctx, protocol.Config{
		Identity:            id,
		Produce:             produce,
		Trust:               stu.trust,
		Sender:              rec,
		Directory:           protocol.StaticDirectory{"peer-b:8080"},
		RevocationsPerBlock: 1,
		Logger:              log.NewNopLogger(),
	})
	require.NoError(t, err)
	runner := protocol.NewRunner(ctx, log.NewNopLogger(), m)

	var svc node.Service
	{
		svc = node.NewService(runner, id)
		svc = node.LoggingMiddleware(log.NewNopLogger())(svc)
	}
	srv := httptest.NewServer(node.MakeHTTPHandler(svc, log.NewNopLogger(), true, stdopentracing.NoopTracer{}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		runner.Wait()
	})
	return srv, rec
}

func postMessage(t *testing.T, srv *httptest.Server, msg dcrl.Message) *http.Response {
	t.Helper()
	body, err := wire.Marshal(msg)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/dcrl", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", wire.ContentType)
	req.Header.Set(node.PeerHeader, "peer-a:8080")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func checkURL(srv *httptest.Server, cert dcrl.Certificate) string {
	return srv.URL + "/check/" + base64.RawURLEncoding.EncodeToString(node.CertificateHash(cert))
}

func TestHealth(t *testing.T) {
	stu := setup()
	srv, _ := stu.serve(t, stu.participant, true)

	var body map[string]bool
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	require.True(t, body["healthy"])
}

func TestRevocationOverTheWire(t *testing.T) {
	stu := setup()
	srv, rec := stu.serve(t, stu.participant, true)

	var check map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, checkURL(srv, stu.target), &check))
	require.Equal(t, string(node.StatusNotRevoked), check["status"])

	msg, err := signing.NewSignedMessage(context.Background(), stu.authority.Certificate, stu.authority.Signer, &dcrl.CertificateRevocation{
		Certificate:              stu.target,
		AuthorityCertificateHash: hashing.HashCertificate(stu.authority.Certificate),
		Timestamp:                1,
	})
	require.NoError(t, err)
	resp := postMessage(t, srv, msg)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Equal(t, http.StatusOK, getJSON(t, checkURL(srv, stu.target), &check))
	require.Equal(t, string(node.StatusRevoked), check["status"])

	var status node.ChainInfo
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/status", &status))
	assert.Equal(t, int64(1), status.Height)
	assert.Empty(t, status.Blocks)
	assert.True(t, status.Produces)

	var full node.ChainInfo
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/chain", &full))
	require.Len(t, full.Blocks, 2)
	require.Len(t, full.Blocks[1].Revocations, 1)

	// The produced block was flooded to the only known peer.
	sent := rec.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "BlockMessage", sent[0].Msg.Kind())

	// A second copy is answered with a signed error in the body.
	resp = postMessage(t, srv, msg)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply, err := wire.Read(resp.Body)
	require.NoError(t, err)
	text, ok := reply.ErrorText()
	require.True(t, ok)
	require.Contains(t, text, "already revoked")
}

func TestChainRequestReply(t *testing.T) {
	stu := setup()
	srv, _ := stu.serve(t, stu.participant, true)

	msg, err := dcrl.NewUnsigned(&dcrl.BlockchainRequest{})
	require.NoError(t, err)
	resp := postMessage(t, srv, msg)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, wire.ContentType, resp.Header.Get("Content-Type"))

	reply, err := wire.Read(resp.Body)
	require.NoError(t, err)
	require.True(t, signing.Verify(reply.Signed))
	require.NotNil(t, reply.Signed.BlockchainResponse)
	require.Len(t, reply.Signed.BlockchainResponse.Blocks, 1)
}

func TestBadRequests(t *testing.T) {
	stu := setup()
	srv, _ := stu.serve(t, stu.participant, true)

	testCases := []struct {
		name   string
		method string
		path   string
		header map[string]string
		body   []byte
		status int
	}{
		{"Short hash", http.MethodGet, "/check/AAAA", nil, nil, http.StatusBadRequest},
		{"Bad base64", http.MethodGet, "/check/%21%21%21", nil, nil, http.StatusBadRequest},
		{"Missing peer header", http.MethodPost, "/dcrl", map[string]string{"Content-Type": wire.ContentType}, []byte("x"), http.StatusBadRequest},
		{"Wrong content type", http.MethodPost, "/dcrl", map[string]string{"Content-Type": "text/plain", node.PeerHeader: "a:1"}, []byte("x"), http.StatusBadRequest},
		{"Garbage body", http.MethodPost, "/dcrl", map[string]string{"Content-Type": wire.ContentType, node.PeerHeader: "a:1"}, []byte("x"), http.StatusBadRequest},
		{"Bad revoke body", http.MethodPost, "/revoke", nil, []byte("{"), http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, bytes.NewReader(tc.body))
			require.NoError(t, err)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRevokeEndpoint(t *testing.T) {
	stu := setup()

	t.Run("Participant cannot revoke", func(t *testing.T) {
		srv, rec := stu.serve(t, stu.participant, true)
		body, _ := json.Marshal(map[string]interface{}{"certificate": stu.target})
		resp, err := http.Post(srv.URL+"/revoke", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Empty(t, rec.Messages())
	})

	t.Run("Authority sends revocation", func(t *testing.T) {
		srv, rec := stu.serve(t, stu.authority, false)
		body, _ := json.Marshal(map[string]interface{}{"certificate": stu.target})
		resp, err := http.Post(srv.URL+"/revoke", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		require.Equal(t, protocol.RevocationStarted.String(), out["status"])

		sent := rec.Messages()
		require.Len(t, sent, 1)
		assert.Equal(t, protocol.PeerID("peer-b:8080"), sent[0].To)
		assert.Equal(t, "CertificateRevocation", sent[0].Msg.Kind())
		assert.True(t, signing.Verify(sent[0].Msg.Signed))
	})

	t.Run("Empty certificate", func(t *testing.T) {
		srv, _ := stu.serve(t, stu.authority, false)
		resp, err := http.Post(srv.URL+"/revoke", "application/json", bytes.NewReader([]byte(`{}`)))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSync(t *testing.T) {
	stu := setup()
	srv, rec := stu.serve(t, nil, false)

	resp, err := http.Post(srv.URL+"/sync", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sent := rec.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "BlockchainRequest", sent[0].Msg.Kind())
}

func TestDecodeHash(t *testing.T) {
	h := hashing.Sum([]byte("x"))
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		got, err := node.DecodeHash(enc.EncodeToString(h))
		require.NoError(t, err)
		require.Equal(t, h, got)
	}
	_, err := node.DecodeHash("***")
	require.ErrorIs(t, err, node.ErrBase64Decoding)
}

func TestHTTPClient(t *testing.T) {
	stu := setup()
	srv, _ := stu.serve(t, stu.participant, true)
	ctx := context.Background()

	c, err := node.NewHTTPClient(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	status, err := c.Check(ctx, node.CertificateHash(stu.target))
	require.NoError(t, err)
	require.Equal(t, node.StatusNotRevoked, status)

	_, err = c.Check(ctx, []byte{1, 2, 3})
	require.EqualError(t, err, node.ErrInvalidHash.Error())

	_, err = c.Revoke(ctx, stu.target)
	require.EqualError(t, err, node.ErrNotAuthority.Error())

	info, err := c.Status(ctx, true)
	require.NoError(t, err)
	require.Equal(t, int64(0), info.Height)
	require.Len(t, info.Blocks, 1)

	require.NoError(t, c.Sync(ctx))
}
