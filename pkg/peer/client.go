// Package peer sends DCRL messages to other nodes over HTTP.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/tracing/opentracing"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/node"
	"github.com/lamassuiot/dcrl/pkg/protocol"
	"github.com/lamassuiot/dcrl/pkg/wire"
	stdopentracing "github.com/opentracing/opentracing-go"
)

const DefaultTimeout = 10 * time.Second

// Inbound receives replies that peers return in their HTTP responses.
// *protocol.Runner satisfies it.
type Inbound interface {
	Receive(ctx context.Context, from protocol.PeerID, msg dcrl.Message) error
}

// Client is a protocol.Sender. Each Send posts to the peer on its own
// goroutine and feeds the reply, if any, to the attached Inbound.
type Client struct {
	self    protocol.PeerID
	http    *http.Client
	tracer  stdopentracing.Tracer
	logger  log.Logger
	timeout time.Duration
	scheme  string

	mu      sync.RWMutex
	inbound Inbound
	wg      sync.WaitGroup
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithScheme selects "https" for peers served over TLS.
func WithScheme(scheme string) Option {
	return func(cl *Client) { cl.scheme = scheme }
}

// NewClient returns a Client that advertises self as its address.
func NewClient(self protocol.PeerID, logger log.Logger, tracer stdopentracing.Tracer, opts ...Option) *Client {
	c := &Client{
		self:    self,
		http:    http.DefaultClient,
		tracer:  tracer,
		logger:  logger,
		timeout: DefaultTimeout,
		scheme:  "http",
	}
	for _, o := range opts {
		o(c)
	}
	if c.tracer == nil {
		c.tracer = stdopentracing.NoopTracer{}
	}
	return c
}

// Attach sets where replies go. The runner needs the client as its Sender,
// so it is attached after both exist.
func (c *Client) Attach(in Inbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = in
}

func (c *Client) Send(ctx context.Context, to protocol.PeerID, msg dcrl.Message) error {
	body, err := wire.Marshal(msg)
	if err != nil {
		return err
	}
	// The send outlives ctx; only the trace span is carried over.
	sendCtx := context.Background()
	if span := stdopentracing.SpanFromContext(ctx); span != nil {
		sendCtx = stdopentracing.ContextWithSpan(sendCtx, span)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.deliver(sendCtx, to, msg.Kind(), body)
	}()
	return nil
}

// Wait blocks until every send started so far has finished.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) deliver(ctx context.Context, to protocol.PeerID, kind string, body []byte) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.endpoint(to)(ctx, body)
	if err != nil {
		level.Warn(c.logger).Log("err", err, "msg", "Could not deliver message", "peer", to, "kind", kind)
		return
	}
	reply := resp.(*dcrl.Message)
	if reply == nil {
		return
	}

	c.mu.RLock()
	in := c.inbound
	c.mu.RUnlock()
	if in == nil {
		level.Debug(c.logger).Log("msg", "Dropping reply, no inbound attached", "peer", to, "kind", reply.Kind())
		return
	}
	if err := in.Receive(context.Background(), to, *reply); err != nil {
		level.Debug(c.logger).Log("err", err, "msg", "Reply not handled", "peer", to, "kind", reply.Kind())
	}
}

func (c *Client) endpoint(to protocol.PeerID) endpoint.Endpoint {
	tgt := &url.URL{Scheme: c.scheme, Host: string(to), Path: "/dcrl"}
	var e endpoint.Endpoint
	{
		e = httptransport.NewClient(
			http.MethodPost,
			tgt,
			encodeMessageRequest(c.self),
			decodeMessageResponse,
			httptransport.SetClient(c.http),
			httptransport.ClientBefore(opentracing.ContextToHTTP(c.tracer, c.logger)),
		).Endpoint()
		e = opentracing.TraceClient(c.tracer, "Send")(e)
	}
	return e
}

func encodeMessageRequest(self protocol.PeerID) httptransport.EncodeRequestFunc {
	return func(_ context.Context, r *http.Request, request interface{}) error {
		body := request.([]byte)
		r.Header.Set("Content-Type", wire.ContentType)
		r.Header.Set(node.PeerHeader, string(self))
		r.ContentLength = int64(len(body))
		r.Body = ioutil.NopCloser(bytes.NewReader(body))
		return nil
	}
}

func decodeMessageResponse(_ context.Context, resp *http.Response) (interface{}, error) {
	switch resp.StatusCode {
	case http.StatusNoContent:
		return (*dcrl.Message)(nil), nil
	case http.StatusOK:
		msg, err := wire.Read(resp.Body)
		if err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return nil, fmt.Errorf("peer answered %d: %s", resp.StatusCode, e.Error)
	}
}
