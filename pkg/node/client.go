package node

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-kit/kit/endpoint"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
)

// Client talks to the operator API of a node.
type Client struct {
	check  endpoint.Endpoint
	revoke endpoint.Endpoint
	status endpoint.Endpoint
	chain  endpoint.Endpoint
	sync   endpoint.Endpoint
}

func NewHTTPClient(instance string) (*Client, error) {
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return nil, err
	}
	return &Client{
		check:  httptransport.NewClient("GET", u, encodeCheckRequest, decodeJSONResponse(func() interface{} { return &checkResponse{} })).Endpoint(),
		revoke: httptransport.NewClient("POST", copyURL(u, "/revoke"), encodeJSONRequest, decodeJSONResponse(func() interface{} { return &revokeResponse{} })).Endpoint(),
		status: httptransport.NewClient("GET", copyURL(u, "/status"), httptransport.EncodeJSONRequest, decodeJSONResponse(func() interface{} { return &statusResponse{} })).Endpoint(),
		chain:  httptransport.NewClient("GET", copyURL(u, "/chain"), httptransport.EncodeJSONRequest, decodeJSONResponse(func() interface{} { return &statusResponse{} })).Endpoint(),
		sync:   httptransport.NewClient("POST", copyURL(u, "/sync"), httptransport.EncodeJSONRequest, decodeJSONResponse(func() interface{} { return &syncResponse{} })).Endpoint(),
	}, nil
}

func copyURL(base *url.URL, path string) *url.URL {
	next := *base
	next.Path = strings.TrimRight(base.Path, "/") + path
	return &next
}

func (c *Client) Check(ctx context.Context, certHash []byte) (CertStatus, error) {
	resp, err := c.check(ctx, checkRequest{Hash: certHash})
	if err != nil {
		return "", err
	}
	return resp.(*checkResponse).Status, nil
}

func (c *Client) Revoke(ctx context.Context, cert dcrl.Certificate) (string, error) {
	resp, err := c.revoke(ctx, revokeRequest{Certificate: cert})
	if err != nil {
		return "", err
	}
	return resp.(*revokeResponse).Status, nil
}

func (c *Client) Status(ctx context.Context, withChain bool) (ChainInfo, error) {
	e := c.status
	if withChain {
		e = c.chain
	}
	resp, err := e(ctx, struct{}{})
	if err != nil {
		return ChainInfo{}, err
	}
	return resp.(*statusResponse).ChainInfo, nil
}

func (c *Client) Sync(ctx context.Context) error {
	_, err := c.sync(ctx, struct{}{})
	return err
}

func encodeCheckRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(checkRequest)
	r.URL.Path = strings.TrimRight(r.URL.Path, "/") + "/check/" + base64.RawURLEncoding.EncodeToString(req.Hash)
	return nil
}

func encodeJSONRequest(_ context.Context, r *http.Request, request interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(request); err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	r.Body = ioutil.NopCloser(&buf)
	return nil
}

func decodeJSONResponse(newResponse func() interface{}) httptransport.DecodeResponseFunc {
	return func(_ context.Context, resp *http.Response) (interface{}, error) {
		if resp.StatusCode != http.StatusOK {
			var e struct {
				Error string `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
				return nil, errors.New(resp.Status)
			}
			return nil, errors.New(e.Error)
		}
		v := newResponse()
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
