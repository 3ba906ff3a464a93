package node

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/tracing/opentracing"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/protocol"
	stdopentracing "github.com/opentracing/opentracing-go"
)

type Endpoints struct {
	HealthEndpoint  endpoint.Endpoint
	CheckEndpoint   endpoint.Endpoint
	RevokeEndpoint  endpoint.Endpoint
	MessageEndpoint endpoint.Endpoint
	StatusEndpoint  endpoint.Endpoint
	ChainEndpoint   endpoint.Endpoint
	SyncEndpoint    endpoint.Endpoint
}

func MakeServerEndpoints(s Service, otTracer stdopentracing.Tracer) Endpoints {
	var healthEndpoint endpoint.Endpoint
	{
		healthEndpoint = MakeHealthEndpoint(s)
		healthEndpoint = opentracing.TraceServer(otTracer, "Health")(healthEndpoint)
	}
	var checkEndpoint endpoint.Endpoint
	{
		checkEndpoint = MakeCheckEndpoint(s)
		checkEndpoint = opentracing.TraceServer(otTracer, "Check")(checkEndpoint)
	}
	var revokeEndpoint endpoint.Endpoint
	{
		revokeEndpoint = MakeRevokeEndpoint(s)
		revokeEndpoint = opentracing.TraceServer(otTracer, "Revoke")(revokeEndpoint)
	}
	var messageEndpoint endpoint.Endpoint
	{
		messageEndpoint = MakeMessageEndpoint(s)
		messageEndpoint = opentracing.TraceServer(otTracer, "Message")(messageEndpoint)
	}
	var statusEndpoint endpoint.Endpoint
	{
		statusEndpoint = MakeStatusEndpoint(s, false)
		statusEndpoint = opentracing.TraceServer(otTracer, "Status")(statusEndpoint)
	}
	var chainEndpoint endpoint.Endpoint
	{
		chainEndpoint = MakeStatusEndpoint(s, true)
		chainEndpoint = opentracing.TraceServer(otTracer, "Chain")(chainEndpoint)
	}
	var syncEndpoint endpoint.Endpoint
	{
		syncEndpoint = MakeSyncEndpoint(s)
		syncEndpoint = opentracing.TraceServer(otTracer, "Sync")(syncEndpoint)
	}
	return Endpoints{
		HealthEndpoint:  healthEndpoint,
		CheckEndpoint:   checkEndpoint,
		RevokeEndpoint:  revokeEndpoint,
		MessageEndpoint: messageEndpoint,
		StatusEndpoint:  statusEndpoint,
		ChainEndpoint:   chainEndpoint,
		SyncEndpoint:    syncEndpoint,
	}
}

func MakeHealthEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		healthy := s.Health(ctx)
		return healthResponse{Healthy: healthy}, nil
	}
}

func MakeCheckEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(checkRequest)
		status, err := s.Check(ctx, req.Hash)
		return checkResponse{Status: status, Err: err}, nil
	}
}

func MakeRevokeEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(revokeRequest)
		status, err := s.Revoke(ctx, req.Certificate)
		return revokeResponse{Status: status.String(), Err: err}, nil
	}
}

func MakeMessageEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(messageRequest)
		reply, err := s.Deliver(ctx, req.From, req.Msg)
		return messageResponse{Reply: reply, Err: err}, nil
	}
}

func MakeStatusEndpoint(s Service, withChain bool) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		info, err := s.Status(ctx, withChain)
		return statusResponse{ChainInfo: info, Err: err}, nil
	}
}

func MakeSyncEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		err = s.Sync(ctx)
		return syncResponse{Err: err}, nil
	}
}

type healthRequest struct{}

type healthResponse struct {
	Healthy bool  `json:"healthy,omitempty"`
	Err     error `json:"err,omitempty"`
}

type checkRequest struct {
	Hash []byte
}

type checkResponse struct {
	Status CertStatus `json:"status"`
	Err    error      `json:"-"`
}

func (r checkResponse) error() error { return r.Err }

type revokeRequest struct {
	Certificate dcrl.Certificate `json:"certificate"`
}

type revokeResponse struct {
	Status string `json:"status"`
	Err    error  `json:"-"`
}

func (r revokeResponse) error() error { return r.Err }

type messageRequest struct {
	From protocol.PeerID
	Msg  dcrl.Message
}

type messageResponse struct {
	Reply *dcrl.Message
	Err   error
}

func (r messageResponse) error() error { return r.Err }

type statusRequest struct{}

type statusResponse struct {
	ChainInfo
	Err error `json:"-"`
}

func (r statusResponse) error() error { return r.Err }

type syncRequest struct{}

type syncResponse struct {
	Err error `json:"-"`
}

func (r syncResponse) error() error { return r.Err }
