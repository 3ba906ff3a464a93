package node

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/tracing/opentracing"
	"github.com/lamassuiot/dcrl/pkg/protocol"
	"github.com/lamassuiot/dcrl/pkg/wire"

	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	stdopentracing "github.com/opentracing/opentracing-go"

	"github.com/gorilla/mux"
)

// PeerHeader carries the sender's advertised address on peer messages.
const PeerHeader = "X-DCRL-Peer"

var (
	ErrBadRouting         = errors.New("inconsistent mapping between route and handler")
	ErrUnsupportedContent = errors.New("unsupported content type")
	ErrBase64Decoding     = errors.New("error decoding base64")
	ErrReadingBody        = errors.New("error reading request body")
	ErrMissingPeer        = errors.New("missing " + PeerHeader + " header")
)

type errorer interface {
	error() error
}

func MakeHTTPHandler(s Service, logger log.Logger, strict bool, otTracer stdopentracing.Tracer) http.Handler {
	r := mux.NewRouter()
	e := MakeServerEndpoints(s, otTracer)

	options := []httptransport.ServerOption{
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
		httptransport.ServerErrorEncoder(encodeError),
	}

	r.Methods("GET").Path("/health").Handler(httptransport.NewServer(
		e.HealthEndpoint,
		decodeHealthRequest,
		encodeJSONResponse,
		append(options, httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "Health", logger)))...,
	))

	r.Methods("GET").Path("/check/{hash}").Handler(httptransport.NewServer(
		e.CheckEndpoint,
		decodeCheckRequest,
		encodeJSONResponse,
		append(options, httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "Check", logger)))...,
	))

	r.Methods("POST").Path("/revoke").Handler(httptransport.NewServer(
		e.RevokeEndpoint,
		decodeRevokeRequest,
		encodeJSONResponse,
		append(options, httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "Revoke", logger)))...,
	))

	r.Methods("POST").Path("/dcrl").Handler(httptransport.NewServer(
		e.MessageEndpoint,
		checkStrictRequest(strict),
		encodeMessageResponse,
		append(options, httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "Message", logger)))...,
	))

	r.Methods("GET").Path("/status").Handler(httptransport.NewServer(
		e.StatusEndpoint,
		decodeStatusRequest,
		encodeJSONResponse,
		append(options, httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "Status", logger)))...,
	))

	r.Methods("GET").Path("/chain").Handler(httptransport.NewServer(
		e.ChainEndpoint,
		decodeStatusRequest,
		encodeJSONResponse,
		append(options, httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "Chain", logger)))...,
	))

	r.Methods("POST").Path("/sync").Handler(httptransport.NewServer(
		e.SyncEndpoint,
		decodeSyncRequest,
		encodeJSONResponse,
		append(options, httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, "Sync", logger)))...,
	))

	return r
}

func decodeHealthRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req healthRequest
	return req, nil
}

func decodeStatusRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req statusRequest
	return req, nil
}

func decodeSyncRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req syncRequest
	return req, nil
}

// DecodeHash accepts standard or URL-safe base64, with or without padding.
func DecodeHash(s string) ([]byte, error) {
	s, err := url.PathUnescape(s)
	if err != nil {
		return nil, ErrBase64Decoding
	}
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	h, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrBase64Decoding
	}
	return h, nil
}

func decodeCheckRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	vars := mux.Vars(r)
	raw, ok := vars["hash"]
	if !ok {
		return nil, ErrBadRouting
	}
	h, err := DecodeHash(raw)
	if err != nil {
		return nil, err
	}
	return checkRequest{Hash: h}, nil
}

func decodeRevokeRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	defer r.Body.Close()
	var req revokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(&req); err != nil {
		return nil, ErrReadingBody
	}
	return req, nil
}

func checkStrictRequest(strict bool) httptransport.DecodeRequestFunc {
	if strict {
		return decodeMessageStrictRequest
	}
	return decodeMessageRequest
}

func decodeMessageStrictRequest(ctx context.Context, r *http.Request) (interface{}, error) {
	if r.Header.Get("Content-Type") != wire.ContentType {
		return nil, ErrUnsupportedContent
	}
	return decodeMessageRequest(ctx, r)
}

func decodeMessageRequest(ctx context.Context, r *http.Request) (interface{}, error) {
	defer r.Body.Close()
	from := r.Header.Get(PeerHeader)
	if from == "" {
		return nil, ErrMissingPeer
	}
	msg, err := wire.Read(r.Body)
	if err != nil {
		return nil, ErrReadingBody
	}
	return messageRequest{From: protocol.PeerID(from), Msg: msg}, nil
}

func encodeMessageResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if e, ok := response.(errorer); ok && e.error() != nil {
		encodeError(ctx, e.error(), w)
		return nil
	}
	resp := response.(messageResponse)
	if resp.Reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	bs, err := wire.Marshal(*resp.Reply)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", wire.ContentType)
	_, err = w.Write(bs)
	return err
}

func encodeJSONResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if e, ok := response.(errorer); ok && e.error() != nil {
		encodeError(ctx, e.error(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(response)
}

func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	if err == nil {
		panic("encodeError with nil error")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(codeFrom(err))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
	})
}

func codeFrom(err error) int {
	switch err {
	case ErrBadRouting, ErrUnsupportedContent, ErrBase64Decoding, ErrReadingBody, ErrMissingPeer,
		ErrInvalidHash, ErrEmptyCertificate:
		return http.StatusBadRequest
	case ErrNotAuthority:
		return http.StatusForbidden
	case protocol.ErrNoPeers:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
