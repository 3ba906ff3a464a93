package node

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/protocol"
)

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func NewInstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return &instrumentingMiddleware{
			requestCount:   counter,
			requestLatency: latency,
			next:           next,
		}
	}
}

func (mw *instrumentingMiddleware) observe(method string, err error, begin time.Time) {
	lvs := []string{"method", method, "error", fmt.Sprint(err != nil)}
	mw.requestCount.With(lvs...).Add(1)
	mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func (mw *instrumentingMiddleware) Health(ctx context.Context) bool {
	defer func(begin time.Time) {
		lvs := []string{"method", "Health", "error", "false"}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.Health(ctx)
}

func (mw *instrumentingMiddleware) Check(ctx context.Context, certHash []byte) (s CertStatus, err error) {
	defer func(begin time.Time) { mw.observe("Check", err, begin) }(time.Now())
	return mw.next.Check(ctx, certHash)
}

func (mw *instrumentingMiddleware) Revoke(ctx context.Context, cert dcrl.Certificate) (s protocol.RevocationStatus, err error) {
	defer func(begin time.Time) { mw.observe("Revoke", err, begin) }(time.Now())
	return mw.next.Revoke(ctx, cert)
}

func (mw *instrumentingMiddleware) Deliver(ctx context.Context, from protocol.PeerID, msg dcrl.Message) (reply *dcrl.Message, err error) {
	defer func(begin time.Time) { mw.observe("Deliver", err, begin) }(time.Now())
	return mw.next.Deliver(ctx, from, msg)
}

func (mw *instrumentingMiddleware) Status(ctx context.Context, withChain bool) (info ChainInfo, err error) {
	defer func(begin time.Time) { mw.observe("Status", err, begin) }(time.Now())
	return mw.next.Status(ctx, withChain)
}

func (mw *instrumentingMiddleware) Sync(ctx context.Context) (err error) {
	defer func(begin time.Time) { mw.observe("Sync", err, begin) }(time.Now())
	return mw.next.Sync(ctx)
}
