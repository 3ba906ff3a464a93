package node

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/protocol"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger log.Logger
}

func (mw loggingMiddleware) Health(ctx context.Context) (healthy bool) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Health",
			"healthy", healthy,
			"took", time.Since(begin),
		)
	}(time.Now())
	return mw.next.Health(ctx)
}

func (mw loggingMiddleware) Check(ctx context.Context, certHash []byte) (status CertStatus, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Check",
			"status", status,
			"took", time.Since(begin),
			"err", err)
	}(time.Now())
	return mw.next.Check(ctx, certHash)
}

func (mw loggingMiddleware) Revoke(ctx context.Context, cert dcrl.Certificate) (status protocol.RevocationStatus, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Revoke",
			"subject", cert.Subject,
			"status", status,
			"took", time.Since(begin),
			"err", err)
	}(time.Now())
	return mw.next.Revoke(ctx, cert)
}

func (mw loggingMiddleware) Deliver(ctx context.Context, from protocol.PeerID, msg dcrl.Message) (reply *dcrl.Message, err error) {
	defer func(begin time.Time) {
		replyKind := ""
		if reply != nil {
			replyKind = reply.Kind()
		}
		mw.logger.Log(
			"method", "Deliver",
			"from", from,
			"kind", msg.Kind(),
			"reply", replyKind,
			"took", time.Since(begin),
			"err", err)
	}(time.Now())
	return mw.next.Deliver(ctx, from, msg)
}

func (mw loggingMiddleware) Status(ctx context.Context, withChain bool) (info ChainInfo, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Status",
			"chain", withChain,
			"height", info.Height,
			"took", time.Since(begin),
			"err", err)
	}(time.Now())
	return mw.next.Status(ctx, withChain)
}

func (mw loggingMiddleware) Sync(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Sync",
			"took", time.Since(begin),
			"err", err)
	}(time.Now())
	return mw.next.Sync(ctx)
}
