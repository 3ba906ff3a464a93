package protocol

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/lamassuiot/dcrl/pkg/chain"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
)

// Snapshot is a copy of a Machine's state taken on the worker goroutine.
type Snapshot struct {
	Height   int64
	TipHash  []byte
	Pending  int
	LastSync time.Time
	Produces bool

	// Chain is only filled when requested.
	Chain chain.Chain
}

type request struct {
	run   func(*Machine)
	ready chan struct{}
}

// Runner owns a Machine and runs every access to it on one goroutine.
// Handlers run under the Runner's own context, so work they start (such as
// flooding a block) outlives the request that triggered it.
type Runner struct {
	ctx      context.Context
	m        *Machine
	logger   log.Logger
	requests chan request
	done     chan struct{}
}

func NewRunner(ctx context.Context, logger log.Logger, m *Machine) *Runner {
	r := &Runner{
		ctx:      ctx,
		m:        m,
		logger:   logger,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Runner) run() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			level.Info(r.logger).Log("msg", "Protocol runner stopping", "cause", r.ctx.Err())
			return
		case req := <-r.requests:
			req.run(r.m)
			close(req.ready)
		}
	}
}

// Wait blocks until the runner's context is done and the worker has exited.
func (r *Runner) Wait() {
	<-r.done
}

func (r *Runner) call(ctx context.Context, fn func(*Machine)) error {
	req := request{run: fn, ready: make(chan struct{})}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	case r.requests <- req:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-req.ready:
		return nil
	}
}

// Deliver hands msg from a peer to the state machine and returns its reply.
func (r *Runner) Deliver(ctx context.Context, from PeerID, msg dcrl.Message) (*dcrl.Message, error) {
	var reply *dcrl.Message
	err := r.call(ctx, func(m *Machine) {
		reply = m.Handle(r.ctx, from, msg)
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// Receive handles msg like Deliver but sends any reply back to the peer
// through the Sender. Transports use it for messages that arrive as replies
// to earlier sends.
func (r *Runner) Receive(ctx context.Context, from PeerID, msg dcrl.Message) error {
	return r.call(ctx, func(m *Machine) {
		reply := m.Handle(r.ctx, from, msg)
		if reply == nil || m.cfg.Sender == nil {
			return
		}
		if err := m.cfg.Sender.Send(r.ctx, from, *reply); err != nil {
			level.Warn(r.logger).Log("err", err, "msg", "Could not send reply", "peer", from, "kind", reply.Kind())
		}
	})
}

func (r *Runner) Snapshot(ctx context.Context, withChain bool) (Snapshot, error) {
	var s Snapshot
	err := r.call(ctx, func(m *Machine) {
		s = Snapshot{
			Height:   m.Height(),
			TipHash:  m.TipHash(),
			Pending:  m.Pending(),
			LastSync: m.LastSync(),
			Produces: m.Produces(),
		}
		if withChain {
			s.Chain = m.Chain()
		}
	})
	return s, err
}

func (r *Runner) IsRevoked(ctx context.Context, hash []byte) (bool, error) {
	var revoked bool
	err := r.call(ctx, func(m *Machine) {
		revoked = m.IsRevoked(hash)
	})
	return revoked, err
}

func (r *Runner) RequestChain(ctx context.Context, peer PeerID) error {
	var sendErr error
	if err := r.call(ctx, func(m *Machine) {
		sendErr = m.RequestChain(r.ctx, peer)
	}); err != nil {
		return err
	}
	return sendErr
}

func (r *Runner) RequestChainDefault(ctx context.Context) error {
	var sendErr error
	if err := r.call(ctx, func(m *Machine) {
		sendErr = m.RequestChainDefault(r.ctx)
	}); err != nil {
		return err
	}
	return sendErr
}

func (r *Runner) Announce(ctx context.Context) error {
	var sendErr error
	if err := r.call(ctx, func(m *Machine) {
		sendErr = m.Announce(r.ctx)
	}); err != nil {
		return err
	}
	return sendErr
}

func (r *Runner) Revoke(ctx context.Context, cert dcrl.Certificate) (RevocationStatus, error) {
	var (
		status RevocationStatus
		revErr error
	)
	if err := r.call(ctx, func(m *Machine) {
		status, revErr = m.Revoke(r.ctx, cert)
	}); err != nil {
		return RevocationRejected, err
	}
	return status, revErr
}
