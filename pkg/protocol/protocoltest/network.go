// Package protocoltest provides an in-process network for driving several
// state machines deterministically in tests.
package protocoltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/protocol"
)

// Handler is satisfied by *protocol.Machine.
type Handler interface {
	Handle(ctx context.Context, from protocol.PeerID, msg dcrl.Message) *dcrl.Message
}

// Delivery records one message handed to a peer and the reply it produced.
type Delivery struct {
	From, To protocol.PeerID
	Msg      dcrl.Message
	Reply    *dcrl.Message
}

type envelope struct {
	from, to protocol.PeerID
	msg      dcrl.Message
}

// Network queues every send and delivers it on Flush, feeding replies back to
// the original sender. Nothing is delivered concurrently.
type Network struct {
	mu        sync.Mutex
	handlers  map[protocol.PeerID]Handler
	queue     []envelope
	delivered []Delivery
}

func NewNetwork() *Network {
	return &Network{handlers: map[protocol.PeerID]Handler{}}
}

func (n *Network) Join(id protocol.PeerID, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[id] = h
}

// Sender returns the Sender used by peer from.
func (n *Network) Sender(from protocol.PeerID) protocol.Sender {
	return sender{n: n, from: from}
}

type sender struct {
	n    *Network
	from protocol.PeerID
}

func (s sender) Send(_ context.Context, to protocol.PeerID, msg dcrl.Message) error {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if _, ok := s.n.handlers[to]; !ok {
		return fmt.Errorf("unknown peer %q", to)
	}
	s.n.queue = append(s.n.queue, envelope{from: s.from, to: to, msg: msg})
	return nil
}

// Pending reports how many messages wait for delivery.
func (n *Network) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Flush delivers queued messages in order until the queue is empty. It fails
// if more than limit messages are delivered, which indicates a reply loop.
func (n *Network) Flush(ctx context.Context, limit int) error {
	for i := 0; ; i++ {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return nil
		}
		if i >= limit {
			n.mu.Unlock()
			return fmt.Errorf("network did not settle after %d deliveries", limit)
		}
		e := n.queue[0]
		n.queue = n.queue[1:]
		h := n.handlers[e.to]
		n.mu.Unlock()

		reply := h.Handle(ctx, e.from, e.msg)

		n.mu.Lock()
		n.delivered = append(n.delivered, Delivery{From: e.from, To: e.to, Msg: e.msg, Reply: reply})
		if reply != nil {
			if _, ok := n.handlers[e.from]; ok {
				n.queue = append(n.queue, envelope{from: e.to, to: e.from, msg: *reply})
			}
		}
		n.mu.Unlock()
	}
}

// Delivered returns every delivery so far.
func (n *Network) Delivered() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Delivery(nil), n.delivered...)
}

// Recorder is a Sender that keeps every message instead of delivering it.
type Recorder struct {
	mu   sync.Mutex
	Sent []Sent
}

type Sent struct {
	To  protocol.PeerID
	Msg dcrl.Message
}

func (r *Recorder) Send(_ context.Context, to protocol.PeerID, msg dcrl.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, Sent{To: to, Msg: msg})
	return nil
}

func (r *Recorder) Messages() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.Sent...)
}
