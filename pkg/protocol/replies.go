package protocol

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log/level"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/signing"
)

// errorReply builds an ErrorMessage signed by the local identity, falling
// back to an unsigned message when there is no identity or signing fails.
func (m *Machine) errorReply(ctx context.Context, text string) *dcrl.Message {
	level.Warn(m.logger).Log("msg", "Replying with error", "error", text)
	em := &dcrl.ErrorMessage{Message: text}
	if id := m.cfg.Identity; id.usable() {
		msg, err := signing.NewSignedMessage(ctx, id.Certificate, id.Signer, em)
		if err == nil {
			return &msg
		}
		level.Error(m.logger).Log("err", err, "msg", "Could not sign error reply, sending it unsigned")
	}
	return &dcrl.Message{Unsigned: &dcrl.UnsignedMessage{ErrorMessage: em}}
}

func (m *Machine) signedReply(ctx context.Context, payload interface{}) *dcrl.Message {
	id := m.cfg.Identity
	msg, err := signing.NewSignedMessage(ctx, id.Certificate, id.Signer, payload)
	if err != nil {
		level.Error(m.logger).Log("err", err, "msg", "Could not sign reply")
		return m.errorReply(ctx, "internal error")
	}
	return &msg
}

func (m *Machine) unsupported(ctx context.Context, payload interface{}) *dcrl.Message {
	return m.errorReply(ctx, fmt.Sprintf("message type %s not supported", dcrl.PayloadKind(payload)))
}
