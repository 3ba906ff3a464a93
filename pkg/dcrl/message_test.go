package dcrl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload(t *testing.T) {
	sm := &SignedMessage{}
	assert.Nil(t, sm.Payload())

	require.NoError(t, sm.SetPayload(&Announce{Nonce: 7}))
	assert.Equal(t, &Announce{Nonce: 7}, sm.Payload())
	assert.Equal(t, "Announce", Message{Signed: sm}.Kind())

	require.NoError(t, sm.SetPayload(&Block{Height: 2}))
	assert.Nil(t, sm.Announce)
	assert.Equal(t, "BlockMessage", Message{Signed: sm}.Kind())

	// Two variants at once is malformed.
	sm.ErrorMessage = &ErrorMessage{Message: "x"}
	assert.Nil(t, sm.Payload())
	assert.Equal(t, "Unknown", Message{Signed: sm}.Kind())

	require.Error(t, sm.SetPayload(&BlockchainRequest{}))
}

func TestUnsigned(t *testing.T) {
	msg, err := NewUnsigned(&BlockRequest{Height: 4})
	require.NoError(t, err)
	assert.Equal(t, "BlockRequest", msg.Kind())
	_, ok := msg.ErrorText()
	assert.False(t, ok)

	msg, err = NewUnsigned(&ErrorMessage{Message: "stale"})
	require.NoError(t, err)
	text, ok := msg.ErrorText()
	assert.True(t, ok)
	assert.Equal(t, "stale", text)

	_, err = NewUnsigned(&Announce{})
	require.Error(t, err)

	assert.Equal(t, "Unknown", Message{}.Kind())
	assert.Nil(t, (&UnsignedMessage{}).Payload())
}

func TestCertificate(t *testing.T) {
	c := Certificate{Subject: "a", ValidFrom: 100, ValidLength: 10, Usages: []Usage{UsageAuthority}}
	assert.True(t, c.IsSelfSigned())
	assert.False(t, c.IsZero())
	assert.True(t, Certificate{}.IsZero())
	assert.True(t, c.HasUsage(UsageAuthority))
	assert.False(t, c.HasUsage(UsageParticipation))

	assert.False(t, c.ValidAt(time.Unix(99, 0)))
	assert.True(t, c.ValidAt(time.Unix(100, 0)))
	assert.True(t, c.ValidAt(time.Unix(109, 0)))
	assert.False(t, c.ValidAt(time.Unix(110, 0)))

	u, ok := ParseUsage("participation")
	assert.True(t, ok)
	assert.Equal(t, UsageParticipation, u)
	assert.Equal(t, "PARTICIPATION", u.String())
	_, ok = ParseUsage("root")
	assert.False(t, ok)
}
