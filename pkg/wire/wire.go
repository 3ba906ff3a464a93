// Package wire frames DCRL messages for the network: JSON encoded, snappy
// compressed.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/golang/snappy"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
)

const ContentType = "application/x-dcrl+snappy"

// MaxMessageSize bounds a decoded message. A full chain response is the
// largest message on the wire.
const MaxMessageSize = 64 << 20

var (
	ErrTooLarge = errors.New("message exceeds maximum size")
	ErrEmpty    = errors.New("message carries no variant")
)

func Marshal(msg dcrl.Message) ([]byte, error) {
	if msg.Signed == nil && msg.Unsigned == nil {
		return nil, ErrEmpty
	}
	bs, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return snappy.Encode(nil, bs), nil
}

func Unmarshal(b []byte) (dcrl.Message, error) {
	n, err := snappy.DecodedLen(b)
	if err != nil {
		return dcrl.Message{}, fmt.Errorf("snappy frame: %w", err)
	}
	if n > MaxMessageSize {
		return dcrl.Message{}, ErrTooLarge
	}
	bs, err := snappy.Decode(nil, b)
	if err != nil {
		return dcrl.Message{}, fmt.Errorf("snappy frame: %w", err)
	}
	var msg dcrl.Message
	if err := json.Unmarshal(bs, &msg); err != nil {
		return dcrl.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Signed == nil && msg.Unsigned == nil {
		return dcrl.Message{}, ErrEmpty
	}
	return msg, nil
}

func Write(w io.Writer, msg dcrl.Message) error {
	bs, err := Marshal(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(bs)
	return err
}

func Read(r io.Reader) (dcrl.Message, error) {
	bs, err := ioutil.ReadAll(io.LimitReader(r, MaxMessageSize+1))
	if err != nil {
		return dcrl.Message{}, err
	}
	if len(bs) > MaxMessageSize {
		return dcrl.Message{}, ErrTooLarge
	}
	return Unmarshal(bs)
}
