package dcrl

import "fmt"

type BlockchainRequest struct{}

type BlockRequest struct {
	Height int64 `json:"height"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type BlockchainResponse struct {
	Blocks []Block `json:"blocks"`
}

type BlockResponse struct {
	Block Block `json:"block"`
}

type Announce struct {
	Nonce int64 `json:"nonce"`
}

// Message is the protocol envelope. Exactly one of Unsigned and Signed is set.
type Message struct {
	Unsigned *UnsignedMessage `json:"unsigned,omitempty"`
	Signed   *SignedMessage   `json:"signed,omitempty"`
}

// UnsignedMessage carries unauthenticated queries and best-effort errors.
type UnsignedMessage struct {
	BlockchainRequest *BlockchainRequest `json:"blockchain_request,omitempty"`
	BlockRequest      *BlockRequest      `json:"block_request,omitempty"`
	ErrorMessage      *ErrorMessage      `json:"error_message,omitempty"`
}

// SignedMessage carries the sender certificate, a signature over the
// canonical bytes of the payload and exactly one payload.
type SignedMessage struct {
	Certificate Certificate `json:"certificate"`
	Signature   []byte      `json:"signature"`

	CertificateRevocation *CertificateRevocation `json:"certificate_revocation,omitempty"`
	BlockMessage          *Block                 `json:"block_message,omitempty"`
	BlockchainResponse    *BlockchainResponse    `json:"blockchain_response,omitempty"`
	BlockResponse         *BlockResponse         `json:"block_response,omitempty"`
	ErrorMessage          *ErrorMessage          `json:"error_message,omitempty"`
	Announce              *Announce              `json:"announce,omitempty"`
}

// Payload returns the single set variant, or nil when none or more than one
// is set.
func (m *UnsignedMessage) Payload() interface{} {
	var (
		p interface{}
		n int
	)
	if m.BlockchainRequest != nil {
		p, n = m.BlockchainRequest, n+1
	}
	if m.BlockRequest != nil {
		p, n = m.BlockRequest, n+1
	}
	if m.ErrorMessage != nil {
		p, n = m.ErrorMessage, n+1
	}
	if n != 1 {
		return nil
	}
	return p
}

// Payload returns the single set variant, or nil when none or more than one
// is set.
func (m *SignedMessage) Payload() interface{} {
	var (
		p interface{}
		n int
	)
	if m.CertificateRevocation != nil {
		p, n = m.CertificateRevocation, n+1
	}
	if m.BlockMessage != nil {
		p, n = m.BlockMessage, n+1
	}
	if m.BlockchainResponse != nil {
		p, n = m.BlockchainResponse, n+1
	}
	if m.BlockResponse != nil {
		p, n = m.BlockResponse, n+1
	}
	if m.ErrorMessage != nil {
		p, n = m.ErrorMessage, n+1
	}
	if m.Announce != nil {
		p, n = m.Announce, n+1
	}
	if n != 1 {
		return nil
	}
	return p
}

// SetPayload stores p in the matching variant field, clearing the others.
func (m *SignedMessage) SetPayload(p interface{}) error {
	m.CertificateRevocation = nil
	m.BlockMessage = nil
	m.BlockchainResponse = nil
	m.BlockResponse = nil
	m.ErrorMessage = nil
	m.Announce = nil
	switch v := p.(type) {
	case *CertificateRevocation:
		m.CertificateRevocation = v
	case *Block:
		m.BlockMessage = v
	case *BlockchainResponse:
		m.BlockchainResponse = v
	case *BlockResponse:
		m.BlockResponse = v
	case *ErrorMessage:
		m.ErrorMessage = v
	case *Announce:
		m.Announce = v
	default:
		return fmt.Errorf("unsupported signed payload %T", p)
	}
	return nil
}

// Kind names the message variant for logs and errors.
func (m Message) Kind() string {
	var p interface{}
	switch {
	case m.Signed != nil:
		p = m.Signed.Payload()
	case m.Unsigned != nil:
		p = m.Unsigned.Payload()
	}
	return PayloadKind(p)
}

func PayloadKind(p interface{}) string {
	switch p.(type) {
	case *BlockchainRequest:
		return "BlockchainRequest"
	case *BlockRequest:
		return "BlockRequest"
	case *ErrorMessage:
		return "ErrorMessage"
	case *CertificateRevocation:
		return "CertificateRevocation"
	case *Block:
		return "BlockMessage"
	case *BlockchainResponse:
		return "BlockchainResponse"
	case *BlockResponse:
		return "BlockResponse"
	case *Announce:
		return "Announce"
	default:
		return "Unknown"
	}
}

// ErrorText returns the text of an ErrorMessage carried by m, if any.
func (m Message) ErrorText() (string, bool) {
	switch {
	case m.Signed != nil && m.Signed.ErrorMessage != nil:
		return m.Signed.ErrorMessage.Message, true
	case m.Unsigned != nil && m.Unsigned.ErrorMessage != nil:
		return m.Unsigned.ErrorMessage.Message, true
	}
	return "", false
}

func NewUnsigned(p interface{}) (Message, error) {
	u := &UnsignedMessage{}
	switch v := p.(type) {
	case *BlockchainRequest:
		u.BlockchainRequest = v
	case *BlockRequest:
		u.BlockRequest = v
	case *ErrorMessage:
		u.ErrorMessage = v
	default:
		return Message{}, fmt.Errorf("unsupported unsigned payload %T", p)
	}
	return Message{Unsigned: u}, nil
}
