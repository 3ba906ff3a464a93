// Package discovery registers a node with a registry and lists the other
// nodes it finds there. Every Service is a protocol.Directory.
package discovery

import "github.com/lamassuiot/dcrl/pkg/protocol"

type Service interface {
	Register(advProtocol string, advHost string, advPort string) error
	Deregister() error
	Peers() []protocol.PeerID
}

// PeerID is the transport address of a node advertised at host:port.
func PeerID(host string, port string) protocol.PeerID {
	return protocol.PeerID(host + ":" + port)
}
