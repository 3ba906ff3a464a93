// Package static is a fixed peer list for deployments without a registry.
package static

import (
	"strings"

	"github.com/lamassuiot/dcrl/pkg/discovery"
	"github.com/lamassuiot/dcrl/pkg/protocol"
)

type ServiceDiscovery struct {
	self  protocol.PeerID
	peers []protocol.PeerID
}

// NewServiceDiscovery parses a comma separated host:port list. Blank entries,
// duplicates and the node's own address are dropped.
func NewServiceDiscovery(peers string) discovery.Service {
	sd := &ServiceDiscovery{}
	seen := map[protocol.PeerID]bool{}
	for _, p := range strings.Split(peers, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[protocol.PeerID(p)] {
			continue
		}
		seen[protocol.PeerID(p)] = true
		sd.peers = append(sd.peers, protocol.PeerID(p))
	}
	return sd
}

func (sd *ServiceDiscovery) Register(advProtocol string, advHost string, advPort string) error {
	sd.self = discovery.PeerID(advHost, advPort)
	return nil
}

func (sd *ServiceDiscovery) Deregister() error {
	return nil
}

func (sd *ServiceDiscovery) Peers() []protocol.PeerID {
	out := make([]protocol.PeerID, 0, len(sd.peers))
	for _, p := range sd.peers {
		if p != sd.self {
			out = append(out, p)
		}
	}
	return out
}
