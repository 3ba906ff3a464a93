package static

import (
	"testing"

	"github.com/lamassuiot/dcrl/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func TestPeers(t *testing.T) {
	sd := NewServiceDiscovery(" a:1, b:2,,a:1 ,c:3")
	require.Equal(t, []protocol.PeerID{"a:1", "b:2", "c:3"}, sd.Peers())

	require.NoError(t, sd.Register("http", "b", "2"))
	require.Equal(t, []protocol.PeerID{"a:1", "c:3"}, sd.Peers())
	require.NoError(t, sd.Deregister())
}

func TestEmpty(t *testing.T) {
	require.Empty(t, NewServiceDiscovery("").Peers())
}
