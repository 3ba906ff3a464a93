package consul

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/lamassuiot/dcrl/pkg/discovery"
	"github.com/lamassuiot/dcrl/pkg/protocol"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/hashicorp/consul/api"
)

const ServiceName = "dcrl"

type ServiceDiscovery struct {
	client    consulsd.Client
	logger    log.Logger
	registrar *consulsd.Registrar
	self      protocol.PeerID
}

func NewServiceDiscovery(consulProtocol string, consulHost string, consulPort string, CA string, logger log.Logger) (discovery.Service, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = consulProtocol + "://" + consulHost + ":" + consulPort
	tlsConf := &api.TLSConfig{CAFile: CA}
	consulConfig.TLSConfig = *tlsConf
	consulClient, err := api.NewClient(consulConfig)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not start Consul API Client")
		return nil, err
	}
	return NewWithClient(consulsd.NewClient(consulClient), logger), nil
}

func NewWithClient(client consulsd.Client, logger log.Logger) *ServiceDiscovery {
	return &ServiceDiscovery{client: client, logger: logger}
}

func (sd *ServiceDiscovery) Register(advProtocol string, advHost string, advPort string) error {
	check := api.AgentServiceCheck{
		HTTP:          advProtocol + "://" + advHost + ":" + advPort + "/health",
		Interval:      "10s",
		Timeout:       "1s",
		TLSSkipVerify: true,
		Notes:         "Basic health checks",
	}

	port, err := strconv.Atoi(advPort)
	if err != nil {
		return err
	}
	asr := api.AgentServiceRegistration{
		ID:      ServiceName + "-" + uuid.NewString(),
		Name:    ServiceName,
		Address: advHost,
		Port:    port,
		Tags:    []string{"dcrl", "peer"},
		Check:   &check,
	}
	sd.self = discovery.PeerID(advHost, advPort)
	sd.registrar = consulsd.NewRegistrar(sd.client, &asr, sd.logger)
	sd.registrar.Register()
	return nil
}

func (sd *ServiceDiscovery) Deregister() error {
	if sd.registrar != nil {
		sd.registrar.Deregister()
	}
	return nil
}

// Peers lists the other healthy nodes registered under ServiceName. Errors
// are logged and yield no peers.
func (sd *ServiceDiscovery) Peers() []protocol.PeerID {
	entries, _, err := sd.client.Service(ServiceName, "", true, &api.QueryOptions{})
	if err != nil {
		level.Warn(sd.logger).Log("err", err, "msg", "Could not list peers from Consul")
		return nil
	}
	var peers []protocol.PeerID
	for _, e := range entries {
		addr := e.Service.Address
		if addr == "" {
			addr = e.Node.Address
		}
		p := discovery.PeerID(addr, strconv.Itoa(e.Service.Port))
		if p == sd.self {
			continue
		}
		peers = append(peers, p)
	}
	return peers
}
