// Copyright 2016 SMFS Inc DBA GRIMM. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/lamassuiot/dcrl/pkg/depot"
	depotfile "github.com/lamassuiot/dcrl/pkg/depot/file"
	"github.com/lamassuiot/dcrl/pkg/depot/relational"
	"github.com/lamassuiot/dcrl/pkg/discovery"
	"github.com/lamassuiot/dcrl/pkg/discovery/consul"
	"github.com/lamassuiot/dcrl/pkg/discovery/static"
	"github.com/lamassuiot/dcrl/pkg/node"
	"github.com/lamassuiot/dcrl/pkg/peer"
	"github.com/lamassuiot/dcrl/pkg/protocol"
	"github.com/lamassuiot/dcrl/pkg/secrets/identity"
	identityfile "github.com/lamassuiot/dcrl/pkg/secrets/identity/file"
	"github.com/lamassuiot/dcrl/pkg/truststore"
	trustfile "github.com/lamassuiot/dcrl/pkg/truststore/file"
	"github.com/lamassuiot/dcrl/pkg/truststore/vault"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

func main() {
	var (
		flIdentityKey  = flag.String("key", envString("DCRL_KEY", ""), "identity private key, leave empty to run without an identity")
		flIdentityCert = flag.String("cert", envString("DCRL_CERT", ""), "identity certificate")
		flProduce      = flag.Bool("produce", envBool("DCRL_PRODUCE"), "take part in block production, requires an identity")
		flPerBlock     = flag.Int("perblock", envInt("DCRL_REVOCATIONS_PER_BLOCK", 1), "revocations batched into each block")

		flTrust         = flag.String("trust", envString("DCRL_TRUST", ""), "trusted certificate file or directory")
		flVaultRoleId   = flag.String("vaultRoleId", envString("DCRL_VAULT_ROLEID", ""), "Vault role ID")
		flVaultSecretId = flag.String("vaultSecretId", envString("DCRL_VAULT_SECRETID", ""), "Vault secret ID")
		flVaultAddress  = flag.String("vaultAddress", envString("DCRL_VAULT_ADDRESS", ""), "Vault ADDRESS")
		flVaultMount    = flag.String("vaultMount", envString("DCRL_VAULT_MOUNT", "dcrl-trust"), "Vault path holding trusted certificates")

		flDepot     = flag.String("depot", envString("DCRL_DEPOT", "file"), "chain storage: file, postgres, sqlite or none")
		flChainFile = flag.String("chainfile", envString("DCRL_CHAIN_FILE", "chain.jsonl"), "chain file for the file depot")
		flDBDSN     = flag.String("dbdsn", envString("DCRL_DB_DSN", ""), "data source name for the postgres and sqlite depots")

		flPeers  = flag.String("peers", envString("DCRL_PEERS", ""), "comma separated host:port list of peers, used without Consul")
		flPrefer = flag.String("prefer", envString("DCRL_PREFER", ""), "comma separated host:port list of peers asked first for the chain")

		flConsulProtocol = flag.String("consulprotocol", envString("DCRL_CONSUL_PROTOCOL", ""), "Consul protocol")
		flConsulHost     = flag.String("consulhost", envString("DCRL_CONSUL_HOST", ""), "Consul host, leave empty to use the static peer list")
		flConsulPort     = flag.String("consulport", envString("DCRL_CONSUL_PORT", ""), "Consul port")
		flConsulCA       = flag.String("consulca", envString("DCRL_CONSUL_CA", ""), "Consul CA path")

		flAddress = flag.String("bind", envString("DCRL_ADDRESS", ""), "bind address")
		flPort    = flag.String("port", envString("DCRL_PORT", "8080"), "listening port")
		flAdvHost = flag.String("advhost", envString("DCRL_ADVERTISED_HOST", "localhost"), "host other peers reach this node at")
		flSsl     = flag.Bool("ssl", envBool("DCRL_SSL"), "serve HTTPS and reach peers over HTTPS")
		flTLSCert = flag.String("tlscert", envString("DCRL_TLS_CERT", ""), "TLS certificate for -ssl")
		flTLSKey  = flag.String("tlskey", envString("DCRL_TLS_KEY", ""), "TLS key for -ssl")
		flStrict  = flag.Bool("strict", envBool("DCRL_STRICT"), "require content type HTTP header on peer messages")
		flDebug   = flag.Bool("debug", envBool("DCRL_DEBUG"), "log at debug level")
	)
	flag.Parse()

	var logger log.Logger
	{
		logger = log.NewJSONLogger(os.Stdout)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
		if *flDebug {
			logger = level.NewFilter(logger, level.AllowDebug())
		} else {
			logger = level.NewFilter(logger, level.AllowInfo())
		}
	}

	var id *protocol.Identity
	if *flIdentityKey != "" || *flIdentityCert != "" {
		var err error
		id, err = identity.Load(identityfile.NewFile(*flIdentityKey, *flIdentityCert, logger))
		if err != nil {
			level.Error(logger).Log("err", err, "msg", "Could not load node identity")
			os.Exit(1)
		}
		level.Info(logger).Log("msg", "Node identity loaded", "subject", id.Certificate.Subject)
	} else {
		level.Info(logger).Log("msg", "Running without identity")
	}

	trust, err := loadTrustStore(*flTrust, *flVaultAddress, *flVaultRoleId, *flVaultSecretId, *flVaultMount, logger)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not load trust store")
		os.Exit(1)
	}
	level.Info(logger).Log("msg", "Trust store loaded", "certificates", trust.Len())

	chainDepot, err := openDepot(*flDepot, *flChainFile, *flDBDSN, logger)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not open chain depot")
		os.Exit(1)
	}

	jcfg, err := jaegercfg.FromEnv()
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not load Jaeger configuration values fron environment")
		os.Exit(1)
	}
	level.Info(logger).Log("msg", "Jaeger configuration values loaded")
	tracer, closer, err := jcfg.NewTracer()
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not start Jaeger tracer")
		os.Exit(1)
	}
	defer closer.Close()
	level.Info(logger).Log("msg", "Jaeger tracer started")

	var sd discovery.Service
	if *flConsulHost != "" {
		sd, err = consul.NewServiceDiscovery(*flConsulProtocol, *flConsulHost, *flConsulPort, *flConsulCA, logger)
		if err != nil {
			level.Error(logger).Log("err", err, "msg", "Could not start connection with Consul Service Discovery")
			os.Exit(1)
		}
		level.Info(logger).Log("msg", "Connection established with Consul Service Discovery")
	} else {
		sd = static.NewServiceDiscovery(*flPeers)
	}

	advProtocol := "http"
	if *flSsl {
		advProtocol = "https"
	}
	self := discovery.PeerID(*flAdvHost, *flPort)
	peers := peer.NewClient(self, log.With(logger, "component", "peer"), tracer, peer.WithScheme(advProtocol))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := protocol.NewMachine(ctx, protocol.Config{
		Identity:            id,
		Produce:             *flProduce,
		Trust:               trust,
		Sender:              peers,
		Directory:           sd,
		Preferences:         splitPeers(*flPrefer),
		RevocationsPerBlock: *flPerBlock,
		Depot:               chainDepot,
		Logger:              log.With(logger, "component", "protocol"),
	})
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not start protocol")
		os.Exit(1)
	}
	runner := protocol.NewRunner(ctx, logger, m)
	peers.Attach(runner)

	fieldKeys := []string{"method", "error"}
	var s node.Service
	{
		s = node.NewService(runner, id)
		s = node.LoggingMiddleware(logger)(s)
		s = node.NewInstrumentingMiddleware(
			kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
				Namespace: "dcrl",
				Subsystem: "node",
				Name:      "request_count",
				Help:      "Number of requests received.",
			}, fieldKeys),
			kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
				Namespace: "dcrl",
				Subsystem: "node",
				Name:      "request_latency_microseconds",
				Help:      "Total duration of requests in microseconds.",
			}, fieldKeys),
		)(s)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", node.MakeHTTPHandler(s, log.With(logger, "component", "HTTP"), *flStrict, tracer))

	errs := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errs <- fmt.Errorf("%s", <-c)
	}()

	go func() {
		level.Info(logger).Log("transport", strings.ToUpper(advProtocol), "address", *flAddress+":"+*flPort, "msg", "listening")
		if err := sd.Register(advProtocol, *flAdvHost, *flPort); err != nil {
			level.Warn(logger).Log("err", err, "msg", "Could not register with service discovery")
		}
		if *flSsl {
			errs <- http.ListenAndServeTLS(*flAddress+":"+*flPort, *flTLSCert, *flTLSKey, mux)
		} else {
			errs <- http.ListenAndServe(*flAddress+":"+*flPort, mux)
		}
	}()

	if err := runner.Announce(ctx); err != nil && !errors.Is(err, protocol.ErrNoIdentity) {
		level.Warn(logger).Log("err", err, "msg", "Could not announce node")
	}
	if err := runner.RequestChainDefault(ctx); err != nil {
		level.Warn(logger).Log("err", err, "msg", "Could not request chain at startup")
	}

	level.Info(logger).Log("exit", <-errs)
	sd.Deregister()
	cancel()
	runner.Wait()
	peers.Wait()
}

func loadTrustStore(path, vaultAddress, roleID, secretID, mount string, logger log.Logger) (*truststore.Memory, error) {
	switch {
	case path != "":
		return trustfile.NewFile(path, logger)
	case vaultAddress != "":
		return vault.NewVaultTrustStore(vaultAddress, roleID, secretID, mount, logger)
	default:
		return nil, errors.New("either -trust or -vaultAddress is required")
	}
}

func openDepot(kind, chainFile, dsn string, logger log.Logger) (depot.Depot, error) {
	switch kind {
	case "file":
		return depotfile.NewFile(chainFile, logger), nil
	case "postgres", "sqlite3", "sqlite":
		driver := kind
		if driver == "sqlite" {
			driver = "sqlite3"
		}
		return relational.NewDB(driver, dsn, logger)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown depot %q", kind)
	}
}

func splitPeers(list string) []protocol.PeerID {
	var out []protocol.PeerID
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, protocol.PeerID(p))
		}
	}
	return out
}

func envString(key, def string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}
	return def
}

func envBool(key string) bool {
	if env := os.Getenv(key); env == "true" {
		return true
	}
	return false
}

func envInt(key string, def int) int {
	if env := os.Getenv(key); env != "" {
		env, _ := strconv.Atoi(env)
		return env
	}
	return def
}
