// Package node defines the sentinel process: it assembles the
// per-network monitoring stacks, registers them with the service
// registry and manages their lifecycle.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/babylonlabs-io/sentinel/alert"
	"github.com/babylonlabs-io/sentinel/chain"
	"github.com/babylonlabs-io/sentinel/cmd/sentinel/flags"
	"github.com/babylonlabs-io/sentinel/config/params"
	"github.com/babylonlabs-io/sentinel/db"
	"github.com/babylonlabs-io/sentinel/db/kv"
	"github.com/babylonlabs-io/sentinel/directory"
	"github.com/babylonlabs-io/sentinel/monitor"
	"github.com/babylonlabs-io/sentinel/monitoring/prometheus"
	"github.com/babylonlabs-io/sentinel/runtime"
)

var log = logrus.WithField("prefix", "node")

// SentinelNode defines a sentinel process composed of registered
// services per monitored network.
type SentinelNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	services *runtime.ServiceRegistry
	database db.Database
	lock     sync.Mutex
	stop     chan struct{}
}

// New creates a node instance: it applies the runtime configuration,
// opens the store and constructs one monitoring stack per configured
// network.
func New(cliCtx *cli.Context) (*SentinelNode, error) {
	applyConfig(cliCtx)

	networks := networkConfigs(cliCtx)
	if len(networks) == 0 {
		return nil, errors.New("no networks configured: set --mainnet-rpc-urls or --testnet-rpc-urls")
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	store, err := kv.NewKVStore(cliCtx.String(flags.DataDirFlag.Name))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not open store")
	}

	node := &SentinelNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		database: store,
		stop:     make(chan struct{}),
	}

	if cliCtx.Bool(flags.MonitoringEnabledFlag.Name) {
		var g errgroup.Group
		for _, netCfg := range networks {
			netCfg := netCfg
			g.Go(func() error {
				return node.registerNetwork(ctx, netCfg)
			})
		}
		if err := g.Wait(); err != nil {
			cancel()
			if closeErr := store.Close(); closeErr != nil {
				log.WithError(closeErr).Error("Could not close store")
			}
			return nil, err
		}
	} else {
		log.Warn("Monitoring master switch is off, no network stacks registered")
	}

	if err := node.registerPrometheus(); err != nil {
		cancel()
		return nil, err
	}
	return node, nil
}

// registerNetwork wires one network's gateway, directory and monitor
// services into the registry.
func (n *SentinelNode) registerNetwork(ctx context.Context, netCfg *params.NetworkConfig) error {
	client, err := chain.NewClient(netCfg.Name, netCfg.RESTEndpoints)
	if err != nil {
		return errors.Wrapf(err, "could not create chain client for %s", netCfg.Name)
	}
	governor := alert.NewGovernor(netCfg.Name, alert.LogNotifier{}, netCfg.TrackedValidators, netCfg.TrackedFinalityProviders)

	dir, err := directory.NewService(ctx, &directory.Config{
		Network:       netCfg.Name,
		ValconsPrefix: netCfg.ValconsPrefix,
		Client:        client,
		Database:      n.database,
		Governor:      governor,
	})
	if err != nil {
		return errors.Wrapf(err, "could not create directory for %s", netCfg.Name)
	}

	router := chain.NewRouter(netCfg.Name, params.Get().EventBufferSize)
	subscriber, err := chain.NewSubscriber(ctx, netCfg.Name, netCfg.WSEndpoints, chain.DefaultSubscriptions(), router)
	if err != nil {
		return errors.Wrapf(err, "could not create subscriber for %s", netCfg.Name)
	}

	mon, err := monitor.NewService(ctx, &monitor.Config{
		Network:                    netCfg.Name,
		Client:                     client,
		Router:                     router,
		Subscriber:                 subscriber,
		Directory:                  dir,
		Database:                   n.database,
		Governor:                   governor,
		ValidatorMonitoring:        netCfg.ValidatorMonitoring,
		FinalityProviderMonitoring: netCfg.FinalityProviderMonitoring,
		BLSMonitoring:              netCfg.BLSMonitoring,
	})
	if err != nil {
		return errors.Wrapf(err, "could not create monitor for %s", netCfg.Name)
	}

	n.lock.Lock()
	defer n.lock.Unlock()
	if err := n.services.RegisterService(dir); err != nil {
		return err
	}
	return n.services.RegisterService(mon)
}

func (n *SentinelNode) registerPrometheus() error {
	addr := fmt.Sprintf("%s:%d",
		n.cliCtx.String(flags.MonitoringHostFlag.Name),
		n.cliCtx.Int(flags.MonitoringPortFlag.Name))
	return n.services.RegisterService(prometheus.NewService(addr, n.services))
}

// Start launches every registered service and blocks until a shutdown
// signal arrives.
func (n *SentinelNode) Start() {
	n.lock.Lock()
	log.Info("Starting sentinel node")
	n.services.StartAll()
	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the sentinel node")
	}()

	<-stop
}

// Close stops every service in reverse registration order and releases
// the store.
func (n *SentinelNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping sentinel node")
	n.services.StopAll()
	if err := n.database.Close(); err != nil {
		log.WithError(err).Error("Could not close store")
	}
	n.cancel()
	close(n.stop)
}

// applyConfig folds the flag values into the process-wide tunables.
func applyConfig(cliCtx *cli.Context) {
	cfg := params.DefaultSentinelConfig()
	cfg.FinalityLag = cliCtx.Uint64(flags.FinalizedBlocksWaitFlag.Name)
	cfg.MonitoringInterval = time.Duration(cliCtx.Int(flags.MonitoringIntervalFlag.Name)) * time.Millisecond
	cfg.ValidatorRateThreshold = cliCtx.Float64(flags.ValidatorSignatureThresholdFlag.Name)
	cfg.FinalityProviderRateThreshold = cliCtx.Float64(flags.FinalityProviderSignatureThresholdFlag.Name)
	cfg.BLSRateThreshold = cliCtx.Float64(flags.BLSSignatureThresholdFlag.Name)
	cfg.MinAlertInterval = time.Duration(cliCtx.Int(flags.AlertMinIntervalFlag.Name)) * time.Millisecond
	cfg.RateDropStep = cliCtx.Float64(flags.SignatureRateMinDropFlag.Name)
	params.Override(cfg)
}

// networkConfigs derives the set of monitored networks from the flags.
// A network is monitored when its REST endpoints are configured; its
// websocket endpoints default to the REST ones, protocol-swapped at
// dial time.
func networkConfigs(cliCtx *cli.Context) []*params.NetworkConfig {
	var networks []*params.NetworkConfig
	add := func(name string, restURLs, wsURLs []string) {
		if len(restURLs) == 0 {
			return
		}
		if len(wsURLs) == 0 {
			wsURLs = restURLs
		}
		networks = append(networks, &params.NetworkConfig{
			Name:                       name,
			RESTEndpoints:              restURLs,
			WSEndpoints:                wsURLs,
			ValconsPrefix:              cliCtx.String(flags.ValconsPrefixFlag.Name),
			TrackedValidators:          cliCtx.StringSlice(flags.TrackedValidatorsFlag.Name),
			TrackedFinalityProviders:   cliCtx.StringSlice(flags.TrackedFinalityProvidersFlag.Name),
			ValidatorMonitoring:        cliCtx.Bool(flags.ValidatorMonitoringFlag.Name),
			FinalityProviderMonitoring: cliCtx.Bool(flags.FinalityProviderMonitoringFlag.Name),
			BLSMonitoring:              cliCtx.Bool(flags.BLSMonitoringFlag.Name),
		})
	}
	add("mainnet", cliCtx.StringSlice(flags.MainnetRPCURLsFlag.Name), cliCtx.StringSlice(flags.MainnetWSURLsFlag.Name))
	add("testnet", cliCtx.StringSlice(flags.TestnetRPCURLsFlag.Name), cliCtx.StringSlice(flags.TestnetWSURLsFlag.Name))
	return networks
}
