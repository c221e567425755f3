// Package monitor runs the per-network observation pipelines: ordered
// block processing feeding the signature aggregators, and checkpoint
// resolution feeding the BLS aggregator.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/babylonlabs-io/sentinel/alert"
	"github.com/babylonlabs-io/sentinel/async"
	"github.com/babylonlabs-io/sentinel/chain"
	"github.com/babylonlabs-io/sentinel/config/params"
	"github.com/babylonlabs-io/sentinel/db"
	"github.com/babylonlabs-io/sentinel/types"
)

var log = logrus.WithField("prefix", "monitor")

// chainReader is the slice of the chain gateway the pipelines use.
type chainReader interface {
	LatestHeight(ctx context.Context) (uint64, error)
	Block(ctx context.Context, height uint64) (*chain.Block, error)
	FinalityVotes(ctx context.Context, height uint64) ([]string, error)
	CurrentEpoch(ctx context.Context) (*chain.CurrentEpoch, error)
	TxsAtHeight(ctx context.Context, height uint64) ([]chain.Tx, error)
}

// identityDirectory is the slice of the directory service the pipelines
// use for subject resolution.
type identityDirectory interface {
	Validators() []*types.Validator
	LookupValidator(key string) *types.Validator
	LookupFinalityProvider(btcPK string) *types.FinalityProvider
	ActiveFinalityProviders(ctx context.Context, height uint64) (map[string]bool, error)
}

// Config holds the monitor's collaborators and subsystem switches.
type Config struct {
	Network    string
	Client     chainReader
	Router     *chain.Router
	Subscriber *chain.Subscriber
	Directory  identityDirectory
	Database   db.Database
	Governor   *alert.Governor

	ValidatorMonitoring        bool
	FinalityProviderMonitoring bool
	BLSMonitoring              bool
}

// Service drives one network's pipelines. The block loop starts only
// after the initial gap catch-up so historical heights keep their
// ascending order; streamed events buffer in the router meanwhile.
type Service struct {
	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	blocks      *blockPipeline
	checkpoints *checkpointPipeline

	mu     sync.Mutex
	runErr error
}

// NewService constructs the monitor service with aggregators matching
// the enabled subsystems.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{cfg: cfg, ctx: ctx, cancel: cancel}

	var validatorAgg *validatorAggregator
	if cfg.ValidatorMonitoring {
		validatorAgg = newValidatorAggregator(cfg.Network, cfg.Database, cfg.Directory, cfg.Governor)
	}
	var providerAgg *providerAggregator
	if cfg.FinalityProviderMonitoring {
		providerAgg = newProviderAggregator(cfg.Network, cfg.Database, cfg.Directory, cfg.Governor)
	}
	if cfg.BLSMonitoring {
		bls := newBLSAggregator(cfg.Network, cfg.Database, cfg.Governor)
		s.checkpoints = newCheckpointPipeline(cfg.Network, cfg.Client, cfg.Directory, bls)
	}

	blocks, err := newBlockPipeline(cfg.Network, cfg.Client, cfg.Directory, cfg.Database,
		validatorAgg, providerAgg, s.onHeight)
	if err != nil {
		cancel()
		return nil, err
	}
	s.blocks = blocks
	return s, nil
}

// Start launches the event stream, the gap catch-up and the pipeline
// loops. It returns immediately.
func (s *Service) Start() {
	if s.cfg.Subscriber != nil {
		s.cfg.Subscriber.Start()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refreshEpoch()
		if err := s.blocks.InitialSync(s.ctx); err != nil && s.ctx.Err() == nil {
			log.WithError(err).WithField("network", s.cfg.Network).Error("Initial block catch-up failed")
			s.setRunErr(err)
		}
		s.blockLoop()
	}()

	if s.checkpoints != nil {
		s.wg.Add(1)
		go s.checkpointLoop()
	}

	async.RunEvery(s.ctx, params.Get().MonitoringInterval, s.logHealth)
}

// Stop halts the loops, bounded by the shutdown grace period.
func (s *Service) Stop() error {
	s.cancel()
	if s.cfg.Subscriber != nil {
		if err := s.cfg.Subscriber.Stop(); err != nil {
			log.WithError(err).Debug("Could not stop subscriber")
		}
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(params.Get().ShutdownGracePeriod):
		log.WithField("network", s.cfg.Network).Warn("Shutdown grace period elapsed with work in flight")
	}
	return nil
}

// Status reports pipeline health.
func (s *Service) Status() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

func (s *Service) setRunErr(err error) {
	s.mu.Lock()
	s.runErr = err
	s.mu.Unlock()
}

func (s *Service) blockLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.cfg.Router.Blocks():
			s.blocks.OnBlockEvent(s.ctx, ev.Block)
		}
	}
}

func (s *Service) checkpointLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.cfg.Router.Checkpoints():
			if err := s.checkpoints.ProcessEpoch(s.ctx, ev.Epoch); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"network": s.cfg.Network,
					"epoch":   ev.Epoch,
				}).Warn("Could not process sealed checkpoint")
			}
		}
	}
}

// onHeight fires after every processed height and refreshes the epoch
// watermark every EpochRefreshBlocks heights.
func (s *Service) onHeight(height uint64) {
	if s.checkpoints == nil {
		return
	}
	if height%params.Get().EpochRefreshBlocks == 0 {
		s.refreshEpoch()
	}
}

func (s *Service) refreshEpoch() {
	if s.checkpoints == nil {
		return
	}
	e, err := s.cfg.Client.CurrentEpoch(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			log.WithError(err).WithField("network", s.cfg.Network).Warn("Could not refresh current epoch")
		}
		return
	}
	s.checkpoints.ObserveCurrentEpoch(e)
}

func (s *Service) logHealth() {
	fields := logrus.Fields{
		"network":   s.cfg.Network,
		"watermark": s.blocks.Watermark(),
	}
	if s.cfg.Subscriber != nil {
		fields["streamHealthy"] = s.cfg.Subscriber.Status() == nil
	}
	log.WithFields(fields).Info("Monitor heartbeat")
}
