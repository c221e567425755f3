// Package directory maintains the per-network identity catalog: the
// active validator set and the finality-provider set, refreshed
// periodically, with lookup by any known key form.
package directory

import (
	"context"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/babylonlabs-io/sentinel/alert"
	"github.com/babylonlabs-io/sentinel/async"
	"github.com/babylonlabs-io/sentinel/chain"
	"github.com/babylonlabs-io/sentinel/config/params"
	"github.com/babylonlabs-io/sentinel/db"
	"github.com/babylonlabs-io/sentinel/types"
)

var log = logrus.WithField("prefix", "directory")

const aliasCacheSize = 4096

// catalogClient is the slice of the chain gateway the directory uses.
type catalogClient interface {
	Validators(ctx context.Context) ([]chain.RestValidator, error)
	FinalityProviders(ctx context.Context) ([]chain.RestFinalityProvider, error)
	ActiveFinalityProviders(ctx context.Context, height uint64) ([]chain.ActiveFinalityProvider, error)
}

// Config holds the directory's collaborators.
type Config struct {
	Network       string
	ValconsPrefix string
	Client        catalogClient
	Database      db.Database
	Governor      *alert.Governor
}

// Service is the identity catalog for one network. The in-memory
// catalog is replaced atomically on refresh; reads take a shared lock.
type Service struct {
	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.RWMutex
	validatorsByKey map[string]*types.Validator
	validators      []*types.Validator
	providersByKey  map[string]*types.FinalityProvider
	providers       []*types.FinalityProvider

	// aliasCache remembers store lookups for keys absent from the
	// live catalog (e.g. validators that left the active set).
	aliasCache *lru.Cache
	// activeSetCache holds active-provider sets keyed by height.
	activeSetCache *gocache.Cache

	refreshErr error
}

// NewService constructs the directory service.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.Client == nil || cfg.Database == nil {
		return nil, errors.New("directory requires a chain client and a database")
	}
	aliasCache, err := lru.New(aliasCacheSize)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	ttl := params.Get().ActiveProviderCacheTTL
	return &Service{
		cfg:             cfg,
		ctx:             ctx,
		cancel:          cancel,
		validatorsByKey: make(map[string]*types.Validator),
		providersByKey:  make(map[string]*types.FinalityProvider),
		aliasCache:      aliasCache,
		activeSetCache:  gocache.New(ttl, 2*ttl),
	}, nil
}

// Start performs the initial refresh and schedules the periodic one.
func (s *Service) Start() {
	if err := s.Refresh(s.ctx); err != nil {
		log.WithError(err).WithField("network", s.cfg.Network).Error("Initial directory refresh failed")
	}
	async.RunEvery(s.ctx, params.Get().DirectoryRefreshInterval, func() {
		if err := s.Refresh(s.ctx); err != nil {
			log.WithError(err).WithField("network", s.cfg.Network).Error("Directory refresh failed")
		}
	})
}

// Stop cancels the refresh timer.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status reports the health of the catalog.
func (s *Service) Status() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.validators) == 0 && s.refreshErr != nil {
		return s.refreshErr
	}
	return nil
}

// Refresh fetches the validator and provider sets, derives address
// forms, diffs jailed flags against the previous catalog, persists
// every record and swaps the catalog atomically.
func (s *Service) Refresh(ctx context.Context) error {
	restValidators, err := s.cfg.Client.Validators(ctx)
	if err != nil {
		s.setRefreshErr(err)
		return errors.Wrap(err, "could not fetch validators")
	}
	restProviders, err := s.cfg.Client.FinalityProviders(ctx)
	if err != nil {
		s.setRefreshErr(err)
		return errors.Wrap(err, "could not fetch finality providers")
	}

	now := time.Now().UTC()
	newValidators := make([]*types.Validator, 0, len(restValidators))
	newValidatorIndex := make(map[string]*types.Validator, len(restValidators)*4)
	for _, rv := range restValidators {
		v := &types.Validator{
			Network:         s.cfg.Network,
			OperatorAddress: rv.OperatorAddress,
			ConsensusPubKey: rv.ConsensusPubkey.Key,
			Moniker:         rv.Description.Moniker,
			Jailed:          rv.Jailed,
			UpdatedAt:       now,
		}
		consAddr, consHex, err := DeriveConsAddress(rv.ConsensusPubkey.Key, s.cfg.ValconsPrefix)
		if err != nil {
			log.WithError(err).WithField("operator", rv.OperatorAddress).Warn("Could not derive consensus address")
		} else {
			v.ConsensusAddress = consAddr
			v.ConsensusHex = consHex
		}
		newValidators = append(newValidators, v)
		for _, alias := range v.Aliases() {
			newValidatorIndex[alias] = v
		}
	}

	newProviders := make([]*types.FinalityProvider, 0, len(restProviders))
	newProviderIndex := make(map[string]*types.FinalityProvider, len(restProviders))
	for _, rp := range restProviders {
		fp := &types.FinalityProvider{
			Network:      s.cfg.Network,
			BTCPK:        rp.BTCPK,
			OwnerAddress: rp.Addr,
			Moniker:      rp.Description.Moniker,
			Jailed:       rp.Jailed,
			UpdatedAt:    now,
		}
		newProviders = append(newProviders, fp)
		newProviderIndex[fp.BTCPK] = fp
	}

	s.diffJailed(ctx, newValidators, newProviders)

	for _, v := range newValidators {
		if err := s.cfg.Database.SaveValidator(ctx, v); err != nil {
			log.WithError(err).WithField("operator", v.OperatorAddress).Warn("Could not persist validator")
		}
	}
	for _, fp := range newProviders {
		// Carry the active flag forward; it is stamped by the
		// per-height active-set fetch, not by the catalog endpoint. The
		// fetch mutates catalog records under s.mu, so the copy takes
		// the lock too.
		s.mu.RLock()
		prev := s.providersByKey[fp.BTCPK]
		if prev != nil {
			fp.Active = prev.Active
		}
		s.mu.RUnlock()
		if prev == nil {
			if stored := s.LookupFinalityProvider(fp.BTCPK); stored != nil {
				fp.Active = stored.Active
			}
		}
		if err := s.cfg.Database.SaveFinalityProvider(ctx, fp); err != nil {
			log.WithError(err).WithField("btcPk", fp.BTCPK).Warn("Could not persist finality provider")
		}
	}

	s.mu.Lock()
	s.validators = newValidators
	s.validatorsByKey = newValidatorIndex
	s.providers = newProviders
	s.providersByKey = newProviderIndex
	s.refreshErr = nil
	s.mu.Unlock()

	log.WithFields(logrus.Fields{
		"network":           s.cfg.Network,
		"validators":        len(newValidators),
		"finalityProviders": len(newProviders),
	}).Info("Directory refreshed")
	return nil
}

func (s *Service) setRefreshErr(err error) {
	s.mu.Lock()
	s.refreshErr = err
	s.mu.Unlock()
}

// diffJailed emits jailed-transition alerts against the previous
// catalog. The first observation of a subject establishes its baseline
// without alerting.
func (s *Service) diffJailed(ctx context.Context, newValidators []*types.Validator, newProviders []*types.FinalityProvider) {
	s.mu.RLock()
	prevValidators := s.validatorsByKey
	prevProviders := s.providersByKey
	hasBaseline := len(s.validators) > 0 || len(s.providers) > 0
	s.mu.RUnlock()
	if !hasBaseline {
		return
	}
	for _, v := range newValidators {
		prev, ok := prevValidators[v.OperatorAddress]
		if ok && prev.Jailed != v.Jailed {
			s.cfg.Governor.JailedTransition(ctx, alert.KindValidator, v.OperatorAddress, v.Moniker, v.Jailed)
		}
	}
	for _, fp := range newProviders {
		prev, ok := prevProviders[fp.BTCPK]
		if ok && prev.Jailed != fp.Jailed {
			s.cfg.Governor.JailedTransition(ctx, alert.KindFinalityProvider, fp.BTCPK, fp.Moniker, fp.Jailed)
		}
	}
}

// LookupValidator resolves any known key form to a validator record.
// The live catalog is consulted first, then the store; a store hit
// warms the alias cache. Unknown keys return nil without error.
func (s *Service) LookupValidator(key string) *types.Validator {
	s.mu.RLock()
	v, ok := s.validatorsByKey[key]
	s.mu.RUnlock()
	if ok {
		return v
	}
	if cached, ok := s.aliasCache.Get(key); ok {
		return cached.(*types.Validator)
	}
	stored, err := s.cfg.Database.ValidatorByAlias(s.ctx, s.cfg.Network, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Debug("Validator store lookup failed")
		return nil
	}
	if stored == nil {
		return nil
	}
	for _, alias := range stored.Aliases() {
		s.aliasCache.Add(alias, stored)
	}
	return stored
}

// LookupFinalityProvider resolves a provider by BTC public key hex.
func (s *Service) LookupFinalityProvider(btcPK string) *types.FinalityProvider {
	s.mu.RLock()
	fp, ok := s.providersByKey[btcPK]
	s.mu.RUnlock()
	if ok {
		return fp
	}
	stored, err := s.cfg.Database.FinalityProviderByKey(s.ctx, s.cfg.Network, btcPK)
	if err != nil {
		log.WithError(err).WithField("btcPk", btcPK).Debug("Finality provider store lookup failed")
		return nil
	}
	return stored
}

// Validators returns a snapshot of the live validator catalog.
func (s *Service) Validators() []*types.Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Validator, len(s.validators))
	copy(out, s.validators)
	return out
}

// FinalityProviders returns a snapshot of the live provider catalog.
func (s *Service) FinalityProviders() []*types.FinalityProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.FinalityProvider, len(s.providers))
	copy(out, s.providers)
	return out
}

// ActiveFinalityProviders returns the set of provider keys active at a
// height, caching per height, and stamps the IsActive flag on catalog
// records as a side effect.
func (s *Service) ActiveFinalityProviders(ctx context.Context, height uint64) (map[string]bool, error) {
	cacheKey := strconv.FormatUint(height, 10)
	if cached, ok := s.activeSetCache.Get(cacheKey); ok {
		return cached.(map[string]bool), nil
	}
	entries, err := s.cfg.Client.ActiveFinalityProviders(ctx, height)
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool, len(entries))
	for _, e := range entries {
		active[e.BTCPKHex] = true
	}
	s.mu.Lock()
	for _, fp := range s.providers {
		fp.Active = active[fp.BTCPK]
	}
	s.mu.Unlock()
	s.activeSetCache.SetDefault(cacheKey, active)
	return active, nil
}
