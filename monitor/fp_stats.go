package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/babylonlabs-io/sentinel/alert"
	"github.com/babylonlabs-io/sentinel/config/params"
	"github.com/babylonlabs-io/sentinel/db"
	"github.com/babylonlabs-io/sentinel/types"
)

// providerAggregator maintains per-finality-provider vote statistics.
type providerAggregator struct {
	network   string
	database  db.Database
	directory identityDirectory
	governor  *alert.Governor

	mu    sync.Mutex
	stats map[string]*types.FinalityProviderStats
}

func newProviderAggregator(network string, database db.Database, dir identityDirectory, governor *alert.Governor) *providerAggregator {
	return &providerAggregator{
		network:   network,
		database:  database,
		directory: dir,
		governor:  governor,
		stats:     make(map[string]*types.FinalityProviderStats),
	}
}

// ProcessHeight folds one height's vote set into the records of every
// provider active at that height.
func (a *providerAggregator) ProcessHeight(ctx context.Context, height uint64, active, voters map[string]bool) {
	cfg := params.Get()
	for pk := range active {
		signed := voters[pk]
		s := a.load(ctx, pk)

		if s.TotalBlocks == 0 {
			s.StartHeight = height
			s.EndHeight = height
			s.TotalBlocks = 1
			if signed {
				s.SignedBlocks = 1
			} else {
				s.MissedBlocks = 1
				s.MissedBlockHeights = []uint64{height}
			}
		} else {
			s.TotalBlocks++
			if signed {
				s.SignedBlocks++
			} else {
				s.MissedBlocks++
				s.MissedBlockHeights = append(s.MissedBlockHeights, height)
				if len(s.MissedBlockHeights) > cfg.MissedHeightsLimit {
					s.MissedBlockHeights = s.MissedBlockHeights[len(s.MissedBlockHeights)-cfg.MissedHeightsLimit:]
				}
			}
			if height > s.EndHeight {
				s.EndHeight = height
			}
		}
		s.SignatureRate = 100 * float64(s.SignedBlocks) / float64(s.TotalBlocks)

		if fp := a.directory.LookupFinalityProvider(pk); fp != nil {
			s.Moniker = fp.Moniker
			s.Jailed = fp.Jailed
			s.IsActive = fp.Active
		} else {
			s.IsActive = true
		}
		s.LastUpdated = time.Now().UTC()

		if err := a.database.SaveFinalityProviderStats(ctx, s); err != nil {
			log.WithError(err).WithField("btcPk", pk).Warn("Could not persist finality provider stats")
		}
		a.governor.ObserveFinalityProviderStats(ctx, s)
	}
}

func (a *providerAggregator) load(ctx context.Context, btcPK string) *types.FinalityProviderStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.stats[btcPK]; ok {
		return s
	}
	stored, err := a.database.FinalityProviderStats(ctx, a.network, btcPK)
	if err != nil {
		log.WithError(err).WithField("btcPk", btcPK).Debug("Finality provider stats store read failed")
	}
	if stored == nil {
		stored = &types.FinalityProviderStats{
			BTCPK:   btcPK,
			Network: a.network,
		}
	}
	a.stats[btcPK] = stored
	return stored
}
