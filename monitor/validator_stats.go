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

// validatorAggregator maintains per-validator block-signature
// statistics. The in-memory record is authoritative; a failed store
// write is logged and retried implicitly by the next update.
type validatorAggregator struct {
	network   string
	database  db.Database
	directory identityDirectory
	governor  *alert.Governor

	mu    sync.Mutex
	stats map[string]*types.ValidatorSigStats
}

func newValidatorAggregator(network string, database db.Database, dir identityDirectory, governor *alert.Governor) *validatorAggregator {
	return &validatorAggregator{
		network:   network,
		database:  database,
		directory: dir,
		governor:  governor,
		stats:     make(map[string]*types.ValidatorSigStats),
	}
}

// ProcessBlock folds one block observation into every known
// validator's record. Signers absent from the directory contribute to
// the observation but produce no per-subject update.
func (a *validatorAggregator) ProcessBlock(ctx context.Context, obs *types.BlockObservation) {
	for _, v := range a.directory.Validators() {
		signed := v.ConsensusHex != "" && obs.Signers[v.ConsensusHex]
		a.processSubject(ctx, v, obs, signed)
	}
}

func (a *validatorAggregator) processSubject(ctx context.Context, v *types.Validator, obs *types.BlockObservation, signed bool) {
	cfg := params.Get()
	s := a.load(ctx, v)

	s.RecentBlocks = append([]types.RecentBlock{{
		Height:    obs.Height,
		Signed:    signed,
		Round:     obs.Round,
		Timestamp: obs.Timestamp,
	}}, s.RecentBlocks...)
	if len(s.RecentBlocks) > cfg.RecentBlocksLimit {
		s.RecentBlocks = s.RecentBlocks[:cfg.RecentBlocksLimit]
	}

	if signed {
		s.ConsecutiveSigned++
		s.ConsecutiveMissed = 0
	} else {
		s.ConsecutiveMissed++
		s.ConsecutiveSigned = 0
	}

	// Once the window saturates at W the signed counter is frozen
	// rather than re-balanced against evicted observations.
	if s.TotalBlocksInWindow < cfg.PerformanceWindow {
		if signed {
			s.TotalSignedBlocks++
		}
		s.TotalBlocksInWindow++
	}
	if s.TotalBlocksInWindow > 0 {
		s.SignatureRate = 100 * float64(s.TotalSignedBlocks) / float64(s.TotalBlocksInWindow)
	} else {
		s.SignatureRate = 0
	}
	s.Moniker = v.Moniker
	s.LastUpdated = time.Now().UTC()

	if err := a.database.SaveValidatorSigStats(ctx, s); err != nil {
		log.WithError(err).WithField("subject", s.SubjectKey).Warn("Could not persist validator stats")
	}
	a.governor.ObserveValidatorStats(ctx, s)
}

// load returns the live record for a validator, seeding it from the
// store on first touch.
func (a *validatorAggregator) load(ctx context.Context, v *types.Validator) *types.ValidatorSigStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.stats[v.OperatorAddress]; ok {
		return s
	}
	stored, err := a.database.ValidatorSigStats(ctx, a.network, v.OperatorAddress)
	if err != nil {
		log.WithError(err).WithField("subject", v.OperatorAddress).Debug("Validator stats store read failed")
	}
	if stored == nil {
		stored = &types.ValidatorSigStats{
			SubjectKey: v.OperatorAddress,
			Network:    a.network,
			Moniker:    v.Moniker,
		}
	}
	a.stats[v.OperatorAddress] = stored
	return stored
}
