package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/babylonlabs-io/sentinel/alert"
	"github.com/babylonlabs-io/sentinel/db"
	"github.com/babylonlabs-io/sentinel/types"
)

// blsAggregator persists BLS checkpoint observations as delivered;
// there is no online aggregation across epochs.
type blsAggregator struct {
	network  string
	database db.Database
	governor *alert.Governor
}

func newBLSAggregator(network string, database db.Database, governor *alert.Governor) *blsAggregator {
	return &blsAggregator{network: network, database: database, governor: governor}
}

// ProcessCheckpoint derives the participation record from one epoch's
// checkpoint observation, persists it and hands both to the governor.
func (a *blsAggregator) ProcessCheckpoint(ctx context.Context, obs *types.CheckpointObservation) *types.BLSCheckpointStats {
	var totalPower, signedPower int64
	signedCount := 0
	for _, vote := range obs.Votes {
		totalPower += vote.Power
		if vote.Signed {
			signedPower += vote.Power
			signedCount++
		}
	}
	stats := &types.BLSCheckpointStats{
		Epoch:           obs.Epoch,
		Network:         a.network,
		TotalValidators: len(obs.Votes),
		TotalPower:      totalPower,
		SignedPower:     signedPower,
		UnsignedPower:   totalPower - signedPower,
		Timestamp:       time.Now().UTC(),
	}
	if len(obs.Votes) > 0 {
		stats.ParticipationRateByCount = fmt.Sprintf("%.2f%%", 100*float64(signedCount)/float64(len(obs.Votes)))
	} else {
		stats.ParticipationRateByCount = "0.00%"
	}
	if totalPower > 0 {
		stats.ParticipationRateByPower = fmt.Sprintf("%.2f%%", 100*float64(signedPower)/float64(totalPower))
	} else {
		stats.ParticipationRateByPower = "0.00%"
	}

	if err := a.database.SaveBLSCheckpointStats(ctx, stats); err != nil {
		log.WithError(err).WithField("epoch", obs.Epoch).Warn("Could not persist checkpoint stats")
	}
	a.governor.ObserveCheckpoint(ctx, obs, stats)
	return stats
}
