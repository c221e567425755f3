package monitor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/babylonlabs-io/sentinel/chain"
	"github.com/babylonlabs-io/sentinel/config/params"
	"github.com/babylonlabs-io/sentinel/types"
)

// checkpointPipeline resolves checkpoint-sealed events into BLS
// checkpoint observations. Each epoch is processed at most once per
// process lifetime; a failed lookup leaves the epoch unmarked so a
// fresh event may retry it.
type checkpointPipeline struct {
	network   string
	client    chainReader
	directory identityDirectory
	bls       *blsAggregator

	mu        sync.Mutex
	processed map[uint64]bool
	// boundaries remembers epoch end heights reported by the epoching
	// module, falling back to the fixed epoch length when absent.
	boundaries map[uint64]uint64
}

func newCheckpointPipeline(network string, client chainReader, dir identityDirectory, bls *blsAggregator) *checkpointPipeline {
	return &checkpointPipeline{
		network:    network,
		client:     client,
		directory:  dir,
		bls:        bls,
		processed:  make(map[uint64]bool),
		boundaries: make(map[uint64]uint64),
	}
}

// ObserveCurrentEpoch records the epoch boundary reported by the
// chain, used to locate future checkpoint transactions.
func (p *checkpointPipeline) ObserveCurrentEpoch(e *chain.CurrentEpoch) {
	if e == nil || e.EpochBoundary == 0 {
		return
	}
	p.mu.Lock()
	p.boundaries[uint64(e.CurrentEpoch)] = uint64(e.EpochBoundary)
	if len(p.boundaries) > 16 {
		for epoch := range p.boundaries {
			if epoch+16 < uint64(e.CurrentEpoch) {
				delete(p.boundaries, epoch)
			}
		}
	}
	p.mu.Unlock()
}

// startHeight returns the first height to scan for epoch e's injected
// checkpoint: one past the epoch's recorded boundary when known,
// otherwise e*EpochBlocks+1.
func (p *checkpointPipeline) startHeight(epoch uint64) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if boundary, ok := p.boundaries[epoch]; ok {
		return boundary + 1
	}
	return epoch*params.Get().EpochBlocks + 1
}

// ProcessEpoch locates the injected checkpoint for a sealed epoch and
// feeds the derived observation to the BLS aggregator.
func (p *checkpointPipeline) ProcessEpoch(ctx context.Context, epoch uint64) error {
	p.mu.Lock()
	if p.processed[epoch] {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	start := p.startHeight(epoch)
	for offset := uint64(0); offset < params.Get().CheckpointScanOffsets; offset++ {
		height := start + offset
		txs, err := p.client.TxsAtHeight(ctx, height)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"network": p.network,
				"height":  height,
			}).Warn("Could not fetch transactions during checkpoint scan")
			continue
		}
		msg := findInjectedCheckpoint(txs)
		if msg == nil {
			continue
		}
		obs := p.buildObservation(msg)
		p.bls.ProcessCheckpoint(ctx, obs)
		checkpointsProcessed.Inc()

		p.mu.Lock()
		p.processed[epoch] = true
		p.mu.Unlock()
		log.WithFields(logrus.Fields{
			"network": p.network,
			"epoch":   obs.Epoch,
			"height":  height,
		}).Info("Processed BLS checkpoint")
		return nil
	}
	return errors.Errorf("no injected checkpoint found for epoch %d starting at height %d", epoch, start)
}

// findInjectedCheckpoint scans a height's transactions for the first
// checkpoint-injection message carrying extended commit votes.
func findInjectedCheckpoint(txs []chain.Tx) *chain.InjectedCheckpoint {
	for _, tx := range txs {
		for _, raw := range tx.Body.Messages {
			var probe struct {
				Type string `json:"@type"`
			}
			if err := json.Unmarshal(raw, &probe); err != nil || probe.Type != chain.MsgInjectedCheckpointType {
				continue
			}
			msg := &chain.InjectedCheckpoint{}
			if err := json.Unmarshal(raw, msg); err != nil {
				log.WithError(err).Debug("Could not decode injected checkpoint message")
				continue
			}
			if len(msg.ExtendedCommitInfo.Votes) == 0 {
				continue
			}
			return msg
		}
	}
	return nil
}

// buildObservation derives the vote set from the checkpoint message.
// The embedded epoch number is authoritative. Vote addresses are used
// verbatim as directory keys; entries the directory cannot resolve
// still contribute their power and are labeled Unknown.
func (p *checkpointPipeline) buildObservation(msg *chain.InjectedCheckpoint) *types.CheckpointObservation {
	obs := &types.CheckpointObservation{
		Epoch: uint64(msg.Ckpt.Ckpt.EpochNum),
		Votes: make([]types.CheckpointVote, 0, len(msg.ExtendedCommitInfo.Votes)),
	}
	for _, entry := range msg.ExtendedCommitInfo.Votes {
		vote := types.CheckpointVote{
			Key:     entry.Validator.Address,
			Moniker: "Unknown",
			Power:   int64(entry.Validator.Power),
			Signed:  entry.BlockIDFlag == chain.BlockIDFlagCommit && entry.ExtensionSignature != "",
		}
		if v := p.directory.LookupValidator(entry.Validator.Address); v != nil {
			vote.Moniker = v.Moniker
		}
		obs.Votes = append(obs.Votes, vote)
	}
	return obs
}
