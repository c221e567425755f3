package monitor

import (
	"container/heap"
	"context"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/babylonlabs-io/sentinel/chain"
	"github.com/babylonlabs-io/sentinel/config/params"
	"github.com/babylonlabs-io/sentinel/db"
	"github.com/babylonlabs-io/sentinel/types"
)

// pendingBlock is one queued height, optionally carrying the block
// delivered by the event stream so it need not be re-fetched.
type pendingBlock struct {
	height uint64
	block  *chain.Block
}

type pendingHeap []*pendingBlock

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].height < h[j].height }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x interface{}) { *h = append(*h, x.(*pendingBlock)) }
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// blockPipeline transforms block events into per-height observations
// in strictly ascending height order, each height processed exactly
// once per process lifetime. Heights become eligible only once the
// pipeline has seen a height at least FinalityLag ahead.
type blockPipeline struct {
	network      string
	client       chainReader
	directory    identityDirectory
	database     db.Database
	validatorAgg *validatorAggregator
	providerAgg  *providerAggregator
	// onHeight fires after every processed height; the service uses it
	// for the epoch watermark refresh.
	onHeight func(height uint64)

	mu        sync.Mutex
	pending   pendingHeap
	queued    map[uint64]bool
	processed map[uint64]bool
	watermark uint64
	maxSeen   uint64
	draining  bool

	voteCache *lru.Cache
}

func newBlockPipeline(network string, client chainReader, dir identityDirectory, database db.Database,
	validatorAgg *validatorAggregator, providerAgg *providerAggregator, onHeight func(uint64)) (*blockPipeline, error) {
	voteCache, err := lru.New(params.Get().VoteCacheSize)
	if err != nil {
		return nil, err
	}
	return &blockPipeline{
		network:      network,
		client:       client,
		directory:    dir,
		database:     database,
		validatorAgg: validatorAgg,
		providerAgg:  providerAgg,
		onHeight:     onHeight,
		queued:       make(map[uint64]bool),
		processed:    make(map[uint64]bool),
		voteCache:    voteCache,
	}, nil
}

// OnBlockEvent enqueues a streamed block and drains whatever became
// eligible. Heights at or below the watermark and duplicates are
// dropped.
func (p *blockPipeline) OnBlockEvent(ctx context.Context, b *chain.Block) {
	h := b.Height()
	if h == 0 {
		return
	}
	p.mu.Lock()
	if h > p.maxSeen {
		p.maxSeen = h
	}
	if h <= p.watermark || p.processed[h] || p.queued[h] {
		p.mu.Unlock()
		return
	}
	heap.Push(&p.pending, &pendingBlock{height: h, block: b})
	p.queued[h] = true
	p.mu.Unlock()
	p.drain(ctx)
}

// drain processes eligible pending heights in ascending order. Heights
// between the watermark and the next streamed height that no event ever
// delivered (reconnect gaps, router drops) are recovered over REST
// first. A single worker holds the drain at a time; re-entrant calls
// return immediately.
func (p *blockPipeline) drain(ctx context.Context) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	for {
		if ctx.Err() != nil || p.pending.Len() == 0 {
			break
		}
		next := p.pending[0]
		if next.height+params.Get().FinalityLag > p.maxSeen {
			break
		}
		heap.Pop(&p.pending)
		delete(p.queued, next.height)
		if next.height <= p.watermark || p.processed[next.height] {
			continue
		}
		gapStart, gapEnd := p.gapBoundsLocked(next.height)
		p.mu.Unlock()
		p.recoverGap(ctx, gapStart, gapEnd)
		if err := p.processHeight(ctx, next.height, next.block); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"network": p.network,
				"height":  next.height,
			}).Warn("Could not process block")
		}
		p.mu.Lock()
	}
	p.draining = false
	p.mu.Unlock()
}

// gapBoundsLocked returns the heights the stream skipped between the
// watermark and the next queued height, capped at MaxSyncBlocks. A zero
// watermark means no baseline exists yet and nothing is recovered.
// Caller holds p.mu.
func (p *blockPipeline) gapBoundsLocked(next uint64) (uint64, uint64) {
	if p.watermark == 0 || next <= p.watermark+1 {
		return 1, 0
	}
	start := p.watermark + 1
	if span := params.Get().MaxSyncBlocks; next-start > span {
		start = next - span
	}
	return start, next - 1
}

// recoverGap fetches skipped heights through the regular processing
// path so the watermark never advances past an unprocessed height.
func (p *blockPipeline) recoverGap(ctx context.Context, from, to uint64) {
	if from > to {
		return
	}
	log.WithFields(logrus.Fields{
		"network": p.network,
		"from":    from,
		"to":      to,
	}).Info("Recovering heights skipped by the event stream")
	for h := from; h <= to; h++ {
		if ctx.Err() != nil {
			return
		}
		if err := p.processHeight(ctx, h, nil); err != nil {
			log.WithError(err).WithField("height", h).Warn("Could not recover skipped block")
		}
	}
}

// processHeight runs the full observation path for one height and
// advances the watermark. The streamed block is used when available;
// the sync path fetches over REST.
func (p *blockPipeline) processHeight(ctx context.Context, height uint64, block *chain.Block) error {
	if block == nil {
		var err error
		block, err = p.client.Block(ctx, height)
		if err != nil {
			return errors.Wrapf(err, "could not fetch block %d", height)
		}
	}

	obs := observationFromBlock(height, block)
	if p.validatorAgg != nil {
		p.validatorAgg.ProcessBlock(ctx, obs)
	}
	if p.providerAgg != nil {
		if err := p.processFinalityVotes(ctx, height); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"network": p.network,
				"height":  height,
			}).Warn("Could not process finality votes")
		}
	}

	p.markProcessed(ctx, height)
	blocksProcessed.Inc()
	if p.onHeight != nil {
		p.onHeight(height)
	}
	return nil
}

// processFinalityVotes unions the height's finality vote set against
// the providers active at that height.
func (p *blockPipeline) processFinalityVotes(ctx context.Context, height uint64) error {
	active, err := p.directory.ActiveFinalityProviders(ctx, height)
	if err != nil {
		return errors.Wrap(err, "could not fetch active provider set")
	}
	if len(active) == 0 {
		return nil
	}
	voters, err := p.finalityVoters(ctx, height)
	if err != nil {
		return errors.Wrap(err, "could not fetch finality votes")
	}
	p.providerAgg.ProcessHeight(ctx, height, active, voters)
	return nil
}

// finalityVoters returns the vote set at a height, LRU cached.
func (p *blockPipeline) finalityVoters(ctx context.Context, height uint64) (map[string]bool, error) {
	if cached, ok := p.voteCache.Get(height); ok {
		return cached.(map[string]bool), nil
	}
	pks, err := p.client.FinalityVotes(ctx, height)
	if err != nil {
		return nil, err
	}
	voters := make(map[string]bool, len(pks))
	for _, pk := range pks {
		voters[pk] = true
	}
	p.voteCache.Add(height, voters)
	return voters, nil
}

func (p *blockPipeline) markProcessed(ctx context.Context, height uint64) {
	p.mu.Lock()
	if height > p.watermark {
		p.watermark = height
	}
	p.processed[height] = true
	if len(p.processed) > params.Get().ProcessedCacheSize {
		p.evictProcessedLocked()
	}
	p.mu.Unlock()
	if err := p.database.SaveLatestProcessedHeight(ctx, p.network, height); err != nil {
		log.WithError(err).WithField("height", height).Warn("Could not persist watermark")
	}
}

// evictProcessedLocked drops the oldest half of the processed cache.
// Caller holds p.mu.
func (p *blockPipeline) evictProcessedLocked() {
	heights := make([]uint64, 0, len(p.processed))
	for h := range p.processed {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	for _, h := range heights[:len(heights)/2] {
		delete(p.processed, h)
	}
}

// Watermark returns the last processed height.
func (p *blockPipeline) Watermark() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// InitialSync closes the gap between the stored watermark and the
// finalized tip, capped at MaxSyncBlocks per invocation. The runtime
// stream closes any remainder once online.
func (p *blockPipeline) InitialSync(ctx context.Context) error {
	cfg := params.Get()
	lastStored, err := p.database.LatestProcessedHeight(ctx, p.network)
	if err != nil {
		return errors.Wrap(err, "could not read stored watermark")
	}
	current, err := p.client.LatestHeight(ctx)
	if err != nil {
		return errors.Wrap(err, "could not fetch current height")
	}
	if current <= cfg.FinalityLag {
		return nil
	}
	syncEnd := current - cfg.FinalityLag
	syncStart := lastStored + 1
	if earliest := current - min64(current, cfg.FinalityLag+cfg.MaxSyncBlocks); syncStart < earliest {
		syncStart = earliest
	}
	if syncStart > syncEnd {
		return nil
	}

	p.mu.Lock()
	if current > p.maxSeen {
		p.maxSeen = current
	}
	if lastStored > p.watermark {
		p.watermark = lastStored
	}
	p.mu.Unlock()

	log.WithFields(logrus.Fields{
		"network": p.network,
		"from":    syncStart,
		"to":      syncEnd,
	}).Info("Catching up on missed blocks")
	for h := syncStart; h <= syncEnd; h++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.mu.Lock()
		done := p.processed[h]
		p.mu.Unlock()
		if done {
			continue
		}
		if err := p.processHeight(ctx, h, nil); err != nil {
			log.WithError(err).WithField("height", h).Warn("Sync skipped block")
		}
	}
	return nil
}

// observationFromBlock extracts the signer set from a block's commit.
// The observation is attributed to the event height.
func observationFromBlock(height uint64, b *chain.Block) *types.BlockObservation {
	signers := make(map[string]bool, len(b.LastCommit.Signatures))
	for _, sig := range b.LastCommit.Signatures {
		if sig.Signed() && sig.ValidatorAddress != "" {
			signers[sig.ValidatorAddress] = true
		}
	}
	return &types.BlockObservation{
		Height:    height,
		Timestamp: b.Header.Time,
		Round:     b.LastCommit.Round,
		Signers:   signers,
	}
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
