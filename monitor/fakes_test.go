package monitor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/babylonlabs-io/sentinel/chain"
	"github.com/babylonlabs-io/sentinel/db/kv"
	"github.com/babylonlabs-io/sentinel/types"
)

// fakeChain is an in-memory chainReader for pipeline tests.
type fakeChain struct {
	mu         sync.Mutex
	latest     uint64
	votes      map[uint64][]string
	txs        map[uint64][]chain.Tx
	epoch      *chain.CurrentEpoch
	epochCalls int
	txCalls    map[uint64]int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		votes:   make(map[uint64][]string),
		txs:     make(map[uint64][]chain.Tx),
		txCalls: make(map[uint64]int),
	}
}

func (f *fakeChain) LatestHeight(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeChain) Block(_ context.Context, height uint64) (*chain.Block, error) {
	return &chain.Block{Header: chain.BlockHeader{Height: chain.Uint64String(height)}}, nil
}

func (f *fakeChain) FinalityVotes(_ context.Context, height uint64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.votes[height], nil
}

func (f *fakeChain) CurrentEpoch(_ context.Context) (*chain.CurrentEpoch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epochCalls++
	if f.epoch == nil {
		return &chain.CurrentEpoch{}, nil
	}
	return f.epoch, nil
}

func (f *fakeChain) TxsAtHeight(_ context.Context, height uint64) ([]chain.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls[height]++
	return f.txs[height], nil
}

// fakeDirectory is an in-memory identityDirectory.
type fakeDirectory struct {
	validators []*types.Validator
	providers  map[string]*types.FinalityProvider
	active     map[string]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		providers: make(map[string]*types.FinalityProvider),
		active:    make(map[string]bool),
	}
}

func (f *fakeDirectory) Validators() []*types.Validator {
	return f.validators
}

func (f *fakeDirectory) LookupValidator(key string) *types.Validator {
	for _, v := range f.validators {
		for _, alias := range v.Aliases() {
			if alias == key {
				return v
			}
		}
	}
	return nil
}

func (f *fakeDirectory) LookupFinalityProvider(btcPK string) *types.FinalityProvider {
	return f.providers[btcPK]
}

func (f *fakeDirectory) ActiveFinalityProviders(_ context.Context, _ uint64) (map[string]bool, error) {
	return f.active, nil
}

// recordingNotifier captures emitted alerts.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*types.Alert
}

func (r *recordingNotifier) SendAlert(_ context.Context, a *types.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func setupDB(t *testing.T) *kv.Store {
	store, err := kv.NewKVStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}
