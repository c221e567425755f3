package directory

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babylonlabs-io/sentinel/alert"
	"github.com/babylonlabs-io/sentinel/chain"
	"github.com/babylonlabs-io/sentinel/db/kv"
	"github.com/babylonlabs-io/sentinel/types"
)

type fakeCatalog struct {
	mu          sync.Mutex
	validators  []chain.RestValidator
	providers   []chain.RestFinalityProvider
	active      []chain.ActiveFinalityProvider
	activeCalls int
}

func (f *fakeCatalog) Validators(_ context.Context) ([]chain.RestValidator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validators, nil
}

func (f *fakeCatalog) FinalityProviders(_ context.Context) ([]chain.RestFinalityProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers, nil
}

func (f *fakeCatalog) ActiveFinalityProviders(_ context.Context, _ uint64) ([]chain.ActiveFinalityProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeCalls++
	return f.active, nil
}

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

func testPubKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func restValidator(operator, moniker, pubkey string, jailed bool) chain.RestValidator {
	var rv chain.RestValidator
	rv.OperatorAddress = operator
	rv.ConsensusPubkey.Key = pubkey
	rv.Description.Moniker = moniker
	rv.Jailed = jailed
	return rv
}

func restProvider(btcPK, moniker string, jailed bool) chain.RestFinalityProvider {
	var rp chain.RestFinalityProvider
	rp.BTCPK = btcPK
	rp.Description.Moniker = moniker
	rp.Jailed = jailed
	return rp
}

func setupService(t *testing.T, catalog *fakeCatalog, sink alert.Notifier) *Service {
	t.Helper()
	store, err := kv.NewKVStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	svc, err := NewService(context.Background(), &Config{
		Network:       "testnet",
		ValconsPrefix: "bbnvalcons",
		Client:        catalog,
		Database:      store,
		Governor:      alert.NewGovernor("testnet", sink, nil, nil),
	})
	require.NoError(t, err)
	return svc
}

func TestRefreshIndexesAllKeyForms(t *testing.T) {
	pubkey := testPubKey()
	catalog := &fakeCatalog{
		validators: []chain.RestValidator{restValidator("bbnvaloper1aaa", "val-one", pubkey, false)},
	}
	svc := setupService(t, catalog, alert.LogNotifier{})
	require.NoError(t, svc.Refresh(context.Background()))

	v := svc.LookupValidator("bbnvaloper1aaa")
	require.NotNil(t, v)
	assert.Equal(t, "val-one", v.Moniker)

	consAddr, consHex, err := DeriveConsAddress(pubkey, "bbnvalcons")
	require.NoError(t, err)
	assert.Same(t, v, svc.LookupValidator(consAddr))
	assert.Same(t, v, svc.LookupValidator(consHex))
	assert.Same(t, v, svc.LookupValidator(pubkey))
	assert.Nil(t, svc.LookupValidator("unknown-key"))

	assert.Len(t, svc.Validators(), 1)
}

func TestRefreshDiffsJailedTransitions(t *testing.T) {
	pubkey := testPubKey()
	catalog := &fakeCatalog{
		validators: []chain.RestValidator{restValidator("bbnvaloper1aaa", "val-one", pubkey, false)},
		providers:  []chain.RestFinalityProvider{restProvider("pk1", "fp-one", true)},
	}
	sink := &recordingNotifier{}
	svc := setupService(t, catalog, sink)
	ctx := context.Background()

	// First refresh establishes the baseline without alerting.
	require.NoError(t, svc.Refresh(ctx))
	assert.Empty(t, sink.alerts)

	// Unchanged flags stay silent.
	require.NoError(t, svc.Refresh(ctx))
	assert.Empty(t, sink.alerts)

	catalog.mu.Lock()
	catalog.validators = []chain.RestValidator{restValidator("bbnvaloper1aaa", "val-one", pubkey, true)}
	catalog.providers = []chain.RestFinalityProvider{restProvider("pk1", "fp-one", false)}
	catalog.mu.Unlock()

	require.NoError(t, svc.Refresh(ctx))
	require.Len(t, sink.alerts, 2)
	assert.Equal(t, types.SeverityCritical, sink.alerts[0].Severity)
	assert.Equal(t, types.SeverityInfo, sink.alerts[1].Severity)
}

func TestLookupValidatorFallsBackToStore(t *testing.T) {
	catalog := &fakeCatalog{}
	svc := setupService(t, catalog, alert.LogNotifier{})
	ctx := context.Background()

	departed := &types.Validator{
		Network:         "testnet",
		OperatorAddress: "bbnvaloper1old",
		ConsensusHex:    "0LD",
		Moniker:         "val-departed",
	}
	require.NoError(t, svc.cfg.Database.SaveValidator(ctx, departed))
	require.NoError(t, svc.Refresh(ctx))

	v := svc.LookupValidator("0LD")
	require.NotNil(t, v)
	assert.Equal(t, "val-departed", v.Moniker)
}

func TestActiveFinalityProvidersCachesAndStamps(t *testing.T) {
	catalog := &fakeCatalog{
		providers: []chain.RestFinalityProvider{restProvider("pk1", "fp-one", false), restProvider("pk2", "fp-two", false)},
		active:    []chain.ActiveFinalityProvider{{BTCPKHex: "pk1"}},
	}
	svc := setupService(t, catalog, alert.LogNotifier{})
	ctx := context.Background()
	require.NoError(t, svc.Refresh(ctx))

	active, err := svc.ActiveFinalityProviders(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"pk1": true}, active)

	// A repeat call for the same height is served from the cache.
	_, err = svc.ActiveFinalityProviders(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.activeCalls)

	fp1 := svc.LookupFinalityProvider("pk1")
	require.NotNil(t, fp1)
	assert.True(t, fp1.Active)
	fp2 := svc.LookupFinalityProvider("pk2")
	require.NotNil(t, fp2)
	assert.False(t, fp2.Active)
}

func TestRefreshCarriesActiveFlagForward(t *testing.T) {
	catalog := &fakeCatalog{
		providers: []chain.RestFinalityProvider{restProvider("pk1", "fp-one", false)},
		active:    []chain.ActiveFinalityProvider{{BTCPKHex: "pk1"}},
	}
	svc := setupService(t, catalog, alert.LogNotifier{})
	ctx := context.Background()
	require.NoError(t, svc.Refresh(ctx))

	_, err := svc.ActiveFinalityProviders(ctx, 100)
	require.NoError(t, err)
	require.True(t, svc.LookupFinalityProvider("pk1").Active)

	// The catalog endpoint does not report activity; a refresh keeps
	// the stamped flag on the replacement record.
	require.NoError(t, svc.Refresh(ctx))
	fp := svc.LookupFinalityProvider("pk1")
	require.NotNil(t, fp)
	assert.True(t, fp.Active)
}
