package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babylonlabs-io/sentinel/alert"
	"github.com/babylonlabs-io/sentinel/config/params"
	"github.com/babylonlabs-io/sentinel/types"
)

func TestProviderAggregatorTracksMisses(t *testing.T) {
	cfg := params.DefaultSentinelConfig()
	cfg.MissedHeightsLimit = 3
	params.Override(cfg)
	defer params.Override(params.DefaultSentinelConfig())

	database := setupDB(t)
	dir := newFakeDirectory()
	dir.providers["pk1"] = &types.FinalityProvider{
		Network: "testnet",
		BTCPK:   "pk1",
		Moniker: "fp-one",
		Active:  true,
	}
	governor := alert.NewGovernor("testnet", alert.LogNotifier{}, nil, nil)
	agg := newProviderAggregator("testnet", database, dir, governor)
	ctx := context.Background()

	active := map[string]bool{"pk1": true}
	voted := map[string]bool{"pk1": true}
	missed := map[string]bool{}

	// Votes at 1 and 4; misses at 2, 3, 5 and 6.
	agg.ProcessHeight(ctx, 1, active, voted)
	agg.ProcessHeight(ctx, 2, active, missed)
	agg.ProcessHeight(ctx, 3, active, missed)
	agg.ProcessHeight(ctx, 4, active, voted)
	agg.ProcessHeight(ctx, 5, active, missed)
	agg.ProcessHeight(ctx, 6, active, missed)

	s, err := database.FinalityProviderStats(ctx, "testnet", "pk1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, uint64(1), s.StartHeight)
	assert.Equal(t, uint64(6), s.EndHeight)
	assert.Equal(t, uint64(6), s.TotalBlocks)
	assert.Equal(t, uint64(2), s.SignedBlocks)
	assert.Equal(t, uint64(4), s.MissedBlocks)
	// The miss list is bounded to the newest entries.
	assert.Equal(t, []uint64{3, 5, 6}, s.MissedBlockHeights)
	assert.InDelta(t, 100*2.0/6.0, s.SignatureRate, 1e-9)
	assert.Equal(t, "fp-one", s.Moniker)
	assert.True(t, s.IsActive)
}

func TestProviderAggregatorFirstObservation(t *testing.T) {
	database := setupDB(t)
	governor := alert.NewGovernor("testnet", alert.LogNotifier{}, nil, nil)
	agg := newProviderAggregator("testnet", database, newFakeDirectory(), governor)
	ctx := context.Background()

	agg.ProcessHeight(ctx, 42, map[string]bool{"pk9": true}, map[string]bool{"pk9": true})

	s, err := database.FinalityProviderStats(ctx, "testnet", "pk9")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, uint64(42), s.StartHeight)
	assert.Equal(t, uint64(42), s.EndHeight)
	assert.Equal(t, uint64(1), s.TotalBlocks)
	assert.Equal(t, uint64(1), s.SignedBlocks)
	assert.InDelta(t, 100.0, s.SignatureRate, 1e-9)
	// A provider absent from the catalog is assumed active at the
	// heights it appears in the active set.
	assert.True(t, s.IsActive)
}

func TestProviderAggregatorIgnoresInactiveProviders(t *testing.T) {
	database := setupDB(t)
	governor := alert.NewGovernor("testnet", alert.LogNotifier{}, nil, nil)
	agg := newProviderAggregator("testnet", database, newFakeDirectory(), governor)
	ctx := context.Background()

	// pk2 voted but is not in the active set: no record is created.
	agg.ProcessHeight(ctx, 10, map[string]bool{"pk1": true}, map[string]bool{"pk2": true})

	s, err := database.FinalityProviderStats(ctx, "testnet", "pk2")
	require.NoError(t, err)
	assert.Nil(t, s)
}
