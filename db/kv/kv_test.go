package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babylonlabs-io/sentinel/types"
)

func setupDB(t *testing.T) *Store {
	store, err := NewKVStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestValidatorAliasLookup(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()

	v := &types.Validator{
		Network:          "testnet",
		OperatorAddress:  "bbnvaloper1aaa",
		ConsensusAddress: "bbnvalcons1qqq",
		ConsensusHex:     "ABCDEF",
		ConsensusPubKey:  "cHVia2V5",
		Moniker:          "val-one",
	}
	require.NoError(t, store.SaveValidator(ctx, v))

	for _, key := range v.Aliases() {
		got, err := store.ValidatorByAlias(ctx, "testnet", key)
		require.NoError(t, err)
		require.NotNil(t, got, "alias %s", key)
		assert.Equal(t, "bbnvaloper1aaa", got.OperatorAddress)
		assert.Equal(t, "val-one", got.Moniker)
	}

	// Unknown keys and wrong networks return nothing.
	got, err := store.ValidatorByAlias(ctx, "testnet", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = store.ValidatorByAlias(ctx, "mainnet", "bbnvaloper1aaa")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFinalityProviderRoundTrip(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()

	fp := &types.FinalityProvider{
		Network: "testnet",
		BTCPK:   "pk1",
		Moniker: "fp-one",
		Jailed:  true,
	}
	require.NoError(t, store.SaveFinalityProvider(ctx, fp))

	got, err := store.FinalityProviderByKey(ctx, "testnet", "pk1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "fp-one", got.Moniker)
	assert.True(t, got.Jailed)

	got, err = store.FinalityProviderByKey(ctx, "testnet", "pk2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestValidatorSigStatsByNetwork(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()

	require.NoError(t, store.SaveValidatorSigStats(ctx, &types.ValidatorSigStats{
		SubjectKey: "val-a", Network: "testnet", TotalSignedBlocks: 5, TotalBlocksInWindow: 10,
	}))
	require.NoError(t, store.SaveValidatorSigStats(ctx, &types.ValidatorSigStats{
		SubjectKey: "val-b", Network: "testnet", TotalSignedBlocks: 9, TotalBlocksInWindow: 10,
	}))
	require.NoError(t, store.SaveValidatorSigStats(ctx, &types.ValidatorSigStats{
		SubjectKey: "val-c", Network: "mainnet", TotalSignedBlocks: 1, TotalBlocksInWindow: 1,
	}))

	list, err := store.ValidatorSigStatsByNetwork(ctx, "testnet")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	one, err := store.ValidatorSigStats(ctx, "testnet", "val-a")
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, uint64(5), one.TotalSignedBlocks)

	// Upserts overwrite in place.
	require.NoError(t, store.SaveValidatorSigStats(ctx, &types.ValidatorSigStats{
		SubjectKey: "val-a", Network: "testnet", TotalSignedBlocks: 6, TotalBlocksInWindow: 11,
	}))
	one, err = store.ValidatorSigStats(ctx, "testnet", "val-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), one.TotalSignedBlocks)
	list, err = store.ValidatorSigStatsByNetwork(ctx, "testnet")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestFinalityProviderStatsRoundTrip(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()

	require.NoError(t, store.SaveFinalityProviderStats(ctx, &types.FinalityProviderStats{
		BTCPK: "pk1", Network: "testnet", TotalBlocks: 10, SignedBlocks: 7,
		MissedBlockHeights: []uint64{3, 5, 9},
	}))

	got, err := store.FinalityProviderStats(ctx, "testnet", "pk1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []uint64{3, 5, 9}, got.MissedBlockHeights)

	list, err := store.FinalityProviderStatsByNetwork(ctx, "testnet")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBLSCheckpointStatsRoundTrip(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBLSCheckpointStats(ctx, &types.BLSCheckpointStats{
		Epoch: 5, Network: "testnet", TotalPower: 20, SignedPower: 10,
		ParticipationRateByPower: "50.00%",
	}))

	got, err := store.BLSCheckpointStats(ctx, "testnet", 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "50.00%", got.ParticipationRateByPower)

	got, err = store.BLSCheckpointStats(ctx, "testnet", 6)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestProcessedHeightMonotonic(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()

	h, err := store.LatestProcessedHeight(ctx, "testnet")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), h)

	require.NoError(t, store.SaveLatestProcessedHeight(ctx, "testnet", 10))
	// A stale write does not move the watermark backwards.
	require.NoError(t, store.SaveLatestProcessedHeight(ctx, "testnet", 5))
	h, err = store.LatestProcessedHeight(ctx, "testnet")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), h)

	require.NoError(t, store.SaveLatestProcessedHeight(ctx, "testnet", 20))
	h, err = store.LatestProcessedHeight(ctx, "testnet")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), h)

	// Watermarks are per network.
	h, err = store.LatestProcessedHeight(ctx, "mainnet")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), h)
}
