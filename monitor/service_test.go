package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babylonlabs-io/sentinel/alert"
	"github.com/babylonlabs-io/sentinel/chain"
)

func newServiceForTest(t *testing.T, fc *fakeChain, blsEnabled bool) *Service {
	t.Helper()
	s, err := NewService(context.Background(), &Config{
		Network:       "testnet",
		Client:        fc,
		Router:        chain.NewRouter("testnet", 16),
		Directory:     newFakeDirectory(),
		Database:      setupDB(t),
		Governor:      alert.NewGovernor("testnet", alert.LogNotifier{}, nil, nil),
		BLSMonitoring: blsEnabled,
	})
	require.NoError(t, err)
	return s
}

func TestServiceRefreshesEpochEveryInterval(t *testing.T) {
	fc := newFakeChain()
	fc.epoch = &chain.CurrentEpoch{CurrentEpoch: 9, EpochBoundary: 3240}
	s := newServiceForTest(t, fc, true)

	s.onHeight(49)
	assert.Equal(t, 0, fc.epochCalls)
	s.onHeight(50)
	assert.Equal(t, 1, fc.epochCalls)
	s.onHeight(51)
	assert.Equal(t, 1, fc.epochCalls)
	s.onHeight(100)
	assert.Equal(t, 2, fc.epochCalls)

	// The observed boundary now drives the checkpoint scan start.
	assert.Equal(t, uint64(3241), s.checkpoints.startHeight(9))
}

func TestServiceSkipsEpochRefreshWithoutBLS(t *testing.T) {
	fc := newFakeChain()
	s := newServiceForTest(t, fc, false)

	assert.Nil(t, s.checkpoints)
	s.onHeight(50)
	assert.Equal(t, 0, fc.epochCalls)
}

func TestServiceStatusReflectsRunError(t *testing.T) {
	s := newServiceForTest(t, newFakeChain(), false)
	require.NoError(t, s.Status())
	s.setRunErr(assert.AnError)
	require.Error(t, s.Status())
}
