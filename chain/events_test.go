package chain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterDiscardsAcks(t *testing.T) {
	r := NewRouter("testnet", 4)
	r.Route([]byte(`{"jsonrpc":"2.0","id":"newBlock","result":{}}`))
	r.Route([]byte(`{"jsonrpc":"2.0","id":"newBlock","result":true}`))
	r.Route([]byte(`not json at all`))
	assert.Len(t, r.Blocks(), 0)
	assert.Len(t, r.Checkpoints(), 0)
}

func TestRouterRoutesBlockEvents(t *testing.T) {
	r := NewRouter("testnet", 4)
	frame := `{"jsonrpc":"2.0","id":"newBlock","result":{"query":"tm.event='NewBlock'","data":{"type":"tendermint/event/NewBlock","value":{"block":{"header":{"height":"77","time":"2024-01-02T03:04:05Z"},"last_commit":{"height":"76","round":0,"signatures":[]}}}}}}`
	r.Route([]byte(frame))

	require.Len(t, r.Blocks(), 1)
	ev := <-r.Blocks()
	assert.Equal(t, uint64(77), ev.Block.Height())
}

func TestRouterRoutesCheckpointEvents(t *testing.T) {
	r := NewRouter("testnet", 4)
	frame := `{"jsonrpc":"2.0","id":"checkpoint_for_bls","result":{"query":"tm.event='Tx'","events":{"babylon.checkpointing.v1.EventCheckpointSealed.checkpoint":["{\"epoch_num\": \"12\", \"status\": \"CKPT_STATUS_SEALED\"}"]}}}`
	r.Route([]byte(frame))

	require.Len(t, r.Checkpoints(), 1)
	ev := <-r.Checkpoints()
	assert.Equal(t, uint64(12), ev.Epoch)
}

func TestRouterDropsOldestWhenFull(t *testing.T) {
	r := NewRouter("testnet", 1)
	for h := 1; h <= 3; h++ {
		frame := fmt.Sprintf(`{"jsonrpc":"2.0","id":"newBlock","result":{"data":{"value":{"block":{"header":{"height":"%d"}}}}}}`, h)
		r.Route([]byte(frame))
	}
	require.Len(t, r.Blocks(), 1)
	ev := <-r.Blocks()
	assert.Equal(t, uint64(3), ev.Block.Height())
}

func TestCheckpointEpochParsing(t *testing.T) {
	tests := []struct {
		name   string
		events map[string][]string
		epoch  uint64
		found  bool
	}{
		{
			name:   "json attribute",
			events: map[string][]string{"babylon.checkpointing.v1.EventCheckpointSealed.checkpoint": {`{"epoch_num": "5"}`}},
			epoch:  5,
			found:  true,
		},
		{
			name:   "key value attribute",
			events: map[string][]string{"tm.babylon.checkpointing.v1.EventCheckpointSealed.checkpoint": {"epoch_num=41"}},
			epoch:  41,
			found:  true,
		},
		{
			name:   "unrelated event",
			events: map[string][]string{"transfer.amount": {"100ubbn"}},
			found:  false,
		},
		{
			name:   "no digits",
			events: map[string][]string{"babylon.checkpointing.v1.EventCheckpointSealed.checkpoint": {"epoch_num=abc"}},
			found:  false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			epoch, found := checkpointEpoch(tc.events)
			assert.Equal(t, tc.found, found)
			assert.Equal(t, tc.epoch, epoch)
		})
	}
}
