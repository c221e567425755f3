package chain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockIDFlagAcceptsBothEncodings(t *testing.T) {
	var f BlockIDFlag
	require.NoError(t, json.Unmarshal([]byte(`"BLOCK_ID_FLAG_COMMIT"`), &f))
	assert.True(t, f.Committed())

	require.NoError(t, json.Unmarshal([]byte(`2`), &f))
	assert.True(t, f.Committed())

	require.NoError(t, json.Unmarshal([]byte(`"BLOCK_ID_FLAG_ABSENT"`), &f))
	assert.False(t, f.Committed())

	require.NoError(t, json.Unmarshal([]byte(`1`), &f))
	assert.False(t, f.Committed())
}

func TestCommitSigFieldNameVariants(t *testing.T) {
	var snake CommitSig
	require.NoError(t, json.Unmarshal([]byte(`{"block_id_flag":"BLOCK_ID_FLAG_COMMIT","validator_address":"AABB","signature":"c2ln"}`), &snake))
	assert.Equal(t, "AABB", snake.ValidatorAddress)
	assert.True(t, snake.Signed())

	var camel CommitSig
	require.NoError(t, json.Unmarshal([]byte(`{"blockIdFlag":2,"validatorAddress":"CCDD","signature":"c2ln"}`), &camel))
	assert.Equal(t, "CCDD", camel.ValidatorAddress)
	assert.True(t, camel.Signed())

	// Committing flag with empty signature bytes does not count.
	var unsigned CommitSig
	require.NoError(t, json.Unmarshal([]byte(`{"block_id_flag":"BLOCK_ID_FLAG_COMMIT","validator_address":"EEFF","signature":""}`), &unsigned))
	assert.False(t, unsigned.Signed())
}

func TestBlockFieldNameVariants(t *testing.T) {
	var snake Block
	require.NoError(t, json.Unmarshal([]byte(`{"header":{"height":"10"},"last_commit":{"height":"9","round":1,"signatures":[]}}`), &snake))
	assert.Equal(t, uint64(10), snake.Height())
	assert.Equal(t, int64(1), snake.LastCommit.Round)

	var camel Block
	require.NoError(t, json.Unmarshal([]byte(`{"header":{"height":11},"lastCommit":{"height":10,"round":0,"signatures":[]}}`), &camel))
	assert.Equal(t, uint64(11), camel.Height())
}

func TestUint64StringVariants(t *testing.T) {
	var u Uint64String
	require.NoError(t, json.Unmarshal([]byte(`"123"`), &u))
	assert.Equal(t, Uint64String(123), u)
	require.NoError(t, json.Unmarshal([]byte(`456`), &u))
	assert.Equal(t, Uint64String(456), u)
	require.NoError(t, json.Unmarshal([]byte(`null`), &u))
	assert.Equal(t, Uint64String(0), u)
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &u))
}

func TestInjectedCheckpointDecoding(t *testing.T) {
	raw := `{
		"@type": "/babylon.checkpointing.v1.MsgInjectedCheckpoint",
		"ckpt": {"ckpt": {"epoch_num": "5"}},
		"extended_commit_info": {"votes": [
			{"validator": {"address": "AAA", "power": "10"}, "block_id_flag": "BLOCK_ID_FLAG_COMMIT", "extension_signature": "c2ln"},
			{"validator": {"address": "BBB", "power": "5"}, "block_id_flag": "BLOCK_ID_FLAG_COMMIT", "extension_signature": ""}
		]}
	}`
	var msg InjectedCheckpoint
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, MsgInjectedCheckpointType, msg.Type)
	assert.Equal(t, Uint64String(5), msg.Ckpt.Ckpt.EpochNum)
	require.Len(t, msg.ExtendedCommitInfo.Votes, 2)
	assert.Equal(t, int64(10), int64(msg.ExtendedCommitInfo.Votes[0].Validator.Power))
	assert.Equal(t, BlockIDFlagCommit, msg.ExtendedCommitInfo.Votes[1].BlockIDFlag)
}
