package chain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// The upstream REST and event surfaces mix snake_case and camelCase
// field names, and encode several numerics as either JSON numbers or
// quoted strings. The types below tolerate both shapes; a malformed
// payload fails individually rather than killing the stream.

// Uint64String is a uint64 that accepts both quoted and bare numbers.
type Uint64String uint64

// UnmarshalJSON implements json.Unmarshaler.
func (u *Uint64String) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "could not parse %q as uint64", s)
	}
	*u = Uint64String(v)
	return nil
}

// Int64String is an int64 with the same tolerance as Uint64String.
type Int64String int64

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int64String) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "could not parse %q as int64", s)
	}
	*i = Int64String(v)
	return nil
}

// BlockIDFlag is a commit signature flag, encoded upstream either as
// the enum name string or as its numeric value.
type BlockIDFlag string

// BlockIDFlagCommit marks a signature that counted toward the commit.
const BlockIDFlagCommit = BlockIDFlag("BLOCK_ID_FLAG_COMMIT")

// UnmarshalJSON implements json.Unmarshaler.
func (f *BlockIDFlag) UnmarshalJSON(b []byte) error {
	var asString string
	if err := json.Unmarshal(b, &asString); err == nil {
		*f = BlockIDFlag(asString)
		return nil
	}
	var asNumber int64
	if err := json.Unmarshal(b, &asNumber); err != nil {
		return errors.Errorf("unrecognized block id flag encoding: %s", truncate(b, 32))
	}
	*f = BlockIDFlag(strconv.FormatInt(asNumber, 10))
	return nil
}

// Committed reports whether the flag marks a committing signature,
// accepting both the string and the numeric encoding.
func (f BlockIDFlag) Committed() bool {
	return f == BlockIDFlagCommit || f == "2"
}

// pickField returns the first present field among the given aliases.
func pickField(fields map[string]json.RawMessage, names ...string) (json.RawMessage, bool) {
	for _, n := range names {
		if v, ok := fields[n]; ok && len(v) > 0 && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

// CommitSig is one signature entry of a block commit.
type CommitSig struct {
	Flag             BlockIDFlag
	ValidatorAddress string
	Timestamp        time.Time
	Signature        string
}

// UnmarshalJSON accepts both snake_case and camelCase field names.
func (c *CommitSig) UnmarshalJSON(b []byte) error {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if raw, ok := pickField(fields, "block_id_flag", "blockIdFlag"); ok {
		if err := json.Unmarshal(raw, &c.Flag); err != nil {
			return err
		}
	}
	if raw, ok := pickField(fields, "validator_address", "validatorAddress"); ok {
		if err := json.Unmarshal(raw, &c.ValidatorAddress); err != nil {
			return err
		}
	}
	if raw, ok := pickField(fields, "timestamp"); ok {
		// Zero timestamps ("0001-01-01T00:00:00Z") appear on absent
		// signatures; ignore parse failures on this field.
		_ = json.Unmarshal(raw, &c.Timestamp)
	}
	if raw, ok := pickField(fields, "signature"); ok {
		_ = json.Unmarshal(raw, &c.Signature)
	}
	return nil
}

// Signed reports whether the entry counts as a signature for the
// block: committing flag and non-empty signature bytes.
func (c *CommitSig) Signed() bool {
	return c.Flag.Committed() && c.Signature != ""
}

// Commit is the aggregate commit carried by a block.
type Commit struct {
	Height     Uint64String `json:"height"`
	Round      int64        `json:"round"`
	Signatures []CommitSig  `json:"signatures"`
}

// BlockHeader carries the subset of header fields the pipelines use.
type BlockHeader struct {
	Height Uint64String `json:"height"`
	Time   time.Time    `json:"time"`
}

// Block is a chain block as delivered by both the REST endpoint and
// the NewBlock event stream.
type Block struct {
	Header     BlockHeader
	LastCommit Commit
}

// UnmarshalJSON accepts both snake_case and camelCase field names.
func (b *Block) UnmarshalJSON(data []byte) error {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := pickField(fields, "header"); ok {
		if err := json.Unmarshal(raw, &b.Header); err != nil {
			return err
		}
	}
	if raw, ok := pickField(fields, "last_commit", "lastCommit"); ok {
		if err := json.Unmarshal(raw, &b.LastCommit); err != nil {
			return err
		}
	}
	return nil
}

// Height is a convenience accessor for the header height.
func (b *Block) Height() uint64 {
	return uint64(b.Header.Height)
}

type blockResponse struct {
	Block *Block `json:"block"`
}

// RestValidator is a staking-module validator list entry.
type RestValidator struct {
	OperatorAddress string `json:"operator_address"`
	ConsensusPubkey struct {
		Type string `json:"@type"`
		Key  string `json:"key"`
	} `json:"consensus_pubkey"`
	Description struct {
		Moniker string `json:"moniker"`
	} `json:"description"`
	Jailed bool   `json:"jailed"`
	Status string `json:"status"`
}

type paginationResponse struct {
	NextKey string `json:"next_key"`
}

type validatorsResponse struct {
	Validators []RestValidator    `json:"validators"`
	Pagination paginationResponse `json:"pagination"`
}

// RestFinalityProvider is a btcstaking-module provider catalog entry.
type RestFinalityProvider struct {
	Addr        string `json:"addr"`
	BTCPK       string `json:"btc_pk"`
	Description struct {
		Moniker string `json:"moniker"`
	} `json:"description"`
	Jailed bool `json:"jailed"`
}

type finalityProvidersResponse struct {
	FinalityProviders []RestFinalityProvider `json:"finality_providers"`
	Pagination        paginationResponse     `json:"pagination"`
}

// ActiveFinalityProvider is a finality-module entry for the provider
// set active at a given height.
type ActiveFinalityProvider struct {
	BTCPKHex    string       `json:"btc_pk_hex"`
	VotingPower Uint64String `json:"voting_power"`
	Jailed      bool         `json:"jailed"`
}

type activeFinalityProvidersResponse struct {
	FinalityProviders []ActiveFinalityProvider `json:"finality_providers"`
}

type votesResponse struct {
	Height Uint64String `json:"height"`
	BTCPKs []string     `json:"btc_pks"`
}

// CurrentEpoch is the epoching-module snapshot of the live epoch.
type CurrentEpoch struct {
	CurrentEpoch  Uint64String `json:"current_epoch"`
	EpochBoundary Uint64String `json:"epoch_boundary"`
}

// Tx is one transaction from the per-height transaction listing.
type Tx struct {
	Body struct {
		Messages []json.RawMessage `json:"messages"`
	} `json:"body"`
}

type txsBlockResponse struct {
	Txs []Tx `json:"txs"`
}

// MsgInjectedCheckpoint is the checkpoint-injection message scanned
// for by the checkpoint pipeline.
const MsgInjectedCheckpointType = "/babylon.checkpointing.v1.MsgInjectedCheckpoint"

// CheckpointVoteEntry is one validator vote inside the injected
// checkpoint's extended commit info.
type CheckpointVoteEntry struct {
	Validator struct {
		Address string      `json:"address"`
		Power   Int64String `json:"power"`
	} `json:"validator"`
	BlockIDFlag        BlockIDFlag `json:"block_id_flag"`
	ExtensionSignature string      `json:"extension_signature"`
}

// InjectedCheckpoint is the decoded checkpoint-injection message.
type InjectedCheckpoint struct {
	Type string `json:"@type"`
	Ckpt struct {
		Ckpt struct {
			EpochNum Uint64String `json:"epoch_num"`
		} `json:"ckpt"`
	} `json:"ckpt"`
	ExtendedCommitInfo struct {
		Votes []CheckpointVoteEntry `json:"votes"`
	} `json:"extended_commit_info"`
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
