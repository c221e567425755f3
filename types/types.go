// Package types defines the record families shared between the chain
// pipelines, the aggregators, the alert governor and the store.
package types

import (
	"time"
)

// Severity labels an outbound alert.
type Severity string

const (
	// SeverityInfo marks informational alerts such as unjail transitions.
	SeverityInfo Severity = "INFO"
	// SeverityWarning marks degraded but non-critical conditions.
	SeverityWarning Severity = "WARNING"
	// SeverityCritical marks conditions requiring operator attention.
	SeverityCritical Severity = "CRITICAL"
)

// Alert is the structured record handed to a notification sink. The
// governor never retries delivery; failure handling belongs to the sink.
type Alert struct {
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Severity  Severity          `json:"severity"`
	Network   string            `json:"network"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Validator is a consensus participant. Any of its three address forms
// resolves to the same record in the directory.
type Validator struct {
	Network          string    `json:"network"`
	OperatorAddress  string    `json:"operatorAddress"`
	ConsensusAddress string    `json:"consensusAddress"`
	ConsensusHex     string    `json:"consensusHex"`
	ConsensusPubKey  string    `json:"consensusPubKey"`
	Moniker          string    `json:"moniker"`
	Jailed           bool      `json:"jailed"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Aliases returns every key form under which the validator can be
// looked up in the directory.
func (v *Validator) Aliases() []string {
	keys := make([]string, 0, 4)
	for _, k := range []string{v.OperatorAddress, v.ConsensusAddress, v.ConsensusHex, v.ConsensusPubKey} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// FinalityProvider is a BTC-staking participant identified by its BTC
// public key hex.
type FinalityProvider struct {
	Network      string    `json:"network"`
	BTCPK        string    `json:"btcPk"`
	OwnerAddress string    `json:"ownerAddress"`
	Moniker      string    `json:"moniker"`
	Jailed       bool      `json:"jailed"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RecentBlock is one entry of the bounded newest-first sequence kept on
// a validator's signature stats.
type RecentBlock struct {
	Height    uint64    `json:"height"`
	Signed    bool      `json:"signed"`
	Round     int64     `json:"round"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidatorSigStats holds the sliding-window block-signature statistics
// of a single validator on a single network.
type ValidatorSigStats struct {
	SubjectKey          string        `json:"subjectKey"`
	Network             string        `json:"network"`
	Moniker             string        `json:"moniker"`
	TotalSignedBlocks   uint64        `json:"totalSignedBlocks"`
	TotalBlocksInWindow uint64        `json:"totalBlocksInWindow"`
	SignatureRate       float64       `json:"signatureRate"`
	ConsecutiveSigned   uint64        `json:"consecutiveSigned"`
	ConsecutiveMissed   uint64        `json:"consecutiveMissed"`
	RecentBlocks        []RecentBlock `json:"recentBlocks"`
	LastUpdated         time.Time     `json:"lastUpdated"`
}

// FinalityProviderStats holds per-provider finality vote statistics.
type FinalityProviderStats struct {
	BTCPK              string    `json:"btcPk"`
	Network            string    `json:"network"`
	Moniker            string    `json:"moniker"`
	StartHeight        uint64    `json:"startHeight"`
	EndHeight          uint64    `json:"endHeight"`
	TotalBlocks        uint64    `json:"totalBlocks"`
	SignedBlocks       uint64    `json:"signedBlocks"`
	MissedBlocks       uint64    `json:"missedBlocks"`
	SignatureRate      float64   `json:"signatureRate"`
	MissedBlockHeights []uint64  `json:"missedBlockHeights"`
	Jailed             bool      `json:"jailed"`
	IsActive           bool      `json:"isActive"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// BLSCheckpointStats holds the participation summary of one epoch's
// injected BLS checkpoint.
type BLSCheckpointStats struct {
	Epoch                    uint64    `json:"epoch"`
	Network                  string    `json:"network"`
	TotalValidators          int       `json:"totalValidators"`
	TotalPower               int64     `json:"totalPower"`
	SignedPower              int64     `json:"signedPower"`
	UnsignedPower            int64     `json:"unsignedPower"`
	ParticipationRateByCount string    `json:"participationRateByCount"`
	ParticipationRateByPower string    `json:"participationRateByPower"`
	Timestamp                time.Time `json:"timestamp"`
}

// BlockObservation is the per-height product of the block pipeline.
// Signers holds the consensus hex addresses extracted from the commit.
type BlockObservation struct {
	Height    uint64
	Timestamp time.Time
	Round     int64
	Signers   map[string]bool
}

// CheckpointVote is one validator's entry in a checkpoint observation.
type CheckpointVote struct {
	Key     string
	Moniker string
	Power   int64
	Signed  bool
}

// CheckpointObservation is the per-epoch product of the checkpoint
// pipeline.
type CheckpointObservation struct {
	Epoch uint64
	Votes []CheckpointVote
}
