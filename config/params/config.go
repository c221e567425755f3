// Package params defines the constants and tunables that govern the
// sentinel's pipelines, aggregators and alert governor.
package params

import (
	"time"
)

// SentinelConfig contains every tunable of the monitoring core. One
// instance is shared process-wide; per-network state lives elsewhere.
type SentinelConfig struct {
	// PerformanceWindow is W, the sliding-window size of the validator
	// block-signature aggregator.
	PerformanceWindow uint64
	// RecentBlocksLimit is R, the bound on the newest-first recent
	// block sequence kept per validator.
	RecentBlocksLimit int
	// MissedHeightsLimit is M, the bound on the missed-height list kept
	// per finality provider.
	MissedHeightsLimit int
	// FinalityLag is F. A height h is processed only once the pipeline
	// has seen some height >= h + F, to tolerate small reorgs.
	FinalityLag uint64
	// EpochBlocks is the fallback epoch length used when the chain's
	// epoch boundary is unavailable.
	EpochBlocks uint64
	// CheckpointScanOffsets is how many heights past the epoch start are
	// scanned for the injected checkpoint transaction.
	CheckpointScanOffsets uint64
	// MaxSyncBlocks caps how many historical heights a single gap
	// catch-up invocation may process.
	MaxSyncBlocks uint64
	// EpochRefreshBlocks is K: every K processed heights the pipeline
	// refreshes the current epoch from the chain.
	EpochRefreshBlocks uint64
	// ProcessedCacheSize bounds the processed-height dedup cache. When
	// full, the oldest half is evicted.
	ProcessedCacheSize int
	// VoteCacheSize bounds the LRU cache of finality votes by height.
	VoteCacheSize int
	// EventBufferSize is the capacity of the router's event channels.
	EventBufferSize int

	// MinRateSampleSize is the window population below which rate
	// alerting stays silent.
	MinRateSampleSize uint64
	// ValidatorRateThreshold is the block-signature rate (percent)
	// below which a validator is considered degraded.
	ValidatorRateThreshold float64
	// FinalityProviderRateThreshold is the analogous threshold for
	// finality providers.
	FinalityProviderRateThreshold float64
	// BLSRateThreshold is the checkpoint power-participation threshold.
	BLSRateThreshold float64
	// RateDropStep is the minimum worsening, in percentage points,
	// required to re-alert a validator below the threshold.
	RateDropStep float64
	// FinalityProviderRateStep is the bucket width used for the
	// provider re-alert comparison (floor(rate/step)).
	FinalityProviderRateStep float64
	// MinAlertInterval is the cooldown between repeated rate alerts for
	// the same subject.
	MinAlertInterval time.Duration
	// ConsecutiveMissLimit triggers the validator critical alert.
	ConsecutiveMissLimit uint64
	// RecentMissWindow and RecentMissLimit drive the provider critical
	// alert: at least RecentMissLimit misses within the last
	// RecentMissWindow observed heights.
	RecentMissWindow int
	RecentMissLimit  int
	// CriticalRepeatInterval is the minimum spacing between repeated
	// provider critical alerts.
	CriticalRepeatInterval time.Duration

	// DirectoryRefreshInterval is the period of the identity catalog
	// refresh.
	DirectoryRefreshInterval time.Duration
	// ActiveProviderCacheTTL bounds how long an active-provider set
	// fetched for a height is reused.
	ActiveProviderCacheTTL time.Duration
	// MonitoringInterval is the base timer used by periodic health
	// logging.
	MonitoringInterval time.Duration
	// ShutdownGracePeriod bounds how long Stop waits for in-flight work.
	ShutdownGracePeriod time.Duration

	// WSBackoffBase is the base delay of the subscription reconnect
	// backoff; delay = base * min(2^(attempt-1), 10).
	WSBackoffBase time.Duration
	// WSMaxAttempts is the reconnect budget per endpoint before the
	// subscriber rotates to the next one.
	WSMaxAttempts int
	// HTTPTimeout bounds individual REST calls.
	HTTPTimeout time.Duration
}

var sentinelConfig = DefaultSentinelConfig()

// Get returns the active process-wide configuration.
func Get() *SentinelConfig {
	return sentinelConfig
}

// Override replaces the active configuration. Intended for startup and
// for tests that need altered thresholds.
func Override(c *SentinelConfig) {
	sentinelConfig = c
}

// DefaultSentinelConfig returns the documented defaults.
func DefaultSentinelConfig() *SentinelConfig {
	return &SentinelConfig{
		PerformanceWindow:             10000,
		RecentBlocksLimit:             100,
		MissedHeightsLimit:            100,
		FinalityLag:                   3,
		EpochBlocks:                   360,
		CheckpointScanOffsets:         5,
		MaxSyncBlocks:                 100,
		EpochRefreshBlocks:            50,
		ProcessedCacheSize:            10000,
		VoteCacheSize:                 1024,
		EventBufferSize:               1024,
		MinRateSampleSize:             100,
		ValidatorRateThreshold:        90,
		FinalityProviderRateThreshold: 90,
		BLSRateThreshold:              90,
		RateDropStep:                  10,
		FinalityProviderRateStep:      5,
		MinAlertInterval:              6 * time.Hour,
		ConsecutiveMissLimit:          5,
		RecentMissWindow:              5,
		RecentMissLimit:               3,
		CriticalRepeatInterval:        time.Hour,
		DirectoryRefreshInterval:      time.Hour,
		ActiveProviderCacheTTL:        10 * time.Minute,
		MonitoringInterval:            60 * time.Second,
		ShutdownGracePeriod:           5 * time.Second,
		WSBackoffBase:                 time.Second,
		WSMaxAttempts:                 5,
		HTTPTimeout:                   15 * time.Second,
	}
}

// Copy returns a shallow duplicate suitable for test-local overrides.
func (c *SentinelConfig) Copy() *SentinelConfig {
	dup := *c
	return &dup
}

// NetworkConfig describes one monitored network.
type NetworkConfig struct {
	// Name identifies the network in records and alerts, e.g. "mainnet".
	Name string
	// RESTEndpoints are rotated through on transport failure.
	RESTEndpoints []string
	// WSEndpoints serve the event subscription. Derived from the REST
	// endpoints by protocol swap when not configured explicitly.
	WSEndpoints []string
	// ValconsPrefix is the bech32 prefix for derived consensus
	// addresses.
	ValconsPrefix string
	// TrackedValidators and TrackedFinalityProviders filter alerting.
	// Empty means all subjects are eligible.
	TrackedValidators        []string
	TrackedFinalityProviders []string
	// Per-subsystem switches.
	ValidatorMonitoring        bool
	FinalityProviderMonitoring bool
	BLSMonitoring              bool
}
