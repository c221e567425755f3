// Package flags contains all configuration runtime flags for the
// sentinel daemon.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// VerbosityFlag defines the logrus logging level.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error, fatal, panic)",
		Value: "info",
	}
	// LogFormat holds the parsed log-format value.
	LogFormat string
	// LogFormatFlag specifies the log output encoding.
	LogFormatFlag = (&EnumValue{
		Name:        "log-format",
		Usage:       "Specify log formatting. Supports: text, json.",
		Enum:        []string{"text", "json"},
		Value:       "text",
		Destination: &LogFormat,
	}).GenericFlag()
	// ConfigFileFlag specifies a YAML file to load flag values from.
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config-file",
		Usage: "The filepath to a yaml file with flag values",
	}
	// DataDirFlag defines the directory for the bolt store.
	DataDirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Data directory for the databases",
		Value:   "sentinel-data",
		EnvVars: []string{"SENTINEL_DATADIR"},
	}
	// MonitoringHostFlag defines the host the metrics server listens on.
	MonitoringHostFlag = &cli.StringFlag{
		Name:  "monitoring-host",
		Usage: "Host used for the metrics and healthz endpoints",
		Value: "127.0.0.1",
	}
	// MonitoringPortFlag defines the port of the metrics server.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used for the metrics and healthz endpoints",
		Value: 8080,
	}

	// MainnetRPCURLsFlag lists mainnet REST endpoints, rotated on failure.
	MainnetRPCURLsFlag = &cli.StringSliceFlag{
		Name:    "mainnet-rpc-urls",
		Usage:   "Comma-separated REST endpoints for mainnet",
		EnvVars: []string{"MAINNET_RPC_URLS"},
	}
	// MainnetWSURLsFlag lists mainnet websocket endpoints. Derived from
	// the RPC endpoints by protocol swap when unset.
	MainnetWSURLsFlag = &cli.StringSliceFlag{
		Name:    "mainnet-ws-urls",
		Usage:   "Comma-separated websocket endpoints for mainnet (derived from RPC endpoints if unset)",
		EnvVars: []string{"MAINNET_WS_URLS"},
	}
	// TestnetRPCURLsFlag lists testnet REST endpoints.
	TestnetRPCURLsFlag = &cli.StringSliceFlag{
		Name:    "testnet-rpc-urls",
		Usage:   "Comma-separated REST endpoints for testnet",
		EnvVars: []string{"TESTNET_RPC_URLS"},
	}
	// TestnetWSURLsFlag lists testnet websocket endpoints.
	TestnetWSURLsFlag = &cli.StringSliceFlag{
		Name:    "testnet-ws-urls",
		Usage:   "Comma-separated websocket endpoints for testnet (derived from RPC endpoints if unset)",
		EnvVars: []string{"TESTNET_WS_URLS"},
	}
	// ValconsPrefixFlag is the bech32 prefix of derived consensus
	// addresses.
	ValconsPrefixFlag = &cli.StringFlag{
		Name:    "valcons-prefix",
		Usage:   "Bech32 prefix for derived consensus addresses",
		Value:   "bbnvalcons",
		EnvVars: []string{"VALCONS_PREFIX"},
	}

	// MonitoringEnabledFlag is the master monitoring switch.
	MonitoringEnabledFlag = &cli.BoolFlag{
		Name:    "monitoring",
		Usage:   "Master switch for all monitoring subsystems",
		Value:   true,
		EnvVars: []string{"MONITORING_ENABLED"},
	}
	// ValidatorMonitoringFlag toggles block-signature monitoring.
	ValidatorMonitoringFlag = &cli.BoolFlag{
		Name:    "validator-signature-monitoring",
		Usage:   "Enable validator block-signature monitoring",
		Value:   true,
		EnvVars: []string{"VALIDATOR_SIGNATURE_MONITORING_ENABLED"},
	}
	// FinalityProviderMonitoringFlag toggles finality-vote monitoring.
	FinalityProviderMonitoringFlag = &cli.BoolFlag{
		Name:    "finality-provider-monitoring",
		Usage:   "Enable finality provider vote monitoring",
		Value:   true,
		EnvVars: []string{"FINALITY_PROVIDER_MONITORING_ENABLED"},
	}
	// BLSMonitoringFlag toggles BLS checkpoint monitoring.
	BLSMonitoringFlag = &cli.BoolFlag{
		Name:    "bls-signature-monitoring",
		Usage:   "Enable BLS checkpoint participation monitoring",
		Value:   true,
		EnvVars: []string{"BLS_SIGNATURE_MONITORING_ENABLED"},
	}

	// MonitoringIntervalFlag is the periodic timer base in milliseconds.
	MonitoringIntervalFlag = &cli.IntFlag{
		Name:    "monitoring-interval-ms",
		Usage:   "Base interval of periodic monitoring tasks, in milliseconds",
		Value:   60000,
		EnvVars: []string{"MONITORING_INTERVAL_MS"},
	}
	// FinalizedBlocksWaitFlag is the finality lag applied before a
	// height is processed.
	FinalizedBlocksWaitFlag = &cli.Uint64Flag{
		Name:    "finalized-blocks-wait",
		Usage:   "Number of newer blocks required before a height is processed",
		Value:   3,
		EnvVars: []string{"FINALIZED_BLOCKS_WAIT"},
	}
	// TrackedValidatorsFlag filters alerting to the named validators.
	TrackedValidatorsFlag = &cli.StringSliceFlag{
		Name:    "tracked-validators",
		Usage:   "Comma-separated validator identifiers eligible for alerts (empty tracks all)",
		EnvVars: []string{"TRACKED_VALIDATORS"},
	}
	// TrackedFinalityProvidersFlag filters alerting to the named
	// providers.
	TrackedFinalityProvidersFlag = &cli.StringSliceFlag{
		Name:    "tracked-finality-providers",
		Usage:   "Comma-separated finality provider keys eligible for alerts (empty tracks all)",
		EnvVars: []string{"TRACKED_FINALITY_PROVIDERS"},
	}
	// ValidatorSignatureThresholdFlag is the degraded-rate threshold for
	// validators, in percent.
	ValidatorSignatureThresholdFlag = &cli.Float64Flag{
		Name:    "validator-signature-threshold",
		Usage:   "Signature rate (percent) below which a validator is degraded",
		Value:   90,
		EnvVars: []string{"VALIDATOR_SIGNATURE_THRESHOLD"},
	}
	// FinalityProviderSignatureThresholdFlag is the analogous provider
	// threshold.
	FinalityProviderSignatureThresholdFlag = &cli.Float64Flag{
		Name:    "finality-provider-signature-threshold",
		Usage:   "Vote rate (percent) below which a finality provider is degraded",
		Value:   90,
		EnvVars: []string{"FINALITY_PROVIDER_SIGNATURE_THRESHOLD"},
	}
	// BLSSignatureThresholdFlag is the checkpoint power-participation
	// threshold.
	BLSSignatureThresholdFlag = &cli.Float64Flag{
		Name:    "bls-signature-threshold",
		Usage:   "Checkpoint power participation (percent) below which a warning is raised",
		Value:   90,
		EnvVars: []string{"BLS_SIGNATURE_THRESHOLD"},
	}
	// AlertMinIntervalFlag is the repeat-alert cooldown in milliseconds.
	AlertMinIntervalFlag = &cli.IntFlag{
		Name:    "alert-min-interval-ms",
		Usage:   "Minimum interval between repeated rate alerts for a subject, in milliseconds",
		Value:   21600000,
		EnvVars: []string{"ALERT_MIN_INTERVAL"},
	}
	// SignatureRateMinDropFlag is the worsening step required to
	// re-alert below the threshold.
	SignatureRateMinDropFlag = &cli.Float64Flag{
		Name:    "signature-rate-min-drop",
		Usage:   "Minimum rate worsening, in percentage points, required to re-alert",
		Value:   10,
		EnvVars: []string{"SIGNATURE_RATE_MIN_DROP"},
	}
)
