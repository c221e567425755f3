// Package db defines the repository abstraction the sentinel persists
// its record families through. The kv sub-package provides the
// bolt-backed implementation.
package db

import (
	"context"
	"io"

	"github.com/babylonlabs-io/sentinel/types"
)

// Database is the persistence surface consumed by the directory, the
// aggregators and the block pipeline. Implementations return
// (nil, nil) for unknown keys.
type Database interface {
	io.Closer

	// Identity catalog.
	SaveValidator(ctx context.Context, v *types.Validator) error
	ValidatorByAlias(ctx context.Context, network, key string) (*types.Validator, error)
	SaveFinalityProvider(ctx context.Context, fp *types.FinalityProvider) error
	FinalityProviderByKey(ctx context.Context, network, btcPK string) (*types.FinalityProvider, error)

	// Validator block-signature statistics.
	SaveValidatorSigStats(ctx context.Context, s *types.ValidatorSigStats) error
	ValidatorSigStats(ctx context.Context, network, subjectKey string) (*types.ValidatorSigStats, error)
	ValidatorSigStatsByNetwork(ctx context.Context, network string) ([]*types.ValidatorSigStats, error)

	// Finality-provider vote statistics.
	SaveFinalityProviderStats(ctx context.Context, s *types.FinalityProviderStats) error
	FinalityProviderStats(ctx context.Context, network, btcPK string) (*types.FinalityProviderStats, error)
	FinalityProviderStatsByNetwork(ctx context.Context, network string) ([]*types.FinalityProviderStats, error)

	// BLS checkpoint statistics.
	SaveBLSCheckpointStats(ctx context.Context, s *types.BLSCheckpointStats) error
	BLSCheckpointStats(ctx context.Context, network string, epoch uint64) (*types.BLSCheckpointStats, error)

	// Block pipeline watermark.
	SaveLatestProcessedHeight(ctx context.Context, network string, height uint64) error
	LatestProcessedHeight(ctx context.Context, network string) (uint64, error)
}
