package kv

// Bucket names. One bucket per record family; keys are
// "<network>:<subject key>" except for the alias bucket, whose values
// point at the canonical validator key.
var (
	validatorsBucket        = []byte("validators")
	validatorAliasesBucket  = []byte("validator-aliases")
	finalityProvidersBucket = []byte("finality-providers")
	validatorStatsBucket    = []byte("validator-sig-stats")
	providerStatsBucket     = []byte("finality-provider-stats")
	blsStatsBucket          = []byte("bls-checkpoint-stats")
	chainMetadataBucket     = []byte("chain-metadata")
)

var latestHeightKeyPrefix = "latest-processed-height"
