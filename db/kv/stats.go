package kv

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/babylonlabs-io/sentinel/types"
)

// SaveValidatorSigStats upserts the signature statistics of one
// validator.
func (s *Store) SaveValidatorSigStats(_ context.Context, stats *types.ValidatorSigStats) error {
	enc, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "could not encode validator stats")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(validatorStatsBucket).Put(networkKey(stats.Network, stats.SubjectKey), enc)
	})
}

// ValidatorSigStats fetches one validator's signature statistics.
// Unknown subjects return (nil, nil).
func (s *Store) ValidatorSigStats(_ context.Context, network, subjectKey string) (*types.ValidatorSigStats, error) {
	var stats *types.ValidatorSigStats
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(validatorStatsBucket).Get(networkKey(network, subjectKey))
		if enc == nil {
			return nil
		}
		stats = &types.ValidatorSigStats{}
		return json.Unmarshal(enc, stats)
	})
	return stats, err
}

// ValidatorSigStatsByNetwork lists every validator stats record kept
// for a network.
func (s *Store) ValidatorSigStatsByNetwork(_ context.Context, network string) ([]*types.ValidatorSigStats, error) {
	var out []*types.ValidatorSigStats
	prefix := []byte(network + ":")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(validatorStatsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			stats := &types.ValidatorSigStats{}
			if err := json.Unmarshal(v, stats); err != nil {
				return err
			}
			out = append(out, stats)
		}
		return nil
	})
	return out, err
}

// SaveFinalityProviderStats upserts one provider's vote statistics.
func (s *Store) SaveFinalityProviderStats(_ context.Context, stats *types.FinalityProviderStats) error {
	enc, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "could not encode finality provider stats")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(providerStatsBucket).Put(networkKey(stats.Network, stats.BTCPK), enc)
	})
}

// FinalityProviderStats fetches one provider's vote statistics.
// Unknown subjects return (nil, nil).
func (s *Store) FinalityProviderStats(_ context.Context, network, btcPK string) (*types.FinalityProviderStats, error) {
	var stats *types.FinalityProviderStats
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(providerStatsBucket).Get(networkKey(network, btcPK))
		if enc == nil {
			return nil
		}
		stats = &types.FinalityProviderStats{}
		return json.Unmarshal(enc, stats)
	})
	return stats, err
}

// FinalityProviderStatsByNetwork lists every provider stats record
// kept for a network.
func (s *Store) FinalityProviderStatsByNetwork(_ context.Context, network string) ([]*types.FinalityProviderStats, error) {
	var out []*types.FinalityProviderStats
	prefix := []byte(network + ":")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(providerStatsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			stats := &types.FinalityProviderStats{}
			if err := json.Unmarshal(v, stats); err != nil {
				return err
			}
			out = append(out, stats)
		}
		return nil
	})
	return out, err
}

// SaveBLSCheckpointStats upserts one epoch's checkpoint participation
// record.
func (s *Store) SaveBLSCheckpointStats(_ context.Context, stats *types.BLSCheckpointStats) error {
	enc, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "could not encode checkpoint stats")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(blsStatsBucket).Put(networkKey(stats.Network, epochKey(stats.Epoch)), enc)
	})
}

// BLSCheckpointStats fetches one epoch's checkpoint record. Unknown
// epochs return (nil, nil).
func (s *Store) BLSCheckpointStats(_ context.Context, network string, epoch uint64) (*types.BLSCheckpointStats, error) {
	var stats *types.BLSCheckpointStats
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(blsStatsBucket).Get(networkKey(network, epochKey(epoch)))
		if enc == nil {
			return nil
		}
		stats = &types.BLSCheckpointStats{}
		return json.Unmarshal(enc, stats)
	})
	return stats, err
}

// SaveLatestProcessedHeight advances the block pipeline watermark. A
// lower height than the stored one is kept as-is.
func (s *Store) SaveLatestProcessedHeight(_ context.Context, network string, height uint64) error {
	key := networkKey(network, latestHeightKeyPrefix)
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(chainMetadataBucket)
		if prev := bkt.Get(key); prev != nil && decodeHeight(prev) >= height {
			return nil
		}
		return bkt.Put(key, encodeHeight(height))
	})
}

// LatestProcessedHeight returns the stored watermark, zero when none.
func (s *Store) LatestProcessedHeight(_ context.Context, network string) (uint64, error) {
	var height uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		if enc := tx.Bucket(chainMetadataBucket).Get(networkKey(network, latestHeightKeyPrefix)); enc != nil {
			height = decodeHeight(enc)
		}
		return nil
	})
	return height, err
}

func epochKey(epoch uint64) string {
	return "epoch-" + strconv.FormatUint(epoch, 10)
}

func encodeHeight(h uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, h)
	return enc
}

func decodeHeight(enc []byte) uint64 {
	if len(enc) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(enc)
}
