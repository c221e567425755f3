package kv

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/babylonlabs-io/sentinel/types"
)

// SaveValidator upserts a validator record and indexes every alias
// under which it can be looked up.
func (s *Store) SaveValidator(_ context.Context, v *types.Validator) error {
	if v.OperatorAddress == "" {
		return errors.New("validator record has no operator address")
	}
	enc, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "could not encode validator")
	}
	canonical := networkKey(v.Network, v.OperatorAddress)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(validatorsBucket).Put(canonical, enc); err != nil {
			return err
		}
		aliases := tx.Bucket(validatorAliasesBucket)
		for _, alias := range v.Aliases() {
			if err := aliases.Put(networkKey(v.Network, alias), canonical); err != nil {
				return err
			}
		}
		return nil
	})
}

// ValidatorByAlias resolves any known key form of a validator to its
// record. Unknown keys return (nil, nil).
func (s *Store) ValidatorByAlias(_ context.Context, network, key string) (*types.Validator, error) {
	var v *types.Validator
	err := s.db.View(func(tx *bolt.Tx) error {
		canonical := tx.Bucket(validatorAliasesBucket).Get(networkKey(network, key))
		if canonical == nil {
			return nil
		}
		enc := tx.Bucket(validatorsBucket).Get(canonical)
		if enc == nil {
			return nil
		}
		v = &types.Validator{}
		return json.Unmarshal(enc, v)
	})
	return v, err
}

// SaveFinalityProvider upserts a finality provider record.
func (s *Store) SaveFinalityProvider(_ context.Context, fp *types.FinalityProvider) error {
	if fp.BTCPK == "" {
		return errors.New("finality provider record has no BTC public key")
	}
	enc, err := json.Marshal(fp)
	if err != nil {
		return errors.Wrap(err, "could not encode finality provider")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(finalityProvidersBucket).Put(networkKey(fp.Network, fp.BTCPK), enc)
	})
}

// FinalityProviderByKey fetches a provider by BTC public key hex.
// Unknown keys return (nil, nil).
func (s *Store) FinalityProviderByKey(_ context.Context, network, btcPK string) (*types.FinalityProvider, error) {
	var fp *types.FinalityProvider
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(finalityProvidersBucket).Get(networkKey(network, btcPK))
		if enc == nil {
			return nil
		}
		fp = &types.FinalityProvider{}
		return json.Unmarshal(enc, fp)
	})
	return fp, err
}
