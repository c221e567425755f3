// Package kv implements the sentinel repository on top of an embedded
// bolt key/value store.
package kv

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "kv")

const (
	// DatabaseFileName is the name of the bolt database file.
	DatabaseFileName = "sentinel.db"
	dbFilePerms      = 0600
	dirPerms         = 0700
	boltOpenTimeout  = 1 * time.Second
)

// Store is the bolt-backed repository. It satisfies db.Database.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewKVStore opens (creating if necessary) the bolt database under the
// given directory and ensures every bucket exists.
func NewKVStore(dirPath string) (*Store, error) {
	if err := os.MkdirAll(dirPath, dirPerms); err != nil {
		return nil, errors.Wrapf(err, "could not create directory %s", dirPath)
	}
	datafile := filepath.Join(dirPath, DatabaseFileName)
	boltDB, err := bolt.Open(datafile, dbFilePerms, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, errors.Wrapf(err, "could not open bolt database at %s", datafile)
	}
	kv := &Store{db: boltDB, databasePath: datafile}
	if err := kv.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			validatorsBucket,
			validatorAliasesBucket,
			finalityProvidersBucket,
			validatorStatsBucket,
			providerStatsBucket,
			blsStatsBucket,
			chainMetadataBucket,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "could not create buckets")
	}
	log.WithField("path", datafile).Info("Opened key/value store")
	return kv, nil
}

// Close releases the underlying bolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DatabasePath returns the location of the bolt database file.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

// networkKey namespaces a subject key by network.
func networkKey(network, key string) []byte {
	return []byte(network + ":" + key)
}
