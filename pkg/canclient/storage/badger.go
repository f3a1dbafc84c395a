// Package storage is raw content-addressed byte storage keyed by a
// block's binary CID, the foundation both the merkledag and linked-data
// layers persist blocks through.
package storage

import (
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("canclient/storage")

// ErrBlockNotFound is returned by Get when no block is stored under the
// given key; Has reports a missing key as false with a nil error.
var ErrBlockNotFound = errors.New("block not found")

// Store is the storage interface every canclient layer (merkledag,
// naming records, raw blocks) persists through.
type Store interface {
	Put(key []byte, data []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Close() error
}

// BadgerStore is a BadgerDB-backed Store.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a BadgerDB at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	log.Infow("opened block store", "path", path)
	return &BadgerStore{db: db}, nil
}

// Put stores a block.
func (s *BadgerStore) Put(key, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// Get retrieves a block, returning ErrBlockNotFound when absent.
func (s *BadgerStore) Get(key []byte) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrBlockNotFound
	}
	return data, err
}

// Has reports whether a block exists without copying its value.
func (s *BadgerStore) Has(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
