package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend stores chunked files in a badger database.
type BadgerBackend struct {
	kvBackend
	db *badger.DB
}

// NewBadgerBackend opens (or creates) a badger database at dir. An empty dir
// opens an in-memory database.
func NewBadgerBackend(dir string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open badger at %q", dir)
	}
	return &BadgerBackend{kvBackend: kvBackend{kv: badgerKV{db: db}}, db: db}, nil
}

type badgerKV struct {
	db *badger.DB
}

func (b badgerKV) get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errKeyNotFound
	}
	return out, err
}

func (b badgerKV) setBatch(pairs [][2][]byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, kv := range pairs {
			if err := txn.Set(kv[0], kv[1]); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return MarkTransient(err)
	}
	return err
}

func (b badgerKV) close() error {
	return b.db.Close()
}
