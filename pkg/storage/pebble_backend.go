package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// PebbleBackend stores chunked files in a pebble database.
type PebbleBackend struct {
	kvBackend
	db *pebble.DB
}

// NewPebbleBackend opens (or creates) a pebble database at dir.
func NewPebbleBackend(dir string) (*PebbleBackend, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble at %s", dir)
	}
	return &PebbleBackend{kvBackend: kvBackend{kv: pebbleKV{db: db}}, db: db}, nil
}

type pebbleKV struct {
	db *pebble.DB
}

func (p pebbleKV) get(key []byte) ([]byte, error) {
	data, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (p pebbleKV) setBatch(pairs [][2][]byte) error {
	b := p.db.NewBatch()
	for _, kv := range pairs {
		if err := b.Set(kv[0], kv[1], nil); err != nil {
			_ = b.Close()
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (p pebbleKV) close() error {
	return p.db.Close()
}
