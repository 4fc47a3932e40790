package store

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
)

const valuePrefix = "value"

// BadgerStore implements the Store interface on top of a badger database. The
// database directory is cleared when the store is opened, so a BadgerStore
// starts empty like an InmemStore.
type BadgerStore struct {
	sync.Mutex
	db     *badger.DB
	path   string
	count  int
	closed bool
}

// NewBadgerStore removes anything under path and opens a fresh database there.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false)

	if logger != nil {
		opts = opts.WithLogger(logger.WithField("component", "badger"))
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		db:   handle,
		path: path,
	}

	return store, nil
}

// Insert implements the Store interface. The existence check and the write
// happen in the same transaction.
func (s *BadgerStore) Insert(v uint64) (bool, error) {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	key := valueKey(v)
	inserted := false

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(key, []byte{}); err != nil {
			return err
		}

		inserted = true

		return nil
	})

	if err != nil {
		return false, err
	}

	if inserted {
		s.count++
	}

	return inserted, nil
}

// Snapshot implements the Store interface.
func (s *BadgerStore) Snapshot() ([]uint64, error) {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	res := make([]uint64, 0, s.count)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(valuePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			res = append(res, binary.BigEndian.Uint64(key[len(prefix):]))
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return res, nil
}

// Len implements the Store interface.
func (s *BadgerStore) Len() int {
	s.Lock()
	defer s.Unlock()

	return s.count
}

// Close implements the Store interface. The database files are left on disk
// until the next NewBadgerStore on the same path.
func (s *BadgerStore) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	return s.db.Close()
}

func valueKey(v uint64) []byte {
	key := make([]byte, len(valuePrefix)+8)
	copy(key, valuePrefix)
	binary.BigEndian.PutUint64(key[len(valuePrefix):], v)
	return key
}
