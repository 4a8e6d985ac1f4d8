package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

type Config struct {
	Path string

	// InMemory backs the store with badger's in-memory mode, used by tests and
	// the CLI dry-run path.
	InMemory bool
}

// Storage is the key-value surface the wallet core needs: wallet records and
// receipts are small JSON blobs addressed by prefixed keys.
type Storage interface {
	Close() error

	Exist(key []byte) (bool, error)
	GetKey(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	BatchWrite(updates map[string][]byte) error

	GetByPrefix(prefix []byte) ([]*KeyValueItem, error)
	ListKeys(prefix string) ([]string, error)
	CountKeysByPrefix(prefix []byte) (int64, error)

	// Backup streams a full snapshot to w. since is a badger version
	// watermark; pass 0 for a full backup.
	Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error)

	DbPath() string
}

type KeyValueItem struct {
	Key   []byte
	Value []byte
}

type BadgerStorage struct {
	config *Config
	db     *badger.DB
}

// New opens (or creates) the badger store described by the config.
func New(c *Config) (Storage, error) {
	opts := badger.DefaultOptions(c.Path)
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = opts.WithSyncWrites(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStorage{config: c, db: db}, nil
}

// NewWithPath opens a store at the given filesystem path.
func NewWithPath(path string) (Storage, error) {
	return New(&Config{Path: path})
}

// NewInMemory opens a throwaway store, for tests.
func NewInMemory() (Storage, error) {
	return New(&Config{InMemory: true})
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func (s *BadgerStorage) DbPath() string {
	return s.config.Path
}

// IsErrNotFound reports whether err is badger's missing-key error.
func IsErrNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}

func (s *BadgerStorage) Exist(key []byte) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})

	return found, err
}

func (s *BadgerStorage) GetKey(key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})
	})

	return value, err
}

func (s *BadgerStorage) Set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *BadgerStorage) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *BadgerStorage) BatchWrite(updates map[string][]byte) error {
	txn := s.db.NewTransaction(true)
	for k, v := range updates {
		if err := txn.Set([]byte(k), v); errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return err
			}
			txn = s.db.NewTransaction(true)
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return txn.Commit()
}

// GetByPrefix returns every key/value item whose key matches the prefix.
func (s *BadgerStorage) GetByPrefix(prefix []byte) ([]*KeyValueItem, error) {
	var result []*KeyValueItem

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 30
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, e := item.ValueCopy(nil)
			if e != nil {
				return e
			}
			result = append(result, &KeyValueItem{Key: k, Value: v})
		}
		return nil
	})

	return result, err
}

// ListKeys is a key-only scan; it never touches value logs.
func (s *BadgerStorage) ListKeys(prefix string) ([]string, error) {
	var result []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			if strings.HasPrefix(key, prefix) {
				result = append(result, key)
			}
		}
		return nil
	})

	return result, err
}

func (s *BadgerStorage) Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.db.Backup(w, since)
}

func (s *BadgerStorage) CountKeysByPrefix(prefix []byte) (int64, error) {
	total := int64(0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			total++
		}
		return nil
	})

	return total, err
}
