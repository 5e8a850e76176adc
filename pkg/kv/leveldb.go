package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDBStore is a Store backed by goleveldb.
type LevelDBStore struct {
	db *leveldb.DB
}

// DefaultDirName is the database directory used under $HOME when no path is
// given.
const DefaultDirName = ".ghostswap-db"

// NewLevelDBStore opens (or creates) a LevelDB database in the directory path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

// NewMemoryStore returns a LevelDB store that lives in memory only.
func NewMemoryStore() *LevelDBStore {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		// Opening a fresh memory storage cannot fail.
		panic(err)
	}
	return &LevelDBStore{db: db}
}

func (s *LevelDBStore) Get(key string) (string, bool, error) {
	value, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, translate(err)
	}
	return string(value), true, nil
}

func (s *LevelDBStore) Set(key, value string) error {
	return translate(s.db.Put([]byte(key), []byte(value), nil))
}

func (s *LevelDBStore) Delete(key string) error {
	return translate(s.db.Delete([]byte(key), nil))
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func translate(err error) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return ErrClosed
	}
	return err
}
