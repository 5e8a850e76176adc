// Package kv is the durable key-value storage shared by the offer store and
// the wallet session controller. Keys are owned by exactly one component.
package kv

import (
	"errors"
	"fmt"
	"strings"
)

const (
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv store is closed")

// Store is a string key-value store.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	Close() error
}

// Open opens a store with the given backend at path.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return NewFileStore(path)
	case BackendLevelDB:
		return NewLevelDBStore(path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}
