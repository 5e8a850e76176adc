package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	DefaultFileName = ".ghostswap-state.json"
)

// FileStore keeps all keys in a single JSON document on disk.
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	values   map[string]string
	closed   bool
}

// fileContents represents the JSON structure for storage
type fileContents struct {
	Values map[string]string `json:"values"`
}

// NewFileStore creates a file-backed store
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		// Default to home directory
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	store := &FileStore{
		filePath: filePath,
		values:   make(map[string]string),
	}

	// Load existing values if file exists
	if err := store.load(); err != nil {
		// If file doesn't exist, that's okay - we'll create it on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load state: %w", err)
		}
	}

	return store, nil
}

// load reads values from the storage file
func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}

	s.values = contents.Values
	if s.values == nil {
		s.values = make(map[string]string)
	}

	return nil
}

// save writes values to the storage file. Must be called with the lock held.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(fileContents{Values: s.values}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Get retrieves a value by key
func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, ErrClosed
	}

	value, exists := s.values[key]
	return value, exists, nil
}

// Set stores a value and persists the file
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	previous, existed := s.values[key]
	s.values[key] = value

	if err := s.save(); err != nil {
		if existed {
			s.values[key] = previous
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

// Delete removes a key and persists the file
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	previous, exists := s.values[key]
	if !exists {
		return nil
	}

	delete(s.values, key)

	if err := s.save(); err != nil {
		s.values[key] = previous
		return err
	}
	return nil
}

// Close marks the store closed. Values are already on disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Path returns the storage file path
func (s *FileStore) Path() string {
	return s.filePath
}
