// Package store implements the persistent session store shared by every
// execution context. It is a durable key-value store with two scopes:
// device-local (sensitive values such as the auth token) and synced
// (configuration such as the API base URL).
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/feedlens/relay/internal/infrastructure/logging"
)

// Scope selects the persistence class of a key.
type Scope string

const (
	// ScopeLocal holds sensitive, device-local values.
	ScopeLocal Scope = "local"
	// ScopeSync holds configuration synced across devices.
	ScopeSync Scope = "sync"
)

// Well-known keys.
const (
	KeyAuthToken = "authToken" // ScopeLocal
	KeyAPIURL    = "apiUrl"    // ScopeSync
)

// record is the on-disk envelope for one key.
type record struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a file-backed key-value store. Keys are independent: there is no
// multi-key atomicity, so a reader racing a writer may observe a stale or
// transitional value. Consumers re-read at the start of each operation
// instead of caching values across operations.
type Store struct {
	dir    string
	cache  sync.Map // scope:key -> record, last observed value
	logger *logging.Logger
	mu     sync.Mutex // serializes writes within this process
}

// Open creates or opens a store rooted at dir.
func Open(dir string, logger *logging.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory required")
	}
	for _, scope := range []Scope{ScopeLocal, ScopeSync} {
		if err := os.MkdirAll(filepath.Join(dir, string(scope)), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Get returns the value for key, reporting whether it is present. Reads
// always hit the backing file so writes from sibling contexts are visible;
// a malformed record is treated as an absent key, not an error.
func (s *Store) Get(scope Scope, key string) (string, bool, error) {
	if key == "" {
		return "", false, fmt.Errorf("key required")
	}

	data, err := os.ReadFile(s.keyPath(scope, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.cache.Delete(s.cacheKey(scope, key))
			return "", false, nil
		}
		return "", false, fmt.Errorf("read failed: %w", err)
	}

	var rec record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		// Corrupt entries behave like missing ones.
		s.logger.Warn("discarding malformed store record",
			zap.String("scope", string(scope)), zap.String("key", key))
		s.cache.Delete(s.cacheKey(scope, key))
		return "", false, nil
	}

	s.cache.Store(s.cacheKey(scope, key), rec)
	return rec.Value, true, nil
}

// Set writes key to value. The write is atomic per key (temp file + rename);
// the last writer wins across contexts.
func (s *Store) Set(scope Scope, key, value string) error {
	if key == "" {
		return fmt.Errorf("key required")
	}

	rec := record{Value: value, UpdatedAt: time.Now().UTC()}
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyPath(scope, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	s.cache.Store(s.cacheKey(scope, key), rec)
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(scope Scope, key string) error {
	if key == "" {
		return fmt.Errorf("key required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.keyPath(scope, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete failed: %w", err)
	}
	s.cache.Delete(s.cacheKey(scope, key))
	return nil
}

// Keys lists the keys present in a scope.
func (s *Store) Keys(scope Scope) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, string(scope)))
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		keys = append(keys, name[:len(name)-len(".json")])
	}
	return keys, nil
}

func (s *Store) keyPath(scope Scope, key string) string {
	return filepath.Join(s.dir, string(scope), key+".json")
}

func (s *Store) cacheKey(scope Scope, key string) string {
	return fmt.Sprintf("%s:%s", scope, key)
}
