// Package earningsfs implements file-based storage for cached earnings
// records and the ticker registry snapshot.
package earningsfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

const registryKey = "sec_tickers"

// Store provides file-based JSON storage. Files are replaced through a temp
// file and rename so readers never observe a partial write.
type Store struct {
	basePath    string
	earningsDir string
	registryDir string
	logger      *common.Logger
}

// NewStore creates a new earnings file store.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache store path %s: %w", path, err)
	}
	earningsDir := filepath.Join(path, "earnings")
	registryDir := filepath.Join(path, "registry")
	for _, dir := range []string{earningsDir, registryDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger.Info().Str("path", path).Msg("Earnings file store opened")
	return &Store{
		basePath:    path,
		earningsDir: earningsDir,
		registryDir: registryDir,
		logger:      logger,
	}, nil
}

// DataPath returns the base data path.
func (s *Store) DataPath() string {
	return s.basePath
}

// EarningsCacheStorage returns the cache entry storage interface.
func (s *Store) EarningsCacheStorage() interfaces.EarningsCacheStorage {
	return &cacheStorage{store: s}
}

// RegistryStorage returns the registry snapshot storage interface.
func (s *Store) RegistryStorage() interfaces.RegistryStorage {
	return &registryStorage{store: s}
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// --- helpers ---

func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}

func entryKey(symbol, kind string) string {
	return symbol + "." + kind
}

func filePath(dir, key string) string {
	return filepath.Join(dir, sanitizeKey(key)+".json")
}

func readJSON(dir, key string, dest interface{}) error {
	path := filePath(dir, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("'%s': %w", key, common.ErrNotFound)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("'%s' is empty", key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(dir, key string, data interface{}) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	target := filePath(dir, key)
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	jsonData = append(jsonData, '\n')

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(jsonData); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func listKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".tmp-") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	return keys, nil
}

// --- EarningsCacheStorage ---

type cacheStorage struct {
	store *Store
}

func (c *cacheStorage) ReadEntry(_ context.Context, symbol, kind string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := readJSON(c.store.earningsDir, entryKey(symbol, kind), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *cacheStorage) WriteEntry(_ context.Context, symbol, kind string, entry *models.CacheEntry) error {
	if err := writeJSON(c.store.earningsDir, entryKey(symbol, kind), entry); err != nil {
		return fmt.Errorf("failed to save %s %s: %w", symbol, kind, err)
	}
	c.store.logger.Debug().Str("symbol", symbol).Str("kind", kind).Msg("Cache entry saved")
	return nil
}

// DeleteSymbol matches the symbol exactly, so removing BRK leaves BRK.B intact.
func (c *cacheStorage) DeleteSymbol(_ context.Context, symbol string) ([]string, error) {
	keys, err := listKeys(c.store.earningsDir)
	if err != nil {
		return nil, err
	}

	prefix := sanitizeKey(symbol)
	var removed []string
	for _, key := range keys {
		i := strings.LastIndex(key, ".")
		if i <= 0 || key[:i] != prefix {
			continue
		}
		name := key + ".json"
		if err := os.Remove(filepath.Join(c.store.earningsDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	sort.Strings(removed)

	c.store.logger.Debug().Str("symbol", symbol).Int("files", len(removed)).Msg("Cache entries deleted")
	return removed, nil
}

// --- RegistryStorage ---

type registryStorage struct {
	store *Store
}

func (r *registryStorage) LoadRegistry(_ context.Context) (map[string]string, error) {
	var registry map[string]string
	if err := readJSON(r.store.registryDir, registryKey, &registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func (r *registryStorage) SaveRegistry(_ context.Context, registry map[string]string) error {
	if err := writeJSON(r.store.registryDir, registryKey, registry); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}
	r.store.logger.Debug().Int("tickers", len(registry)).Msg("Registry snapshot saved")
	return nil
}
