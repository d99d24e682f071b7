// Package cache provides the two-tier earnings cache: an in-process map in
// front of per-(symbol, kind) JSON files, with stale reads and in-flight
// request deduplication
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/metrics"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

// Lookup results recorded in metrics alongside the model source labels
const (
	resultMiss = "miss"
)

// Manager implements interfaces.EarningsCache
type Manager struct {
	storage interfaces.EarningsCacheStorage
	ttl     *common.CacheConfig
	logger  *common.Logger
	now     func() time.Time

	mu     sync.RWMutex
	memory map[string]*models.CacheEntry

	inflight singleflight.Group
}

// Option configures the manager
type Option func(*Manager)

// WithClock overrides the clock used for timestamps and TTL checks
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a cache manager. A nil ttl config uses the defaults.
func NewManager(storage interfaces.EarningsCacheStorage, ttl *common.CacheConfig, logger *common.Logger, opts ...Option) *Manager {
	if ttl == nil {
		ttl = &common.CacheConfig{}
	}
	m := &Manager{
		storage: storage,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		memory:  make(map[string]*models.CacheEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func key(symbol, kind string) string {
	return symbol + "|" + kind
}

// Read checks memory, then disk. A fresh disk entry is copied into memory
// stamped with the read time, so the memory TTL counts from the promotion.
func (m *Manager) Read(ctx context.Context, symbol, kind string) (*models.CacheEntry, string, bool) {
	memTTL, diskTTL := m.ttl.TTL(kind)
	now := m.now()

	m.mu.RLock()
	entry, ok := m.memory[key(symbol, kind)]
	m.mu.RUnlock()
	if ok && common.IsFreshAt(entry.WrittenAt(), memTTL, now) {
		metrics.CacheLookup(kind, models.SourceMemory)
		return entry, models.SourceMemory, true
	}

	disk, err := m.storage.ReadEntry(ctx, symbol, kind)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			m.logger.Warn().Err(err).Str("symbol", symbol).Str("kind", kind).Msg("Cache read failed, treating as miss")
		}
		metrics.CacheLookup(kind, resultMiss)
		return nil, "", false
	}
	if !common.IsFreshAt(disk.WrittenAt(), diskTTL, now) {
		metrics.CacheLookup(kind, resultMiss)
		return nil, "", false
	}

	// The memory copy starts its own TTL from now
	promoted := &models.CacheEntry{Timestamp: now.UnixMilli(), Data: disk.Data}
	m.mu.Lock()
	// Do not clobber a newer entry written while the disk read was in progress
	if cur, ok := m.memory[key(symbol, kind)]; !ok || cur.Timestamp <= disk.Timestamp {
		m.memory[key(symbol, kind)] = promoted
	}
	m.mu.Unlock()

	metrics.CacheLookup(kind, models.SourceDisk)
	return disk, models.SourceDisk, true
}

// Write stores payload on disk, then in memory. A failed disk write leaves
// memory untouched so both tiers stay consistent.
func (m *Manager) Write(ctx context.Context, symbol, kind string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	entry := &models.CacheEntry{
		Timestamp: m.now().UnixMilli(),
		Data:      data,
	}

	if err := m.storage.WriteEntry(ctx, symbol, kind, entry); err != nil {
		metrics.CacheWriteError(kind)
		return fmt.Errorf("cache write %s %s: %w", symbol, kind, err)
	}

	m.mu.Lock()
	m.memory[key(symbol, kind)] = entry
	m.mu.Unlock()
	return nil
}

// ReadStale returns the disk entry regardless of age
func (m *Manager) ReadStale(ctx context.Context, symbol, kind string) (*models.CacheEntry, bool) {
	entry, err := m.storage.ReadEntry(ctx, symbol, kind)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			m.logger.Warn().Err(err).Str("symbol", symbol).Str("kind", kind).Msg("Stale cache read failed")
		}
		return nil, false
	}
	metrics.CacheLookup(kind, models.SourceStaleDisk)
	return entry, true
}

// Invalidate removes every kind for the symbol from memory and disk
func (m *Manager) Invalidate(ctx context.Context, symbol string) ([]string, error) {
	m.mu.Lock()
	for k := range m.memory {
		if sym, _, ok := strings.Cut(k, "|"); ok && sym == symbol {
			delete(m.memory, k)
		}
	}
	m.mu.Unlock()

	removed, err := m.storage.DeleteSymbol(ctx, symbol)
	if err != nil {
		return removed, fmt.Errorf("cache invalidate %s: %w", symbol, err)
	}
	m.logger.Info().Str("symbol", symbol).Strs("files", removed).Msg("Cache invalidated")
	return removed, nil
}

// Do runs fn at most once for concurrent callers of the same (symbol, kind).
// Callers that attached to a run started by another caller get joined=true.
// The in-flight marker is cleared when fn returns, whatever the outcome.
// A caller whose context ends stops waiting; the run itself continues for
// the remaining callers.
func (m *Manager) Do(ctx context.Context, symbol, kind string, fn func() (interface{}, error)) (interface{}, bool, error) {
	var ran atomic.Bool
	ch := m.inflight.DoChan(key(symbol, kind), func() (interface{}, error) {
		ran.Store(true)
		return fn()
	})

	select {
	case res := <-ch:
		joined := !ran.Load()
		if joined {
			metrics.CacheLookup(kind, models.SourceInflight)
		}
		return res.Val, joined, res.Err
	case <-ctx.Done():
		return nil, !ran.Load(), ctx.Err()
	}
}

// Size returns the number of memory entries
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.memory)
}

var _ interfaces.EarningsCache = (*Manager)(nil)
