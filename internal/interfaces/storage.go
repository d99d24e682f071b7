package interfaces

import (
	"context"

	"github.com/mileslinfeng/MilesRI/internal/models"
)

// StorageManager coordinates the on-disk areas
type StorageManager interface {
	// EarningsCacheStorage returns the file-per-(symbol,kind) cache tier
	EarningsCacheStorage() EarningsCacheStorage

	// RegistryStorage returns the symbol registry snapshot store
	RegistryStorage() RegistryStorage

	// WatchlistStorage returns the watchlist store
	WatchlistStorage() WatchlistStorage

	// DataPath returns the cache area base path
	DataPath() string

	// Close releases all storage resources
	Close() error
}

// EarningsCacheStorage persists cache entries, one per symbol and kind
type EarningsCacheStorage interface {
	// ReadEntry returns the entry or an error wrapping common.ErrNotFound
	ReadEntry(ctx context.Context, symbol, kind string) (*models.CacheEntry, error)

	// WriteEntry atomically replaces the entry
	WriteEntry(ctx context.Context, symbol, kind string, entry *models.CacheEntry) error

	// DeleteSymbol removes every kind for the symbol and returns the removed file names
	DeleteSymbol(ctx context.Context, symbol string) ([]string, error)
}

// RegistryStorage persists the ticker registry snapshot
type RegistryStorage interface {
	// LoadRegistry returns the snapshot or an error wrapping common.ErrNotFound
	LoadRegistry(ctx context.Context) (map[string]string, error)

	// SaveRegistry atomically replaces the snapshot
	SaveRegistry(ctx context.Context, registry map[string]string) error
}

// WatchlistStorage persists watchlist items
type WatchlistStorage interface {
	ListItems(ctx context.Context) ([]models.WatchlistItem, error)
	GetItem(ctx context.Context, symbol string) (*models.WatchlistItem, error)
	SaveItem(ctx context.Context, item *models.WatchlistItem) error
	DeleteItem(ctx context.Context, symbol string) error
}
