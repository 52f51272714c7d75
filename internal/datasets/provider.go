package datasets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/labelhub/pkg/cache"
	"github.com/JaimeStill/labelhub/pkg/storage"
)

// Provider serves dataset rows from blob storage.
type Provider interface {
	// Rows returns the [start, end) slice of the dataset, clamped to its length.
	Rows(ctx context.Context, key string, start, end int) ([]Row, error)
	// Row returns a single row.
	Row(ctx context.Context, key string, index int) (Row, error)
	// Count returns the number of rows in the dataset.
	Count(ctx context.Context, key string) (int, error)
	// Evict drops key from the cache.
	Evict(key string)
}

// ErrRowOutOfRange is returned by Row for an index outside the dataset.
var ErrRowOutOfRange = fmt.Errorf("%w: row index out of range", ErrInvalid)

type provider struct {
	store  storage.System
	logger *slog.Logger

	cache *cache.LRU[[]Row]
}

// NewProvider creates a Provider that caches up to size parsed datasets by key.
func NewProvider(store storage.System, size int, logger *slog.Logger) Provider {
	return &provider{
		store:  store,
		logger: logger.With("system", "datasets"),
		cache:  cache.NewLRU[[]Row](size),
	}
}

func (p *provider) Rows(ctx context.Context, key string, start, end int) ([]Row, error) {
	rows, err := p.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return Slice(rows, start, end), nil
}

func (p *provider) Row(ctx context.Context, key string, index int) (Row, error) {
	rows, err := p.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(rows) {
		return nil, ErrRowOutOfRange
	}
	return rows[index], nil
}

func (p *provider) Count(ctx context.Context, key string) (int, error) {
	rows, err := p.load(ctx, key)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (p *provider) load(ctx context.Context, key string) ([]Row, error) {
	if rows, ok := p.cache.Get(key); ok {
		return rows, nil
	}

	blob, err := p.store.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download dataset %s: %w", key, err)
	}
	defer blob.Body.Close()

	rows, err := Parse(key, blob.Body)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", key, err)
	}

	p.cache.Add(key, rows)

	p.logger.Info("dataset loaded", "key", key, "rows", len(rows))
	return rows, nil
}

func (p *provider) Evict(key string) {
	p.cache.Remove(key)
}
