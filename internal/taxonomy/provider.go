package taxonomy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/labelhub/pkg/cache"
	"github.com/JaimeStill/labelhub/pkg/metrics"
	"github.com/JaimeStill/labelhub/pkg/storage"
)

// Provider loads normalized taxonomies from blob storage.
type Provider interface {
	Load(ctx context.Context, key string) (*Taxonomy, error)
	// Evict drops key from the cache once its blob is gone.
	Evict(key string)
}

type provider struct {
	store   storage.System
	metrics *metrics.Metrics
	logger  *slog.Logger

	cache *cache.LRU[*Taxonomy]
}

// NewProvider creates a Provider. Registered taxonomy blobs are immutable, so
// results are cached by key, keeping at most size entries.
func NewProvider(store storage.System, size int, m *metrics.Metrics, logger *slog.Logger) Provider {
	return &provider{
		store:   store,
		metrics: m,
		logger:  logger.With("system", "taxonomy"),
		cache:   cache.NewLRU[*Taxonomy](size),
	}
}

func (p *provider) Load(ctx context.Context, key string) (*Taxonomy, error) {
	format, err := FormatOf(key)
	if err != nil {
		return nil, err
	}

	if t, ok := p.cache.Get(key); ok {
		p.metrics.RecordTaxonomyLoad(format, true)
		return t, nil
	}

	blob, err := p.store.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download taxonomy %s: %w", key, err)
	}
	defer blob.Body.Close()

	t, err := Load(key, blob.Body)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy %s: %w", key, err)
	}

	p.cache.Add(key, t)

	p.metrics.RecordTaxonomyLoad(format, false)
	p.logger.Info("taxonomy loaded", "key", key, "dimensions", len(t.Dimensions))

	return t, nil
}

func (p *provider) Evict(key string) {
	p.cache.Remove(key)
}
