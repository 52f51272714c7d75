package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/labelhub/pkg/formatting"
	"github.com/JaimeStill/labelhub/pkg/middleware"
	"github.com/JaimeStill/labelhub/pkg/pagination"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "LABELHUB_CORS_ENABLED",
	Origins:          "LABELHUB_CORS_ORIGINS",
	AllowedMethods:   "LABELHUB_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "LABELHUB_CORS_ALLOWED_HEADERS",
	ExposedHeaders:   "LABELHUB_CORS_EXPOSED_HEADERS",
	AllowCredentials: "LABELHUB_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "LABELHUB_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "LABELHUB_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "LABELHUB_PAGINATION_MAX_PAGE_SIZE",
}

var rateLimitEnv = &middleware.RateLimitEnv{
	Enabled:           "LABELHUB_RATE_LIMIT_ENABLED",
	RequestsPerSecond: "LABELHUB_RATE_LIMIT_RPS",
	Burst:             "LABELHUB_RATE_LIMIT_BURST",
}

// APIConfig holds API routing, CORS, pagination, and rate limit settings.
type APIConfig struct {
	BasePath      string                     `toml:"base_path"`
	MaxUploadSize string                     `toml:"max_upload_size"`
	CacheEntries  int                        `toml:"cache_entries"`
	CORS          middleware.CORSConfig      `toml:"cors"`
	Pagination    pagination.Config          `toml:"pagination"`
	RateLimit     middleware.RateLimitConfig `toml:"rate_limit"`
}

func (c *APIConfig) MaxUploadSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 50 * 1024 * 1024 // 50MB fallback
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if _, err := formatting.ParseBytes(c.MaxUploadSize); err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.RateLimit.Finalize(rateLimitEnv); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	if overlay.CacheEntries > 0 {
		c.CacheEntries = overlay.CacheEntries
	}

	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
	c.RateLimit.Merge(&overlay.RateLimit)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "50MB"
	}
	if c.CacheEntries <= 0 {
		c.CacheEntries = 64
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv("LABELHUB_API_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("LABELHUB_API_MAX_UPLOAD_SIZE"); v != "" {
		c.MaxUploadSize = v
	}
	if v := os.Getenv("LABELHUB_API_CACHE_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CacheEntries = n
		}
	}
}
