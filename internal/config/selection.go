package config

import (
	"os"
	"strconv"
)

const (
	EnvSelectionMultiLeaf = "LABELHUB_SELECTION_MULTI_LEAF"
	EnvSelectionExtraRows = "LABELHUB_SELECTION_EXTRA_ROWS"
)

// SelectionConfig holds the selection engine feature flags.
type SelectionConfig struct {
	MultiLeaf bool `toml:"multi_leaf"`
	ExtraRows bool `toml:"extra_rows"`
}

// Finalize applies environment variable overrides.
func (c *SelectionConfig) Finalize() error {
	if v := os.Getenv(EnvSelectionMultiLeaf); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.MultiLeaf = b
		}
	}
	if v := os.Getenv(EnvSelectionExtraRows); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ExtraRows = b
		}
	}
	return nil
}

// Merge switches on any flag set in overlay.
func (c *SelectionConfig) Merge(overlay *SelectionConfig) {
	if overlay.MultiLeaf {
		c.MultiLeaf = true
	}
	if overlay.ExtraRows {
		c.ExtraRows = true
	}
}
