package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	AuthProviderHeader = "header"
	AuthProviderOIDC   = "oidc"

	EnvAuthProvider    = "LABELHUB_AUTH_PROVIDER"
	EnvAuthIssuer      = "LABELHUB_AUTH_ISSUER"
	EnvAuthClientID    = "LABELHUB_AUTH_CLIENT_ID"
	EnvAuthRoleClaim   = "LABELHUB_AUTH_ROLE_CLAIM"
	EnvAuthAllowHeader = "LABELHUB_AUTH_ALLOW_HEADER"
)

// AuthConfig selects how request actors are resolved. OIDC is the default.
// The header provider trusts client-sent X-Actor-ID and X-Actor-Role, so it
// is refused unless AllowHeader is set for local development.
type AuthConfig struct {
	Provider    string `toml:"provider"`
	Issuer      string `toml:"issuer"`
	ClientID    string `toml:"client_id"`
	RoleClaim   string `toml:"role_claim"`
	DefaultRole string `toml:"default_role"`
	AllowHeader bool   `toml:"allow_header"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *AuthConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *AuthConfig) Merge(overlay *AuthConfig) {
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.Issuer != "" {
		c.Issuer = overlay.Issuer
	}
	if overlay.ClientID != "" {
		c.ClientID = overlay.ClientID
	}
	if overlay.RoleClaim != "" {
		c.RoleClaim = overlay.RoleClaim
	}
	if overlay.DefaultRole != "" {
		c.DefaultRole = overlay.DefaultRole
	}
	if overlay.AllowHeader {
		c.AllowHeader = true
	}
}

func (c *AuthConfig) loadDefaults() {
	if c.Provider == "" {
		c.Provider = AuthProviderOIDC
	}
	if c.RoleClaim == "" {
		c.RoleClaim = "role"
	}
	if c.DefaultRole == "" {
		c.DefaultRole = "WORKER"
	}
}

func (c *AuthConfig) loadEnv() {
	if v := os.Getenv(EnvAuthProvider); v != "" {
		c.Provider = v
	}
	if v := os.Getenv(EnvAuthIssuer); v != "" {
		c.Issuer = v
	}
	if v := os.Getenv(EnvAuthClientID); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv(EnvAuthRoleClaim); v != "" {
		c.RoleClaim = v
	}
	if v := os.Getenv(EnvAuthAllowHeader); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AllowHeader = b
		}
	}
}

func (c *AuthConfig) validate() error {
	switch c.Provider {
	case AuthProviderHeader:
		if !c.AllowHeader {
			return fmt.Errorf("header provider trusts client-sent roles; set allow_header to use it")
		}
	case AuthProviderOIDC:
		if c.Issuer == "" {
			return fmt.Errorf("issuer required for oidc provider")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id required for oidc provider")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}
