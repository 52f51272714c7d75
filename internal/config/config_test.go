package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/JaimeStill/labelhub/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"
log_level = "debug"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "15m"
shutdown_timeout = "30s"

[database]
host = "localhost"
port = 5432
name = "labelhub"
user = "labelhub"
password = "labelhub"
ssl_mode = "disable"
max_open_conns = 25
max_idle_conns = 5
conn_max_lifetime = "15m"
conn_timeout = "5s"

[storage]
container_name = "datasets"
connection_string = "DefaultEndpointsProtocol=http;AccountName=labelstore;AccountKey=key;BlobEndpoint=http://127.0.0.1:10000/labelstore;"

[api]
base_path = "/api"

[api.pagination]
default_page_size = 25
max_page_size = 50

[api.rate_limit]
enabled = true
requests_per_second = 5
burst = 10

[scheduler]
enabled = true
spec = "0 30 2 * * *"
timezone = "Asia/Shanghai"
publish_limit = 40

[selection]
multi_leaf = true

[auth]
issuer = "https://login.example.com"
client_id = "labelhub"
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[messaging]
url = "nats://nats:4222"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("db host: got %s, want localhost", cfg.Database.Host)
	}
	if cfg.Storage.ContainerName != "datasets" {
		t.Errorf("storage container: got %s, want datasets", cfg.Storage.ContainerName)
	}
	if cfg.API.Pagination.MaxPageSize != 50 {
		t.Errorf("pagination max_page_size: got %d, want 50", cfg.API.Pagination.MaxPageSize)
	}
	if !cfg.API.RateLimit.Enabled || cfg.API.RateLimit.Burst != 10 {
		t.Errorf("rate_limit: got %+v", cfg.API.RateLimit)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level: got %v, want debug", cfg.SlogLevel())
	}
	if cfg.Auth.Provider != config.AuthProviderOIDC {
		t.Errorf("auth provider default: got %s", cfg.Auth.Provider)
	}
	if cfg.Messaging.Enabled() {
		t.Error("messaging should be disabled without url")
	}
}

func TestLoadSchedulerAndSelection(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	s := cfg.Scheduler
	if !s.Enabled || s.Spec != "0 30 2 * * *" || s.PublishLimit != 40 {
		t.Errorf("scheduler: got %+v", s)
	}
	if s.ConsensusThreshold != 0.6 {
		t.Errorf("consensus threshold default: got %v, want 0.6", s.ConsensusThreshold)
	}
	if s.Location().String() != "Asia/Shanghai" {
		t.Errorf("location: got %s", s.Location())
	}
	if !cfg.Selection.MultiLeaf || cfg.Selection.ExtraRows {
		t.Errorf("selection: got %+v", cfg.Selection)
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)
	chdir(t, dir)

	t.Setenv(config.EnvLabelhubEnv, "staging")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("db host: got %s, want prodhost (from overlay)", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port: got %d, want 5432 (from base)", cfg.Database.Port)
	}
	if !cfg.Messaging.Enabled() {
		t.Error("messaging should be enabled by overlay")
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	chdir(t, dir)

	t.Setenv("LABELHUB_VERSION", "2.0.0")
	t.Setenv("LABELHUB_SERVER_PORT", "3000")
	t.Setenv("LABELHUB_SCHEDULER_CONSENSUS_THRESHOLD", "0.75")
	t.Setenv("LABELHUB_SELECTION_EXTRA_ROWS", "true")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if cfg.Scheduler.ConsensusThreshold != 0.75 {
		t.Errorf("consensus threshold: got %v, want 0.75", cfg.Scheduler.ConsensusThreshold)
	}
	if !cfg.Selection.ExtraRows {
		t.Error("extra rows should be enabled from env")
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	t.Setenv("LABELHUB_DB_NAME", "testdb")
	t.Setenv("LABELHUB_DB_USER", "testuser")
	t.Setenv("LABELHUB_STORAGE_CONNECTION_STRING", "conn")
	t.Setenv(config.EnvAuthIssuer, "https://login.example.com")
	t.Setenv(config.EnvAuthClientID, "labelhub")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port default: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("db name from env: got %s, want testdb", cfg.Database.Name)
	}
	if cfg.Scheduler.Spec != "0 0 0 * * *" {
		t.Errorf("scheduler spec default: got %s", cfg.Scheduler.Spec)
	}
	if cfg.Scheduler.PublishLimit != 100 {
		t.Errorf("publish limit default: got %d, want 100", cfg.Scheduler.PublishLimit)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed toml", `invalid = `},
		{"bad cron spec", `
[database]
name = "labelhub"
user = "labelhub"

[storage]
connection_string = "conn"

[scheduler]
spec = "every day"
`},
		{"bad log level", `
log_level = "verbose"

[database]
name = "labelhub"
user = "labelhub"

[storage]
connection_string = "conn"
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, config.BaseConfigFile, tt.content)
			chdir(t, dir)

			if _, err := config.Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAuthFinalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AuthConfig
		wantErr bool
	}{
		{"oidc default without issuer", config.AuthConfig{}, true},
		{"header refused by default", config.AuthConfig{Provider: "header"}, true},
		{"header allowed for development", config.AuthConfig{Provider: "header", AllowHeader: true}, false},
		{"oidc complete", config.AuthConfig{Provider: "oidc", Issuer: "https://idp", ClientID: "labelhub"}, false},
		{"oidc missing issuer", config.AuthConfig{Provider: "oidc", ClientID: "labelhub"}, true},
		{"unknown provider", config.AuthConfig{Provider: "saml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize()
			if (err != nil) != tt.wantErr {
				t.Errorf("Finalize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchedulerValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SchedulerConfig
	}{
		{"threshold above one", config.SchedulerConfig{ConsensusThreshold: 1.5}},
		{"unknown timezone", config.SchedulerConfig{Timezone: "Mars/Olympus"}},
		{"negative publish limit", config.SchedulerConfig{PublishLimit: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRequirementsFinalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.RequirementsConfig
		wantErr bool
	}{
		{"disabled needs no agent", config.RequirementsConfig{}, false},
		{"gemini without key", config.RequirementsConfig{Enabled: true}, true},
		{"gemini with key", config.RequirementsConfig{Enabled: true, Agent: config.AgentConfig{APIKey: "k"}}, false},
		{"vertex without location", config.RequirementsConfig{Enabled: true, Agent: config.AgentConfig{Backend: "vertex", Project: "p"}}, true},
		{"vertex complete", config.RequirementsConfig{Enabled: true, Agent: config.AgentConfig{Backend: "vertex", Project: "p", Location: "us-central1"}}, false},
		{"unknown backend", config.RequirementsConfig{Enabled: true, Agent: config.AgentConfig{Backend: "local"}}, true},
		{"bad timeout", config.RequirementsConfig{Enabled: true, Agent: config.AgentConfig{APIKey: "k", Timeout: "soon"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize()
			if (err != nil) != tt.wantErr {
				t.Errorf("Finalize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequirementsEnvOverrides(t *testing.T) {
	t.Setenv(config.EnvRequirementsEnabled, "true")
	t.Setenv(config.EnvRequirementsBatchSize, "25")
	t.Setenv(config.EnvAgentAPIKey, "secret")
	t.Setenv(config.EnvAgentModel, "gemini-2.5-pro")

	var cfg config.RequirementsConfig
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !cfg.Enabled || cfg.BatchSize != 25 || cfg.Concurrency != 2 {
		t.Errorf("requirements = %+v", cfg)
	}
	if cfg.Agent.APIKey != "secret" || cfg.Agent.Model != "gemini-2.5-pro" || cfg.Agent.TimeoutDuration() != time.Minute {
		t.Errorf("agent = %+v", cfg.Agent)
	}
}

func TestShutdownTimeoutDuration(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ShutdownTimeoutDuration() != 30*time.Second {
		t.Errorf("shutdown timeout: got %v, want 30s", cfg.ShutdownTimeoutDuration())
	}
}

func TestEnvFromEnvVar(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	chdir(t, dir)

	t.Setenv(config.EnvLabelhubEnv, "production")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Env() != "production" {
		t.Errorf("env: got %s, want production", cfg.Env())
	}
}
