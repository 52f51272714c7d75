package infrastructure_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/JaimeStill/labelhub/internal/config"
	"github.com/JaimeStill/labelhub/internal/infrastructure"
	"github.com/JaimeStill/labelhub/pkg/database"
	"github.com/JaimeStill/labelhub/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=labelstore;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/labelstore;"

func validConfig() *config.Config {
	return &config.Config{
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Name:            "labelhub",
			User:            "labelhub",
			Password:        "labelhub",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: "15m",
			ConnTimeout:     "5s",
		},
		Storage: storage.Config{
			ContainerName:    "labelhub",
			ConnectionString: azuriteConnString,
		},
		LogLevel: "info",
		Version:  "0.1.0",
	}
}

func TestNew(t *testing.T) {
	infra, err := infrastructure.NewWithWriter(validConfig(), io.Discard)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Lifecycle == nil {
		t.Error("Lifecycle is nil")
	}
	if infra.Logger == nil {
		t.Error("Logger is nil")
	}
	if infra.Database == nil {
		t.Error("Database is nil")
	}
	if infra.Storage == nil {
		t.Error("Storage is nil")
	}
	if infra.Resilience == nil {
		t.Error("Resilience is nil")
	}
	if infra.Events == nil {
		t.Error("Events is nil")
	}
	if infra.Metrics == nil {
		t.Error("Metrics is nil")
	}

	infra.Database.Connection().Close()
}

func TestNewInvalidStorageConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.ConnectionString = "not-a-connection-string"

	if _, err := infrastructure.NewWithWriter(cfg, io.Discard); err == nil {
		t.Fatal("expected error for invalid storage connection string")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := infrastructure.NewLogger(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.With("system", "tasks").Info("created", "id", "t1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "labelhub" || entry["system"] != "tasks" || entry["msg"] != "created" {
		t.Errorf("entry = %v", entry)
	}
}
