package database_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/JaimeStill/labelhub/pkg/database"
)

var testEnv = &database.Env{
	Host:     "TEST_DB_HOST",
	Port:     "TEST_DB_PORT",
	Name:     "TEST_DB_NAME",
	User:     "TEST_DB_USER",
	Password: "TEST_DB_PASSWORD",
}

func TestConfigFinalizeDefaults(t *testing.T) {
	c := database.Config{Name: "labelhub", User: "labelhub"}
	if err := c.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if c.Host != "localhost" || c.Port != 5432 || c.SSLMode != "disable" {
		t.Errorf("defaults = %+v", c)
	}
	if c.ConnMaxLifetimeDuration() != 15*time.Minute {
		t.Errorf("conn max lifetime = %v", c.ConnMaxLifetimeDuration())
	}
	if c.ConnTimeoutDuration() != 5*time.Second {
		t.Errorf("conn timeout = %v", c.ConnTimeoutDuration())
	}
}

func TestConfigFinalizeEnv(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db.internal")
	t.Setenv("TEST_DB_PORT", "6543")
	t.Setenv("TEST_DB_NAME", "labels")
	t.Setenv("TEST_DB_USER", "svc")

	var c database.Config
	if err := c.Finalize(testEnv); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	want := "host=db.internal port=6543 dbname=labels user=svc password= sslmode=disable connect_timeout=5 application_name=labelhub"
	if got := c.Dsn(); got != want {
		t.Errorf("Dsn() = %q, want %q", got, want)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  database.Config
	}{
		{"missing name", database.Config{User: "u"}},
		{"missing user", database.Config{Name: "n"}},
		{"bad lifetime", database.Config{Name: "n", User: "u", ConnMaxLifetime: "forever"}},
		{"idle above open", database.Config{Name: "n", User: "u", MaxOpenConns: 2, MaxIdleConns: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfigMerge(t *testing.T) {
	base := database.Config{Host: "localhost", Port: 5432, Name: "labelhub"}
	base.Merge(&database.Config{Host: "remote", MaxOpenConns: 50})

	if base.Host != "remote" || base.Port != 5432 || base.MaxOpenConns != 50 || base.Name != "labelhub" {
		t.Errorf("merged = %+v", base)
	}
}

func TestNewIsNotReadyBeforeStart(t *testing.T) {
	c := database.Config{Name: "labelhub", User: "labelhub"}
	if err := c.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	sys, err := database.New(&c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer sys.Connection().Close()

	if sys.Ready() {
		t.Error("database reported ready before Start")
	}
}

func TestConfigDsnRoundsTimeoutUp(t *testing.T) {
	c := database.Config{
		Host:            "db",
		Port:            5432,
		Name:            "labelhub",
		User:            "svc",
		SSLMode:         "require",
		ApplicationName: "labelhub-migrate",
		ConnTimeout:     "1500ms",
	}

	want := "host=db port=5432 dbname=labelhub user=svc password= sslmode=require connect_timeout=2 application_name=labelhub-migrate"
	if got := c.Dsn(); got != want {
		t.Errorf("Dsn() = %q, want %q", got, want)
	}
}
