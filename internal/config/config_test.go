package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected driver 'sqlite', got %q", cfg.Database.Driver)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Executor.StaleAfter != 90*time.Second {
		t.Errorf("expected stale_after 90s, got %s", cfg.Executor.StaleAfter)
	}
	if cfg.Polling.Jobs.CompetitorDiscovery.Timeout != 400*time.Second {
		t.Errorf("expected competitor discovery timeout 400s, got %s", cfg.Polling.Jobs.CompetitorDiscovery.Timeout)
	}
	if cfg.Polling.Jobs.ResponseAnalysis.Timeout != 2*time.Minute {
		t.Errorf("expected response analysis timeout 2m, got %s", cfg.Polling.Jobs.ResponseAnalysis.Timeout)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
database:
  driver: Postgres
  dsn: postgres://localhost/test
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected driver 'postgres', got %q", cfg.Database.Driver)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Executor.QueryTimeout != 30*time.Second {
		t.Errorf("expected default query timeout, got %s", cfg.Executor.QueryTimeout)
	}
	if cfg.Polling.Interval != 5*time.Second {
		t.Errorf("expected default polling interval, got %s", cfg.Polling.Interval)
	}
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	if _, err := parse([]byte("database:\n  driver: mysql\n")); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Webhooks.RequestsPerMinute != 30 {
		t.Errorf("expected 30 requests per minute, got %d", cfg.Webhooks.RequestsPerMinute)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Database.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{Database: Database{Driver: "sqlite", DataDir: "/data", DSNEnv: "AIVIS_TEST_DSN"}}
	if got := cfg.GetDSN(); got != filepath.Join("/data", "aivisibility.db") {
		t.Errorf("unexpected sqlite dsn %q", got)
	}

	cfg.Database.DSN = "/tmp/x.db"
	if got := cfg.GetDSN(); got != "/tmp/x.db" {
		t.Errorf("expected explicit dsn, got %q", got)
	}

	t.Setenv("AIVIS_TEST_DSN", "postgres://env")
	if got := cfg.GetDSN(); got != "postgres://env" {
		t.Errorf("expected env dsn, got %q", got)
	}
}

func TestJobFallsBackToShared(t *testing.T) {
	p := Polling{Interval: 5 * time.Second, MaxAttempts: 60}
	j := p.Job(JobPolling{Timeout: time.Minute})
	if j.Interval != 5*time.Second || j.MaxAttempts != 60 || j.Timeout != time.Minute {
		t.Errorf("unexpected job settings: %+v", j)
	}

	j = p.Job(JobPolling{Interval: time.Second, MaxAttempts: 3})
	if j.Interval != time.Second || j.MaxAttempts != 3 {
		t.Errorf("overrides not kept: %+v", j)
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{}
	if cfg.Location() != time.Local {
		t.Error("expected local location by default")
	}
	cfg.Timezone = "UTC"
	if cfg.Location().String() != "UTC" {
		t.Errorf("expected UTC, got %s", cfg.Location())
	}
	cfg.Timezone = "Not/AZone"
	if cfg.Location() != time.Local {
		t.Error("expected fallback to local for unknown zone")
	}
}
