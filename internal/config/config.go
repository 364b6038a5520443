package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Database Database `yaml:"database"`
	Server   Server   `yaml:"server"`
	Auth     Auth     `yaml:"auth"`
	Executor Executor `yaml:"executor"`
	Polling  Polling  `yaml:"polling"`
	Webhooks Webhooks `yaml:"webhooks"`
	Sources  Sources  `yaml:"sources"`
	Timezone string   `yaml:"timezone"`
	Logging  Logging  `yaml:"logging"`
}

// Database selects the storage backend. Driver is "sqlite" or "postgres".
type Database struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DSNEnv  string `yaml:"dsn_env"`
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Auth struct {
	SecretEnv     string        `yaml:"secret_env"`
	Issuer        string        `yaml:"issuer"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	RefreshBefore time.Duration `yaml:"refresh_before"`
}

type Executor struct {
	StaleAfter   time.Duration `yaml:"stale_after"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

type Polling struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	Jobs        PollingJobs   `yaml:"jobs"`
}

type PollingJobs struct {
	CompetitorDiscovery JobPolling `yaml:"competitor_discovery"`
	ResponseAnalysis    JobPolling `yaml:"response_analysis"`
}

// JobPolling overrides the shared polling settings for one job type.
// Zero values fall back to the parent Polling block.
type JobPolling struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Webhooks struct {
	GeneratePrompts   string        `yaml:"generate_prompts"`
	AnalyzePrompts    string        `yaml:"analyze_prompts"`
	AnalyzeResponses  string        `yaml:"analyze_responses"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type Sources struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	UserAgent    string        `yaml:"user_agent"`
}

type Logging struct {
	Level string `yaml:"level"`
	Mode  string `yaml:"mode"`
}

// ConfigDir returns the XDG config directory for aivisibility.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "aivisibility")
}

// DataDir returns the XDG data directory for aivisibility.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "aivisibility")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/aivisibility/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'aivisibility init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Database: Database{
			Driver: "sqlite",
			DSNEnv: "AIVISIBILITY_DATABASE_URL",
		},
		Server: Server{
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		Auth: Auth{
			SecretEnv:     "AIVISIBILITY_JWT_SECRET",
			Issuer:        "aivisibility",
			TokenTTL:      time.Hour,
			RefreshBefore: 15 * time.Second,
		},
		Executor: Executor{
			StaleAfter:   90 * time.Second,
			QueryTimeout: 30 * time.Second,
			RetryDelay:   500 * time.Millisecond,
		},
		Polling: Polling{
			Interval:    5 * time.Second,
			MaxAttempts: 60,
			Jobs: PollingJobs{
				CompetitorDiscovery: JobPolling{Timeout: 400 * time.Second},
				ResponseAnalysis:    JobPolling{Timeout: 2 * time.Minute},
			},
		},
		Webhooks: Webhooks{
			Timeout:           6 * time.Minute,
			RequestsPerMinute: 30,
		},
		Sources: Sources{
			FetchTimeout: 15 * time.Second,
			UserAgent:    "Mozilla/5.0 (compatible; AIVisibility/1.0)",
		},
		Logging: Logging{Level: "info", Mode: "dev"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Database.DataDir != "" {
		return c.Database.DataDir
	}
	return DataDir()
}

// GetDSN returns the database DSN: the env var named by dsn_env wins, then
// dsn, then the SQLite file in the data directory.
func (c *Config) GetDSN() string {
	if c.Database.DSNEnv != "" {
		if v := os.Getenv(c.Database.DSNEnv); v != "" {
			return v
		}
	}
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	if c.Database.Driver == "postgres" {
		return ""
	}
	return filepath.Join(c.GetDataDir(), "aivisibility.db")
}

// JWTSecret reads the signing secret from the configured env var.
func (c *Config) JWTSecret() string {
	return os.Getenv(c.Auth.SecretEnv)
}

// Location resolves the configured timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Job returns the effective polling settings for one job type.
func (p Polling) Job(j JobPolling) JobPolling {
	if j.Interval <= 0 {
		j.Interval = p.Interval
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = p.MaxAttempts
	}
	return j
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
