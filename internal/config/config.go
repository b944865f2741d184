package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Service  *svcConfig
	Database *dbConfig
	Sync     *syncConfig
	Matching *matchConfig
}

type svcConfig struct {
	// BaseUrl is the root of the upload API; /call-logs, /call-recordings
	// and /health are resolved against it.
	BaseUrl   string `envconfig:"CALLSYNC_SERVICE_URL" default:"https://localhost:8443/api"`
	AgentPort int    `envconfig:"CALLSYNC_AGENT_PORT" default:"8787"`
	LogLevel  string `envconfig:"CALLSYNC_LOG_LEVEL" default:"info"`
	DataDir   string `envconfig:"CALLSYNC_DATA_DIR" default:"/var/lib/callsync"`
}

type dbConfig struct {
	// Path of the SQLite queue database. Empty means <data-dir>/queue.db.
	Path string `envconfig:"CALLSYNC_DB_PATH" default:""`
}

type syncConfig struct {
	UpdateInterval      time.Duration `envconfig:"CALLSYNC_SYNC_INTERVAL" default:"15m"`
	HealthCheckInterval time.Duration `envconfig:"CALLSYNC_HEALTH_CHECK_INTERVAL" default:"30s"`
	CompletedRetention  time.Duration `envconfig:"CALLSYNC_COMPLETED_RETENTION" default:"168h"`
}

type matchConfig struct {
	// CountryCode and TrunkPrefix drive phone-number normalization for
	// filename matching. Defaults match the deployment region.
	CountryCode string `envconfig:"CALLSYNC_COUNTRY_CODE" default:"60"`
	TrunkPrefix string `envconfig:"CALLSYNC_TRUNK_PREFIX" default:"0"`
	// StorageRoot is the base under which the known recording directories
	// of the various OEM dialers live.
	StorageRoot string `envconfig:"CALLSYNC_STORAGE_ROOT" default:"/storage/emulated/0"`
}

func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewDefault is like New but panics on processing errors. Handy for tests,
// which override the fields they care about afterwards.
func NewDefault() *Config {
	cfg, err := New()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Service.DataDir, "queue.db")
}

// CacheDir is where the compression stage writes its output files.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Service.DataDir, "compressed")
}

func (c *Config) Validate() error {
	if c.Service.BaseUrl == "" {
		return fmt.Errorf("service url is required")
	}
	if c.Service.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	if _, err := os.Stat(c.Service.DataDir); err != nil {
		return fmt.Errorf("data-dir: %w", err)
	}
	return nil
}
