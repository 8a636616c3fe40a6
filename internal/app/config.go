package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Storage drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr     string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage  StorageConfig
	Orders   OrdersConfig
	CORS     CORSConfig
	Graceful GracefulConfig
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string `default:"file" usage:"Storage driver: file or postgres"`
	Dir         string `default:"data" usage:"Directory of the JSON collection files (file driver)"`
	DatabaseURL string `usage:"PostgreSQL connection URL (postgres driver, or DATABASE_URL)" flag:"database-url"`
}

type OrdersConfig struct {
	FreeformStatus bool `default:"false" usage:"Allow any order status change (admin override)" flag:"freeform-status"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string      `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool          `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
	MaxAge           time.Duration `default:"24h" usage:"Preflight cache duration" flag:"cors-max-age"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

func loaderConfig(files ...string) aconfig.Config {
	return aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	}
}

// LoadConfig loads configuration from environment variables, flags, YAML
// config files and platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(loaderConfig("config.yaml", "/etc/storefront/config.yaml"))
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.Storage.Resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve applies the DATABASE_URL platform default and checks that the
// selected driver has what it needs.
func (c *StorageConfig) Resolve() error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	switch c.Driver {
	case DriverFile:
		if c.Dir == "" {
			return errors.New("storage dir is required for the file driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set STOREFRONT_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Driver)
	}
	return nil
}

// applyPlatformDefaults maps PORT, as set by hosting platforms, onto Addr.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
