package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/light-rec/lr-ibcf/internal/topk"
)

const (
	ConfigDirName  = ".lr-ibcf"
	ConfigFileName = "config.yaml"

	// EnvPrefix marks environment overrides, e.g. LRIBCF_TOPK_CAPACITY -> topk.capacity
	EnvPrefix = "LRIBCF_"

	DefaultHost = "127.0.0.1"
	DefaultPort = 8420
)

// ZeroMagnitudePolicy decides what happens to a candidate whose similarity is
// undefined because its vector has no length
type ZeroMagnitudePolicy string

const (
	ZeroMagnitudeSkip ZeroMagnitudePolicy = "skip" // drop the candidate
	ZeroMagnitudeZero ZeroMagnitudePolicy = "zero" // rank it with score 0
)

// StoreDriver selects the vector store backend
type StoreDriver string

const (
	StoreSQLite StoreDriver = "sqlite"
	StoreMemory StoreDriver = "memory"
)

// Config represents the application configuration
type Config struct {
	Debug   bool          `koanf:"debug" yaml:"debug"`
	TopK    TopKConfig    `koanf:"topk" yaml:"topk"`
	Catalog CatalogConfig `koanf:"catalog" yaml:"catalog"`
	Store   StoreConfig   `koanf:"store" yaml:"store"`
	Server  ServerConfig  `koanf:"server" yaml:"server"`
}

// TopKConfig holds ranking settings
type TopKConfig struct {
	Capacity      int                 `koanf:"capacity" yaml:"capacity"`
	ZeroMagnitude ZeroMagnitudePolicy `koanf:"zero_magnitude" yaml:"zero_magnitude"`
}

// CatalogConfig points at the item definition files
type CatalogConfig struct {
	Dir string `koanf:"dir" yaml:"dir"`
}

// StoreConfig selects where item vectors are kept
type StoreConfig struct {
	Driver StoreDriver `koanf:"driver" yaml:"driver"`
	Path   string      `koanf:"path" yaml:"path"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `koanf:"host" yaml:"host"`
	Port int    `koanf:"port" yaml:"port"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ConfigDirName), nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// Default returns the configuration used when no file exists
func Default() (*Config, error) {
	cfg := &Config{}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration at path (the default path when empty), then
// applies LRIBCF_* environment overrides and defaults. A missing file is not
// an error.
//
// Precedence, highest first: environment, file, defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	k := koanf.New(".")

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// envKey maps LRIBCF_SECTION_FIELD_NAME to section.field_name
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func applyDefaults(cfg *Config) error {
	if cfg.TopK.Capacity == 0 {
		cfg.TopK.Capacity = topk.DefaultCapacity
	}
	if cfg.TopK.ZeroMagnitude == "" {
		cfg.TopK.ZeroMagnitude = ZeroMagnitudeSkip
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreSQLite
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if cfg.Catalog.Dir == "" {
		cfg.Catalog.Dir = filepath.Join(configDir, "items")
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(configDir, "items.db")
	}
	cfg.Catalog.Dir = expandHome(cfg.Catalog.Dir)
	cfg.Store.Path = expandHome(cfg.Store.Path)

	return nil
}

// Validate reports the first setting that cannot be used
func (c *Config) Validate() error {
	if c.TopK.Capacity < 1 {
		return fmt.Errorf("topk.capacity must be positive, got %d", c.TopK.Capacity)
	}
	switch c.TopK.ZeroMagnitude {
	case ZeroMagnitudeSkip, ZeroMagnitudeZero:
	default:
		return fmt.Errorf("unknown topk.zero_magnitude policy: %q", c.TopK.ZeroMagnitude)
	}
	switch c.Store.Driver {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown store.driver: %q", c.Store.Driver)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Save writes the configuration to path (the default path when empty)
func Save(path string, cfg *Config) error {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if a configuration file exists
func Exists(path string) (bool, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return false, err
		}
		path = p
	}

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// expandHome resolves a leading "~/" against the home directory
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
