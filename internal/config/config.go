// Package config loads the TMS TOML configuration file (plus environment
// overrides) into a Config struct, following the viper-based loader shape
// used elsewhere in this lineage for structured application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// NewClientsPolicy governs whether POST-ing a new client registration is
// accepted, rejected, or requires an administrator-issued approval secret.
type NewClientsPolicy string

const (
	NewClientsAllow      NewClientsPolicy = "allow"
	NewClientsDisallow   NewClientsPolicy = "disallow"
	NewClientsOnApproval NewClientsPolicy = "on_approval"
)

// Config holds the recognized tms.toml options plus the process-level
// settings (root directory, DSN) derived from the environment and CLI
// flags. It is constructed once in cmd/tms and passed explicitly to every
// component that needs it; nothing here is read from a package-level
// global.
type Config struct {
	Title     string `mapstructure:"title"`
	HTTPAddr  string `mapstructure:"http_addr"`
	HTTPPort  int    `mapstructure:"http_port"`

	EnableMVP        bool             `mapstructure:"enable_mvp"`
	NewClients       NewClientsPolicy `mapstructure:"new_clients"`
	EnableTestTenant bool             `mapstructure:"enable_test_tenant"`

	ServerURLs []string `mapstructure:"server_urls"`

	// RootDir, DBDriver, and DBDSN are not TOML fields; they are resolved
	// from TMS_ROOT_DIR / --root-dir and the filesystem layout in cmd/tms
	// before Load is called, then folded in here for convenience.
	RootDir  string `mapstructure:"-"`
	DBDriver string `mapstructure:"-"`
	DBDSN    string `mapstructure:"-"`
}

// ListenAddr returns the host:port pair http.Server should bind, derived
// from HTTPAddr's scheme-qualified host and HTTPPort.
func (c Config) ListenAddr() string {
	host := c.HTTPAddr
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.TrimSuffix(host, "/")
	return fmt.Sprintf("%s:%d", host, c.HTTPPort)
}

// EffectiveNewClients implements §4.7's "enable_mvp implies
// new_clients = disallow" rule.
func (c Config) EffectiveNewClients() NewClientsPolicy {
	if c.EnableMVP {
		return NewClientsDisallow
	}
	return c.NewClients
}

// Load reads tms.toml from configDir (falling back to built-in defaults for
// any field the file omits) and applies TMS_-prefixed environment
// overrides, mirroring the teacher pack's viper-based loader shape but
// targeting a TOML document and the TMS-specific field set instead of YAML.
func Load(configDir, rootDir, dbDriver, dbDSN string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tms")
	v.SetConfigType("toml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: read tms.toml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.RootDir = rootDir
	cfg.DBDriver = dbDriver
	cfg.DBDSN = dbDSN

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("title", "Trust Manager System")
	v.SetDefault("http_addr", "http://0.0.0.0")
	v.SetDefault("http_port", 8443)
	v.SetDefault("enable_mvp", false)
	v.SetDefault("new_clients", string(NewClientsAllow))
	v.SetDefault("enable_test_tenant", false)
	v.SetDefault("server_urls", []string{})
}

func (c Config) validate() error {
	switch c.NewClients {
	case NewClientsAllow, NewClientsDisallow, NewClientsOnApproval:
	default:
		return fmt.Errorf("config: new_clients must be one of allow|disallow|on_approval, got %q", c.NewClients)
	}
	scheme := c.HTTPAddr
	if !strings.HasPrefix(scheme, "http://") && !strings.HasPrefix(scheme, "https://") {
		return fmt.Errorf("config: http_addr must be scheme-qualified (http:// or https://), got %q", c.HTTPAddr)
	}
	return nil
}

// RootDirFromEnv resolves the root data directory: the TMS_ROOT_DIR
// environment variable wins over the --root-dir flag value when both are
// set (per §6); falling back to ~/.tms when neither is given.
func RootDirFromEnv(flagValue string) string {
	if v := os.Getenv("TMS_ROOT_DIR"); v != "" {
		return v
	}
	if flagValue != "" {
		return flagValue
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tms"
	}
	return filepath.Join(home, ".tms")
}
