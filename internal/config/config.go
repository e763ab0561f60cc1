package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/vpnclient/internal/env"
	"github.com/loykin/vpnclient/internal/logger"
	"github.com/loykin/vpnclient/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. VPN_CLIENT_STORE_PATH.
const EnvPrefix = "VPN_CLIENT"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config represents the top-level TOML structure.
type Config struct {
	Store      store.Config     `toml:"store" mapstructure:"store"`
	Simulation SimulationConfig `toml:"simulation" mapstructure:"simulation"`
	Log        logger.Config    `toml:"log" mapstructure:"log"`
	Metrics    MetricsConfig    `toml:"metrics" mapstructure:"metrics"`
	History    HistoryConfig    `toml:"history" mapstructure:"history"`
	Server     ServerConfig     `toml:"server" mapstructure:"server"`
}

type SimulationConfig struct {
	FailureRate float64       `toml:"failure_rate" mapstructure:"failure_rate"`
	MinDuration time.Duration `toml:"min_duration" mapstructure:"min_duration"`
	MaxDuration time.Duration `toml:"max_duration" mapstructure:"max_duration"`
}

type MetricsConfig struct {
	// Textfile, when set, receives the metrics after every CLI command.
	Textfile string `toml:"textfile" mapstructure:"textfile"`
}

type HistoryConfig struct {
	// Sinks lists DSNs of mirrors that receive every appended event.
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

type ServerConfig struct {
	Listen   string     `toml:"listen" mapstructure:"listen"`
	BasePath string     `toml:"base_path" mapstructure:"base_path"`
	TLS      TLSConfig  `toml:"tls" mapstructure:"tls"`
	Auth     AuthConfig `toml:"auth" mapstructure:"auth"`
}

// AuthConfig protects the HTTP API. Users authenticate with Basic auth or a
// Bearer token issued by {base_path}/auth/login.
type AuthConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
	// JWTSecret signs issued tokens; a random secret is used when empty,
	// so tokens do not survive a restart.
	JWTSecret string        `toml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `toml:"token_ttl" mapstructure:"token_ttl"`
	Users     []UserConfig  `toml:"users" mapstructure:"users"`
}

// UserConfig is one [[server.auth.users]] entry.
type UserConfig struct {
	Username     string   `toml:"username" mapstructure:"username"`
	PasswordHash string   `toml:"password_hash" mapstructure:"password_hash"` // bcrypt
	Roles        []string `toml:"roles" mapstructure:"roles"`                 // admin, operator or viewer
}

// TLSConfig enables HTTPS for serve. Either CertFile/KeyFile or Dir must be set;
// with AutoGenerate a self-signed pair is written to Dir when missing.
type TLSConfig struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"` // "1.2" or "1.3" (default)
	Hosts        []string `toml:"hosts" mapstructure:"hosts"`             // DNS names and IPs of a generated cert
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

// DefaultEventsPath is $HOME/.vpn-client/events.json, or a relative path when
// the home directory is unknown.
func DefaultEventsPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".vpn-client", "events.json")
	}
	return filepath.Join(home, ".vpn-client", "events.json")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.type", "json")
	v.SetDefault("store.path", DefaultEventsPath())
	v.SetDefault("simulation.failure_rate", 0.1)
	v.SetDefault("simulation.min_duration", 100*time.Millisecond)
	v.SetDefault("simulation.max_duration", 500*time.Millisecond)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("history.sinks", []string{})
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "1.3")
	v.SetDefault("server.tls.hosts", []string{"localhost", "127.0.0.1"})
	v.SetDefault("server.tls.valid_days", 365)
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.token_ttl", 24*time.Hour)
}

// Default returns the configuration used when no file and no environment overrides exist.
func Default() Config {
	cfg, _ := load(viper.New(), "")
	return cfg
}

// Load reads path (TOML) when non-empty, applies VPN_CLIENT_* environment overrides
// on top and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	cfg, err := load(v, path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func load(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(filepath.Clean(path))
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.expand(env.New())
	return cfg, nil
}

// expand resolves ${VAR} references in paths, DSNs and the JWT secret.
func (c *Config) expand(e *env.Env) {
	e.ExpandAll(
		&c.Store.Path,
		&c.Log.File.Path,
		&c.Metrics.Textfile,
		&c.Server.TLS.CertFile,
		&c.Server.TLS.KeyFile,
		&c.Server.TLS.Dir,
		&c.Server.Auth.JWTSecret,
	)
	for i := range c.History.Sinks {
		c.History.Sinks[i] = e.Expand(c.History.Sinks[i])
	}
}

// Validate reports the first offending key.
func (c Config) Validate() error {
	if !slices.Contains(store.SupportedTypes(), c.Store.Type) {
		return fmt.Errorf("%w: store.type %q (supported: %v)", ErrInvalid, c.Store.Type, store.SupportedTypes())
	}
	if c.Store.Type == "json" && c.Store.Path == "" {
		return fmt.Errorf("%w: store.path must not be empty", ErrInvalid)
	}
	s := c.Simulation
	if s.FailureRate < 0 || s.FailureRate > 1 {
		return fmt.Errorf("%w: simulation.failure_rate %v not in [0,1]", ErrInvalid, s.FailureRate)
	}
	if s.MinDuration < 0 {
		return fmt.Errorf("%w: simulation.min_duration must not be negative", ErrInvalid)
	}
	if s.MaxDuration < s.MinDuration {
		return fmt.Errorf("%w: simulation.max_duration %s below min_duration %s", ErrInvalid, s.MaxDuration, s.MinDuration)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "" && f != "text" && f != "json" {
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	for i, dsn := range c.History.Sinks {
		if strings.TrimSpace(dsn) == "" {
			return fmt.Errorf("%w: history.sinks[%d] is empty", ErrInvalid, i)
		}
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("%w: server.listen must not be empty", ErrInvalid)
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("%w: server.base_path %q must start with /", ErrInvalid, c.Server.BasePath)
	}
	if t := c.Server.TLS; t.Enabled {
		if (t.CertFile == "" || t.KeyFile == "") && t.Dir == "" {
			return fmt.Errorf("%w: server.tls needs cert_file and key_file, or dir", ErrInvalid)
		}
		if t.MinVersion != "" && t.MinVersion != "1.2" && t.MinVersion != "1.3" {
			return fmt.Errorf("%w: server.tls.min_version %q", ErrInvalid, t.MinVersion)
		}
	}
	if a := c.Server.Auth; a.Enabled {
		if len(a.Users) == 0 {
			return fmt.Errorf("%w: server.auth.users must not be empty when auth is enabled", ErrInvalid)
		}
		if a.TokenTTL <= 0 {
			return fmt.Errorf("%w: server.auth.token_ttl must be positive", ErrInvalid)
		}
		for i, u := range a.Users {
			if u.Username == "" || u.PasswordHash == "" {
				return fmt.Errorf("%w: server.auth.users[%d] needs username and password_hash", ErrInvalid, i)
			}
		}
	}
	return nil
}
