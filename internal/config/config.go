// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Runtime environments understood by the service.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvStg   = "stg"
	EnvQA    = "qa"
	EnvProd  = "prod"
)

var knownEnvs = []string{EnvLocal, EnvDev, EnvStg, EnvQA, EnvProd}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Env     string        `mapstructure:"env"`
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// DBConfig describes the primary and replica databases. All hosts share
// credentials and schema.
type DBConfig struct {
	Host           string `mapstructure:"host"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"sslmode"`
	PoolSize       int    `mapstructure:"pool_size"`
	MaxOverflow    int    `mapstructure:"max_overflow"`
	RecycleSeconds int    `mapstructure:"recycle_seconds"`
	PrePing        bool   `mapstructure:"pre_ping"`

	// ReplicaHosts is parsed from db.host_replications, which may be a YAML
	// list or a bracketed string such as "['r1:5432', 'r2:5432']".
	ReplicaHosts []string `mapstructure:"-"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional file, a .env file in the working
// directory, and the process environment. Environment keys are the
// upper-cased config keys with dots replaced by underscores (DB_HOST,
// DB_POOL_SIZE, ENV, ...).
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	hosts, err := parseHostList(v.Get("db.host_replications"))
	if err != nil {
		return Config{}, err
	}
	cfg.DB.ReplicaHosts = hosts
	if !v.IsSet("logging.development") {
		cfg.Logging.Development = cfg.IsLocal()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDev)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("db.host", "")
	v.SetDefault("db.host_replications", "")
	v.SetDefault("db.name", "")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.pool_size", 0)
	v.SetDefault("db.max_overflow", 5)
	v.SetDefault("db.recycle_seconds", 3600)
	v.SetDefault("db.pre_ping", true)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:4200", "https://*.kakeai.dev"})
	// No default: an unset value follows the runtime environment.
	_ = v.BindEnv("logging.development")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if !slices.Contains(knownEnvs, c.Env) {
		return fmt.Errorf("env must be one of %s, got %q", strings.Join(knownEnvs, "|"), c.Env)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.Host == "" {
		return fmt.Errorf("db.host is required")
	}
	if c.DB.Name == "" {
		return fmt.Errorf("db.name is required")
	}
	if c.DB.User == "" {
		return fmt.Errorf("db.user is required")
	}
	if c.DB.PoolSize <= 0 {
		return fmt.Errorf("db.pool_size must be > 0")
	}
	if c.DB.MaxOverflow < 0 {
		return fmt.Errorf("db.max_overflow must be >= 0")
	}
	return nil
}

// IsLocal reports whether the service runs on a developer machine.
func (c Config) IsLocal() bool {
	return c.Env == EnvLocal
}

// RequestTimeout is the per-request deadline applied by the router.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// DSN returns a postgres connection URL for host. The password is omitted
// when empty so that passwordless local roles keep working.
func (c DBConfig) DSN(host string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + c.Name,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Recycle is the maximum lifetime of a pooled connection.
func (c DBConfig) Recycle() time.Duration {
	return time.Duration(c.RecycleSeconds) * time.Second
}

func parseHostList(raw any) ([]string, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return cleanHosts(val), nil
	case []any:
		hosts := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("db.host_replications: unexpected entry %v", item)
			}
			hosts = append(hosts, s)
		}
		return cleanHosts(hosts), nil
	case string:
		trimmed := strings.TrimSpace(val)
		trimmed = strings.TrimPrefix(trimmed, "[")
		trimmed = strings.TrimSuffix(trimmed, "]")
		return cleanHosts(strings.Split(trimmed, ",")), nil
	default:
		return nil, fmt.Errorf("db.host_replications: unsupported type %T", raw)
	}
}

func cleanHosts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		h = strings.Trim(strings.TrimSpace(h), `'"`)
		if h != "" {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
