package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the credtrack server.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Shutdown     ShutdownConfig     `yaml:"shutdown"`
	Reports      ReportsConfig      `yaml:"reports"`
	Poll         PollConfig         `yaml:"poll"`
	Cache        CacheConfig        `yaml:"cache"`
	Database     DatabaseConfig     `yaml:"database"`
	Storage      StorageConfig      `yaml:"storage"`
	Certificates CertificatesConfig `yaml:"certificates"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ReportsConfig points at the report job API.
type ReportsConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// PollConfig is the status polling policy.
type PollConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxJitter    time.Duration `yaml:"max_jitter"`
	MaxRetries   int           `yaml:"max_retries"`
}

// CacheConfig selects the report cache store.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory, file or redis
	Path          string        `yaml:"path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

type CertificatesConfig struct {
	WorkDir       string        `yaml:"work_dir"`
	TemplatePath  string        `yaml:"template_path"`
	ChromePath    string        `yaml:"chrome_path"`
	RenderTimeout time.Duration `yaml:"render_timeout"`

	// AssetBaseURL resolves agency logo asset ids, e.g. https://cms.example.com/assets.
	AssetBaseURL string `yaml:"asset_base_url"`
}

// RateLimitConfig limits requests per client IP.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns a configuration with every optional value filled in.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: 8080},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Shutdown: ShutdownConfig{Timeout: 30 * time.Second},
		Reports:  ReportsConfig{Timeout: 30 * time.Second},
		Poll: PollConfig{
			InitialDelay: 3 * time.Second,
			MaxDelay:     30 * time.Second,
			MaxJitter:    time.Second,
			MaxRetries:   5,
		},
		Cache: CacheConfig{Backend: "memory", TTL: 24 * time.Hour},
		Database: DatabaseConfig{
			MaxConnections:  10,
			MinConnections:  1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
		},
		Storage:      StorageConfig{Region: "us-east-1"},
		Certificates: CertificatesConfig{RenderTimeout: 120 * time.Second},
		RateLimit:    RateLimitConfig{RPS: 5, Burst: 10},
	}
}

// Load reads configuration from a YAML file on top of Default.
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return Parse(data)
}

// Parse parses YAML configuration on top of Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("invalid server.port: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.Newf("invalid logging.format: %s", c.Logging.Format)
	}

	if c.Shutdown.Timeout <= 0 {
		return errors.New("shutdown.timeout must be positive")
	}

	if c.Poll.InitialDelay <= 0 || c.Poll.MaxDelay < c.Poll.InitialDelay {
		return errors.New("poll delays must be positive with max_delay >= initial_delay")
	}
	if c.Poll.MaxRetries <= 0 {
		return errors.Newf("invalid poll.max_retries: %d", c.Poll.MaxRetries)
	}
	if c.Poll.MaxJitter < 0 {
		return errors.New("poll.max_jitter must not be negative")
	}

	switch c.Cache.Backend {
	case "memory":
	case "file":
		if c.Cache.Path == "" {
			return errors.New("cache.path is required for the file backend")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required for the redis backend")
		}
	default:
		return errors.Newf("invalid cache.backend: %s", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}

	if c.Certificates.RenderTimeout <= 0 {
		return errors.New("certificates.render_timeout must be positive")
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("ratelimit values must not be negative")
	}

	return nil
}
