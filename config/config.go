// Package config loads the server settings from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	DriverTables   = "tables"
	DriverPostgres = "postgres"
)

// Config holds every environment driven setting of the API server.
type Config struct {
	Port     string `env:"PORT,FUNCTIONS_CUSTOMHANDLER_PORT" env-default:"8080"`
	Debug    bool   `env:"DEBUG" env-default:"false"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	StorageDriver    string `env:"STORAGE_DRIVER" env-default:"tables"`
	StorageConnStr   string `env:"STORAGE_CONNECTION_STRING"`
	TasksTable       string `env:"TASKS_TABLE" env-default:"Tasks"`
	EventsQueue      string `env:"EVENTS_QUEUE" env-default:"task-events"`
	ContactQueue     string `env:"CONTACT_QUEUE" env-default:"contact-messages"`
	DatabaseURL      string `env:"DATABASE_URL"`
	IntegrationsFile string `env:"INTEGRATIONS_FILE"`

	RedisConnStr string        `env:"REDIS_CONNECTION_STRING"`
	CacheTTL     time.Duration `env:"CACHE_TTL" env-default:"30s"`
	DeduperTTL   time.Duration `env:"DEDUPER_TTL" env-default:"24h"`

	Auth0Audience   string        `env:"AUTH0_AUDIENCE"`
	Auth0Domain     string        `env:"AUTH0_DOMAIN"`
	Auth0TestMode   bool          `env:"AUTH0_TEST_MODE" env-default:"false"`
	TestJWTSecret   string        `env:"TEST_JWT_SECRET"`
	LocalAuthMode   string        `env:"LOCAL_AUTH_MODE"`
	LocalAuthSecret string        `env:"LOCAL_AUTH_SHARED_SECRET"`
	JWKSCacheTTL    time.Duration `env:"JWKS_CACHE_TTL" env-default:"15m"`

	PublisherWorkers   int           `env:"PUBLISHER_WORKERS" env-default:"4"`
	PublisherQueueSize int           `env:"PUBLISHER_QUEUE_SIZE" env-default:"64"`
	PublisherHandoff   time.Duration `env:"PUBLISHER_HANDOFF_TIMEOUT" env-default:"5ms"`
}

// Load reads an optional .env file and then the process environment.
func Load(dotenv string) (Config, error) {
	cfg, err := read(dotenv)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadStorage is Load for tools that only touch storage.
func LoadStorage(dotenv string) (Config, error) {
	cfg, err := read(dotenv)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validateStorage(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func read(dotenv string) (Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

func (c Config) validateStorage() error {
	switch c.StorageDriver {
	case DriverTables:
		if c.StorageConnStr == "" || c.TasksTable == "" {
			return errors.New("missing storage config")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("missing DATABASE_URL")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	return nil
}

// Validate checks combinations the struct tags cannot express.
func (c Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.CacheTTL < 0 {
		return errors.New("invalid CACHE_TTL")
	}
	if c.DeduperTTL <= 0 {
		return errors.New("invalid DEDUPER_TTL")
	}
	if c.JWKSCacheTTL <= 0 {
		return errors.New("invalid JWKS_CACHE_TTL")
	}
	if c.PublisherWorkers <= 0 || c.PublisherQueueSize < 0 {
		return errors.New("invalid publisher pool size")
	}
	if mode := strings.ToLower(c.LocalAuthMode); mode != "" {
		if mode != "hs256" {
			return errors.New("unsupported LOCAL_AUTH_MODE value")
		}
		if c.LocalAuthSecret == "" {
			return errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
	} else if c.Auth0TestMode {
		if c.TestJWTSecret == "" {
			return errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
	} else if c.Auth0Audience == "" || c.Auth0Domain == "" {
		return errors.New("missing Auth0 config")
	}
	return nil
}

// SharedSecret returns the HS256 secret when a local auth mode is active.
func (c Config) SharedSecret() []byte {
	if c.LocalAuthMode != "" {
		return []byte(c.LocalAuthSecret)
	}
	if c.Auth0TestMode {
		return []byte(c.TestJWTSecret)
	}
	return nil
}

// Level resolves the logrus level; DEBUG=true wins over LOG_LEVEL.
func (c Config) Level() log.Level {
	if c.Debug {
		return log.DebugLevel
	}
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// ListenAddr is the echo listen address.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}

// RedisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string. It returns nil when
// redis is not configured.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.RedisConnStr == "" {
		return nil, nil
	}
	return ParseRedis(c.RedisConnStr)
}

// ParseRedis parses a redis connection string.
func ParseRedis(conn string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.TrimSpace(parts[0]) == "" {
		return nil, errors.New("invalid redis connection string")
	}
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
