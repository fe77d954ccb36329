package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Log       LogConfig
	Store     StoreConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Jobs      JobsConfig
	Directory DirectoryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"0s"` // zero keeps event streams open
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  string        `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"cardfolio-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level    string `envconfig:"LOG_LEVEL" default:"info"`
	Encoding string `envconfig:"LOG_ENCODING" default:"json"`
}

// StoreConfig selects and configures the remote document store.
type StoreConfig struct {
	Type         string        `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite, mysql, postgres, mongodb or memory
	Path         string        `envconfig:"STORE_PATH" default:"./data/cardfolio.db"`
	FetchTimeout time.Duration `envconfig:"STORE_FETCH_TIMEOUT" default:"10s"`

	// MySQL and PostgreSQL settings
	Host     string `envconfig:"STORE_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_PORT" default:"0"`
	Name     string `envconfig:"STORE_NAME" default:"cardfolio"`
	User     string `envconfig:"STORE_USER" default:"cardfolio"`
	Password string `envconfig:"STORE_PASS" default:""`
	SSLMode  string `envconfig:"STORE_SSLMODE" default:"disable"`

	// MongoDB settings
	MongoURI      string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"cardfolio"`

	// Circuit breaker settings
	BreakerEnabled bool          `envconfig:"STORE_BREAKER_ENABLED" default:"true"`
	BreakerTimeout time.Duration `envconfig:"STORE_BREAKER_TIMEOUT" default:"60s"`
}

// RedisConfig holds the session token store settings.
type RedisConfig struct {
	Host       string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port       int           `envconfig:"REDIS_PORT" default:"6379"`
	Password   string        `envconfig:"REDIS_PASSWORD" default:""`
	DB         int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`
}

// AuthConfig holds identity provider token settings.
type AuthConfig struct {
	IDTokenSecret string `envconfig:"ID_TOKEN_SECRET" default:""`
	Issuer        string `envconfig:"ID_TOKEN_ISSUER" default:""`
	Audience      string `envconfig:"ID_TOKEN_AUDIENCE" default:""`
}

// JobsConfig holds background job settings.
type JobsConfig struct {
	SnapshotSpec    string        `envconfig:"SNAPSHOT_SPEC" default:"5 0 * * *"`
	SnapshotTimeout time.Duration `envconfig:"SNAPSHOT_TIMEOUT" default:"1m"`
}

// DirectoryConfig sizes the other-user lookup cache.
type DirectoryConfig struct {
	Size int           `envconfig:"DIRECTORY_CACHE_SIZE" default:"256"`
	TTL  time.Duration `envconfig:"DIRECTORY_CACHE_TTL" default:"1m"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Origins splits the comma separated CORS origin list.
func (s *ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// RedisAddress returns the Redis address in host:port format.
func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, port, s.Name, s.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		s.User, s.Password, s.Host, port, s.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	switch cfg.Store.Type {
	case "sqlite", "mysql", "postgres", "postgresql", "mongodb", "mongo", "memory":
	default:
		return nil, fmt.Errorf("failed to load config: unknown STORE_TYPE %q", cfg.Store.Type)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
