// Package config loads service settings from an optional YAML file and the
// environment. Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	Environment    string        `yaml:"environment"`
	FrontendOrigin string        `yaml:"frontend_origin"`
	BackendOrigin  string        `yaml:"backend_origin"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	SQLitePath      string        `yaml:"sqlite_path"`
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	LogLevel        string        `yaml:"log_level"`
}

type RedisConfig struct {
	Host          string        `yaml:"host"`
	Port          string        `yaml:"port"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	PoolSize      int           `yaml:"pool_size"`
	MinIdleConns  int           `yaml:"min_idle_conns"`
	MaxRetries    int           `yaml:"max_retries"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	SessionPrefix string        `yaml:"session_prefix"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

type AuthConfig struct {
	KeycloakURL   string `yaml:"keycloak_url"`
	Realm         string `yaml:"realm"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	CallbackURL   string `yaml:"callback_url"`
	CookieName    string `yaml:"cookie_name"`
	CookieDomain  string `yaml:"cookie_domain"`
	CookieSecure  bool   `yaml:"cookie_secure"`
	SessionSecret string `yaml:"session_secret"`
}

type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RequestsPerMin  int           `yaml:"requests_per_minute"`
	BurstSize       int           `yaml:"burst_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	TaskTTL      time.Duration `yaml:"task_ttl"`
	L1TTL        time.Duration `yaml:"l1_ttl"`
	L1MaxEntries int           `yaml:"l1_max_entries"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

const defaultSessionSecret = "change-me"

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           "8000",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			Environment:    "development",
			FrontendOrigin: "http://localhost:5173",
			BackendOrigin:  "http://localhost:8000",
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			SQLitePath:      "eigentask.db",
			Host:            "localhost",
			Port:            "5432",
			User:            "postgres",
			Name:            "eigentask",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 30 * time.Minute,
			LogLevel:        "warn",
		},
		Redis: RedisConfig{
			Host:          "localhost",
			Port:          "6379",
			PoolSize:      10,
			MinIdleConns:  5,
			MaxRetries:    3,
			DialTimeout:   5 * time.Second,
			ReadTimeout:   3 * time.Second,
			WriteTimeout:  3 * time.Second,
			SessionPrefix: "eigentask:sess:",
			SessionTTL:    7 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			KeycloakURL:   "http://localhost:8080",
			Realm:         "eigentask",
			ClientID:      "eigentask-backend",
			CookieName:    "eigentask_sid",
			SessionSecret: defaultSessionSecret,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			RequestsPerMin:  300,
			BurstSize:       30,
			CleanupInterval: 10 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled:      true,
			TaskTTL:      5 * time.Minute,
			L1TTL:        time.Minute,
			L1MaxEntries: 10000,
			KeyPrefix:    "eigentask:cache:",
		},
	}
}

// LoadConfig reads settings from the environment only.
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile reads the YAML file at path, when path is not empty, and
// then applies environment overrides on top of it.
func LoadConfigFile(path string) (*Config, error) {
	config := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("HOST", s.Host)
	s.Port = getEnv("PORT", s.Port)
	s.ReadTimeout = getEnvAsDuration("READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvAsDuration("WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvAsDuration("IDLE_TIMEOUT", s.IdleTimeout)
	s.Environment = getEnv("ENVIRONMENT", s.Environment)
	s.FrontendOrigin = strings.TrimRight(getEnv("FRONTEND_ORIGIN", s.FrontendOrigin), "/")
	s.BackendOrigin = strings.TrimRight(getEnv("BACKEND_ORIGIN", s.BackendOrigin), "/")

	d := &c.Database
	d.Driver = getEnv("DB_DRIVER", d.Driver)
	d.SQLitePath = getEnv("DB_SQLITE_PATH", d.SQLitePath)
	d.Host = getEnv("DB_HOST", d.Host)
	d.Port = getEnv("DB_PORT", d.Port)
	d.User = getEnv("DB_USER", d.User)
	d.Password = getEnv("DB_PASSWORD", d.Password)
	d.Name = getEnv("DB_NAME", d.Name)
	d.SSLMode = getEnv("DB_SSL_MODE", d.SSLMode)
	d.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetime = getEnvAsDuration("DB_CONN_MAX_LIFETIME", d.ConnMaxLifetime)
	d.ConnMaxIdleTime = getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", d.ConnMaxIdleTime)
	d.LogLevel = getEnv("DB_LOG_LEVEL", d.LogLevel)

	r := &c.Redis
	r.Host = getEnv("REDIS_HOST", r.Host)
	r.Port = getEnv("REDIS_PORT", r.Port)
	r.Password = getEnv("REDIS_PASSWORD", r.Password)
	r.DB = getEnvAsInt("REDIS_DB", r.DB)
	r.PoolSize = getEnvAsInt("REDIS_POOL_SIZE", r.PoolSize)
	r.MinIdleConns = getEnvAsInt("REDIS_MIN_IDLE_CONNS", r.MinIdleConns)
	r.MaxRetries = getEnvAsInt("REDIS_MAX_RETRIES", r.MaxRetries)
	r.DialTimeout = getEnvAsDuration("REDIS_DIAL_TIMEOUT", r.DialTimeout)
	r.ReadTimeout = getEnvAsDuration("REDIS_READ_TIMEOUT", r.ReadTimeout)
	r.WriteTimeout = getEnvAsDuration("REDIS_WRITE_TIMEOUT", r.WriteTimeout)
	r.SessionPrefix = getEnv("REDIS_SESSION_PREFIX", r.SessionPrefix)
	r.SessionTTL = getEnvAsDuration("REDIS_SESSION_TTL", r.SessionTTL)

	a := &c.Auth
	a.KeycloakURL = strings.TrimRight(getEnv("KEYCLOAK_URL", a.KeycloakURL), "/")
	a.Realm = getEnv("KEYCLOAK_REALM", a.Realm)
	a.ClientID = getEnv("KEYCLOAK_CLIENT_ID", a.ClientID)
	a.ClientSecret = getEnv("KEYCLOAK_CLIENT_SECRET", a.ClientSecret)
	a.CallbackURL = getEnv("AUTH_CALLBACK_URL", a.CallbackURL)
	a.CookieName = getEnv("SESSION_COOKIE_NAME", a.CookieName)
	a.CookieDomain = getEnv("SESSION_COOKIE_DOMAIN", a.CookieDomain)
	a.CookieSecure = getEnvAsBool("SESSION_COOKIE_SECURE", a.CookieSecure)
	a.SessionSecret = getEnv("SESSION_SECRET", a.SessionSecret)
	if a.CallbackURL == "" {
		a.CallbackURL = c.Server.BackendOrigin + "/auth/callback"
	}

	l := &c.RateLimit
	l.Enabled = getEnvAsBool("RATE_LIMIT_ENABLED", l.Enabled)
	l.RequestsPerMin = getEnvAsInt("RATE_LIMIT_RPM", l.RequestsPerMin)
	l.BurstSize = getEnvAsInt("RATE_LIMIT_BURST", l.BurstSize)
	l.CleanupInterval = getEnvAsDuration("RATE_LIMIT_CLEANUP", l.CleanupInterval)

	k := &c.Cache
	k.Enabled = getEnvAsBool("CACHE_ENABLED", k.Enabled)
	k.TaskTTL = getEnvAsDuration("CACHE_TASK_TTL", k.TaskTTL)
	k.L1TTL = getEnvAsDuration("CACHE_L1_TTL", k.L1TTL)
	k.L1MaxEntries = getEnvAsInt("CACHE_L1_MAX_ENTRIES", k.L1MaxEntries)
	k.KeyPrefix = getEnv("CACHE_KEY_PREFIX", k.KeyPrefix)
}

// Validate checks values that have no usable default. Production adds the
// checks that keep development shortcuts out of a deployed service.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if _, err := url.ParseRequestURI(c.Server.FrontendOrigin); err != nil {
		return fmt.Errorf("invalid frontend origin %q: %w", c.Server.FrontendOrigin, err)
	}

	if !c.IsProduction() {
		return nil
	}

	var errs []error
	if c.Database.Driver == "postgres" && c.Database.Password == "" {
		errs = append(errs, errors.New("database password is required in production"))
	}
	if c.Auth.SessionSecret == defaultSessionSecret {
		errs = append(errs, errors.New("session secret must be set in production"))
	}
	if c.Auth.ClientSecret == "" {
		errs = append(errs, errors.New("keycloak client secret is required in production"))
	}
	if !c.Auth.CookieSecure {
		errs = append(errs, errors.New("session cookie must be secure in production"))
	}
	return errors.Join(errs...)
}

func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// IssuerURL is the OIDC issuer of the configured Keycloak realm.
func (c *Config) IssuerURL() string {
	return fmt.Sprintf("%s/realms/%s", c.Auth.KeycloakURL, c.Auth.Realm)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
