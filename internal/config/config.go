package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
)

func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvProduction, EnvTesting:
		return true
	}
	return false
}

type Config struct {
	Server    Server
	Database  Database
	Security  Security
	Cache     Cache
	Log       Log
	Perimeter Perimeter
}

type Server struct {
	Port            int
	Environment     Environment
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	SessionTTL      time.Duration
	// SessionSweepInterval is how often expired sessions are deleted while
	// serving. Zero disables the sweep.
	SessionSweepInterval time.Duration
	// TrustProxy takes the client IP from X-Forwarded-For and X-Real-IP.
	TrustProxy bool
}

func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

type Database struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Security struct {
	APIKey string
	// APIKeyHash is a bcrypt hash of the admin API key. It takes
	// precedence over APIKey.
	APIKeyHash            string
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	ContentSecurityPolicy string
	ReferrerPolicy        string
	PermissionsPolicy     string
}

type Cache struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	Prefix        string
	SessionTTL    time.Duration
}

type Log struct {
	Level slog.Level
}

// Perimeter holds the settings of the access gate itself.
type Perimeter struct {
	Enabled           bool
	SessionKey        string
	HeaderName        string
	QueryParam        string
	GatewayPath       string
	BypassPrefixes    []string
	DefaultExpiryDays int
	TokenLength       int
	RequireIdentity   bool
	Location          *time.Location
	// Upstream is the URL of the protected site. Empty serves the built-in
	// landing page instead.
	Upstream string
}

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"

	maxTokenLength = 50
)

// Load loads configuration from the environment.
func Load() (Config, error) {
	var config Config
	var err error

	// Server configuration
	config.Server.Port, err = getEnvIntSafe("SERVER_PORT", 8080, false)
	if err != nil {
		return config, fmt.Errorf("server port config error: %w", err)
	}

	config.Server.Environment, err = getEnvEnvironmentSafe("SERVER_ENVIRONMENT", EnvDevelopment, false)
	if err != nil {
		return config, fmt.Errorf("server environment config error: %w", err)
	}

	config.Server.WriteTimeout, err = getEnvDurationSafe("SERVER_WRITE_TIMEOUT", 15*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server write timeout config error: %w", err)
	}

	config.Server.ReadTimeout, err = getEnvDurationSafe("SERVER_READ_TIMEOUT", 15*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server read timeout config error: %w", err)
	}

	config.Server.IdleTimeout, err = getEnvDurationSafe("SERVER_IDLE_TIMEOUT", 60*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server idle timeout config error: %w", err)
	}

	config.Server.ShutdownTimeout, err = getEnvDurationSafe("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server shutdown timeout config error: %w", err)
	}

	config.Server.MaxHeaderBytes, err = getEnvIntSafe("SERVER_MAX_HEADER_BYTES", 1<<20, false)
	if err != nil {
		return config, fmt.Errorf("server max header bytes config error: %w", err)
	}

	config.Server.SessionTTL, err = getEnvDurationSafe("SESSION_TTL", 8*time.Hour, false)
	if err != nil {
		return config, fmt.Errorf("session TTL config error: %w", err)
	}

	config.Server.SessionSweepInterval, err = getEnvDurationSafe("SESSION_SWEEP_INTERVAL", time.Hour, false)
	if err != nil {
		return config, fmt.Errorf("session sweep interval config error: %w", err)
	}

	config.Server.TrustProxy, err = getEnvBoolSafe("SERVER_TRUST_PROXY", false, false)
	if err != nil {
		return config, fmt.Errorf("server trust proxy config error: %w", err)
	}

	// Database configuration
	config.Database.Driver, err = getEnvStringSafe("DB_DRIVER", DriverPostgres, false)
	if err != nil {
		return config, fmt.Errorf("database driver config error: %w", err)
	}
	if config.Database.Driver != DriverPostgres && config.Database.Driver != DriverSQLite {
		return config, fmt.Errorf("database driver config error: unsupported driver %q", config.Database.Driver)
	}

	config.Database.URL, err = getEnvStringSafe("DB_URL", "", true)
	if err != nil {
		return config, fmt.Errorf("database URL config error: %w", err)
	}

	config.Database.MaxOpenConns, err = getEnvIntSafe("DB_MAX_OPEN_CONNS", 25, false)
	if err != nil {
		return config, fmt.Errorf("database max open conns config error: %w", err)
	}

	config.Database.MaxIdleConns, err = getEnvIntSafe("DB_MAX_IDLE_CONNS", 5, false)
	if err != nil {
		return config, fmt.Errorf("database max idle conns config error: %w", err)
	}

	config.Database.ConnMaxLifetime, err = getEnvDurationSafe("DB_CONN_MAX_LIFETIME", 5*time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("database conn max lifetime config error: %w", err)
	}

	config.Database.ConnMaxIdleTime, err = getEnvDurationSafe("DB_CONN_MAX_IDLE_TIME", 5*time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("database conn max idle time config error: %w", err)
	}

	// Security configuration
	config.Security.APIKey, err = getEnvStringSafe("API_KEY", "", false)
	if err != nil {
		return config, fmt.Errorf("API key config error: %w", err)
	}

	config.Security.APIKeyHash, err = getEnvStringSafe("API_KEY_HASH", "", false)
	if err != nil {
		return config, fmt.Errorf("API key hash config error: %w", err)
	}
	if config.Security.APIKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(config.Security.APIKeyHash)); err != nil {
			return config, fmt.Errorf("API key hash config error: not a bcrypt hash: %w", err)
		}
	}

	config.Security.EnableHSTS, err = getEnvBoolSafe("SECURITY_ENABLE_HSTS", true, false)
	if err != nil {
		return config, fmt.Errorf("HSTS enable config error: %w", err)
	}

	config.Security.HSTSMaxAge, err = getEnvIntSafe("SECURITY_HSTS_MAX_AGE", 31536000, false)
	if err != nil {
		return config, fmt.Errorf("HSTS max age config error: %w", err)
	}

	config.Security.HSTSIncludeSubdomains, err = getEnvBoolSafe("SECURITY_HSTS_INCLUDE_SUBDOMAINS", true, false)
	if err != nil {
		return config, fmt.Errorf("HSTS include subdomains config error: %w", err)
	}

	config.Security.ContentSecurityPolicy, err = getEnvStringSafe("SECURITY_CSP", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; form-action 'self'; frame-ancestors 'none'", false)
	if err != nil {
		return config, fmt.Errorf("CSP config error: %w", err)
	}

	config.Security.ReferrerPolicy, err = getEnvStringSafe("SECURITY_REFERRER_POLICY", "strict-origin-when-cross-origin", false)
	if err != nil {
		return config, fmt.Errorf("referrer policy config error: %w", err)
	}

	config.Security.PermissionsPolicy, err = getEnvStringSafe("SECURITY_PERMISSIONS_POLICY", "geolocation=(), microphone=(), camera=(), payment=(), usb=()", false)
	if err != nil {
		return config, fmt.Errorf("permissions policy config error: %w", err)
	}

	// Cache configuration
	config.Cache.Enabled, err = getEnvBoolSafe("CACHE_ENABLED", true, false)
	if err != nil {
		return config, fmt.Errorf("cache enabled config error: %w", err)
	}

	config.Cache.RedisAddr, err = getEnvStringSafe("REDIS_ADDR", "localhost:6379", false)
	if err != nil {
		return config, fmt.Errorf("Redis address config error: %w", err)
	}

	config.Cache.RedisPassword, err = getEnvStringSafe("REDIS_PASSWORD", "", false)
	if err != nil {
		return config, fmt.Errorf("Redis password config error: %w", err)
	}

	config.Cache.RedisDB, err = getEnvIntSafe("REDIS_DB", 0, false)
	if err != nil {
		return config, fmt.Errorf("Redis DB config error: %w", err)
	}

	config.Cache.RedisPoolSize, err = getEnvIntSafe("REDIS_POOL_SIZE", 10, false)
	if err != nil {
		return config, fmt.Errorf("Redis pool size config error: %w", err)
	}

	config.Cache.Prefix, err = getEnvStringSafe("CACHE_PREFIX", "perimeter:", false)
	if err != nil {
		return config, fmt.Errorf("cache prefix config error: %w", err)
	}

	config.Cache.SessionTTL, err = getEnvDurationSafe("CACHE_SESSION_TTL", 30*time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("cache session TTL config error: %w", err)
	}

	// Log configuration
	config.Log.Level, err = getEnvLevelSafe("LOG_LEVEL", slog.LevelInfo, false)
	if err != nil {
		return config, fmt.Errorf("log level config error: %w", err)
	}

	// Perimeter configuration
	config.Perimeter.Enabled, err = getEnvBoolSafe("PERIMETER_ENABLED", true, false)
	if err != nil {
		return config, fmt.Errorf("perimeter enabled config error: %w", err)
	}

	config.Perimeter.SessionKey, err = getEnvStringSafe("PERIMETER_SESSION_KEY", "perimeter", false)
	if err != nil {
		return config, fmt.Errorf("perimeter session key config error: %w", err)
	}

	config.Perimeter.HeaderName, err = getEnvStringSafe("PERIMETER_HEADER", "X-Perimeter-Token", false)
	if err != nil {
		return config, fmt.Errorf("perimeter header config error: %w", err)
	}

	config.Perimeter.QueryParam, err = getEnvStringSafe("PERIMETER_QUERY_PARAM", "", false)
	if err != nil {
		return config, fmt.Errorf("perimeter query param config error: %w", err)
	}

	config.Perimeter.GatewayPath, err = getEnvStringSafe("PERIMETER_GATEWAY_PATH", "/gateway", false)
	if err != nil {
		return config, fmt.Errorf("perimeter gateway path config error: %w", err)
	}
	if !strings.HasPrefix(config.Perimeter.GatewayPath, "/") {
		return config, fmt.Errorf("perimeter gateway path config error: %q must start with /", config.Perimeter.GatewayPath)
	}

	config.Perimeter.BypassPrefixes, err = getEnvListSafe("PERIMETER_BYPASS_PREFIXES", []string{"/health", "/api/"}, false)
	if err != nil {
		return config, fmt.Errorf("perimeter bypass prefixes config error: %w", err)
	}

	config.Perimeter.DefaultExpiryDays, err = getEnvIntSafe("PERIMETER_DEFAULT_EXPIRY_DAYS", 7, false)
	if err != nil {
		return config, fmt.Errorf("perimeter default expiry config error: %w", err)
	}

	config.Perimeter.TokenLength, err = getEnvIntSafe("PERIMETER_TOKEN_LENGTH", maxTokenLength, false)
	if err != nil {
		return config, fmt.Errorf("perimeter token length config error: %w", err)
	}
	if config.Perimeter.TokenLength <= 0 || config.Perimeter.TokenLength > maxTokenLength {
		return config, fmt.Errorf("perimeter token length config error: must be between 1 and %d", maxTokenLength)
	}

	config.Perimeter.RequireIdentity, err = getEnvBoolSafe("PERIMETER_REQUIRE_IDENTITY", false, false)
	if err != nil {
		return config, fmt.Errorf("perimeter require identity config error: %w", err)
	}

	config.Perimeter.Location, err = getEnvLocationSafe("PERIMETER_TIMEZONE", time.UTC, false)
	if err != nil {
		return config, fmt.Errorf("perimeter timezone config error: %w", err)
	}

	config.Perimeter.Upstream, err = getEnvStringSafe("PERIMETER_UPSTREAM", "", false)
	if err != nil {
		return config, fmt.Errorf("perimeter upstream config error: %w", err)
	}

	return config, nil
}

func getEnvStringSafe(key, defaultValue string, required bool) (string, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return "", fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	return value, nil
}

func getEnvIntSafe(key string, defaultValue int, required bool) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return value, nil
}

func getEnvDurationSafe(key string, defaultValue time.Duration, required bool) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a valid duration: %w", key, err)
	}
	return value, nil
}

func getEnvBoolSafe(key string, defaultValue bool, required bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return false, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("environment variable %s must be a valid boolean: %w", key, err)
	}
	return value, nil
}

func getEnvListSafe(key string, defaultValue []string, required bool) ([]string, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return nil, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values, nil
}

func getEnvLevelSafe(key string, defaultValue slog.Level, required bool) (slog.Level, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(valueStr)); err != nil {
		return 0, fmt.Errorf("environment variable %s must be a log level: %w", key, err)
	}
	return level, nil
}

func getEnvLocationSafe(key string, defaultValue *time.Location, required bool) (*time.Location, error) {
	name, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return nil, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("environment variable %s must be a valid time zone: %w", key, err)
	}
	return loc, nil
}

func getEnvEnvironmentSafe(key string, defaultValue Environment, required bool) (Environment, error) {
	env, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return "", fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	envValue := Environment(env)
	if !envValue.IsValid() {
		return "", fmt.Errorf("environment variable %s has invalid value: %s", key, env)
	}
	return envValue, nil
}
