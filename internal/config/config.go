// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (optional; in-memory stores are used when unset)
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication
	JWTSecret string `koanf:"jwt_secret"`

	// Geocoding
	GeocoderURL string `koanf:"geocoder_url"`  // Nominatim-compatible endpoint
	IPLookupURL string `koanf:"ip_lookup_url"` // ip-api-compatible endpoint

	// Search
	DefaultRadiusKm float64 `koanf:"default_radius_km"`

	// Location resolver
	LocationStaleHours   int `koanf:"location_stale_hours"`
	DetectTimeoutSeconds int `koanf:"detect_timeout_seconds"`

	// View tracking
	ViewFlushIntervalSeconds int `koanf:"view_flush_interval_seconds"`

	// Rate limiting
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	// R2 (Cloudflare Object Storage)
	R2BucketName      string `koanf:"r2_bucket_name"`
	R2AccessKeyID     string `koanf:"r2_access_key_id"`
	R2SecretAccessKey string `koanf:"r2_secret_access_key"`
	R2Endpoint        string `koanf:"r2_endpoint"`
	R2MaxUploadSizeMB int    `koanf:"r2_max_upload_size_mb"` // Default: 15MB
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL       = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret         = errors.New("JWT_SECRET is required")
	ErrMissingR2BucketName      = errors.New("R2_BUCKET_NAME is required")
	ErrMissingR2AccessKeyID     = errors.New("R2_ACCESS_KEY_ID is required")
	ErrMissingR2SecretAccessKey = errors.New("R2_SECRET_ACCESS_KEY is required")
	ErrMissingR2Endpoint        = errors.New("R2_ENDPOINT is required")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
	ErrInvalidRadius            = errors.New("DEFAULT_RADIUS_KM must be between 1 and 100")
)

// Default values for non-secret configuration.
const (
	DefaultPort                     = 8080
	DefaultEnv                      = "development"
	DefaultRadiusKm                 = 5.0
	DefaultLocationStaleHours       = 24
	DefaultDetectTimeoutSeconds     = 15
	DefaultViewFlushIntervalSeconds = 30
	DefaultRateLimitPerMinute       = 120
	DefaultR2MaxUploadSizeMB        = 15
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try OFFERBUDDY_PORT first, then PORT
	port, portErr := getEnvIntOrDefaultMulti([]string{"OFFERBUDDY_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	radiusKm, radiusErr := getEnvFloatOrDefault("DEFAULT_RADIUS_KM", k.Float64("default_radius_km"), DefaultRadiusKm)
	if radiusErr != nil {
		loadErrs = append(loadErrs, radiusErr)
	}

	staleHours, staleErr := getEnvIntOrDefault("LOCATION_STALE_HOURS", k.Int("location_stale_hours"), DefaultLocationStaleHours)
	if staleErr != nil {
		loadErrs = append(loadErrs, staleErr)
	}

	detectTimeout, detectErr := getEnvIntOrDefault("DETECT_TIMEOUT_SECONDS", k.Int("detect_timeout_seconds"), DefaultDetectTimeoutSeconds)
	if detectErr != nil {
		loadErrs = append(loadErrs, detectErr)
	}

	flushInterval, flushErr := getEnvIntOrDefault("VIEW_FLUSH_INTERVAL_SECONDS", k.Int("view_flush_interval_seconds"), DefaultViewFlushIntervalSeconds)
	if flushErr != nil {
		loadErrs = append(loadErrs, flushErr)
	}

	rateLimit, rateErr := getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", k.Int("rate_limit_per_minute"), DefaultRateLimitPerMinute)
	if rateErr != nil {
		loadErrs = append(loadErrs, rateErr)
	}

	maxUploadSize, uploadSizeErr := getEnvIntOrDefault("R2_MAX_UPLOAD_SIZE_MB", k.Int("r2_max_upload_size_mb"), DefaultR2MaxUploadSizeMB)
	if uploadSizeErr != nil {
		loadErrs = append(loadErrs, uploadSizeErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                     port,
		Env:                      getEnvOrDefaultMulti([]string{"OFFERBUDDY_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:              getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                 getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:                getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		GeocoderURL:              getEnvOrKoanf("GEOCODER_URL", k, "geocoder_url"),
		IPLookupURL:              getEnvOrKoanf("IP_LOOKUP_URL", k, "ip_lookup_url"),
		DefaultRadiusKm:          radiusKm,
		LocationStaleHours:       staleHours,
		DetectTimeoutSeconds:     detectTimeout,
		ViewFlushIntervalSeconds: flushInterval,
		RateLimitPerMinute:       rateLimit,
		R2BucketName:             getEnvOrKoanf("R2_BUCKET_NAME", k, "r2_bucket_name"),
		R2AccessKeyID:            getEnvOrKoanf("R2_ACCESS_KEY_ID", k, "r2_access_key_id"),
		R2SecretAccessKey:        getEnvOrKoanf("R2_SECRET_ACCESS_KEY", k, "r2_secret_access_key"),
		R2Endpoint:               getEnvOrKoanf("R2_ENDPOINT", k, "r2_endpoint"),
		R2MaxUploadSizeMB:        maxUploadSize,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.DefaultRadiusKm < 1 || c.DefaultRadiusKm > 100 {
		errs = append(errs, ErrInvalidRadius)
	}

	// R2 configuration is optional. Only validate fields if any R2 value is set.
	if c.R2BucketName != "" || c.R2AccessKeyID != "" || c.R2SecretAccessKey != "" || c.R2Endpoint != "" {
		if c.R2BucketName == "" {
			errs = append(errs, ErrMissingR2BucketName)
		}
		if c.R2AccessKeyID == "" {
			errs = append(errs, ErrMissingR2AccessKeyID)
		}
		if c.R2SecretAccessKey == "" {
			errs = append(errs, ErrMissingR2SecretAccessKey)
		}
		if c.R2Endpoint == "" {
			errs = append(errs, ErrMissingR2Endpoint)
		}
	}

	return errs
}

// GetJWTSecrets returns the current and previous JWT signing secrets.
// The previous secret is read from JWT_SECRET_PREVIOUS and is empty when
// no key rotation is in progress.
func (c *Config) GetJWTSecrets() (current, previous string) {
	return c.JWTSecret, os.Getenv("JWT_SECRET_PREVIOUS")
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                        fmt.Sprintf("%d", c.Port),
		"env":                         c.Env,
		"database_url":                maskDatabaseURL(c.DatabaseURL),
		"redis_url":                   maskDatabaseURL(c.RedisURL),
		"jwt_secret":                  maskSecret(c.JWTSecret),
		"geocoder_url":                c.GeocoderURL,
		"ip_lookup_url":               c.IPLookupURL,
		"default_radius_km":           fmt.Sprintf("%g", c.DefaultRadiusKm),
		"location_stale_hours":        fmt.Sprintf("%d", c.LocationStaleHours),
		"detect_timeout_seconds":      fmt.Sprintf("%d", c.DetectTimeoutSeconds),
		"view_flush_interval_seconds": fmt.Sprintf("%d", c.ViewFlushIntervalSeconds),
		"rate_limit_per_minute":       fmt.Sprintf("%d", c.RateLimitPerMinute),
		"r2_bucket_name":              c.R2BucketName,
		"r2_access_key_id":            maskSecret(c.R2AccessKeyID),
		"r2_secret_access_key":        maskSecret(c.R2SecretAccessKey),
		"r2_endpoint":                 c.R2Endpoint,
		"r2_max_upload_size_mb":       fmt.Sprintf("%d", c.R2MaxUploadSizeMB),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres:// and redis:// style URLs alike.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
