// Package config provides configuration loading and validation for the API
// server. It uses koanf to merge environment variables with optional file
// overrides.
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

// CrewMember is one provisioned actor. Shipboard deployments ship the crew
// list in the config file; there is no self-service registration.
type CrewMember struct {
	ID       string   `koanf:"id"`
	TenantID string   `koanf:"tenant_id"`
	Name     string   `koanf:"name"`
	Roles    []string `koanf:"roles"`
	Key      string   `koanf:"key"`
}

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// JWT authentication. PreviousSecret enables dual-key rotation and may
	// be empty.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Redis (rate limiting). Optional; rate limiting falls back to
	// in-memory windows when unset.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`

	// Blob storage (S3-compatible, e.g. R2 or MinIO). Optional; the
	// attachment surface is disabled when unset.
	BlobBucketName      string `koanf:"blob_bucket_name"`
	BlobAccessKeyID     string `koanf:"blob_access_key_id"`
	BlobSecretAccessKey string `koanf:"blob_secret_access_key"`
	BlobEndpoint        string `koanf:"blob_endpoint"`
	BlobMaxUploadSizeMB int    `koanf:"blob_max_upload_size_mb"`

	// Background jobs
	JobsIntervalMinutes   int `koanf:"jobs_interval_minutes"`
	CertExpiryWarningDays int `koanf:"cert_expiry_warning_days"`

	// Tracing. Optional OTLP endpoint; tracing is disabled when unset.
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPProtocol string `koanf:"otlp_protocol"` // "http" or "grpc"

	// CORS. Empty disables cross-origin requests entirely.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Provisioned crew, file-only (no env form).
	Crew []CrewMember `koanf:"crew"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL    = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret      = errors.New("JWT_SECRET is required")
	ErrMissingBlobBucketName = errors.New("BLOB_BUCKET_NAME is required")
	ErrMissingBlobAccessKey  = errors.New("BLOB_ACCESS_KEY_ID is required")
	ErrMissingBlobSecretKey  = errors.New("BLOB_SECRET_ACCESS_KEY is required")
	ErrMissingBlobEndpoint   = errors.New("BLOB_ENDPOINT is required")
	ErrInvalidPort           = errors.New("PORT must be a valid integer")
	ErrInvalidOTLPProtocol   = errors.New("OTLP_PROTOCOL must be http or grpc")
	ErrInvalidCrewMember     = errors.New("crew members need id, tenant_id, and key")
)

// Default values for non-secret configuration.
const (
	DefaultPort                  = 8080
	DefaultEnv                   = "development"
	DefaultBlobMaxUploadSizeMB   = 25
	DefaultJobsIntervalMinutes   = 60
	DefaultCertExpiryWarningDays = 30
	DefaultOTLPProtocol          = "http"
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over file values. Returns the
// loaded config and a slice of validation errors (empty if valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// File first, lower precedence.
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefault("DECKHAND_PORT", k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}
	maxUploadSize, uploadSizeErr := getEnvIntOrDefault("BLOB_MAX_UPLOAD_SIZE_MB", k.Int("blob_max_upload_size_mb"), DefaultBlobMaxUploadSizeMB)
	if uploadSizeErr != nil {
		loadErrs = append(loadErrs, uploadSizeErr)
	}
	jobsInterval, jobsErr := getEnvIntOrDefault("JOBS_INTERVAL_MINUTES", k.Int("jobs_interval_minutes"), DefaultJobsIntervalMinutes)
	if jobsErr != nil {
		loadErrs = append(loadErrs, jobsErr)
	}
	warningDays, warnErr := getEnvIntOrDefault("CERT_EXPIRY_WARNING_DAYS", k.Int("cert_expiry_warning_days"), DefaultCertExpiryWarningDays)
	if warnErr != nil {
		loadErrs = append(loadErrs, warnErr)
	}

	cfg := &Config{
		Port:                  port,
		Env:                   getEnvOrDefault("DECKHAND_ENV", k.String("env"), DefaultEnv),
		DatabaseURL:           getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:             getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:     getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		RedisAddr:             getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),
		RedisPassword:         getEnvOrKoanf("REDIS_PASSWORD", k, "redis_password"),
		BlobBucketName:        getEnvOrKoanf("BLOB_BUCKET_NAME", k, "blob_bucket_name"),
		BlobAccessKeyID:       getEnvOrKoanf("BLOB_ACCESS_KEY_ID", k, "blob_access_key_id"),
		BlobSecretAccessKey:   getEnvOrKoanf("BLOB_SECRET_ACCESS_KEY", k, "blob_secret_access_key"),
		BlobEndpoint:          getEnvOrKoanf("BLOB_ENDPOINT", k, "blob_endpoint"),
		BlobMaxUploadSizeMB:   maxUploadSize,
		JobsIntervalMinutes:   jobsInterval,
		CertExpiryWarningDays: warningDays,
		OTLPEndpoint:          getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		OTLPProtocol:          getEnvOrDefault("OTLP_PROTOCOL", k.String("otlp_protocol"), DefaultOTLPProtocol),
		CORSAllowedOrigins:    k.Strings("cors_allowed_origins"),
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	// The crew list has no env form; it only ever comes from the file.
	if err := k.Unmarshal("crew", &cfg.Crew); err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("failed to parse crew list: %w", err))
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the
// koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise
// the koanf value, or the default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set,
// otherwise the koanf value, or the default. Returns an error if the
// environment variable is set but cannot be parsed as an integer. A zero in
// the YAML file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
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

	// Blob storage is optional, but if any field is set all four are needed.
	if c.BlobBucketName != "" || c.BlobAccessKeyID != "" || c.BlobSecretAccessKey != "" || c.BlobEndpoint != "" {
		if c.BlobBucketName == "" {
			errs = append(errs, ErrMissingBlobBucketName)
		}
		if c.BlobAccessKeyID == "" {
			errs = append(errs, ErrMissingBlobAccessKey)
		}
		if c.BlobSecretAccessKey == "" {
			errs = append(errs, ErrMissingBlobSecretKey)
		}
		if c.BlobEndpoint == "" {
			errs = append(errs, ErrMissingBlobEndpoint)
		}
	}

	if c.OTLPProtocol != "http" && c.OTLPProtocol != "grpc" {
		errs = append(errs, ErrInvalidOTLPProtocol)
	}

	for i, m := range c.Crew {
		if m.ID == "" || m.TenantID == "" || m.Key == "" {
			errs = append(errs, fmt.Errorf("%w: crew[%d]", ErrInvalidCrewMember, i))
		}
	}

	return errs
}

// BlobEnabled reports whether blob storage is configured.
func (c *Config) BlobEnabled() bool {
	return c.BlobBucketName != ""
}

// RedisEnabled reports whether Redis is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// TracingEnabled reports whether an OTLP endpoint is configured.
func (c *Config) TracingEnabled() bool {
	return c.OTLPEndpoint != ""
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                     fmt.Sprintf("%d", c.Port),
		"env":                      c.Env,
		"database_url":             maskDatabaseURL(c.DatabaseURL),
		"jwt_secret":               maskSecret(c.JWTSecret),
		"jwt_previous_secret":      maskSecret(c.JWTPreviousSecret),
		"redis_addr":               c.RedisAddr,
		"blob_bucket_name":         c.BlobBucketName,
		"blob_access_key_id":       maskSecret(c.BlobAccessKeyID),
		"blob_secret_access_key":   maskSecret(c.BlobSecretAccessKey),
		"blob_endpoint":            c.BlobEndpoint,
		"blob_max_upload_size_mb":  fmt.Sprintf("%d", c.BlobMaxUploadSizeMB),
		"jobs_interval_minutes":    fmt.Sprintf("%d", c.JobsIntervalMinutes),
		"cert_expiry_warning_days": fmt.Sprintf("%d", c.CertExpiryWarningDays),
		"otlp_endpoint":            c.OTLPEndpoint,
		"otlp_protocol":            c.OTLPProtocol,
		"crew_members":             fmt.Sprintf("%d", len(c.Crew)),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters.
// Secrets shorter than 8 characters are fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
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
