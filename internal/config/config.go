package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/ini.v1"

	"github.com/kevin07696/vault-secret-agent/internal/domain"
	pkgerrors "github.com/kevin07696/vault-secret-agent/pkg/errors"
)

// ConfigFileEnv names the environment variable holding the optional INI file path
const ConfigFileEnv = "AGENT_CONFIG_FILE"

// Config holds all agent configuration
type Config struct {
	Vault       VaultConfig
	Refresh     RefreshConfig
	Diagnostics DiagnosticsConfig
	Mirror      MirrorConfig
	Tracing     TracingConfig
	Logger      LoggerConfig
}

// VaultConfig holds the Vault connection and AppRole credentials
type VaultConfig struct {
	Address            string
	Namespace          string
	LoginWithNamespace bool // send the namespace header on the login call
	RoleID             string
	SecretID           string
	AppRoleMount       string
	KVMountPath        string
	TLSSkipVerify      bool
	RequestTimeout     time.Duration
}

// RefreshConfig holds the tick schedule and the paths swept on every tick
type RefreshConfig struct {
	SecretPaths      []string
	Interval         time.Duration
	ThresholdPercent decimal.Decimal // renew once remaining TTL <= lease × percent / 100
	FetchConcurrency int
	RevealValues     bool // log and serve secret values unmasked
}

// ThresholdRatio returns the renewal threshold as a fraction of the lease
func (r RefreshConfig) ThresholdRatio() decimal.Decimal {
	return r.ThresholdPercent.Div(decimal.NewFromInt(100))
}

// DiagnosticsConfig holds the diagnostics HTTP server settings
type DiagnosticsConfig struct {
	Port      int
	RateLimit float64 // requests per second per client
	Burst     int
}

// MirrorConfig holds the optional Redis cache mirror settings
type MirrorConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Enabled reports whether a mirror address was configured
func (m MirrorConfig) Enabled() bool {
	return m.Address != ""
}

// TracingConfig holds the OTLP span exporter settings. No endpoint disables tracing.
type TracingConfig struct {
	Endpoint    string
	ServiceName string
	Insecure    bool
	SampleRate  float64
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Environment string // "production" selects the JSON production logger
}

// Development reports whether the development logger should be used
func (l LoggerConfig) Development() bool {
	return l.Environment != "production"
}

// Defaults returns the configuration used before the file and environment are applied
func Defaults() *Config {
	return &Config{
		Vault: VaultConfig{
			LoginWithNamespace: true,
			AppRoleMount:       "approle",
			KVMountPath:        "secret",
			RequestTimeout:     10 * time.Second,
		},
		Refresh: RefreshConfig{
			Interval:         60 * time.Second,
			ThresholdPercent: decimal.NewFromInt(20),
			FetchConcurrency: 1,
		},
		Diagnostics: DiagnosticsConfig{
			Port:      9090,
			RateLimit: 10,
			Burst:     20,
		},
		Mirror: MirrorConfig{
			KeyPrefix: "vault-agent:",
		},
		Tracing: TracingConfig{
			ServiceName: "vault-secret-agent",
			Insecure:    true,
			SampleRate:  1,
		},
		Logger: LoggerConfig{
			Level:       "info",
			Environment: "development",
		},
	}
}

// LoadFromEnv loads configuration from the file named by AGENT_CONFIG_FILE (if any)
// and then from environment variables
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(ConfigFileEnv))
}

// Load reads the [vault] section of the INI file at path, applies environment overrides
// and validates the result. An empty path skips the file.
// Every problem is reported in one error that matches domain.ErrConfigInvalid.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	l := &loader{}

	if path != "" {
		file, err := ini.Load(path)
		if err != nil {
			return nil, domain.WrapConfigError(fmt.Errorf("load config file %s: %w", path, err))
		}
		l.applyFile(cfg, file.Section("vault"))
	}
	l.applyEnv(cfg)

	if err := errors.Join(append(l.errs, cfg.Validate())...); err != nil {
		return nil, domain.WrapConfigError(err)
	}
	return cfg, nil
}

// Validate checks required settings and ranges
func (c *Config) Validate() error {
	var errs []error
	invalid := func(field, msg string) {
		errs = append(errs, pkgerrors.NewValidationError(field, msg))
	}

	if c.Vault.Address == "" {
		invalid("addr", "VAULT_ADDR is required")
	} else if u, err := url.ParseRequestURI(c.Vault.Address); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		invalid("addr", fmt.Sprintf("must be an http(s) URL, got %q", c.Vault.Address))
	}
	if c.Vault.RoleID == "" {
		invalid("role_id", "VAULT_ROLE_ID is required")
	}
	if c.Vault.SecretID == "" {
		invalid("secret_id", "VAULT_SECRET_ID is required")
	}
	if strings.Trim(c.Vault.AppRoleMount, "/") == "" {
		invalid("approle_mount", "must not be empty")
	}
	if strings.Trim(c.Vault.KVMountPath, "/") == "" {
		invalid("kv_path", "must not be empty")
	}
	if c.Vault.RequestTimeout <= 0 {
		invalid("request_timeout_seconds", "must be positive")
	}

	if len(c.Refresh.SecretPaths) == 0 {
		invalid("kv_secrets_paths", "at least one secret path is required")
	}
	if c.Refresh.Interval <= 0 {
		invalid("renewal_interval_seconds", "must be positive")
	}
	if c.Refresh.ThresholdPercent.IsNegative() || c.Refresh.ThresholdPercent.GreaterThan(decimal.NewFromInt(100)) {
		invalid("token_renewal_threshold_percent", fmt.Sprintf("must be within [0,100], got %s", c.Refresh.ThresholdPercent))
	}
	if c.Refresh.FetchConcurrency < 1 {
		invalid("fetch_concurrency", "must be at least 1")
	}

	if c.Diagnostics.Port < 0 || c.Diagnostics.Port > 65535 {
		invalid("DIAGNOSTICS_PORT", fmt.Sprintf("out of range: %d", c.Diagnostics.Port))
	}
	if c.Diagnostics.RateLimit <= 0 {
		invalid("DIAGNOSTICS_RATE_LIMIT", "must be positive")
	}
	if c.Diagnostics.Burst < 1 {
		invalid("DIAGNOSTICS_BURST", "must be at least 1")
	}

	if c.Mirror.DB < 0 {
		invalid("MIRROR_REDIS_DB", "must not be negative")
	}
	if c.Mirror.TTL < 0 {
		invalid("MIRROR_TTL_SECONDS", "must not be negative")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		invalid("OTEL_TRACES_SAMPLE_RATE", fmt.Sprintf("must be within [0,1], got %v", c.Tracing.SampleRate))
	}

	return errors.Join(errs...)
}

// SplitPaths parses a comma separated path list, dropping blanks
func SplitPaths(raw string) []string {
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// loader collects parse errors so one startup failure lists every bad value
type loader struct {
	errs []error
}

func (l *loader) invalid(field string, err error) {
	l.errs = append(l.errs, pkgerrors.NewValidationError(field, err.Error()))
}

func (l *loader) applyFile(cfg *Config, sec *ini.Section) {
	str := func(key string, dst *string) {
		if sec.HasKey(key) {
			*dst = strings.TrimSpace(sec.Key(key).String())
		}
	}
	integer := func(key string, dst *int) {
		if !sec.HasKey(key) {
			return
		}
		v, err := sec.Key(key).Int()
		if err != nil {
			l.invalid(key, err)
			return
		}
		*dst = v
	}
	boolean := func(key string, dst *bool) {
		if !sec.HasKey(key) {
			return
		}
		v, err := sec.Key(key).Bool()
		if err != nil {
			l.invalid(key, err)
			return
		}
		*dst = v
	}
	seconds := func(key string, dst *time.Duration) {
		var n int
		if sec.HasKey(key) {
			n = int(dst.Seconds())
			integer(key, &n)
			*dst = time.Duration(n) * time.Second
		}
	}

	str("addr", &cfg.Vault.Address)
	str("namespace", &cfg.Vault.Namespace)
	boolean("login_with_namespace", &cfg.Vault.LoginWithNamespace)
	str("role_id", &cfg.Vault.RoleID)
	str("secret_id", &cfg.Vault.SecretID)
	str("approle_mount", &cfg.Vault.AppRoleMount)
	str("kv_path", &cfg.Vault.KVMountPath)
	boolean("tls_skip_verify", &cfg.Vault.TLSSkipVerify)
	seconds("request_timeout_seconds", &cfg.Vault.RequestTimeout)

	if sec.HasKey("kv_secrets_paths") {
		cfg.Refresh.SecretPaths = SplitPaths(sec.Key("kv_secrets_paths").String())
	}
	seconds("renewal_interval_seconds", &cfg.Refresh.Interval)
	if sec.HasKey("token_renewal_threshold_percent") {
		l.decimal("token_renewal_threshold_percent", sec.Key("token_renewal_threshold_percent").String(), &cfg.Refresh.ThresholdPercent)
	}
	integer("fetch_concurrency", &cfg.Refresh.FetchConcurrency)
}

func (l *loader) applyEnv(cfg *Config) {
	cfg.Vault.Address = getEnv("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Namespace = getEnv("VAULT_NAMESPACE", cfg.Vault.Namespace)
	cfg.Vault.LoginWithNamespace = l.getEnvAsBool("VAULT_LOGIN_WITH_NAMESPACE", cfg.Vault.LoginWithNamespace)
	cfg.Vault.RoleID = getEnv("VAULT_ROLE_ID", cfg.Vault.RoleID)
	cfg.Vault.SecretID = getEnv("VAULT_SECRET_ID", cfg.Vault.SecretID)
	cfg.Vault.AppRoleMount = getEnv("VAULT_APPROLE_MOUNT", cfg.Vault.AppRoleMount)
	cfg.Vault.KVMountPath = getEnv("VAULT_KV_MOUNT_PATH", cfg.Vault.KVMountPath)
	cfg.Vault.TLSSkipVerify = l.getEnvAsBool("VAULT_TLS_SKIP_VERIFY", cfg.Vault.TLSSkipVerify)
	cfg.Vault.RequestTimeout = l.getEnvAsSeconds("VAULT_REQUEST_TIMEOUT_SECONDS", cfg.Vault.RequestTimeout)

	if raw, ok := os.LookupEnv("VAULT_SECRET_PATHS"); ok && raw != "" {
		cfg.Refresh.SecretPaths = SplitPaths(raw)
	}
	cfg.Refresh.Interval = l.getEnvAsSeconds("REFRESH_INTERVAL_SECONDS", cfg.Refresh.Interval)
	if raw := os.Getenv("TOKEN_RENEWAL_THRESHOLD_PERCENT"); raw != "" {
		l.decimal("TOKEN_RENEWAL_THRESHOLD_PERCENT", raw, &cfg.Refresh.ThresholdPercent)
	}
	cfg.Refresh.FetchConcurrency = l.getEnvAsInt("FETCH_CONCURRENCY", cfg.Refresh.FetchConcurrency)
	cfg.Refresh.RevealValues = l.getEnvAsBool("AGENT_REVEAL_SECRET_VALUES", cfg.Refresh.RevealValues)

	cfg.Diagnostics.Port = l.getEnvAsInt("DIAGNOSTICS_PORT", cfg.Diagnostics.Port)
	cfg.Diagnostics.RateLimit = l.getEnvAsFloat("DIAGNOSTICS_RATE_LIMIT", cfg.Diagnostics.RateLimit)
	cfg.Diagnostics.Burst = l.getEnvAsInt("DIAGNOSTICS_BURST", cfg.Diagnostics.Burst)

	cfg.Mirror.Address = getEnv("MIRROR_REDIS_ADDR", cfg.Mirror.Address)
	cfg.Mirror.Password = getEnv("MIRROR_REDIS_PASSWORD", cfg.Mirror.Password)
	cfg.Mirror.DB = l.getEnvAsInt("MIRROR_REDIS_DB", cfg.Mirror.DB)
	cfg.Mirror.KeyPrefix = getEnv("MIRROR_KEY_PREFIX", cfg.Mirror.KeyPrefix)
	cfg.Mirror.TTL = l.getEnvAsSeconds("MIRROR_TTL_SECONDS", cfg.Mirror.TTL)

	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.Insecure = l.getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.Insecure)
	cfg.Tracing.SampleRate = l.getEnvAsFloat("OTEL_TRACES_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Logger.Level = getEnv("LOG_LEVEL", cfg.Logger.Level)
	cfg.Logger.Environment = getEnv("ENVIRONMENT", cfg.Logger.Environment)
}

func (l *loader) decimal(field, raw string, dst *decimal.Decimal) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		l.invalid(field, err)
		return
	}
	*dst = v
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		l.invalid(key, err)
		return defaultValue
	}
	return value
}

func (l *loader) getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		l.invalid(key, err)
		return defaultValue
	}
	return value
}

func (l *loader) getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		l.invalid(key, err)
		return defaultValue
	}
	return value
}

func (l *loader) getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	seconds := l.getEnvAsInt(key, int(defaultValue/time.Second))
	return time.Duration(seconds) * time.Second
}
