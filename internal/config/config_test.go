package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/vault-secret-agent/internal/domain"
	pkgerrors "github.com/kevin07696/vault-secret-agent/pkg/errors"
)

const sampleINI = `
[vault]
addr = https://vault.internal:8200
namespace = admin/team-a
login_with_namespace = false
role_id = role-123
secret_id = secret-456
approle_mount = approle-prod
kv_path = kv
kv_secrets_paths = app/db, app/api ,, app/db
renewal_interval_seconds = 30
token_renewal_threshold_percent = 25.5
fetch_concurrency = 4
tls_skip_verify = true
request_timeout_seconds = 5
`

var agentEnvKeys = []string{
	"VAULT_ADDR", "VAULT_NAMESPACE", "VAULT_LOGIN_WITH_NAMESPACE", "VAULT_ROLE_ID",
	"VAULT_SECRET_ID", "VAULT_APPROLE_MOUNT", "VAULT_KV_MOUNT_PATH", "VAULT_SECRET_PATHS",
	"REFRESH_INTERVAL_SECONDS", "TOKEN_RENEWAL_THRESHOLD_PERCENT", "FETCH_CONCURRENCY",
	"VAULT_TLS_SKIP_VERIFY", "VAULT_REQUEST_TIMEOUT_SECONDS", "DIAGNOSTICS_PORT",
	"DIAGNOSTICS_RATE_LIMIT", "DIAGNOSTICS_BURST", "AGENT_REVEAL_SECRET_VALUES",
	"MIRROR_REDIS_ADDR", "MIRROR_REDIS_PASSWORD", "MIRROR_REDIS_DB", "MIRROR_KEY_PREFIX",
	"MIRROR_TTL_SECONDS", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME",
	"OTEL_EXPORTER_OTLP_INSECURE", "OTEL_TRACES_SAMPLE_RATE", "LOG_LEVEL", "ENVIRONMENT", ConfigFileEnv,
}

// clearEnv blanks every variable the loader reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range agentEnvKeys {
		t.Setenv(key, "")
	}
}

func writeINI(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")
	t.Setenv("VAULT_ROLE_ID", "role")
	t.Setenv("VAULT_SECRET_ID", "secret")
	t.Setenv("VAULT_SECRET_PATHS", "app/db")
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeINI(t, sampleINI))

	require.NoError(t, err)
	assert.Equal(t, "https://vault.internal:8200", cfg.Vault.Address)
	assert.Equal(t, "admin/team-a", cfg.Vault.Namespace)
	assert.False(t, cfg.Vault.LoginWithNamespace)
	assert.Equal(t, "role-123", cfg.Vault.RoleID)
	assert.Equal(t, "secret-456", cfg.Vault.SecretID)
	assert.Equal(t, "approle-prod", cfg.Vault.AppRoleMount)
	assert.Equal(t, "kv", cfg.Vault.KVMountPath)
	assert.True(t, cfg.Vault.TLSSkipVerify)
	assert.Equal(t, 5*time.Second, cfg.Vault.RequestTimeout)

	// Duplicates are kept here; the scheduler dedupes
	assert.Equal(t, []string{"app/db", "app/api", "app/db"}, cfg.Refresh.SecretPaths)
	assert.Equal(t, 30*time.Second, cfg.Refresh.Interval)
	assert.True(t, decimal.RequireFromString("25.5").Equal(cfg.Refresh.ThresholdPercent))
	assert.True(t, decimal.RequireFromString("0.255").Equal(cfg.Refresh.ThresholdRatio()))
	assert.Equal(t, 4, cfg.Refresh.FetchConcurrency)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.True(t, cfg.Vault.LoginWithNamespace)
	assert.Equal(t, "approle", cfg.Vault.AppRoleMount)
	assert.Equal(t, "secret", cfg.Vault.KVMountPath)
	assert.Equal(t, 10*time.Second, cfg.Vault.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.Refresh.Interval)
	assert.True(t, decimal.NewFromInt(20).Equal(cfg.Refresh.ThresholdPercent))
	assert.Equal(t, 1, cfg.Refresh.FetchConcurrency)
	assert.False(t, cfg.Refresh.RevealValues)
	assert.Equal(t, 9090, cfg.Diagnostics.Port)
	assert.False(t, cfg.Mirror.Enabled())
	assert.Equal(t, "vault-agent:", cfg.Mirror.KeyPrefix)
	assert.Empty(t, cfg.Tracing.Endpoint)
	assert.Equal(t, "vault-secret-agent", cfg.Tracing.ServiceName)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Logger.Development())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAULT_ADDR", "http://override:8200")
	t.Setenv("VAULT_SECRET_PATHS", "only/this")
	t.Setenv("TOKEN_RENEWAL_THRESHOLD_PERCENT", "50")
	t.Setenv("VAULT_LOGIN_WITH_NAMESPACE", "true")
	t.Setenv("REFRESH_INTERVAL_SECONDS", "15")
	t.Setenv("MIRROR_REDIS_ADDR", "localhost:6379")
	t.Setenv("MIRROR_TTL_SECONDS", "300")
	t.Setenv("AGENT_REVEAL_SECRET_VALUES", "true")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_TRACES_SAMPLE_RATE", "0.1")

	cfg, err := Load(writeINI(t, sampleINI))

	require.NoError(t, err)
	assert.Equal(t, "http://override:8200", cfg.Vault.Address)
	assert.Equal(t, "role-123", cfg.Vault.RoleID, "file value kept when env is unset")
	assert.Equal(t, []string{"only/this"}, cfg.Refresh.SecretPaths)
	assert.True(t, decimal.RequireFromString("0.5").Equal(cfg.Refresh.ThresholdRatio()))
	assert.True(t, cfg.Vault.LoginWithNamespace)
	assert.Equal(t, 15*time.Second, cfg.Refresh.Interval)
	assert.True(t, cfg.Mirror.Enabled())
	assert.Equal(t, 300*time.Second, cfg.Mirror.TTL)
	assert.True(t, cfg.Refresh.RevealValues)
	assert.False(t, cfg.Logger.Development())
	assert.Equal(t, "collector:4318", cfg.Tracing.Endpoint)
	assert.Equal(t, 0.1, cfg.Tracing.SampleRate)
}

func TestLoadFromEnv_UsesConfigFileVariable(t *testing.T) {
	clearEnv(t)
	t.Setenv(ConfigFileEnv, writeINI(t, sampleINI))

	cfg, err := LoadFromEnv()

	require.NoError(t, err)
	assert.Equal(t, "role-123", cfg.Vault.RoleID)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.ini"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfigInvalid))
}

func TestLoad_ReportsEveryMissingSetting(t *testing.T) {
	clearEnv(t)

	_, err := Load("")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfigInvalid))
	for _, field := range []string{"addr", "role_id", "secret_id", "kv_secrets_paths"} {
		assert.Contains(t, err.Error(), "'"+field+"'")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{"threshold_above_100", "TOKEN_RENEWAL_THRESHOLD_PERCENT", "150", "token_renewal_threshold_percent"},
		{"threshold_negative", "TOKEN_RENEWAL_THRESHOLD_PERCENT", "-1", "token_renewal_threshold_percent"},
		{"threshold_not_a_number", "TOKEN_RENEWAL_THRESHOLD_PERCENT", "twenty", "TOKEN_RENEWAL_THRESHOLD_PERCENT"},
		{"zero_interval", "REFRESH_INTERVAL_SECONDS", "0", "renewal_interval_seconds"},
		{"interval_not_a_number", "REFRESH_INTERVAL_SECONDS", "soon", "REFRESH_INTERVAL_SECONDS"},
		{"zero_concurrency", "FETCH_CONCURRENCY", "0", "fetch_concurrency"},
		{"bad_bool", "VAULT_TLS_SKIP_VERIFY", "maybe", "VAULT_TLS_SKIP_VERIFY"},
		{"bad_addr", "VAULT_ADDR", "vault:8200", "addr"},
		{"bad_port", "DIAGNOSTICS_PORT", "70000", "DIAGNOSTICS_PORT"},
		{"sample_rate_above_one", "OTEL_TRACES_SAMPLE_RATE", "1.5", "OTEL_TRACES_SAMPLE_RATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load("")

			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfigInvalid))
			var verr *pkgerrors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, err.Error(), "'"+tt.field+"'")
		})
	}
}

func TestLoad_InvalidFileValue(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeINI(t, sampleINI+"fetch_concurrency = lots\n"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "'fetch_concurrency'")
}

func TestThresholdBoundsAccepted(t *testing.T) {
	for _, pct := range []string{"0", "100"} {
		clearEnv(t)
		setRequiredEnv(t)
		t.Setenv("TOKEN_RENEWAL_THRESHOLD_PERCENT", pct)

		_, err := Load("")
		assert.NoError(t, err, "threshold %s", pct)
	}
}

func TestSplitPaths(t *testing.T) {
	assert.Equal(t, []string{"a", "b/c"}, SplitPaths(" a, ,b/c,"))
	assert.Nil(t, SplitPaths(""))
}
