package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/kevin07696/vault-secret-agent/internal/adapters/ports"
	"github.com/kevin07696/vault-secret-agent/internal/domain"
)

// Config contains configuration for the Vault adapter
type Config struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Vault namespace (Vault Enterprise). Empty disables the namespace header.
	Namespace string

	// LoginWithNamespace attaches the namespace header to the AppRole login call.
	// Renew and read always carry it when Namespace is set.
	LoginWithNamespace bool

	// AppRole auth mount (default: "approle")
	AppRoleMountPath string

	// TLS configuration
	TLSSkipVerify bool

	// Client-wide request timeout (default: 10s)
	Timeout time.Duration
}

// DefaultConfig returns default configuration for the Vault adapter
func DefaultConfig(address string) *Config {
	return &Config{
		Address:            address,
		LoginWithNamespace: true,
		AppRoleMountPath:   "approle",
		Timeout:            10 * time.Second,
	}
}

// Adapter implements the AuthTransport and SecretReader ports over the Vault HTTP API.
// It holds no token itself: every call gets a clone of the base client with the
// caller's token attached.
type Adapter struct {
	client *vaultapi.Client
	config *Config
	logger *zap.Logger
}

var (
	_ ports.AuthTransport = (*Adapter)(nil)
	_ ports.SecretReader  = (*Adapter)(nil)
)

// NewAdapter creates a Vault adapter. httpClient may be nil to use the library default.
func NewAdapter(cfg *Config, httpClient *http.Client, logger *zap.Logger) (*Adapter, error) {
	if cfg.AppRoleMountPath == "" {
		cfg.AppRoleMountPath = "approle"
	}

	vaultConfig := vaultapi.DefaultConfig()
	vaultConfig.Address = cfg.Address
	if httpClient != nil {
		vaultConfig.HttpClient = httpClient
	}
	if cfg.Timeout > 0 {
		vaultConfig.Timeout = cfg.Timeout
	}
	// Failures are retried by the next scheduler tick, never inside a call
	vaultConfig.MaxRetries = 0

	if cfg.TLSSkipVerify {
		tlsConfig := &vaultapi.TLSConfig{
			Insecure: true,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vaultapi.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	// Ignore VAULT_TOKEN / VAULT_NAMESPACE picked up from the environment
	client.ClearToken()
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	} else {
		client.ClearNamespace()
	}

	logger.Info("Vault adapter initialized",
		zap.String("address", cfg.Address),
		zap.String("namespace", cfg.Namespace),
		zap.Bool("login_with_namespace", cfg.LoginWithNamespace),
		zap.String("approle_mount", cfg.AppRoleMountPath),
	)

	return &Adapter{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// Login performs an AppRole login
func (a *Adapter) Login(ctx context.Context, roleID, secretID string) (*ports.LoginResult, error) {
	client, err := a.client.CloneWithHeaders()
	if err != nil {
		return nil, domain.NewTransportFailure(domain.OpLogin, "", err)
	}
	client.ClearToken()
	if !a.config.LoginWithNamespace {
		client.ClearNamespace()
	}

	loginPath := fmt.Sprintf("auth/%s/login", strings.Trim(a.config.AppRoleMountPath, "/"))
	data := map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	}

	startTime := time.Now()
	resp, err := client.Logical().WriteWithContext(ctx, loginPath, data)
	if err != nil {
		return nil, classify(domain.OpLogin, "", err)
	}

	if resp == nil || resp.Auth == nil {
		return nil, domain.NewAuthFailure(http.StatusOK, "", "login response carried no auth block")
	}
	if resp.Auth.ClientToken == "" {
		return nil, domain.NewAuthFailure(http.StatusOK, "", "login response carried an empty client_token")
	}

	a.logger.Debug("AppRole login completed",
		zap.String("path", loginPath),
		zap.Duration("elapsed", time.Since(startTime)),
	)

	return &ports.LoginResult{
		ClientToken:          resp.Auth.ClientToken,
		LeaseDurationSeconds: int64(resp.Auth.LeaseDuration),
		Renewable:            resp.Auth.Renewable,
	}, nil
}

// Renew extends the lease of token via renew-self
func (a *Adapter) Renew(ctx context.Context, token string) (*ports.RenewResult, error) {
	client, err := a.client.CloneWithHeaders()
	if err != nil {
		return nil, domain.NewTransportFailure(domain.OpRenew, "", err)
	}
	client.SetToken(token)

	startTime := time.Now()
	resp, err := client.Auth().Token().RenewSelfWithContext(ctx, 0)
	if err != nil {
		return nil, classify(domain.OpRenew, "", err)
	}

	if resp == nil || resp.Auth == nil {
		return nil, domain.NewRenewalFailure(http.StatusOK, "", "renewal response carried no auth block")
	}

	a.logger.Debug("Token renew-self completed", zap.Duration("elapsed", time.Since(startTime)))

	return &ports.RenewResult{
		LeaseDurationSeconds: int64(resp.Auth.LeaseDuration),
	}, nil
}

// Read fetches a KV v2 secret
// Full path: "<mountPath>/data/<secretPath>"
func (a *Adapter) Read(ctx context.Context, mountPath, secretPath, token string) (*ports.SecretData, error) {
	client, err := a.client.CloneWithHeaders()
	if err != nil {
		return nil, domain.NewTransportFailure(domain.OpRead, secretPath, err)
	}
	client.SetToken(token)

	fullPath := fmt.Sprintf("%s/data/%s", strings.Trim(mountPath, "/"), strings.TrimPrefix(secretPath, "/"))

	startTime := time.Now()
	secret, err := client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, classify(domain.OpRead, secretPath, err)
	}

	if secret == nil {
		return nil, domain.NewFetchFailure(secretPath, http.StatusNotFound, "secret not found")
	}

	a.logger.Debug("Secret read completed",
		zap.String("path", fullPath),
		zap.Duration("elapsed", time.Since(startTime)),
	)

	return parseKVv2(secretPath, secret)
}

// parseKVv2 unwraps the KV v2 envelope: fields live under data.data, the version
// under data.metadata.version
func parseKVv2(secretPath string, secret *vaultapi.Secret) (*ports.SecretData, error) {
	raw, present := secret.Data["data"]
	if !present || raw == nil {
		// Deleted or destroyed versions come back with metadata only
		if _, hasMeta := secret.Data["metadata"]; hasMeta {
			return nil, domain.NewFetchFailure(secretPath, http.StatusNotFound, "secret version has no data")
		}
		return nil, domain.NewFetchFailure(secretPath, 0, "invalid secret format: missing data")
	}

	data, ok := raw.(map[string]interface{})
	if !ok {
		return nil, domain.NewFetchFailure(secretPath, 0, "invalid secret format: data is not an object")
	}

	fields := make(map[string]string, len(data))
	for k, v := range data {
		fields[k] = fieldString(v)
	}

	result := &ports.SecretData{Fields: fields}

	if metadata, ok := secret.Data["metadata"].(map[string]interface{}); ok {
		if v, ok := versionOf(metadata["version"]); ok {
			result.Version = &v
		}
	}

	return result, nil
}

// versionOf accepts the number shapes the JSON decoder may produce
func versionOf(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// fieldString renders a field value as a string. Non-scalar values keep their JSON form.
func fieldString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// classify maps a Vault client error to the failure kind of op.
// A response error keeps its status and body; anything else never reached Vault.
func classify(op domain.Operation, path string, err error) error {
	var respErr *vaultapi.ResponseError
	if !errors.As(err, &respErr) {
		return domain.NewTransportFailure(op, path, err)
	}

	body := strings.Join(respErr.Errors, "; ")
	switch op {
	case domain.OpLogin:
		return domain.NewAuthFailure(respErr.StatusCode, body, "login rejected")
	case domain.OpRenew:
		return domain.NewRenewalFailure(respErr.StatusCode, body, "renewal rejected")
	default:
		e := domain.NewFetchFailure(path, respErr.StatusCode, "read rejected")
		e.Body = body
		return e
	}
}
