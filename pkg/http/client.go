package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// VaultTransportConfig tunes the *http.Client handed to the Vault API client.
// Zero fields take the defaults below.
type VaultTransportConfig struct {
	RequestTimeout      time.Duration // whole request, also caps waiting for headers
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	MaxConnsPerHost     int // Vault is one host; idle pool is sized to match
	IdleConnTimeout     time.Duration
	InsecureSkipVerify  bool
}

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultDialTimeout     = 5 * time.Second
	defaultTLSHandshake    = 5 * time.Second
	defaultMaxConnsPerHost = 10
	defaultIdleConnTimeout = 90 * time.Second
	keepAlive              = 60 * time.Second
)

func (c VaultTransportConfig) withDefaults() VaultTransportConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.TLSHandshakeTimeout <= 0 {
		c.TLSHandshakeTimeout = defaultTLSHandshake
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = defaultMaxConnsPerHost
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = defaultIdleConnTimeout
	}
	return c
}

// NewVaultClient builds the pooled client used for login, renew-self and KV reads.
// The transport is a plain *http.Transport so the Vault API client can still layer
// its own TLS settings on top.
func NewVaultClient(cfg VaultTransportConfig) *http.Client {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: keepAlive,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.RequestTimeout,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
}
