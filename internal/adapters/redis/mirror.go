package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevin07696/vault-secret-agent/internal/adapters/ports"
	"github.com/kevin07696/vault-secret-agent/internal/domain"
)

// Config holds configuration for the Redis cache mirror
type Config struct {
	Address  string
	Password string
	DB       int
	Prefix   string        // default: "vault-agent:"
	TTL      time.Duration // zero keeps mirrored keys until the next publish
}

// Mirror writes each freshly fetched cache entry to Redis as two hashes:
//
//	<prefix><path>       field -> value
//	<prefix><path>#meta  version, fetched_at
//
// Both keys are replaced in one MULTI/EXEC so readers never see a mix of versions.
type Mirror struct {
	client goredis.UniversalClient
	cfg    Config
	logger *zap.Logger
}

var _ ports.CacheMirror = (*Mirror)(nil)

// NewMirror connects to Redis and verifies the connection with PING
func NewMirror(ctx context.Context, cfg Config, logger *zap.Logger) (*Mirror, error) {
	opts := &goredis.Options{
		Addr: cfg.Address,
		DB:   cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis mirror: ping %s failed: %w", cfg.Address, err)
	}

	logger.Info("Redis cache mirror connected",
		zap.String("address", cfg.Address),
		zap.Int("db", cfg.DB),
		zap.String("prefix", withDefaultPrefix(cfg.Prefix)),
	)

	return NewMirrorWithClient(client, cfg, logger), nil
}

// NewMirrorWithClient creates a Mirror backed by a pre-built client
func NewMirrorWithClient(client goredis.UniversalClient, cfg Config, logger *zap.Logger) *Mirror {
	cfg.Prefix = withDefaultPrefix(cfg.Prefix)
	return &Mirror{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Publish replaces the mirrored copy of entry
func (m *Mirror) Publish(ctx context.Context, entry domain.SecretEntry) error {
	fieldsKey := m.FieldsKey(entry.Path)
	metaKey := m.MetaKey(entry.Path)

	meta := map[string]interface{}{
		"version":    entry.VersionString(),
		"fetched_at": entry.FetchedAt.UTC().Format(time.RFC3339),
	}

	_, err := m.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, fieldsKey, metaKey)
		// HSET with no fields is an error; an empty secret leaves only the meta hash
		if len(entry.Fields) > 0 {
			values := make(map[string]interface{}, len(entry.Fields))
			for k, v := range entry.Fields {
				values[k] = v
			}
			pipe.HSet(ctx, fieldsKey, values)
		}
		pipe.HSet(ctx, metaKey, meta)
		if m.cfg.TTL > 0 {
			if len(entry.Fields) > 0 {
				pipe.Expire(ctx, fieldsKey, m.cfg.TTL)
			}
			pipe.Expire(ctx, metaKey, m.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis mirror: publish %s: %w", entry.Path, err)
	}

	m.logger.Debug("Mirrored cache entry",
		zap.String("path", entry.Path),
		zap.String("key", fieldsKey),
		zap.String("version", entry.VersionString()),
		zap.Int("fields", len(entry.Fields)),
	)
	return nil
}

// Ping checks that Redis is reachable
func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (m *Mirror) Close() error {
	return m.client.Close()
}

// FieldsKey returns the Redis key holding the fields of path
func (m *Mirror) FieldsKey(path string) string {
	return m.cfg.Prefix + path
}

// MetaKey returns the Redis key holding version metadata of path
func (m *Mirror) MetaKey(path string) string {
	return m.cfg.Prefix + path + "#meta"
}

func withDefaultPrefix(prefix string) string {
	if prefix == "" {
		return "vault-agent:"
	}
	return prefix
}
