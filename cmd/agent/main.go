package main

import (
	"context"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	adapterports "github.com/kevin07696/vault-secret-agent/internal/adapters/ports"
	redismirror "github.com/kevin07696/vault-secret-agent/internal/adapters/redis"
	"github.com/kevin07696/vault-secret-agent/internal/adapters/vault"
	"github.com/kevin07696/vault-secret-agent/internal/cache"
	"github.com/kevin07696/vault-secret-agent/internal/config"
	"github.com/kevin07696/vault-secret-agent/internal/handlers/diagnostics"
	"github.com/kevin07696/vault-secret-agent/internal/services/lifecycle"
	"github.com/kevin07696/vault-secret-agent/internal/services/refresh"
	"github.com/kevin07696/vault-secret-agent/internal/session"
	pkghttp "github.com/kevin07696/vault-secret-agent/pkg/http"
	"github.com/kevin07696/vault-secret-agent/pkg/middleware"
	"github.com/kevin07696/vault-secret-agent/pkg/observability"
	"github.com/kevin07696/vault-secret-agent/pkg/resilience"
	"github.com/kevin07696/vault-secret-agent/pkg/shutdown"
	"github.com/kevin07696/vault-secret-agent/pkg/timeutil"
)

const version = "0.1.0"

func main() {
	// Configuration errors are fatal before anything starts
	cfg, err := config.LoadFromEnv()
	if err != nil {
		initLogger(config.Defaults().Logger).Fatal("Invalid configuration", zap.Error(err))
	}

	logger := initLogger(cfg.Logger)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vault secret agent",
		zap.String("version", version),
		zap.String("vault_addr", cfg.Vault.Address),
		zap.Strings("paths", cfg.Refresh.SecretPaths),
		zap.Duration("interval", cfg.Refresh.Interval),
		zap.String("threshold_percent", cfg.Refresh.ThresholdPercent.String()),
	)

	timeouts := resilience.ForSchedule(cfg.Vault.RequestTimeout, cfg.Refresh.Interval)
	clock := timeutil.SystemClock{}

	// Tracing must be installed before components take their tracers
	tracerProvider, err := observability.NewTracerProvider(context.Background(), observability.TracingConfig{
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Vault transport
	vaultHTTPClient := pkghttp.NewVaultClient(pkghttp.VaultTransportConfig{
		RequestTimeout:     cfg.Vault.RequestTimeout,
		InsecureSkipVerify: cfg.Vault.TLSSkipVerify,
	})
	adapter, err := vault.NewAdapter(&vault.Config{
		Address:            cfg.Vault.Address,
		Namespace:          cfg.Vault.Namespace,
		LoginWithNamespace: cfg.Vault.LoginWithNamespace,
		AppRoleMountPath:   cfg.Vault.AppRoleMount,
		TLSSkipVerify:      cfg.Vault.TLSSkipVerify,
		Timeout:            cfg.Vault.RequestTimeout,
	}, vaultHTTPClient, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Vault adapter", zap.Error(err))
	}

	// Owned state
	sess := session.New(clock)
	secretCache := cache.New(clock)

	lifecycleManager, err := lifecycle.NewManager(
		adapter,
		sess,
		lifecycle.Credentials{RoleID: cfg.Vault.RoleID, SecretID: cfg.Vault.SecretID},
		cfg.Refresh.ThresholdRatio(),
		timeouts,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize token lifecycle manager", zap.Error(err))
	}

	// Optional Redis mirror
	mirror := initMirror(cfg.Mirror, timeouts, logger)
	var cacheMirror adapterports.CacheMirror
	if mirror != nil {
		cacheMirror = mirror
	}

	scheduler, err := refresh.NewScheduler(
		lifecycleManager,
		sess,
		secretCache,
		adapter,
		cacheMirror,
		refresh.Config{
			MountPath:    cfg.Vault.KVMountPath,
			Paths:        cfg.Refresh.SecretPaths,
			Interval:     cfg.Refresh.Interval,
			Concurrency:  cfg.Refresh.FetchConcurrency,
			RevealValues: cfg.Refresh.RevealValues,
		},
		timeouts,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize refresh scheduler", zap.Error(err))
	}

	// Diagnostics, health and metrics
	healthChecker := observability.NewHealthChecker(lifecycleManager, scheduler)
	if mirror != nil {
		healthChecker.AddCheck("redis_mirror", mirror.Ping)
	}

	diagnosticsHandler := diagnostics.NewHandler(secretCache, sess, lifecycleManager, cfg.Refresh.RevealValues, logger)
	rateLimiter := middleware.NewRateLimiter(cfg.Diagnostics.RateLimit, cfg.Diagnostics.Burst, logger)
	requestTimeout := middleware.NewTimeout(timeouts, logger)

	router := observability.NewRouter(healthChecker, diagnosticsHandler.SetupRoutes,
		rateLimiter.Middleware,
		requestTimeout.Middleware,
	)
	server := observability.StartServer(strconv.Itoa(cfg.Diagnostics.Port), router, logger)

	// Refresh loop
	worker := shutdown.NewBackgroundWorker(context.Background(), "refresh-scheduler", logger)
	worker.Start(scheduler.Run)

	// Components shut down in reverse: scheduler, server, rate limiter, mirror, tracing
	shutdownManager := shutdown.NewManager(logger, timeouts.Shutdown)
	shutdownManager.Register("tracer-provider", tracerProvider.Shutdown)
	if mirror != nil {
		shutdownManager.RegisterCloser("redis-mirror", mirror)
	}
	shutdownManager.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)
	shutdownManager.RegisterHTTPServer("diagnostics-server", server)
	shutdownManager.Register("refresh-scheduler", worker.Shutdown)

	if err := shutdownManager.WaitForShutdown(context.Background()); err != nil {
		logger.Error("Shutdown completed with errors", zap.Error(err))
	}

	logger.Info("Vault secret agent stopped")
}

// initLogger initializes the logger
func initLogger(lc config.LoggerConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	if !lc.Development() {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// initMirror connects the Redis mirror when configured. A mirror that cannot be reached
// at startup is disabled rather than blocking the agent.
func initMirror(mc config.MirrorConfig, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *redismirror.Mirror {
	if !mc.Enabled() {
		logger.Info("Redis cache mirror disabled")
		return nil
	}

	ctx, cancel := timeouts.BackendCallContext(context.Background())
	defer cancel()

	mirror, err := redismirror.NewMirror(ctx, redismirror.Config{
		Address:  mc.Address,
		Password: mc.Password,
		DB:       mc.DB,
		Prefix:   mc.KeyPrefix,
		TTL:      mc.TTL,
	}, logger)
	if err != nil {
		logger.Warn("Redis cache mirror unavailable - continuing without it", zap.Error(err))
		return nil
	}
	return mirror
}
