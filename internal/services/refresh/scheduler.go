package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	adapterports "github.com/kevin07696/vault-secret-agent/internal/adapters/ports"
	"github.com/kevin07696/vault-secret-agent/internal/cache"
	"github.com/kevin07696/vault-secret-agent/internal/domain"
	"github.com/kevin07696/vault-secret-agent/internal/services/ports"
	"github.com/kevin07696/vault-secret-agent/internal/session"
	"github.com/kevin07696/vault-secret-agent/pkg/observability"
	"github.com/kevin07696/vault-secret-agent/pkg/resilience"
)

const tracerName = "github.com/kevin07696/vault-secret-agent/internal/services/refresh"

// Config controls what the scheduler fetches and how often
type Config struct {
	MountPath    string        // KV v2 mount
	Paths        []string      // secret paths, duplicates are fetched once
	Interval     time.Duration // fixed tick period
	Concurrency  int           // <= 1 fetches sequentially in path order
	RevealValues bool          // log field values instead of masking them
}

// SweepReport summarizes one pass over the configured paths
type SweepReport struct {
	ID        string
	Attempted int
	Succeeded int
	Failed    []string
	Duration  time.Duration
}

// Outcome is the sweep metric label
func (r SweepReport) Outcome() string {
	if len(r.Failed) == 0 {
		return observability.SweepComplete
	}
	return observability.SweepPartial
}

// TickReport is the result of one evaluate-then-sweep pass. Sweep is nil when skipped.
type TickReport struct {
	Evaluation domain.EvaluationOutcome
	Sweep      *SweepReport
}

// Scheduler drives the token lifecycle and keeps the secret cache fresh
type Scheduler struct {
	tickMu    sync.Mutex
	lifecycle ports.TokenLifecycle
	session   *session.Session
	cache     *cache.SecretCache
	reader    adapterports.SecretReader
	mirror    adapterports.CacheMirror
	cfg       Config
	paths     []string
	timeouts  *resilience.TimeoutConfig
	logger    *zap.Logger
	tracer    trace.Tracer
	ready     atomic.Bool
}

// NewScheduler creates a new refresh scheduler. mirror may be nil.
func NewScheduler(
	lifecycle ports.TokenLifecycle,
	sess *session.Session,
	secretCache *cache.SecretCache,
	reader adapterports.SecretReader,
	mirror adapterports.CacheMirror,
	cfg Config,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
) (*Scheduler, error) {
	if lifecycle == nil || sess == nil || secretCache == nil || reader == nil {
		return nil, errors.New("refresh scheduler requires lifecycle, session, cache and reader")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", cfg.Interval)
	}
	paths := DedupePaths(cfg.Paths)
	if len(paths) == 0 {
		return nil, errors.New("at least one secret path is required")
	}
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}

	return &Scheduler{
		lifecycle: lifecycle,
		session:   sess,
		cache:     secretCache,
		reader:    reader,
		mirror:    mirror,
		cfg:       cfg,
		paths:     paths,
		timeouts:  timeouts,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// WithTracer replaces the tracer taken from the global provider
func (s *Scheduler) WithTracer(t trace.Tracer) *Scheduler {
	s.tracer = t
	return s
}

// DedupePaths trims paths and drops blanks and repeats, keeping first-seen order
func DedupePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Paths returns the deduplicated path list in fetch order
func (s *Scheduler) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Ready reports whether the bootstrap pass has run
func (s *Scheduler) Ready() bool {
	return s.ready.Load()
}

// Run bootstraps and then ticks every Interval until ctx is cancelled.
// Ticks run on a context detached from ctx, so cancellation stops scheduling but lets
// an in-flight tick finish within the tick timeout.
func (s *Scheduler) Run(ctx context.Context) {
	tickParent := context.WithoutCancel(ctx)

	s.Bootstrap(tickParent)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Refresh scheduler running",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("paths", len(s.paths)),
		zap.Int("concurrency", s.concurrency()),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Refresh scheduler stopping", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			// A tick that overran its period leaves at most one pending tick in the
			// ticker; the rest are dropped.
			s.Tick(tickParent)
		}
	}
}

// Bootstrap authenticates once and, on success, sweeps every path
func (s *Scheduler) Bootstrap(ctx context.Context) *SweepReport {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	defer s.ready.Store(true)

	tickCtx, cancel := s.timeouts.TickContext(ctx)
	defer cancel()
	tickCtx, span := s.tracer.Start(tickCtx, "refresh.bootstrap")
	defer span.End()

	s.logger.Info("Bootstrapping secret agent", zap.Strings("paths", s.paths))

	if err := s.lifecycle.Authenticate(tickCtx); err != nil {
		s.logger.Warn("Bootstrap authentication failed - retrying on next tick", zap.Error(err))
	}
	return s.sweepIfAuthenticated(tickCtx)
}

// Tick runs one serialized pass: evaluate the token, then sweep iff AUTHENTICATED
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	tickCtx, cancel := s.timeouts.TickContext(ctx)
	defer cancel()
	tickCtx, span := s.tracer.Start(tickCtx, "refresh.tick")
	defer span.End()

	outcome := s.lifecycle.Evaluate(tickCtx)
	span.SetAttributes(
		attribute.String("lifecycle.action", string(outcome.Action)),
		attribute.String("lifecycle.state", outcome.State.String()),
	)
	s.logger.Debug("Token lifecycle evaluated",
		zap.String("action", string(outcome.Action)),
		zap.String("state", outcome.State.String()),
		zap.Int64("remaining_ttl", outcome.RemainingTTL),
		zap.Int64("threshold", outcome.Threshold),
	)

	return TickReport{
		Evaluation: outcome,
		Sweep:      s.sweepIfAuthenticated(tickCtx),
	}
}

func (s *Scheduler) sweepIfAuthenticated(ctx context.Context) *SweepReport {
	snap := s.session.Snapshot()
	state := s.lifecycle.State()
	remaining := snap.RemainingTTL(s.session.Now())

	if state != domain.StateAuthenticated || remaining <= 0 {
		observability.RecordSweep(observability.SweepSkipped, 0)
		s.logger.Warn("Skipping secret sweep - no usable token",
			zap.String("state", state.String()),
			zap.Int64("remaining_ttl", remaining),
		)
		return nil
	}

	report := s.sweep(ctx, snap.Token)
	return &report
}

// sweep fetches every path with one token. Callers hold tickMu.
func (s *Scheduler) sweep(ctx context.Context, token string) SweepReport {
	report := SweepReport{ID: uuid.NewString(), Attempted: len(s.paths)}
	startTime := time.Now()
	logger := s.logger.With(zap.String("sweep_id", report.ID))

	ctx, span := s.tracer.Start(ctx, "refresh.sweep")
	defer span.End()
	span.SetAttributes(
		attribute.String("sweep.id", report.ID),
		attribute.Int("sweep.paths", len(s.paths)),
	)

	ok := make([]bool, len(s.paths))
	if n := s.concurrency(); n <= 1 {
		for i, path := range s.paths {
			ok[i] = s.fetch(ctx, logger, path, token)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(n)
		for i, path := range s.paths {
			g.Go(func() error {
				ok[i] = s.fetch(ctx, logger, path, token)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, path := range s.paths {
		if ok[i] {
			report.Succeeded++
		} else {
			report.Failed = append(report.Failed, path)
		}
	}
	report.Duration = time.Since(startTime)
	span.SetAttributes(attribute.Int("sweep.failed", len(report.Failed)))

	observability.RecordSweep(report.Outcome(), report.Duration.Seconds())
	observability.UpdateCacheEntries(s.cache.Len())

	logger.Info("Secret sweep finished",
		zap.String("outcome", report.Outcome()),
		zap.Int("succeeded", report.Succeeded),
		zap.Strings("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	s.logSnapshot(logger)
	return report
}

// fetch reads one path and replaces its cache entry. A failure leaves the entry untouched.
func (s *Scheduler) fetch(ctx context.Context, logger *zap.Logger, path, token string) bool {
	ctx, span := s.tracer.Start(ctx, "refresh.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("secret.path", path))

	callCtx, cancel := s.timeouts.BackendCallContext(ctx)
	defer cancel()

	startTime := time.Now()
	data, err := s.reader.Read(callCtx, s.cfg.MountPath, path, token)
	if err == nil && data == nil {
		err = domain.NewFetchFailure(path, 0, "empty secret response")
	}
	elapsed := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "secret fetch failed")
		observability.RecordSecretFetch(path, resultLabel(err), elapsed.Seconds())
		logger.Warn("Secret fetch failed - keeping cached value",
			zap.String("path", path),
			zap.Int("http_status", domain.StatusCode(err)),
			zap.Bool("transport_error", domain.IsTransportError(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return false
	}

	entry := s.cache.Put(path, data.Fields, data.Version)
	observability.RecordSecretFetch(path, observability.ResultSuccess, elapsed.Seconds())
	logger.Info("Secret fetched",
		zap.String("path", path),
		zap.String("version", entry.VersionString()),
		zap.Int("fields", len(entry.Fields)),
		zap.Duration("elapsed", elapsed),
	)

	s.publish(ctx, logger, entry)
	return true
}

// publish copies an entry to the mirror. Mirror failures never affect the sweep.
func (s *Scheduler) publish(ctx context.Context, logger *zap.Logger, entry domain.SecretEntry) {
	if s.mirror == nil {
		return
	}

	mirrorCtx, cancel := s.timeouts.MirrorContext(ctx)
	defer cancel()

	if err := s.mirror.Publish(mirrorCtx, entry); err != nil {
		observability.RecordMirrorPublish(observability.ResultFailure)
		logger.Warn("Cache mirror publish failed",
			zap.String("path", entry.Path),
			zap.Error(err),
		)
		return
	}
	observability.RecordMirrorPublish(observability.ResultSuccess)
}

func (s *Scheduler) logSnapshot(logger *zap.Logger) {
	for _, entry := range s.cache.Snapshot() {
		logger.Info("Cached secret",
			zap.String("path", entry.Path),
			zap.String("version", entry.VersionString()),
			zap.Time("fetched_at", entry.FetchedAt),
			zap.Any("fields", entry.DisplayFields(s.cfg.RevealValues)),
		)
	}
}

func (s *Scheduler) concurrency() int {
	if s.cfg.Concurrency < 1 {
		return 1
	}
	return s.cfg.Concurrency
}

// resultLabel maps a fetch error to its metric label
func resultLabel(err error) string {
	if domain.IsTransportError(err) {
		return observability.ResultTransportError
	}
	return observability.ResultFailure
}
