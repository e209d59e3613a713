// Package service provides the application service behind the HTTP API and
// the CLI: chart registry, timeline computation, storage and asynchronous
// narrative annotation.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/okian/kline/internal/adapters/llm"
	eventqueue "github.com/okian/kline/internal/adapters/mq/queue"
	workerpool "github.com/okian/kline/internal/adapters/mq/worker"
	"github.com/okian/kline/internal/adapters/narrative"
	repository "github.com/okian/kline/internal/adapters/repository"
	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/dedupe"
	"github.com/okian/kline/pkg/logger"
	"github.com/okian/kline/pkg/metrics"
)

// BackendFactory builds a narrative backend from a backend config.
type BackendFactory func(cfg llm.Config) (narrative.Backend, error)

// Service implements the operations exposed by the API and the CLI.
type Service struct {
	mu sync.RWMutex

	// Core components
	synth   *curve.Synthesizer
	store   repository.Store
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
	group   singleflight.Group

	// Backends
	backendCfg     llm.Config
	backendFactory BackendFactory
	backends       map[string]narrative.Backend

	// Registry and in-flight narrative generations
	charts   map[string]chartEntry
	inflight map[string]generation
	gen      uint64

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of annotation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending annotation jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many annotated points are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSynthesizer sets the curve synthesizer.
func WithSynthesizer(synth *curve.Synthesizer) Option {
	return func(s *Service) {
		if synth != nil {
			s.synth = synth
		}
	}
}

// WithStore sets the timeline store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithBackendConfig sets the default backend used for annotations and
// for narrative requests that do not bring their own.
func WithBackendConfig(cfg llm.Config) Option {
	return func(s *Service) { s.backendCfg = cfg }
}

// WithBackendFactory replaces how backends are built.
func WithBackendFactory(f BackendFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.backendFactory = f
		}
	}
}

// New constructs a Service. The store, deduper and queue are ready
// immediately; annotation workers run between Start and Stop.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   10_000,
		dedupeSize:  50_000,
		backendCfg:  llm.DefaultConfig(),
		backendFactory: func(cfg llm.Config) (narrative.Backend, error) {
			g, err := llm.New(cfg)
			if err != nil {
				return nil, err
			}
			return g, nil
		},
		backends: make(map[string]narrative.Backend),
		charts:   make(map[string]chartEntry),
		inflight: make(map[string]generation),
		logger:   logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.synth == nil {
		s.synth = curve.NewSynthesizer(curve.WithLogger(s.logger.Named("curve")))
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	return s
}

// Synthesizer returns the curve synthesizer.
func (s *Service) Synthesizer() *curve.Synthesizer { return s.synth }

// Start launches the annotation workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.pool = workerpool.NewPool(s.workerCount, s.queue, workerpool.HandlerFunc(s.annotate),
		workerpool.WithLogger(s.logger.Named("workers")))
	s.pool.Start(ctx)
	s.started = true
	s.logger.Info(ctx, "kline service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop cancels in-flight narrative generations and drains the annotation
// queue. The service cannot be restarted.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	for key, g := range s.inflight {
		g.cancel(context.Canceled)
		delete(s.inflight, key)
	}
	pool := s.pool
	started := s.started
	s.started = false
	s.mu.Unlock()

	if !started {
		return nil
	}
	if err := pool.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop workers: %w", err)
	}
	s.logger.Info(ctx, "kline service stopped")
	return nil
}

// backendFor returns the backend for cfg, reusing one built earlier for the
// same provider, endpoint, model and key so that its breaker and rate
// limit state carry over between requests.
func (s *Service) backendFor(cfg llm.Config) (narrative.Backend, error) {
	cfg = s.mergeBackend(cfg)
	id := cfg.Provider + "|" + cfg.BaseURL + "|" + cfg.Model + "|" + cfg.APIKey
	s.mu.RLock()
	b, ok := s.backends[id]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}
	b, err := s.backendFactory(cfg)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if existing, ok := s.backends[id]; ok {
		b = existing
	} else {
		s.backends[id] = b
	}
	s.mu.Unlock()
	return b, nil
}

// mergeBackend fills unset fields of cfg from the default backend config.
// A request naming another provider keeps only the default tunables.
func (s *Service) mergeBackend(cfg llm.Config) llm.Config {
	def := s.backendCfg
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
		if cfg.APIKey == "" {
			cfg.APIKey = def.APIKey
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = def.BaseURL
		}
		if cfg.Model == "" {
			cfg.Model = def.Model
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = def.BreakerThreshold
	}
	return cfg
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	charts := len(s.charts)
	inflight := len(s.inflight)
	started := s.started
	s.mu.RUnlock()

	cache := s.synth.Cache().Stats()
	queueLen := s.queue.Len(ctx)
	stats := map[string]any{
		"started":         started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"queueLength":     queueLen,
		"dedupeSize":      s.deduper.Size(),
		"charts":          charts,
		"timelinesStored": s.store.Count(ctx),
		"inflight":        inflight,
		"decadeCache": map[string]any{
			"hits":    cache.Hits,
			"misses":  cache.Misses,
			"entries": cache.Entries,
		},
	}
	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateChartsRegistered(charts)
	return stats
}
