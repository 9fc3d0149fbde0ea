package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineConfig holds configuration for the plugin pipeline.
type PipelineConfig struct {
	// HookTimeout bounds each plugin's Handle call (default: 10s).
	HookTimeout time.Duration

	// PropagateErrors determines whether plugin errors are propagated to the
	// caller. When false (default), plugin errors are logged but the next
	// plugin still runs.
	PropagateErrors bool

	// MaxPlugins is the maximum number of plugins allowed (default: 100).
	MaxPlugins int
}

// DefaultPipelineConfig returns a PipelineConfig with sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		HookTimeout:     10 * time.Second,
		PropagateErrors: false,
		MaxPlugins:      100,
	}
}

var (
	handleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "edgeproxy",
		Subsystem: "plugin",
		Name:      "handle_duration_seconds",
		Help:      "Duration of a single plugin Handle call.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"plugin", "phase"})

	shortCircuitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgeproxy",
		Subsystem: "plugin",
		Name:      "short_circuit_total",
		Help:      "Count of pipeline runs short-circuited by a plugin.",
	}, []string{"plugin", "phase"})

	handleErrorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgeproxy",
		Subsystem: "plugin",
		Name:      "handle_error_total",
		Help:      "Count of plugin Handle calls that returned an error.",
	}, []string{"plugin", "phase"})
)

func init() {
	prometheus.MustRegister(handleDuration, shortCircuitTotal, handleErrorTotal)
}

// Pipeline manages the ordered execution of plugins across request phases.
// Within a phase, plugins run in ascending priority order; a plugin that
// returns a non-nil *Response ends the phase immediately.
type Pipeline struct {
	plugins []Plugin
	logger  *slog.Logger
	config  PipelineConfig
	closed  atomic.Bool

	statePool sync.Pool

	mu sync.RWMutex
}

// NewPipeline creates a new plugin pipeline.
func NewPipeline(logger *slog.Logger, config PipelineConfig) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	if config.HookTimeout == 0 {
		config.HookTimeout = 10 * time.Second
	}
	if config.MaxPlugins == 0 {
		config.MaxPlugins = 100
	}

	return &Pipeline{
		plugins: make([]Plugin, 0),
		logger:  logger,
		config:  config,
		statePool: sync.Pool{
			New: func() any {
				return &State{values: make(map[string]any)}
			},
		},
	}
}

// Register adds a plugin to the pipeline, inserted in ascending priority order.
func (p *Pipeline) Register(pl Plugin) error {
	if p.closed.Load() {
		return ErrPipelineClosed
	}
	if pl == nil {
		return ErrNilPlugin
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.plugins {
		if existing.Name() == pl.Name() {
			return ErrDuplicatePlugin
		}
	}

	if len(p.plugins) >= p.config.MaxPlugins {
		return ErrTooManyPlugins
	}

	idx := sort.Search(len(p.plugins), func(i int) bool {
		return p.plugins[i].Priority() > pl.Priority()
	})

	p.plugins = append(p.plugins, nil)
	copy(p.plugins[idx+1:], p.plugins[idx:])
	p.plugins[idx] = pl

	p.logger.Info("plugin registered",
		"name", pl.Name(),
		"priority", pl.Priority(),
		"step", pl.Step().String(),
		"category", string(pl.Category()),
		"total_plugins", len(p.plugins),
	)

	return nil
}

// Unregister removes a plugin by name.
func (p *Pipeline) Unregister(name string) error {
	if p.closed.Load() {
		return ErrPipelineClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, pl := range p.plugins {
		if pl.Name() == name {
			p.plugins = append(p.plugins[:i], p.plugins[i+1:]...)
			p.logger.Info("plugin unregistered", "name", name)
			return nil
		}
	}

	return ErrPluginNotFound
}

// Plugins returns a copy of the registered plugins.
func (p *Pipeline) Plugins() []Plugin {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]Plugin, len(p.plugins))
	copy(result, p.plugins)
	return result
}

// PluginCount returns the number of registered plugins.
func (p *Pipeline) PluginCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.plugins)
}

// GetState acquires a State from the pool.
func (p *Pipeline) GetState() *State {
	return p.statePool.Get().(*State)
}

// PutState returns a State to the pool.
func (p *Pipeline) PutState(s *State) {
	s.Reset()
	p.statePool.Put(s)
}

// RunPhase executes every registered plugin whose Step matches phase, in
// ascending priority order. It stops and returns the first non-nil
// *Response. session and state are shared across all plugins in the call.
func (p *Pipeline) RunPhase(ctx context.Context, phase Phase, session *Session, state *State) (*Response, error) {
	p.mu.RLock()
	plugins := p.plugins
	p.mu.RUnlock()

	var firstErr error

	for _, pl := range plugins {
		if pl.Step() != phase {
			continue
		}

		hookCtx, cancel := context.WithTimeout(ctx, p.config.HookTimeout)

		p.logger.Debug("running plugin",
			"plugin", pl.Name(),
			"priority", pl.Priority(),
			"phase", phase.String(),
		)

		start := time.Now()
		resp, err := pl.Handle(hookCtx, session, state)
		duration := time.Since(start)
		cancel()

		handleDuration.WithLabelValues(pl.Name(), phase.String()).Observe(duration.Seconds())

		if err != nil {
			handleErrorTotal.WithLabelValues(pl.Name(), phase.String()).Inc()
			p.logger.Warn("plugin error",
				"plugin", pl.Name(),
				"phase", phase.String(),
				"error", err,
				"duration", duration,
			)
			if firstErr == nil {
				firstErr = err
			}
			if p.config.PropagateErrors {
				return nil, fmt.Errorf("%s: %w", pl.Name(), err)
			}
			continue
		}

		p.logger.Debug("plugin completed",
			"plugin", pl.Name(),
			"phase", phase.String(),
			"duration", duration,
		)

		if resp != nil {
			shortCircuitTotal.WithLabelValues(pl.Name(), phase.String()).Inc()
			p.logger.Debug("plugin short-circuit",
				"plugin", pl.Name(),
				"phase", phase.String(),
				"status", resp.Status,
			)
			return resp, nil
		}
	}

	return nil, firstErr
}

// Shutdown gracefully shuts down all plugins implementing Cleaner.
func (p *Pipeline) Shutdown() error {
	if p.closed.Swap(true) {
		return ErrPipelineClosed
	}

	p.mu.RLock()
	plugins := p.plugins
	p.mu.RUnlock()

	var errs []error
	for _, pl := range plugins {
		cleaner, ok := pl.(Cleaner)
		if !ok {
			continue
		}
		if err := cleaner.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pl.Name(), err))
			p.logger.Error("plugin cleanup failed", "plugin", pl.Name(), "error", err)
		} else {
			p.logger.Debug("plugin cleaned up", "plugin", pl.Name())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("plugin cleanup errors: %v", errs)
	}

	p.logger.Info("plugin pipeline shutdown complete", "plugins", len(plugins))
	return nil
}

// IsClosed returns whether the pipeline has been shut down.
func (p *Pipeline) IsClosed() bool {
	return p.closed.Load()
}
