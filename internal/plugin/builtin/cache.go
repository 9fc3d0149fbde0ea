package builtin

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/riverstone/edgeproxy/internal/cache"
	"github.com/riverstone/edgeproxy/internal/ipmatch"
	"github.com/riverstone/edgeproxy/internal/plugin"
	"github.com/riverstone/edgeproxy/internal/pluginconf"
	pluginerrors "github.com/riverstone/edgeproxy/pkg/errors"
)

// purgeRateLimit bounds PURGE request handling: a cache-busting endpoint is
// a prime abuse target, so it gets its own tight limiter independent of any
// upstream rate limiting.
const (
	purgeRateLimit = 5 // requests per second
	purgeRateBurst = 10
)

const defaultMaxFileSizeBytes = 1024 * 1024 // 1MB

// CachePlugin implements response caching: cacheability is decided
// elsewhere, this plugin builds the cache key prefix, enforces the PURGE
// allow-list, and records the ceilings the host engine applies when it
// actually looks up, serves, or stores a response.
type CachePlugin struct {
	priority int
	hashKey  string

	namespace        string
	headers          []string
	evictionEnabled  bool
	predictorEnabled bool
	lockDuration     time.Duration
	maxTTL           time.Duration
	maxFileSizeBytes int64
	purgeRules       *ipmatch.RuleSet
	purgeLimiter     *rate.Limiter

	backend      cache.Backend
	lockRegistry *cache.LockRegistry
	eviction     cache.EvictionManager
	predictor    cache.Predictor
	// ownsBackend is false when backend/lockRegistry/eviction/predictor came
	// from a shared *cache.Singletons: Cleanup then leaves closing them to
	// whoever owns the singleton's lifetime, instead of closing a backend
	// other plugin instances are still using.
	ownsBackend bool

	logger *slog.Logger
}

// CacheOption configures a CachePlugin beyond what conf carries.
type CacheOption func(*CachePlugin)

// WithCachePriority sets the plugin's execution priority.
func WithCachePriority(priority int) CacheOption {
	return func(p *CachePlugin) { p.priority = priority }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(p *CachePlugin) { p.logger = logger }
}

// WithCacheSingletons points this plugin instance at the host's
// process-wide cache services instead of the ones NewCachePlugin
// constructed from conf, so that every registered cache plugin shares one
// backend, lock registry, eviction manager, and predictor. A backend this
// instance built and still owns is closed before it is replaced. Eviction
// and predictor are only overridden when the singleton actually provides
// one; otherwise this instance's own conf-driven toggle stands.
func WithCacheSingletons(s *cache.Singletons) CacheOption {
	return func(p *CachePlugin) {
		if s == nil {
			return
		}
		if p.ownsBackend && p.backend != nil {
			_ = p.backend.Close()
		}
		p.backend = s.Backend
		p.lockRegistry = s.LockRegistry
		p.ownsBackend = false
		if s.Eviction != nil {
			p.eviction = s.Eviction
			p.evictionEnabled = true
		}
		if s.Predictor != nil {
			p.predictor = s.Predictor
			p.predictorEnabled = true
		}
	}
}

// NewCachePlugin constructs a CachePlugin from conf, per the cache plugin
// configuration surface: lock duration, max TTL, max cacheable file size,
// namespace and header-based key construction, eviction/predictor toggles,
// and the PURGE method's IP allow-list. Construction fails with
// *errors.Invalid for any unparsable value, an unsupported step, or a
// backend that fails to initialize.
func NewCachePlugin(conf pluginconf.Conf, opts ...CacheOption) (*CachePlugin, error) {
	step := conf.GetStep()
	if step != plugin.Request {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCache, "cache plugin only supports the request step, got %s", step)
	}

	lockDuration := time.Second
	if s := conf.GetString("lock"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCache, "parse lock duration %q: %v", s, err)
		}
		lockDuration = d
	}
	// A duration outside {1s, 2s, 3s} is not a configuration error: it
	// simply disables locking, per LockRegistry.Get's ok return.

	var maxTTL time.Duration
	if s := conf.GetString("max_ttl"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCache, "parse max_ttl %q: %v", s, err)
		}
		maxTTL = d
	}

	maxFileSizeBytes := int64(defaultMaxFileSizeBytes)
	if conf.GetString("max_file_size") != "" {
		size, err := conf.GetByteSize("max_file_size")
		if err != nil {
			return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCache, "%v", err)
		}
		maxFileSizeBytes = size
	}

	purgeRules, err := ipmatch.ParseRules(conf.GetStringSlice("purge_ip_list"))
	if err != nil {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCache, "%v", err)
	}

	backendCfg := cache.BackendConfig{
		FileRoot:          conf.GetString("file_path"),
		RedisAddr:         conf.GetString("redis_addr"),
		RedisNamespace:    conf.GetString("namespace"),
		S3Bucket:          conf.GetString("s3_bucket"),
		S3Prefix:          conf.GetString("s3_prefix"),
		S3Region:          conf.GetString("s3_region"),
		S3AccessKeyID:     conf.GetString("s3_access_key_id"),
		S3SecretAccessKey: conf.GetString("s3_secret_access_key"),
		S3SessionToken:    conf.GetString("s3_session_token"),
	}
	if s := conf.GetString("capacity"); s != "" {
		cap, err := conf.GetByteSize("capacity")
		if err != nil {
			return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCache, "%v", err)
		}
		backendCfg.MemoryCapacityBytes = cap
	}
	backend, err := cache.SelectBackend(backendCfg)
	if err != nil {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCache, "init backend: %v", err)
	}

	p := &CachePlugin{
		priority:         0,
		hashKey:          conf.HashKey(),
		namespace:        conf.GetString("namespace"),
		headers:          conf.GetStringSlice("headers"),
		evictionEnabled:  conf.GetBool("eviction"),
		predictorEnabled: conf.GetBool("predictor"),
		lockDuration:     lockDuration,
		maxTTL:           maxTTL,
		maxFileSizeBytes: maxFileSizeBytes,
		purgeRules:       purgeRules,
		purgeLimiter:     rate.NewLimiter(rate.Limit(purgeRateLimit), purgeRateBurst),
		backend:          backend,
		lockRegistry:     cache.NewLockRegistry(),
		ownsBackend:      true,
	}

	if p.evictionEnabled {
		evictionCapacity := backendCfg.MemoryCapacityBytes
		if evictionCapacity <= 0 {
			evictionCapacity = cache.DefaultMemoryCapacityBytes
		}
		p.eviction = cache.NewLRUEviction(evictionCapacity)
	}
	if p.predictorEnabled {
		p.predictor = cache.NewBoundedPredictor()
	}

	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p, nil
}

func (p *CachePlugin) Name() string              { return "cache" }
func (p *CachePlugin) Priority() int             { return p.priority }
func (p *CachePlugin) Step() plugin.Phase        { return plugin.Request }
func (p *CachePlugin) Category() plugin.Category { return plugin.CategoryCache }
func (p *CachePlugin) HashKey() string           { return p.hashKey }

// Handle builds the cache key prefix, gates PURGE by the configured IP
// allow-list, and records the max-TTL ceiling and backend counters for the
// host engine to consult. Actual lookup, serve, and store are the host's
// responsibility; this plugin never returns a short-circuit response except
// for PURGE outcomes.
func (p *CachePlugin) Handle(ctx context.Context, session *plugin.Session, state *plugin.State) (*plugin.Response, error) {
	method := session.Request.Method
	if method != http.MethodGet && method != http.MethodHead && method != "PURGE" {
		return nil, nil
	}

	headerValues := make([]string, 0, len(p.headers))
	for _, name := range p.headers {
		if v := session.Header(name); v != "" {
			headerValues = append(headerValues, v)
		}
	}
	prefix := cache.BuildPrefix(p.namespace, headerValues)
	if prefix != "" {
		state.CachePrefix = &prefix
	}

	if method == "PURGE" {
		return p.handlePurge(ctx, session, state, prefix)
	}

	if p.maxTTL > 0 {
		ttl := p.maxTTL
		state.CacheMaxTTL = &ttl
	}

	stats := p.backend.Stats()
	reading, writing := stats.Reading, stats.Writing
	state.CacheReading = &reading
	state.CacheWriting = &writing
	state.Set("cache_max_file_size_bytes", p.maxFileSizeBytes)
	if p.eviction != nil {
		state.Set("cache_eviction_enabled", true)
	}
	if p.predictor != nil {
		state.Set("cache_predictor_enabled", true)
	}
	if lock, ok := p.lockRegistry.Get(p.lockDuration); ok {
		state.Set("cache_lock", lock)
	}

	return nil, nil
}

func (p *CachePlugin) handlePurge(ctx context.Context, session *plugin.Session, state *plugin.State, prefix string) (*plugin.Response, error) {
	if !p.purgeLimiter.Allow() {
		return plugin.NewResponse(http.StatusTooManyRequests, []byte("Too many purge requests")), nil
	}

	remoteIP := hostIP(session.RemoteAddr)
	trusted := ipmatch.FromNets(session.TrustedProxies)
	clientIP := ipmatch.ClientIP(session.Request, remoteIP, trusted)
	if clientIP == nil {
		return plugin.NewResponse(http.StatusBadRequest, []byte("invalid client address")), nil
	}

	if !p.purgeRules.Allows(clientIP) {
		return plugin.NewResponse(http.StatusForbidden, []byte("Forbidden, ip is not allowed")), nil
	}

	key := cache.BuildKey(prefix, http.MethodGet, session.Request.RequestURI)
	if err := p.backend.Remove(ctx, key.Combined); err != nil {
		return nil, err
	}

	return plugin.NewResponse(http.StatusNoContent, nil), nil
}

func hostIP(addr net.Addr) net.IP {
	if addr == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	return net.ParseIP(host)
}

// Cleanup releases the backing storage backend's resources, unless the
// backend is a shared singleton another plugin instance (or the host
// itself) is still using.
func (p *CachePlugin) Cleanup() error {
	if !p.ownsBackend {
		return nil
	}
	return p.backend.Close()
}

var (
	_ plugin.Plugin  = (*CachePlugin)(nil)
	_ plugin.Cleaner = (*CachePlugin)(nil)
)
