// Package main is the entry point for the edgeproxy reverse proxy demo.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riverstone/edgeproxy/internal/cache"
	"github.com/riverstone/edgeproxy/internal/ipmatch"
	"github.com/riverstone/edgeproxy/internal/plugin"
	"github.com/riverstone/edgeproxy/internal/plugin/builtin"
	bodylimit "github.com/riverstone/edgeproxy/internal/httputil"
)

// maxBodyBytesKey carries the cache plugin's recorded max_file_size ceiling
// from the Request phase through to the reverse proxy's ModifyResponse hook.
type maxBodyBytesKey struct{}

// requestIDHeader is the header carrying the per-request correlation ID that
// requestIDMiddleware sets on every response.
const requestIDHeader = "X-Request-Id"

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/edgeproxy.yaml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting edgeproxy", "version", "0.1.0")

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	upstreamURL, err := url.Parse(cfg.Upstream)
	if err != nil {
		return fmt.Errorf("parse upstream url: %w", err)
	}

	trustedProxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse trusted_proxies: %w", err)
	}

	cacheSingletons, err := cache.NewSingletons(cache.BackendConfig{
		FileRoot:            cfg.Cache.FilePath,
		RedisAddr:           cfg.Cache.RedisAddr,
		RedisNamespace:      cfg.Cache.Namespace,
		MemoryCapacityBytes: cfg.Cache.MemoryCapacityBytes,
		Logger:              logger,
		S3Bucket:            cfg.Cache.S3Bucket,
		S3Prefix:            cfg.Cache.S3Prefix,
		S3Region:            cfg.Cache.S3Region,
		S3AccessKeyID:       cfg.Cache.S3AccessKeyID,
		S3SecretAccessKey:   cfg.Cache.S3SecretAccessKey,
		S3SessionToken:      cfg.Cache.S3SessionToken,
	}, cfg.Cache.Eviction, cfg.Cache.Predictor)
	if err != nil {
		return fmt.Errorf("init cache singletons: %w", err)
	}
	defer func() {
		if err := cacheSingletons.Backend.Close(); err != nil {
			logger.Error("cache backend close error", "error", err)
		}
	}()

	pipeline := plugin.NewPipeline(logger, plugin.DefaultPipelineConfig())
	if err := registerPlugins(pipeline, cfg.Plugins, cacheSingletons); err != nil {
		return fmt.Errorf("register plugins: %w", err)
	}
	defer func() {
		if err := pipeline.Shutdown(); err != nil {
			logger.Error("pipeline shutdown error", "error", err)
		}
	}()

	reverseProxy := httputil.NewSingleHostReverseProxy(upstreamURL)
	reverseProxy.ModifyResponse = limitUpstreamBody

	mux := http.NewServeMux()
	mux.Handle("/", requestIDMiddleware(proxyHandler(pipeline, reverseProxy, trustedProxies, logger)))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}

	serverErr := make(chan error, 2)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down server...")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// registerPlugins constructs and registers each configured plugin instance
// in the order listed, per its declared type. Every "cache" instance shares
// singletons, the process-wide backend/lock-registry/eviction/predictor
// set built once in run(), rather than constructing its own.
func registerPlugins(pipeline *plugin.Pipeline, plugins []PluginConfig, singletons *cache.Singletons) error {
	for _, pc := range plugins {
		conf := pc.Conf()

		var (
			pl  plugin.Plugin
			err error
		)

		switch pc.Type {
		case "cache":
			pl, err = builtin.NewCachePlugin(conf,
				builtin.WithCachePriority(pc.Priority),
				builtin.WithCacheSingletons(singletons),
			)
		case "csrf":
			pl, err = builtin.NewCsrfPlugin(conf, builtin.WithCsrfPriority(pc.Priority))
		case "key_auth":
			pl, err = builtin.NewKeyAuthPlugin(conf, builtin.WithKeyAuthPriority(pc.Priority))
		default:
			return fmt.Errorf("unknown plugin type %q", pc.Type)
		}
		if err != nil {
			return fmt.Errorf("construct %s plugin: %w", pc.Type, err)
		}

		if err := pipeline.Register(pl); err != nil {
			return fmt.Errorf("register %s plugin: %w", pc.Type, err)
		}
	}
	return nil
}

func parseTrustedProxies(rules []string) ([]*net.IPNet, error) {
	set, err := ipmatch.ParseRules(rules)
	if err != nil {
		return nil, err
	}
	return set.Nets(), nil
}

// proxyHandler runs the Request phase, serving a plugin's short-circuit
// response directly or forwarding upstream if every plugin let the request
// through.
func proxyHandler(pipeline *plugin.Pipeline, upstream *httputil.ReverseProxy, trustedProxies []*net.IPNet, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remoteAddr, err := net.ResolveTCPAddr("tcp", r.RemoteAddr)
		var addr net.Addr = remoteAddr
		if err != nil {
			addr = nil
		}

		session := &plugin.Session{
			Request:        r,
			RemoteAddr:     addr,
			TrustedProxies: trustedProxies,
		}
		state := pipeline.GetState()
		defer pipeline.PutState(state)

		resp, err := pipeline.RunPhase(r.Context(), plugin.Request, session, state)
		if err != nil {
			logger.Warn("request phase plugin error", "error", err, "path", r.URL.Path)
		}
		if resp != nil {
			writeResponse(w, resp)
			return
		}

		maxBodyBytes := bodylimit.DefaultMaxResponseBodyBytes
		if v, ok := state.Get("cache_max_file_size_bytes"); ok {
			if n, ok := v.(int64); ok && n > 0 {
				maxBodyBytes = n
			}
		}
		r = r.WithContext(context.WithValue(r.Context(), maxBodyBytesKey{}, maxBodyBytes))

		upstream.ServeHTTP(w, r)
	})
}

// limitUpstreamBody caps the upstream response body at the ceiling the
// Request phase recorded (falling back to bodylimit.DefaultMaxResponseBodyBytes),
// so a single oversized upstream response can't be cached or forwarded
// unbounded.
func limitUpstreamBody(resp *http.Response) error {
	maxBytes := bodylimit.DefaultMaxResponseBodyBytes
	if v, ok := resp.Request.Context().Value(maxBodyBytesKey{}).(int64); ok && v > 0 {
		maxBytes = v
	}

	body, err := bodylimit.ReadLimitedBody(resp.Body, maxBytes)
	if err != nil && err != bodylimit.ErrResponseBodyTooLarge {
		resp.Body.Close()
		return fmt.Errorf("read upstream response body: %w", err)
	}
	resp.Body.Close()

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", fmt.Sprintf("%d", len(body)))
	return nil
}

// requestIDMiddleware assigns a per-request correlation ID, reusing one the
// caller already supplied so traces stay joined across a hop.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func writeResponse(w http.ResponseWriter, resp *plugin.Response) {
	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
