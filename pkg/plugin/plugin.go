// Package plugin provides the public API for the proxy's plugin system.
// It re-exports core types and interfaces from internal/plugin so external
// plugin authors can implement the contract without importing internal
// packages.
package plugin

import (
	"github.com/riverstone/edgeproxy/internal/plugin"
)

// Re-export core types and interfaces.
type (
	// Plugin is the contract every proxy plugin implements.
	Plugin = plugin.Plugin

	// Cleaner is implemented by plugins that release resources on shutdown.
	Cleaner = plugin.Cleaner

	// Phase identifies a point in the request lifecycle.
	Phase = plugin.Phase

	// Category tags a plugin for diagnostics.
	Category = plugin.Category

	// Response is a synthetic response a plugin returns to short-circuit
	// the pipeline.
	Response = plugin.Response

	// Session is the read-mostly view of the in-flight request.
	Session = plugin.Session

	// State is mutable per-request scratch space threaded through a phase.
	State = plugin.State

	// PipelineConfig holds configuration for the plugin pipeline.
	PipelineConfig = plugin.PipelineConfig

	// Pipeline is the host-facing registrar and executor.
	Pipeline = plugin.Pipeline
)

// Re-export phase and category constants.
const (
	Request       = plugin.Request
	ProxyUpstream = plugin.ProxyUpstream

	CategoryCache   = plugin.CategoryCache
	CategoryCsrf    = plugin.CategoryCsrf
	CategoryKeyAuth = plugin.CategoryKeyAuth
)

// Re-export common errors.
var (
	ErrTooManyPlugins  = plugin.ErrTooManyPlugins
	ErrPluginNotFound  = plugin.ErrPluginNotFound
	ErrDuplicatePlugin = plugin.ErrDuplicatePlugin
	ErrNilPlugin       = plugin.ErrNilPlugin
	ErrPipelineClosed  = plugin.ErrPipelineClosed
)

// Re-export helper functions.
var (
	// DefaultPipelineConfig returns the default pipeline configuration.
	DefaultPipelineConfig = plugin.DefaultPipelineConfig

	// NewPipeline creates a new plugin pipeline.
	NewPipeline = plugin.NewPipeline

	// NewResponse builds a Response with an initialized header map.
	NewResponse = plugin.NewResponse
)
