// Package builtin provides the proxy's built-in plugin implementations.
//
// Available plugins:
//   - CachePlugin: cache key construction, PURGE allow-listing, and
//     max-TTL/backend-counter recording for the host's response cache
//   - CsrfPlugin: stateless, timestamp-embedded CSRF token minting and
//     verification
//   - KeyAuthPlugin: fixed-key-set credential checking from a header or
//     query parameter
//
// Example usage:
//
//	pipeline := plugin.NewPipeline(logger, plugin.DefaultPipelineConfig())
//	cachePlugin, err := builtin.NewCachePlugin(pluginconf.Conf{"namespace": "edge"})
//	pipeline.Register(cachePlugin)
package builtin
