// Package pluginconf provides a small untyped-map reader mirroring the raw
// plugin configuration format a host proxy engine hands to plugin
// constructors, plus a deterministic fingerprint used to deduplicate
// equivalent plugin instances.
package pluginconf

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/go-units"

	"github.com/riverstone/edgeproxy/internal/plugin"
)

// Conf is an untyped map of plugin configuration values, the shape a host
// engine's config loader produces from its own file/CLI format.
type Conf map[string]any

// GetString returns the string value for key, or "" if absent or of the
// wrong type.
func (c Conf) GetString(key string) string {
	v, ok := c[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetStringSlice returns the string-slice value for key. A single string
// value is treated as a one-element slice for convenience, matching how
// these maps arrive from a loosely-typed file loader.
func (c Conf) GetStringSlice(key string) []string {
	v, ok := c[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// GetBool returns whether key is present and "truthy": any present value
// other than explicit false, "false", or "" counts as true. Several options
// in this configuration format are presence-only flags (e.g. "eviction").
func (c Conf) GetBool(key string) bool {
	v, ok := c[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false"
	default:
		return true
	}
}

// GetStep parses the "step" key into a plugin.Phase. An absent or unknown
// value defaults to plugin.Request.
func (c Conf) GetStep() plugin.Phase {
	switch c.GetString("step") {
	case "proxy_upstream":
		return plugin.ProxyUpstream
	default:
		return plugin.Request
	}
}

// GetByteSize parses a byte-size literal ("100kb", "1mb") stored under key.
// Returns 0, nil if the key is absent.
func (c Conf) GetByteSize(key string) (int64, error) {
	s := c.GetString(key)
	if s == "" {
		return 0, nil
	}
	size, err := units.FromHumanSize(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return size, nil
}

// HashKey builds a stable fingerprint of the configuration by sorting keys
// and hashing their stringified values, so two constructions from
// equivalent maps always deduplicate to the same key regardless of map
// iteration order.
func (c Conf) HashKey() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		fmt.Fprintf(&sb, "%v", c[k])
		sb.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
