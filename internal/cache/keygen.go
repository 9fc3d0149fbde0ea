package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key is the output of BuildKey: Primary is the textual concatenation used
// for debugging and cross-method rewrites (e.g. PURGE retargeting to GET);
// Combined is a fixed-size digest suitable for O(1) backend indexing.
type Key struct {
	Primary  string
	Combined string
}

// BuildKey assembles a cache key from a prefix (namespace/header-derived,
// may be empty), an HTTP method, and a request URI. It is deterministic,
// endian-independent, and case-sensitive in method and URI.
func BuildKey(prefix, method, uri string) Key {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(method)
	sb.WriteString(uri)
	primary := sb.String()

	sum := sha256.Sum256([]byte(primary))
	return Key{
		Primary:  primary,
		Combined: hex.EncodeToString(sum[:]),
	}
}

// BuildPrefix concatenates namespace and the given ordered header values,
// each terminated by ':', matching the cache plugin's key-prefix
// construction: an absent namespace or empty header list contributes
// nothing, and headers missing from the request are skipped rather than
// contributing an empty segment.
func BuildPrefix(namespace string, headerValues []string) string {
	var sb strings.Builder
	if namespace != "" {
		sb.WriteString(namespace)
		sb.WriteByte(':')
	}
	for _, v := range headerValues {
		if v == "" {
			continue
		}
		sb.WriteString(v)
		sb.WriteByte(':')
	}
	return sb.String()
}
