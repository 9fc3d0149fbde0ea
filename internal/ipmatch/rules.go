// Package ipmatch provides a CIDR/exact-IP allow-list matcher and
// trusted-proxy-aware client IP resolution, shared by the cache plugin's
// PURGE gate and any plugin that needs the caller's real address.
package ipmatch

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// RuleSet is an ordered list of parsed CIDR blocks and exact IPs.
type RuleSet struct {
	nets []*net.IPNet
}

// ParseRules parses each rule once. A rule is either a bare IP (treated as
// a /32 or /128) or a CIDR block. A malformed entry is a construction-time
// error.
func ParseRules(rules []string) (*RuleSet, error) {
	set := &RuleSet{nets: make([]*net.IPNet, 0, len(rules))}
	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		ipNet, err := parseRule(rule)
		if err != nil {
			return nil, fmt.Errorf("ip rule %q: %w", rule, err)
		}
		set.nets = append(set.nets, ipNet)
	}
	return set, nil
}

func parseRule(rule string) (*net.IPNet, error) {
	if strings.Contains(rule, "/") {
		_, ipNet, err := net.ParseCIDR(rule)
		if err != nil {
			return nil, err
		}
		return ipNet, nil
	}

	ip := net.ParseIP(rule)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP")
	}
	if v4 := ip.To4(); v4 != nil {
		return &net.IPNet{IP: v4, Mask: net.CIDRMask(32, 32)}, nil
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, nil
}

// FromNets builds a RuleSet directly from already-parsed networks, for
// callers (such as a proxy's trusted-hop list) that parse their CIDR blocks
// once at startup rather than from a config string slice.
func FromNets(nets []*net.IPNet) *RuleSet {
	return &RuleSet{nets: nets}
}

// Allows reports whether ip matches any rule in the set. An empty set
// matches nothing.
func (s *RuleSet) Allows(ip net.IP) bool {
	if s == nil || ip == nil {
		return false
	}
	ip = normalizeIP(ip)
	for _, n := range s.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Nets returns the parsed networks backing this set, for callers that need
// to hand them to a different component expecting a raw []*net.IPNet
// (e.g. plugin.Session.TrustedProxies).
func (s *RuleSet) Nets() []*net.IPNet {
	if s == nil {
		return nil
	}
	return s.nets
}

// Len reports the number of parsed rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.nets)
}

// normalizeIP collapses an IPv4-mapped IPv6 address down to its 4-byte form,
// so rule matching is consistent regardless of how the stack represented
// the address.
func normalizeIP(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

// ClientIP resolves the caller's address for r. If remoteIP is itself
// listed in trusted, the X-Forwarded-For / Forwarded headers are consulted
// (right-to-left, skipping any hop that is itself trusted); otherwise
// remoteIP is returned directly. This prevents IP-spoofing via forged
// forwarding headers from untrusted peers.
func ClientIP(r *http.Request, remoteIP net.IP, trusted *RuleSet) net.IP {
	if !trusted.Allows(remoteIP) {
		return remoteIP
	}

	if fwd := r.Header.Get("Forwarded"); fwd != "" {
		if ip := parseForwardedValue(fwd, trusted); ip != nil {
			return ip
		}
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := parseXForwardedFor(xff, trusted); ip != nil {
			return ip
		}
	}

	return remoteIP
}

// parseXForwardedFor walks candidates right-to-left (closest hop first),
// returning the first candidate that is not itself a trusted proxy.
func parseXForwardedFor(header string, trusted *RuleSet) net.IP {
	parts := strings.Split(header, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(parts[i])
		ip := parseIP(candidate)
		if ip == nil {
			continue
		}
		if !trusted.Allows(ip) {
			return ip
		}
	}
	return nil
}

// parseForwardedValue extracts "for=" parameters from an RFC 7239
// Forwarded header, walking right-to-left like X-Forwarded-For.
func parseForwardedValue(header string, trusted *RuleSet) net.IP {
	elems := strings.Split(header, ",")
	for i := len(elems) - 1; i >= 0; i-- {
		elem := strings.TrimSpace(elems[i])
		for _, pair := range strings.Split(elem, ";") {
			pair = strings.TrimSpace(pair)
			const prefix = "for="
			idx := strings.Index(strings.ToLower(pair), prefix)
			if idx != 0 {
				continue
			}
			val := strings.TrimSpace(pair[len(prefix):])
			val = strings.Trim(val, `"`)
			val = strings.TrimPrefix(val, "[")
			if hostPart, _, err := net.SplitHostPort(val); err == nil {
				val = hostPart
			}
			val = strings.TrimSuffix(val, "]")
			if strings.EqualFold(val, "unknown") {
				continue
			}
			ip := parseIP(val)
			if ip == nil {
				continue
			}
			if !trusted.Allows(ip) {
				return ip
			}
		}
	}
	return nil
}

// parseIP parses host, stripping a bracketed IPv6 literal or trailing
// zone ID if present.
func parseIP(host string) net.IP {
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	if idx := strings.IndexByte(host, '%'); idx >= 0 {
		host = host[:idx]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}
