package builtin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/riverstone/edgeproxy/internal/plugin"
	"github.com/riverstone/edgeproxy/internal/pluginconf"
	pluginerrors "github.com/riverstone/edgeproxy/pkg/errors"
)

// KeyAuthPlugin validates a caller-supplied credential against a fixed key
// set, extracted either from a request header or a query parameter
// depending on how it was configured.
type KeyAuthPlugin struct {
	priority int
	hashKey  string
	step     plugin.Phase

	fromQuery bool
	locator   string
	keys      map[string]bool

	logger *slog.Logger
}

// KeyAuthOption configures a KeyAuthPlugin beyond what conf carries.
type KeyAuthOption func(*KeyAuthPlugin)

// WithKeyAuthPriority sets the plugin's execution priority.
func WithKeyAuthPriority(priority int) KeyAuthOption {
	return func(p *KeyAuthPlugin) { p.priority = priority }
}

// WithKeyAuthLogger sets the logger.
func WithKeyAuthLogger(logger *slog.Logger) KeyAuthOption {
	return func(p *KeyAuthPlugin) { p.logger = logger }
}

// NewKeyAuthPlugin constructs a KeyAuthPlugin from a single spec string of
// the form "<locator> <keys>", where locator is either "?queryname" (read
// the credential from that query parameter) or a bare header name, and keys
// is a comma-separated list of accepted credentials.
func NewKeyAuthPlugin(conf pluginconf.Conf, opts ...KeyAuthOption) (*KeyAuthPlugin, error) {
	spec := conf.GetString("spec")
	fields := strings.Fields(spec)
	if len(fields) != 2 {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryKeyAuth, "spec must be \"<locator> <keys>\", got %q", spec)
	}

	locatorSpec, keysSpec := fields[0], fields[1]

	fromQuery := strings.HasPrefix(locatorSpec, "?")
	locator := strings.TrimPrefix(locatorSpec, "?")
	if locator == "" {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryKeyAuth, "locator must not be empty")
	}
	if !fromQuery && !isValidHeaderName(locator) {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryKeyAuth, "locator %q is not a valid header name", locator)
	}

	keys := make(map[string]bool)
	for _, k := range strings.Split(keysSpec, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		keys[k] = true
	}
	if len(keys) == 0 {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryKeyAuth, "at least one key is required")
	}

	step := conf.GetStep()
	if step != plugin.Request && step != plugin.ProxyUpstream {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryKeyAuth, "key_auth plugin only supports request or proxy_upstream steps, got %s", step)
	}

	p := &KeyAuthPlugin{
		hashKey:   conf.HashKey(),
		step:      step,
		fromQuery: fromQuery,
		locator:   locator,
		keys:      keys,
	}

	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p, nil
}

func (p *KeyAuthPlugin) Name() string              { return "key_auth" }
func (p *KeyAuthPlugin) Priority() int             { return p.priority }
func (p *KeyAuthPlugin) Step() plugin.Phase        { return p.step }
func (p *KeyAuthPlugin) Category() plugin.Category { return plugin.CategoryKeyAuth }
func (p *KeyAuthPlugin) HashKey() string           { return p.hashKey }

// Handle extracts the credential from the configured locator and checks it
// against the accepted key set: an absent or empty credential fails with
// "Key missing", a present-but-unaccepted credential fails with
// "Key auth fail".
func (p *KeyAuthPlugin) Handle(ctx context.Context, session *plugin.Session, state *plugin.State) (*plugin.Response, error) {
	var credential string
	if p.fromQuery {
		credential = session.Request.URL.Query().Get(p.locator)
	} else {
		credential = session.Header(p.locator)
	}

	if credential == "" {
		return plugin.NewResponse(401, []byte("Key missing")), nil
	}

	if !p.accepts(credential) {
		return plugin.NewResponse(401, []byte("Key auth fail")), nil
	}

	return nil, nil
}

// isValidHeaderName reports whether s is a valid HTTP header field name
// (RFC 7230 token characters only), mirroring the Rust original's
// HeaderName::from_str rejection of a malformed locator at construction
// rather than letting it silently never match at lookup time.
func isValidHeaderName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

func (p *KeyAuthPlugin) accepts(credential string) bool {
	for k := range p.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(credential)) == 1 {
			return true
		}
	}
	return false
}

var _ plugin.Plugin = (*KeyAuthPlugin)(nil)
