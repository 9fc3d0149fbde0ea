package builtin

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/riverstone/edgeproxy/internal/plugin"
	"github.com/riverstone/edgeproxy/internal/pluginconf"
	pluginerrors "github.com/riverstone/edgeproxy/pkg/errors"
)

const defaultCsrfName = "x-csrf-token"

// nonceByteLen is chosen so base64.RawURLEncoding produces exactly 12
// characters with no padding: 9 bytes * 8 bits / 6 bits-per-char = 12.
const nonceByteLen = 9

var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// CsrfPlugin mints and verifies a stateless, timestamp-embedded CSRF token:
// nonce.hex_epoch.base64(sha256(nonce + "." + hex_epoch + key)). Any request
// to tokenPath mints a fresh token and sets it as a cookie; every other
// unsafe-method request must echo a valid token back in a header.
type CsrfPlugin struct {
	priority int
	hashKey  string
	step     plugin.Phase

	tokenPath string
	key       string
	name      string
	ttl       time.Duration

	logger *slog.Logger
}

// CsrfOption configures a CsrfPlugin beyond what conf carries.
type CsrfOption func(*CsrfPlugin)

// WithCsrfPriority sets the plugin's execution priority.
func WithCsrfPriority(priority int) CsrfOption {
	return func(p *CsrfPlugin) { p.priority = priority }
}

// WithCsrfLogger sets the logger.
func WithCsrfLogger(logger *slog.Logger) CsrfOption {
	return func(p *CsrfPlugin) { p.logger = logger }
}

// NewCsrfPlugin constructs a CsrfPlugin from conf. token_path and key are
// required; name defaults to "x-csrf-token"; ttl is optional (a zero ttl
// means minted tokens never expire by age alone).
func NewCsrfPlugin(conf pluginconf.Conf, opts ...CsrfOption) (*CsrfPlugin, error) {
	tokenPath := conf.GetString("token_path")
	if tokenPath == "" {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCsrf, "token_path is required")
	}
	key := conf.GetString("key")
	if key == "" {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCsrf, "key is required")
	}

	step := conf.GetStep()
	if step != plugin.Request && step != plugin.ProxyUpstream {
		return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCsrf, "csrf plugin only supports request or proxy_upstream steps, got %s", step)
	}

	name := conf.GetString("name")
	if name == "" {
		name = defaultCsrfName
	}

	var ttl time.Duration
	if s := conf.GetString("ttl"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, pluginerrors.NewInvalid(pluginerrors.CategoryCsrf, "parse ttl %q: %v", s, err)
		}
		ttl = d
	}

	p := &CsrfPlugin{
		hashKey:   conf.HashKey(),
		step:      step,
		tokenPath: tokenPath,
		key:       key,
		name:      name,
		ttl:       ttl,
	}

	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p, nil
}

func (p *CsrfPlugin) Name() string              { return "csrf" }
func (p *CsrfPlugin) Priority() int             { return p.priority }
func (p *CsrfPlugin) Step() plugin.Phase        { return p.step }
func (p *CsrfPlugin) Category() plugin.Category { return plugin.CategoryCsrf }
func (p *CsrfPlugin) HashKey() string           { return p.hashKey }

// Handle mints a token at tokenPath, otherwise verifies one on any
// unsafe-method request.
func (p *CsrfPlugin) Handle(ctx context.Context, session *plugin.Session, state *plugin.State) (*plugin.Response, error) {
	if session.Request.URL.Path == p.tokenPath {
		return p.mint()
	}

	if safeMethods[session.Request.Method] {
		return nil, nil
	}

	token := session.Header(p.name)
	if token == "" {
		return plugin.NewResponse(http.StatusUnauthorized, []byte("Csrf token is empty or invalid")), nil
	}

	if !p.verify(token) {
		return plugin.NewResponse(http.StatusUnauthorized, []byte("Csrf token is empty or invalid")), nil
	}

	return nil, nil
}

func (p *CsrfPlugin) mint() (*plugin.Response, error) {
	var nonceBytes [nonceByteLen]byte
	if _, err := rand.Read(nonceBytes[:]); err != nil {
		return nil, fmt.Errorf("generate csrf nonce: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(nonceBytes[:])

	hexEpoch := fmt.Sprintf("%x", time.Now().Unix())
	sig := p.sign(nonce, hexEpoch)
	token := nonce + "." + hexEpoch + "." + sig

	resp := plugin.NewResponse(http.StatusNoContent, nil)
	resp.Headers.Set("Cache-Control", "no-store")

	cookie := fmt.Sprintf("%s=%s; Path=/", p.name, token)
	if p.ttl > 0 {
		cookie += fmt.Sprintf("; Max-Age=%d", int(p.ttl.Seconds()))
	}
	resp.Headers.Set("Set-Cookie", cookie)

	return resp, nil
}

func (p *CsrfPlugin) sign(nonce, hexEpoch string) string {
	sum := sha256.Sum256([]byte(nonce + "." + hexEpoch + p.key))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (p *CsrfPlugin) verify(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	nonce, hexEpoch, sig := parts[0], parts[1], parts[2]

	if p.ttl > 0 {
		epoch, err := strconv.ParseInt(hexEpoch, 16, 64)
		if err != nil {
			return false
		}
		issued := time.Unix(epoch, 0)
		if time.Since(issued) > p.ttl {
			return false
		}
	}

	expected := p.sign(nonce, hexEpoch)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}

var _ plugin.Plugin = (*CsrfPlugin)(nil)
