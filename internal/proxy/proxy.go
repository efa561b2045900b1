// Package proxy implements the gateway's reverse proxy: it resolves the
// target backend, gates on backend health, and forwards the request
// through the retry and circuit breaker layers.
package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradepulse/gateway/internal/circuitbreaker"
	"github.com/tradepulse/gateway/internal/config"
	"github.com/tradepulse/gateway/internal/observability"
	"github.com/tradepulse/gateway/internal/registry"
	"github.com/tradepulse/gateway/internal/retry"
	"github.com/tradepulse/gateway/internal/util"
)

const headerRequestID = "X-Request-ID"

// ServiceResolver resolves logical service names and answers health
// queries. *registry.Registry satisfies it.
type ServiceResolver interface {
	Resolve(name string) (string, error)
	Status(name string) (registry.Status, bool)
}

// IdentityExtractor yields the authenticated identity for a request, if
// any. The default reads the identity placed on the request context by
// the authentication layer.
type IdentityExtractor func(r *http.Request) (string, bool)

func contextIdentity(r *http.Request) (string, bool) {
	return util.IdentityFromContext(r.Context())
}

// Proxy forwards client requests to backend services.
type Proxy struct {
	resolver ServiceResolver
	breakers *circuitbreaker.Registry
	client   *http.Client
	retryCfg *retry.Config
	rewrites []rewriteRule
	logger   observability.Logger
	identity IdentityExtractor

	callTimeout    time.Duration
	identityHeader string
	skipHealthGate bool
	enableRetry    bool
	enableBreaker  bool
}

// Option is a functional option for configuring the proxy.
type Option func(*Proxy)

// WithLogger sets the proxy logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithHTTPClient sets the client used for backend calls.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Proxy) {
		p.client = client
	}
}

// WithIdentityExtractor replaces the identity source for the injected
// identity header.
func WithIdentityExtractor(extractor IdentityExtractor) Option {
	return func(p *Proxy) {
		p.identity = extractor
	}
}

// New creates a proxy from the gateway configuration.
func New(resolver ServiceResolver, breakers *circuitbreaker.Registry, cfg *config.GatewayConfig, opts ...Option) *Proxy {
	callTimeout := time.Duration(cfg.Proxy.CallTimeout)

	p := &Proxy{
		resolver: resolver,
		breakers: breakers,
		client:   &http.Client{},
		retryCfg: &retry.Config{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			InitialDelay:      time.Duration(cfg.Retry.InitialDelay),
			Multiplier:        cfg.Retry.BackoffMultiplier,
			MaxDelay:          time.Duration(cfg.Retry.MaxDelay),
			DisableJitter:     !cfg.Retry.RetryJitter(),
			PerAttemptTimeout: callTimeout,
		},
		rewrites: compileRewrites(cfg.PathRewrites),
		logger:   observability.NopLogger(),
		identity: contextIdentity,

		callTimeout:    callTimeout,
		identityHeader: cfg.Proxy.IdentityHeader,
		skipHealthGate: cfg.SkipHealthCheck(),
		enableRetry:    cfg.Proxy.EnableRetry,
		enableBreaker:  cfg.Proxy.EnableCircuitBreaker,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Handler serves the generic route ANY /api/:service/*path.
func (p *Proxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p.forward(c, c.Param("service"), c.Param("path"))
	}
}

// MountRewrites registers the configured rewrite routes.
func (p *Proxy) MountRewrites(r gin.IRouter) {
	for _, rule := range p.rewrites {
		rule := rule
		handler := func(c *gin.Context) {
			p.forward(c, rule.targetService, rule.rewritePath(c.Param("path")))
		}
		r.Any(rule.pattern, handler)
		r.Any(rule.pattern+"/*path", handler)
	}
}

// backendResponse is a fully buffered backend reply. Buffering lets a
// failed attempt be retried without having streamed anything to the
// client.
type backendResponse struct {
	statusCode int
	header     http.Header
	body       []byte
}

// forward runs the full proxying pipeline for one request.
func (p *Proxy) forward(c *gin.Context, service, targetPath string) {
	start := time.Now()

	baseURL, err := p.resolver.Resolve(service)
	if err != nil {
		p.respondError(c, service, err, start)
		return
	}

	if !p.skipHealthGate {
		if status, ok := p.resolver.Status(service); ok && status == registry.StatusUnhealthy {
			p.respondError(c, service, errBackendUnhealthy, start)
			return
		}
	}

	var body []byte
	if c.Request.Body != nil {
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			p.respondError(c, service, err, start)
			return
		}
	}

	target := baseURL + targetPath
	if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
		target += "?" + rawQuery
	}

	var result *backendResponse
	call := func(ctx context.Context) error {
		resp, callErr := p.doCall(ctx, c.Request, target, body)
		if callErr != nil {
			return callErr
		}
		result = resp
		return nil
	}

	err = p.execute(c.Request.Context(), service, call)
	if err != nil {
		p.respondError(c, service, err, start)
		return
	}

	writeBackendResponse(c, result)
	recordRequest(service, result.statusCode, time.Since(start))
}

// execute runs the call through the enabled resilience layers: the
// circuit breaker wraps the whole retry sequence, so one exhausted
// sequence counts as a single breaker outcome.
func (p *Proxy) execute(ctx context.Context, service string, call retry.RetryableFunc) error {
	var attempt retry.RetryableFunc
	if p.enableRetry {
		attempt = func(ctx context.Context) error {
			return retry.Do(ctx, p.retryCfg, call, &retry.Options{
				Name:        service,
				ShouldRetry: retry.ShouldRetryHTTP,
				Logger:      p.logger,
			})
		}
	} else {
		attempt = func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
			defer cancel()
			return call(callCtx)
		}
	}

	if p.enableBreaker {
		return p.breakers.GetOrCreate(service).Execute(ctx, attempt)
	}
	return attempt(ctx)
}

// doCall performs one backend HTTP call and buffers the response.
// Responses the gateway treats as failures (5xx and 429) come back as a
// StatusError so the retry and breaker layers see them.
func (p *Proxy) doCall(ctx context.Context, inbound *http.Request, target string, body []byte) (*backendResponse, error) {
	req, err := http.NewRequestWithContext(ctx, inbound.Method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	copyHeaders(req.Header, inbound.Header)

	// The identity header is always gateway-controlled; an inbound
	// value is never trusted.
	req.Header.Del(p.identityHeader)
	if identity, ok := p.identity(inbound); ok {
		req.Header.Set(p.identityHeader, identity)
	}

	if requestID := util.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(headerRequestID, requestID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, util.NewStatusError(resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	header := make(http.Header, len(resp.Header))
	copyHeaders(header, resp.Header)

	return &backendResponse{
		statusCode: resp.StatusCode,
		header:     header,
		body:       respBody,
	}, nil
}

func (p *Proxy) respondError(c *gin.Context, service string, err error, start time.Time) {
	status, code, message := classifyError(service, err)

	p.logger.Warn("request failed",
		observability.String("service", service),
		observability.String("method", c.Request.Method),
		observability.String("path", c.Request.URL.Path),
		observability.String("code", code),
		observability.Error(err),
	)

	writeError(c, status, code, message)
	recordRequest(service, status, time.Since(start))
	recordForwardError(service, code)
}

func writeBackendResponse(c *gin.Context, resp *backendResponse) {
	header := c.Writer.Header()
	for key, values := range resp.header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	header.Set("Content-Length", strconv.Itoa(len(resp.body)))

	c.Writer.WriteHeader(resp.statusCode)
	_, _ = c.Writer.Write(resp.body)
}

// Hop-by-hop headers are connection-scoped and never forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// copyHeaders copies src into dst minus hop-by-hop headers, including
// any named by the Connection header.
func copyHeaders(dst, src http.Header) {
	dropped := make(map[string]bool, len(hopByHopHeaders))
	for _, h := range hopByHopHeaders {
		dropped[h] = true
	}
	for _, value := range src.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dropped[http.CanonicalHeaderKey(name)] = true
			}
		}
	}

	for key, values := range src {
		if dropped[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
