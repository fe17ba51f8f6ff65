package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Chative-reservations/server/internal/backend/slots"
	errx "github.com/Chative-reservations/server/internal/core/error"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

// Config is read by envconfig under the BACKEND_ prefix.
type Config struct {
	BaseURL           string        `split_words:"true" default:"http://localhost:8000"`
	Timeout           time.Duration `split_words:"true" default:"30s"`
	RetryAttempts     int           `split_words:"true" default:"3"`
	RetryDelay        time.Duration `split_words:"true" default:"2s"`
	RetryMultiplier   float64       `split_words:"true" default:"1.5"`
	FirstAttemptGrace time.Duration `split_words:"true" default:"15s"`
	DurationTTL       time.Duration `split_words:"true" default:"30s"`
	DefaultDuration   int           `split_words:"true" default:"120"`
	RateLimit         float64       `split_words:"true" default:"10"`
	RateBurst         int           `split_words:"true" default:"5"`
	MirrorMaxAge      time.Duration `split_words:"true" default:"30s"`
}

// RetryPolicy builds the policy described by the config.
func (c Config) RetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	if c.RetryAttempts > 0 {
		p.MaxAttempts = c.RetryAttempts
	}
	if c.RetryDelay > 0 {
		p.InitialDelay = c.RetryDelay
	}
	if c.RetryMultiplier > 0 {
		p.Multiplier = c.RetryMultiplier
	}
	if c.Timeout > 0 {
		p.AttemptTimeout = c.Timeout
	}
	p.FirstAttemptGrace = c.FirstAttemptGrace
	return p
}

const unavailableMessage = "⏳ El sistema de reservas está tardando en responder. Por favor, inténtalo de nuevo en unos segundos."

// Gateway issues reservation operations to the restaurant backend. Every exported
// operation returns a Result; transport and HTTP failures are folded into failure payloads.
type Gateway struct {
	baseURL      *url.URL
	http         *http.Client
	retry        RetryPolicy
	limiter      *rate.Limiter
	durations    *DurationCache
	resolver     *slots.Resolver
	mirrorMaxAge time.Duration
	now          func() time.Time
}

type Option func(*Gateway)

// WithHTTPClient replaces the HTTP client; per-attempt timeouts still come from the retry policy.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.http = c }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func WithResolver(r *slots.Resolver) Option {
	return func(g *Gateway) { g.resolver = r }
}

func NewGateway(cfg Config, opts ...Option) (*Gateway, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errx.InvalidInput("invalid backend base url %q", cfg.BaseURL)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	g := &Gateway{
		baseURL:      base,
		http:         &http.Client{},
		retry:        cfg.RetryPolicy(),
		limiter:      rate.NewLimiter(limit, burst),
		resolver:     slots.NewResolver(),
		mirrorMaxAge: cfg.MirrorMaxAge,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.durations = NewDurationCache(g.fetchDuration, cfg.DurationTTL, cfg.DefaultDuration)
	g.durations.now = g.now
	return g, nil
}

// Durations exposes the duration policy cache.
func (g *Gateway) Durations() *DurationCache {
	return g.durations
}

func (g *Gateway) endpoint(path string, query url.Values) string {
	u := *g.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends one logical request under the retry policy and returns the response body.
// Non-2xx answers become errx.AppError values carrying the backend's message when the
// body has one; 503 is the only status that is retried.
func (g *Gateway) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		payload = b
	}
	target := g.endpoint(path, query)

	var out []byte
	start := g.now()
	err := g.retry.Do(ctx, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rd)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := g.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return errx.WrapBackend(resp.StatusCode, messageFromBody(raw))
		}
		out = raw
		return nil
	})

	logx.Debug().
		Str("method", method).
		Str("path", path).
		Dur("elapsed", g.now().Sub(start)).
		Bool("ok", err == nil).
		Msg("backend call")
	return out, err
}

// call is do plus decoding into a Result, with errors folded into failure payloads.
func (g *Gateway) call(ctx context.Context, method, path string, query url.Values, body any) Result {
	raw, err := g.do(ctx, method, path, query, body)
	if err != nil {
		return g.failure(method, path, err)
	}
	res, err := decodeResult(raw)
	if err != nil {
		logx.Error().Err(err).Str("path", path).Msg("backend returned invalid JSON")
		return Fail("Respuesta inválida del sistema de reservas")
	}
	return res
}

func (g *Gateway) failure(method, path string, err error) Result {
	if IsTransient(err) {
		unavailable := errx.BackendUnavailable(err)
		logx.Error().Err(unavailable).Str("method", method).Str("path", path).Msg("backend unavailable after retries")
		return Fail(unavailableMessage).With("servicio_no_disponible", true).With("status", errx.StatusOf(unavailable))
	}

	var appErr *errx.AppError
	if !errors.As(err, &appErr) {
		logx.Error().Err(err).Str("method", method).Str("path", path).Msg("backend call failed")
		return Fail("No se pudo completar la operación. Inténtalo de nuevo.")
	}

	logx.Warn().Err(err).Str("method", method).Str("path", path).Int("status", appErr.Status).Msg("backend rejected request")
	if appErr.Message != "" && !strings.HasPrefix(appErr.Message, errx.BackendErrorMessage) {
		return Fail(appErr.Message).With("status", appErr.Status)
	}
	return Fail(fmt.Sprintf("Error del servidor: %d", appErr.Status)).With("status", appErr.Status)
}

func messageFromBody(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return Result(body).Message()
}
