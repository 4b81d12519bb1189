package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/PabloGalante/brandlab/internal/domain"
	"github.com/PabloGalante/brandlab/internal/observability"
)

// Provider is one language-model backend. Implementations encode the
// role-tagged turns and system prompt in their own wire shape.
type Provider interface {
	Backend() domain.Backend
	Generate(ctx context.Context, req domain.LLMRequest) (string, error)
}

const defaultCallTimeout = 30 * time.Second

// Gateway routes calls to the provider pinned on the request and absorbs
// every failure. It implements domain.LLMGateway.
type Gateway struct {
	providers      map[domain.Backend]Provider
	defaultBackend domain.Backend
	timeout        time.Duration
}

// NewGateway builds a gateway. The first provider is the default for
// requests that name no backend.
func NewGateway(timeout time.Duration, providers ...Provider) *Gateway {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	g := &Gateway{
		providers: make(map[domain.Backend]Provider, len(providers)),
		timeout:   timeout,
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if g.defaultBackend == "" {
			g.defaultBackend = p.Backend()
		}
		g.providers[p.Backend()] = p
	}
	return g
}

// DefaultBackend returns the backend used when a request names none.
func (g *Gateway) DefaultBackend() domain.Backend {
	return g.defaultBackend
}

// Call sends the request and returns trimmed text, or "" when the backend
// is unknown, fails, times out, panics or answers with nothing.
func (g *Gateway) Call(ctx context.Context, req domain.LLMRequest) (text string) {
	backend := req.Backend
	if backend == "" {
		backend = g.defaultBackend
	}

	log := observability.LoggerFromContext(ctx).With(
		"backend", backend,
		"model", req.Model,
		"purpose", req.Purpose,
	)

	ctx, span := observability.Tracer().Start(ctx, "llm.call")
	span.SetAttributes(
		attribute.String("llm.backend", string(backend)),
		attribute.String("llm.model", req.Model),
		attribute.String("llm.purpose", req.Purpose),
		attribute.Int("llm.turns", len(req.Turns)),
	)
	defer span.End()

	provider, ok := g.providers[backend]
	if !ok {
		log.Warn("llm backend not configured")
		span.SetStatus(codes.Error, "backend not configured")
		return ""
	}

	// A caller deadline wins; the report path sets a longer one.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("llm provider panicked", "panic", fmt.Sprint(r))
			span.SetStatus(codes.Error, "panic")
			text = ""
		}
	}()

	start := time.Now()
	req.Backend = backend
	out, err := provider.Generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn("llm call failed", "error", err, "elapsed_ms", elapsed.Milliseconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ""
	}

	out = strings.TrimSpace(out)
	if out == "" {
		log.Warn("llm returned empty text", "elapsed_ms", elapsed.Milliseconds())
		span.SetStatus(codes.Error, "empty response")
		return ""
	}

	log.Debug("llm call succeeded", "elapsed_ms", elapsed.Milliseconds(), "chars", len(out))
	span.SetAttributes(attribute.Int("llm.response_chars", len(out)))
	return out
}
