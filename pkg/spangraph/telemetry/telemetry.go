// Package telemetry bootstraps the APM client: an OTLP trace exporter wired
// to the global OpenTelemetry tracer provider, plus resolution of server
// instrumentation hooks through the hookshim registry.
//
// Initialization is strictly best-effort. Without a license key the client
// stays disabled, the global provider is left untouched (every span becomes
// a no-op), and business logic runs unchanged.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/spangraph/spangraph/pkg/spangraph/config"
	"github.com/spangraph/spangraph/pkg/spangraph/hookshim"
	"github.com/spangraph/spangraph/pkg/spangraph/instrument"
)

// Client is the initialized APM client. A disabled Client is fully usable:
// its middleware is the manual transaction layer (which no-ops without a
// tracer provider) and Shutdown does nothing.
type Client struct {
	enabled    bool
	provider   *sdktrace.TracerProvider
	middleware hookshim.Middleware
	logger     *slog.Logger
}

// Init initializes the APM client from cfg and seals the shim registry.
//
// With no license key configured, tracing stays disabled and the returned
// error is nil; a missing credential is an expected deployment state, not a
// failure. With a license key, an OTLP/HTTP exporter is installed as the
// global tracer provider.
//
// The registry must already hold the hook bindings chosen by the host
// (config.APM.DisableAutoInstrument decides the policy in cmd/agentd); Init
// resolves the nethttp hook through it after sealing. reg may be nil, which
// behaves like an empty registry.
func Init(ctx context.Context, cfg config.APM, reg *hookshim.Registry, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if reg == nil {
		reg = hookshim.NewRegistry()
	}
	reg.Seal()

	c := &Client{logger: logger}

	// Hook resolution happens regardless of credentials so the middleware
	// policy is identical in enabled and disabled deployments. Only the
	// provider binding is resolved here; a lazy provider's delegate is not
	// loaded until the first request passes through the middleware.
	if cfg.DisableAutoInstrument {
		c.middleware = instrument.Transaction
		logger.Info("automatic instrumentation disabled, using manual transaction layer")
	} else {
		c.middleware = lazyMiddleware(reg.Lookup(hookshim.NetHTTP))
	}

	if cfg.LicenseKey == "" {
		logger.Info("no APM license key configured, tracing disabled")
		return c, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
		otlptracehttp.WithHeaders(map[string]string{
			"api-key": cfg.LicenseKey,
		}),
	)
	if err != nil {
		// Instrumentation is never a precondition for business logic.
		logger.Warn("trace exporter setup failed, tracing disabled",
			slog.String("error", err.Error()))
		return c, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		logger.Warn("telemetry resource setup failed, tracing disabled",
			slog.String("error", err.Error()))
		return c, nil
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	c.enabled = true
	c.provider = provider
	logger.Info("APM tracing initialized",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("service", cfg.ServiceName),
	)
	return c, nil
}

// Enabled reports whether an exporter was installed.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Middleware returns the HTTP middleware selected at Init: the resolved
// nethttp hook's middleware, or the manual transaction layer when automatic
// instrumentation is disabled. Never nil.
func (c *Client) Middleware() hookshim.Middleware {
	if c.middleware == nil {
		return instrument.Transaction
	}
	return c.middleware
}

// Shutdown flushes buffered spans. A disabled client returns nil.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.enabled || c.provider == nil {
		return nil
	}
	if err := c.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry shutdown: %w", err)
	}
	return nil
}

// lazyMiddleware defers p.Middleware() to the first request of each wrapped
// chain. Calling Middleware() on a lazy provider loads its delegate, so doing
// it here instead of at Init keeps the load off the startup path.
func lazyMiddleware(p hookshim.Provider) hookshim.Middleware {
	return func(next http.Handler) http.Handler {
		var once sync.Once
		var h http.Handler
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			once.Do(func() { h = p.Middleware()(next) })
			h.ServeHTTP(w, r)
		})
	}
}

// otelHTTPProvider is the real nethttp hook: the otelhttp contrib handler.
// This is the implementation the shim exists to suppress on hosts where it
// conflicts with the platform's server bootstrap.
type otelHTTPProvider struct{}

// OTelHTTP returns the real nethttp hook provider.
func OTelHTTP() hookshim.Provider {
	return otelHTTPProvider{}
}

// Hook implements hookshim.Provider. The otelhttp integration contributes no
// named bootstrap callbacks; every access yields an inert callback.
func (otelHTTPProvider) Hook(name string) hookshim.HookFunc {
	return func(args ...any) {}
}

// Middleware implements hookshim.Provider.
func (otelHTTPProvider) Middleware() hookshim.Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "http.server")
	}
}
