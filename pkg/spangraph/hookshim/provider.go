// Package hookshim is a dependency-injection seam for APM instrumentation
// hooks. It exists because some hook implementations (notably the web-server
// hook) are known to misbehave under host-controlled server bootstrap: the
// host binds a substitute Provider for the hook before the telemetry client
// initializes, so the client receives a safe stand-in instead of the real,
// conflict-prone implementation.
//
// Three provider variants cover the deployment policies seen in practice:
//
//   - NoOp: every hook access yields an inert callback. Fully silent.
//   - LazyDelegate: attempts to load the real implementation once, on first
//     access; on failure, falls back to no-op behavior for the remainder of
//     the process.
//   - HardStub: a fixed placeholder that is never upgraded, for hooks known
//     to be entirely unusable in this host.
//
// Regardless of variant, calls through a provider never panic and never
// return errors; callers that expected the real hook's side effects simply
// receive none.
package hookshim

import "net/http"

// Well-known hook identifiers.
const (
	// NetHTTP is the hook contributing HTTP server instrumentation.
	NetHTTP = "nethttp"
)

// HookFunc is an instrumentation callback. Implementations must not panic;
// an inert HookFunc accepts any arguments and does nothing.
type HookFunc func(args ...any)

// Middleware is the HTTP server instrumentation a hook contributes.
type Middleware func(http.Handler) http.Handler

// Provider resolves the callbacks and middleware a hook contributes.
//
// Hook never returns nil and the returned HookFunc never panics, whatever
// the name. Middleware never returns nil; inert providers return an identity
// middleware.
type Provider interface {
	Hook(name string) HookFunc
	Middleware() Middleware
}

// inertHook does nothing. Shared by all inert providers.
func inertHook(args ...any) {}

// identityMiddleware returns the handler unchanged.
func identityMiddleware(next http.Handler) http.Handler { return next }

// noopProvider is fully inert.
type noopProvider struct{}

// NoOp returns a Provider whose every hook access yields an inert callback
// and whose middleware is the identity.
func NoOp() Provider {
	return noopProvider{}
}

func (noopProvider) Hook(name string) HookFunc { return inertHook }

func (noopProvider) Middleware() Middleware { return identityMiddleware }

// hardStub is a fixed placeholder, behaviorally identical to NoOp but
// distinct by type: it documents that the real implementation is known to be
// unusable in this host, not merely unavailable, and must never be loaded.
type hardStub struct{}

// HardStub returns a Provider that is never upgraded to a real
// implementation. Use when the real hook is known to crash under the host's
// server bootstrap.
func HardStub() Provider {
	return hardStub{}
}

func (hardStub) Hook(name string) HookFunc { return inertHook }

func (hardStub) Middleware() Middleware { return identityMiddleware }
