package hookshim

import (
	"errors"
	"fmt"
	"sync"
)

// Registry errors. All of them indicate startup misconfiguration: the shim
// must be fully populated before the telemetry client initializes, so a
// failed registration should abort process start, not be recovered from.
var (
	// ErrSealed indicates a registration after the registry was sealed.
	ErrSealed = errors.New("hookshim: registry sealed")

	// ErrDuplicate indicates the hook already has a provider bound.
	ErrDuplicate = errors.New("hookshim: hook already registered")

	// ErrNilProvider indicates Register was called with a nil provider.
	ErrNilProvider = errors.New("hookshim: nil provider")
)

// Registry holds the process-wide hook-name to Provider bindings.
//
// Lifecycle: populate via Register during process start, then Seal (the
// telemetry client does this when it initializes). After sealing the
// registry is immutable and safe for unsynchronized concurrent Lookup.
// There is no teardown; bindings live until process exit.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	sealed    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds a provider to a hook name. It fails when the registry is
// sealed, the provider is nil, or the hook already has a binding. All of
// these are configuration errors that should fail process start fast.
func (r *Registry) Register(hook string, p Provider) error {
	if p == nil {
		return fmt.Errorf("%w: hook %q", ErrNilProvider, hook)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register hook %q", ErrSealed, hook)
	}
	if _, exists := r.providers[hook]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicate, hook)
	}

	r.providers[hook] = p
	return nil
}

// MustRegister is Register, panicking on error. Intended for process start
// where a shim misconfiguration must not be survived.
func (r *Registry) MustRegister(hook string, p Provider) {
	if err := r.Register(hook, p); err != nil {
		panic(err)
	}
}

// Seal freezes the registry. Subsequent Register calls fail with ErrSealed.
// Sealing twice is a no-op.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the provider bound to hook. Unknown hooks get a NoOp
// stand-in, so callers can invoke whatever they resolve without checking.
func (r *Registry) Lookup(hook string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[hook]; ok {
		return p
	}
	return NoOp()
}
