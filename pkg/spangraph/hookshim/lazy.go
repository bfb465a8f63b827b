package hookshim

import (
	"log/slog"
	"sync"
)

// lazyDelegate loads the real provider on first access, at most once.
// A failed load is memoized: the provider behaves as NoOp for the rest of
// the process and the loader is never retried.
type lazyDelegate struct {
	load func() (Provider, error)

	once     sync.Once
	delegate Provider // nil after a failed load
}

// LazyDelegate returns a Provider that resolves the real implementation via
// load on first access. load is invoked at most once per process; on error
// (or panic) the provider permanently falls back to no-op behavior.
//
// A nil load is treated as an immediate load failure.
func LazyDelegate(load func() (Provider, error)) Provider {
	return &lazyDelegate{load: load}
}

// resolve runs the loader exactly once and caches the outcome.
func (l *lazyDelegate) resolve() Provider {
	l.once.Do(func() {
		if l.load == nil {
			slog.Warn("hookshim: no loader configured, falling back to no-op")
			return
		}

		// A panicking loader must not take the process down; it memoizes
		// as a failed load like any other error.
		defer func() {
			if r := recover(); r != nil {
				l.delegate = nil
				slog.Warn("hookshim: hook loader panicked, falling back to no-op",
					slog.Any("panic", r))
			}
		}()

		delegate, err := l.load()
		if err != nil {
			slog.Warn("hookshim: hook load failed, falling back to no-op",
				slog.String("error", err.Error()))
			return
		}
		l.delegate = delegate
	})
	return l.delegate
}

// Hook implements Provider.
func (l *lazyDelegate) Hook(name string) HookFunc {
	if d := l.resolve(); d != nil {
		if fn := d.Hook(name); fn != nil {
			return fn
		}
	}
	return inertHook
}

// Middleware implements Provider.
func (l *lazyDelegate) Middleware() Middleware {
	if d := l.resolve(); d != nil {
		if mw := d.Middleware(); mw != nil {
			return mw
		}
	}
	return identityMiddleware
}
