package engine

import (
	"fmt"
	"sync"
)

// LoadState is the drawing library's async initialization state.
type LoadState int

const (
	StateUnloaded LoadState = iota
	StateLoading
	StateReady
	StateFailed
)

func (s LoadState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("LoadState(%d)", int(s))
}

// Constructor builds one backend instance from the loaded library.
type Constructor func() Backend

// Loader fetches the drawing library exactly once per application
// lifetime and memoizes its constructor; each canvas then constructs its
// own backend instance. A failed load is terminal: callers stay in the
// not-ready no-op state and a restart is the recovery path.
type Loader struct {
	mu      sync.Mutex
	factory func() (Constructor, error)
	state   LoadState
	ctor    Constructor
	err     error
	waiters []func(Constructor, error)
}

// NewLoader creates a loader around a library fetch function.
func NewLoader(factory func() (Constructor, error)) *Loader {
	return &Loader{factory: factory}
}

// State returns the current load state.
func (l *Loader) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Load starts the fetch if it has not happened yet and arranges for fn
// to run with the result. fn runs immediately when a result already
// exists; otherwise it is queued and invoked once the fetch settles.
// The fetch runs at most once regardless of how many callers race.
func (l *Loader) Load(fn func(Constructor, error)) {
	l.mu.Lock()
	switch l.state {
	case StateReady, StateFailed:
		ctor, err := l.ctor, l.err
		l.mu.Unlock()
		if fn != nil {
			fn(ctor, err)
		}
		return
	case StateLoading:
		if fn != nil {
			l.waiters = append(l.waiters, fn)
		}
		l.mu.Unlock()
		return
	}

	l.state = StateLoading
	if fn != nil {
		l.waiters = append(l.waiters, fn)
	}
	factory := l.factory
	l.mu.Unlock()

	go func() {
		ctor, err := factory()

		l.mu.Lock()
		if err != nil {
			l.state = StateFailed
			l.err = err
		} else {
			l.state = StateReady
			l.ctor = ctor
		}
		waiters := l.waiters
		l.waiters = nil
		l.mu.Unlock()

		for _, w := range waiters {
			w(ctor, err)
		}
	}()
}

// defaultLoader memoizes the process-wide library fetch, mirroring the
// module-scope caching of the dynamically imported engine class.
var (
	defaultLoaderOnce sync.Once
	defaultLoader     *Loader
)

// DefaultLoader returns the process-wide loader whose constructor builds
// MemoryBackend instances.
func DefaultLoader() *Loader {
	defaultLoaderOnce.Do(func() {
		defaultLoader = NewLoader(func() (Constructor, error) {
			return func() Backend { return NewMemoryBackend() }, nil
		})
	})
	return defaultLoader
}
