package repair

import (
	"sync"
)

// State is the lifecycle state of an Initializer.
type State int

const (
	// StateConstructed means Initialize has not run yet.
	StateConstructed State = iota
	// StateInitialized means initialization succeeded.
	StateInitialized
	// StateFailed means initialization failed; the failure is sticky.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateInitialized:
		return "initialized"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Initializer runs an initialization function at most once and remembers
// its outcome. The zero value is ready to use.
type Initializer struct {
	mu    sync.Mutex
	state State
	err   error
}

// Run calls fn if it has never been called and records the result.
// Later calls return the recorded result without calling fn.
func (i *Initializer) Run(fn func() error) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != StateConstructed {
		return i.err
	}

	if err := fn(); err != nil {
		i.state = StateFailed
		i.err = err
		return err
	}
	i.state = StateInitialized
	return nil
}

// State returns the current lifecycle state.
func (i *Initializer) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// IsInitialized reports whether Run has succeeded.
func (i *Initializer) IsInitialized() bool {
	return i.State() == StateInitialized
}
