package repair

import (
	"sync"
	"sync/atomic"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
)

// Recorder keeps the last structured error of a component and a monotonic
// corrupted flag. The zero value is clean.
type Recorder struct {
	mu        sync.Mutex
	last      *errors.Error
	corrupted atomic.Bool
}

// Record stores err as the last error. Integrity errors also set the
// corrupted flag. A nil err is ignored.
func (r *Recorder) Record(err *errors.Error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.last = err
	r.mu.Unlock()

	if err.Code.IsIntegrity() {
		r.corrupted.Store(true)
	}
}

// MarkCorrupted sets the corrupted flag. It returns true only for the call
// that flipped the flag.
func (r *Recorder) MarkCorrupted() bool {
	return r.corrupted.CompareAndSwap(false, true)
}

// IsCorrupted reports whether any integrity problem has been recorded.
// Once true it stays true.
func (r *Recorder) IsCorrupted() bool {
	return r.corrupted.Load()
}

// LastError returns a copy of the last recorded error, or nil.
func (r *Recorder) LastError() *errors.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last.Clone()
}
