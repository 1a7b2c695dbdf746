// Package repair defines the capabilities shared by every parsing component
// of the salvage toolkit.
//
// Components do not inherit from a common base. They embed a Recorder to
// report structured errors and an Initializer to run their first I/O exactly
// once, and they satisfy ErrorProne and Initializeable so orchestration code
// can check any of them before trusting its output.
package repair

import (
	"github.com/FocuswithJustin/sqlsalvage/core/errors"
)

// ErrorProne is implemented by components that can report a structured error.
type ErrorProne interface {
	// LastError returns the most recently recorded error, or nil.
	LastError() *errors.Error
}

// Initializeable is implemented by components with an explicit
// construct-then-initialize lifecycle.
type Initializeable interface {
	// Initialize performs the component's first I/O. Calling it again
	// returns the outcome of the first call.
	Initialize() error

	// IsInitialized reports whether Initialize has succeeded.
	IsInitialized() bool
}

// Component is the union most orchestration code works with.
type Component interface {
	ErrorProne
	Initializeable
}

// InitializeAll initializes each component in order and returns the first
// failure. Components after a failure are not initialized.
func InitializeAll(components ...Initializeable) error {
	for _, c := range components {
		if c == nil {
			continue
		}
		if err := c.Initialize(); err != nil {
			return err
		}
	}
	return nil
}
