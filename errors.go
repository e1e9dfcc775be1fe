package nativebind

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPlatform is wrapped by ModuleLoadError when the current
	// GOOS has no dynamic loader binding.
	ErrUnsupportedPlatform = errors.New("dynamic loading is not supported on this platform")

	// ErrNotExported is returned by optional entry points the loaded module
	// does not export.
	ErrNotExported = errors.New("symbol not exported by native module")

	// ErrWorkerExited is wrapped by WorkerError when a worker process goes away
	// before answering a job, usually because a native call faulted.
	ErrWorkerExited = errors.New("worker process exited")
)

// ModuleLoadError reports a native module that could not be opened or that is
// missing a required entry point. It is the only failure the bindings detect on
// their own; faults inside native code are not translated.
type ModuleLoadError struct {
	// Path is the module path handed to the loader.
	Path string

	// Symbol is the entry point that failed to resolve. Empty when the module
	// itself could not be opened.
	Symbol string

	// Err is the loader diagnostic.
	Err error
}

func (e *ModuleLoadError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("nativebind: load %q: resolve symbol %q: %v", e.Path, e.Symbol, e.Err)
	}
	return fmt.Sprintf("nativebind: load %q: %v", e.Path, e.Err)
}

func (e *ModuleLoadError) Unwrap() error {
	return e.Err
}

// RoundTripError is returned when the integer read back through an opaque
// handle differs from the seed it was created with.
type RoundTripError struct {
	Seed int32
	Got  int32
}

func (e *RoundTripError) Error() string {
	return fmt.Sprintf("nativebind: round trip mismatch: stored %d, read back %d", e.Seed, e.Got)
}

// WorkerError represents a failure inside a pool worker. It crosses the
// process boundary as a MessagePack value, so only plain fields live here.
type WorkerError struct {
	// Worker is the pool slot the job ran on.
	Worker int `msgpack:"worker"`

	// PID is the process that ran the job.
	PID int `msgpack:"pid"`

	// Seed is the job input, if known.
	Seed int32 `msgpack:"seed"`

	// Message describes the failure.
	Message string `msgpack:"message"`

	// Mismatch is set when the failure was a round trip mismatch, carrying the
	// value the worker read back.
	Mismatch *int32 `msgpack:"mismatch,omitempty"`

	cause error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("nativebind: worker %d (pid %d) seed %d: %s", e.Worker, e.PID, e.Seed, e.Message)
}

// Unwrap returns the local cause when one is known. For errors decoded from a
// child process this is a RoundTripError rebuilt from Mismatch, or nil.
func (e *WorkerError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	if e.Mismatch != nil {
		return &RoundTripError{Seed: e.Seed, Got: *e.Mismatch}
	}
	return nil
}

// newWorkerError builds a WorkerError for a job that failed in this process.
func newWorkerError(worker, pid int, seed int32, err error) *WorkerError {
	we := &WorkerError{
		Worker:  worker,
		PID:     pid,
		Seed:    seed,
		Message: err.Error(),
		cause:   err,
	}
	var rt *RoundTripError
	if errors.As(err, &rt) {
		got := rt.Got
		we.Mismatch = &got
	}
	return we
}
