package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrRootUnavailable is returned by Engine.Run when the table of contents
	// cannot be fetched; nothing below it is discoverable.
	ErrRootUnavailable = errors.New("table of contents unavailable")
	// ErrNoCheckpoint is returned by TreeStore.Load when no tree checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint")
)

// TransportError is a fetch that failed after exhausting its attempts.
type TransportError struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError is a filesystem or store write failure. It is never retried.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
