package badger

import (
	"errors"
)

var (
	// ErrNotFound is returned when a referenced document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrLeaseLost is returned when a conditional update is attempted by a
	// worker that no longer owns the job's lease
	ErrLeaseLost = errors.New("job lease lost")

	// ErrTerminalState is returned when a write targets a job that has
	// already reached a terminal state
	ErrTerminalState = errors.New("job already in terminal state")
)
