package app

import "fmt"

// ConnectError means the sink could not be reached; no port was opened.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("sink connect: %v", e.Err) }

func (e *ConnectError) Unwrap() error { return e.Err }

// LaunchError identifies the port configuration that could not be opened.
// Sessions started before it keep running.
type LaunchError struct {
	Index int
	Port  string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch session %d (%s): %v", e.Index, e.Port, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
