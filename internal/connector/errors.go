package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ExitCodeConnectionFailed is the status ssh, and therefore sftp, exits with
// when the remote end could not be reached or the session dropped.
const ExitCodeConnectionFailed = 255

// ConfigurationError reports an invalid connection definition or request field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a reference to an unknown connection id.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("connection %d not found", e.ID)
}

// ConflictError reports an attempt to create a connection whose id is already registered.
type ConflictError struct {
	ID int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("connection %d already exists", e.ID)
}

// ExecutionError represents a failed invocation of the external client.
// ExitCode is -1 when the process could not be started or did not exit normally.
type ExecutionError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	var msg string
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("command failed with exit code %d: %s", e.ExitCode, e.Command)
	} else {
		msg = fmt.Sprintf("command failed: %s", e.Command)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Stderr != "" {
		msg += fmt.Sprintf("\nstderr: %s", strings.TrimSpace(e.Stderr))
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Reachability reports whether the failure looks like the remote end could not
// be reached, as opposed to a rejected command or a missing binary.
func (e *ExecutionError) Reachability() bool {
	if e.ExitCode == ExitCodeConnectionFailed {
		return true
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// UnexpectedError wraps failures that fall outside the other categories,
// such as I/O errors on the batch file.
type UnexpectedError struct {
	Op  string
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// IsReachability reports whether err is an ExecutionError caused by the remote
// end being unreachable.
func IsReachability(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr) && execErr.Reachability()
}
