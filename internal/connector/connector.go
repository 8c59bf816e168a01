// Package connector defines the interface for executing SFTP batches against
// outgoing connection definitions, along with the result and error types
// shared by its implementations.
package connector

import (
	"context"
)

// Output holds the result of executing one batch of SFTP commands.
type Output struct {
	// CID is the correlation id supplied by the caller (or synthesized for pings).
	CID string `json:"cid" yaml:"cid"`

	// Command is the exact command line that was executed.
	Command string `json:"command" yaml:"command"`

	// CommandNo is the sequence number assigned to this execution.
	CommandNo int64 `json:"command_no" yaml:"command_no"`

	Stdout string `json:"stdout" yaml:"stdout"`
	Stderr string `json:"stderr" yaml:"stderr"`
}

// Connector is the interface for outgoing connections that run batches of
// remote file-transfer commands.
type Connector interface {
	// Connect verifies the remote end is reachable. No session is kept open.
	Connect(ctx context.Context) error

	// Execute runs a batch of newline-separated commands and returns the result.
	Execute(ctx context.Context, cid, data string) (*Output, error)

	// Ping runs the connection's reachability command.
	Ping(ctx context.Context) (*Output, error)

	// Close releases the connection.
	Close() error

	// String returns a human-readable description of the connection.
	String() string
}
