// Package processtest provides a scriptable process.Runner for tests.
package processtest

import (
	"context"
	"sync"

	"github.com/eugenetaranov/sftpconn/internal/connector/process"
)

// Call records a single invocation of the fake runner.
type Call struct {
	Name string
	Args []string
}

// Runner is a fake process.Runner. Each call is recorded and answered by Func,
// or by an empty successful Result when Func is nil.
type Runner struct {
	Func func(ctx context.Context, name string, args []string) (*process.Result, error)

	mu    sync.Mutex
	calls []Call
}

// Run records the call and delegates to Func.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if r.Func == nil {
		return &process.Result{}, nil
	}
	return r.Func(ctx, name, args)
}

// Calls returns a copy of the recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// LastCall returns the most recent call. It panics if there were none.
func (r *Runner) LastCall() Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

// BatchFile returns the value following the -b flag in args, or "".
func BatchFile(args []string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-b" {
			return args[i+1]
		}
	}
	return ""
}

// Ensure Runner implements the process.Runner interface.
var _ process.Runner = (*Runner)(nil)
