package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/eugenetaranov/sftpconn/internal/connector"
	"github.com/eugenetaranov/sftpconn/internal/connector/sftp"
	"github.com/eugenetaranov/sftpconn/internal/registry"
)

// DefaultMaxConcurrent bounds how many sftp processes run at once.
const DefaultMaxConcurrent = 16

// HandlerFunc handles one kind of control message.
type HandlerFunc func(ctx context.Context, msg *Message) (any, error)

// Router dispatches control messages by kind.
type Router struct {
	registry *registry.Registry
	factory  sftp.FactoryFunc
	handlers map[Kind]HandlerFunc
	sem      *semaphore.Weighted
	logger   *zap.Logger
}

// Option configures the router.
type Option func(*Router)

// WithMaxConcurrent bounds concurrent PING and EXECUTE processes.
func WithMaxConcurrent(n int64) Option {
	return func(r *Router) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// New creates a router over reg. Transient connections for PING are built
// with factory.
func New(reg *registry.Registry, factory sftp.FactoryFunc, opts ...Option) *Router {
	r := &Router{
		registry: reg,
		factory:  factory,
		handlers: make(map[Kind]HandlerFunc),
		sem:      semaphore.NewWeighted(DefaultMaxConcurrent),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("router")

	r.Handle(KindPing, r.onPing)
	r.Handle(KindCreate, r.onCreate)
	r.Handle(KindEdit, r.onEdit)
	r.Handle(KindDelete, r.onDelete)
	r.Handle(KindChangePassword, r.onChangePassword)
	r.Handle(KindExecute, r.onExecute)
	r.Handle(KindGenericEdit, r.onEdit)
	r.Handle(KindGenericChangePassword, r.onChangePassword)

	return r
}

// Handle registers h for kind.
// It panics if a handler for kind is already registered.
func (r *Router) Handle(kind Kind, h HandlerFunc) {
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("handler for %q is already registered", kind))
	}
	r.handlers[kind] = h
}

// Kinds returns the registered message kinds in sorted order.
func (r *Router) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sortKinds(kinds)
	return kinds
}

// Registry returns the registry the router operates on.
func (r *Router) Registry() *registry.Registry {
	return r.registry
}

// Dispatch handles msg and converts the outcome into a response. It never
// returns nil.
func (r *Router) Dispatch(ctx context.Context, msg *Message) *Response {
	h, ok := r.handlers[msg.Action]
	if !ok {
		return &Response{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("unknown action %q", msg.Action),
		}
	}

	data, err := h(ctx, msg)
	if err != nil {
		status := StatusFor(err)
		logger := r.logger.With(zap.String("action", string(msg.Action)), zap.Int("id", msg.ID), zap.Error(err))
		if status >= http.StatusInternalServerError {
			logger.Error("Message failed", zap.Int("status", status))
		} else {
			logger.Warn("Message rejected", zap.Int("status", status))
		}
		return &Response{Status: status, Message: err.Error(), Data: errorData(err)}
	}

	return &Response{Status: http.StatusOK, Data: data}
}

// StatusFor classifies err into an HTTP status code.
func StatusFor(err error) int {
	var (
		cfgErr      *connector.ConfigurationError
		notFoundErr *connector.NotFoundError
		conflictErr *connector.ConflictError
		execErr     *connector.ExecutionError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &execErr):
		if execErr.Reachability() {
			return http.StatusServiceUnavailable
		}
		return http.StatusNotAcceptable
	default:
		return http.StatusInternalServerError
	}
}

// errorData exposes the captured output of a failed execution to the caller.
func errorData(err error) any {
	var execErr *connector.ExecutionError
	if !errors.As(err, &execErr) {
		return nil
	}
	return map[string]any{
		"command":   execErr.Command,
		"exit_code": execErr.ExitCode,
		"stdout":    execErr.Stdout,
		"stderr":    execErr.Stderr,
	}
}

func (r *Router) onPing(ctx context.Context, msg *Message) (any, error) {
	conn, err := r.factory(msg.Config, nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	return conn.Ping(ctx)
}

func (r *Router) onCreate(ctx context.Context, msg *Message) (any, error) {
	conn, err := r.registry.Create(msg.Config)
	if err != nil {
		return nil, err
	}
	return connectionInfo(conn), nil
}

func (r *Router) onEdit(ctx context.Context, msg *Message) (any, error) {
	conn, err := r.registry.Edit(msg.Config)
	if err != nil {
		return nil, err
	}
	return connectionInfo(conn), nil
}

func (r *Router) onDelete(ctx context.Context, msg *Message) (any, error) {
	if err := r.registry.Delete(msg.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *Router) onChangePassword(ctx context.Context, msg *Message) (any, error) {
	conn, err := r.registry.ChangePassword(msg.ID, msg.Password)
	if err != nil {
		return nil, err
	}
	return connectionInfo(conn), nil
}

// onExecute runs a batch against a registered connection. A reachability
// failure on a first attempt rebuilds the connection and retries once.
func (r *Router) onExecute(ctx context.Context, msg *Message) (any, error) {
	conn, err := r.registry.Get(msg.ID)
	if err != nil {
		return nil, err
	}
	if !conn.Definition().IsActive() {
		return nil, &connector.ConfigurationError{
			Field:  "is_active",
			Reason: fmt.Sprintf("connection %d is not active", msg.ID),
		}
	}

	if msg.IsReconnect {
		return r.execute(ctx, conn, msg)
	}

	var (
		out     *connector.Output
		attempt int
	)
	op := func() error {
		attempt++
		if attempt > 1 {
			r.logger.Warn("Reconnecting after failed execution",
				zap.Int("id", msg.ID), zap.String("cid", msg.CID))

			rebuilt, err := r.registry.Rebuild(msg.ID)
			if err != nil {
				return backoff.Permanent(err)
			}
			conn = rebuilt
		}

		var err error
		out, err = r.execute(ctx, conn, msg)
		if err != nil && !connector.IsReachability(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Router) execute(ctx context.Context, conn *sftp.Connector, msg *Message) (*connector.Output, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	return conn.Execute(ctx, msg.CID, msg.Data)
}

func (r *Router) acquire(ctx context.Context) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return &connector.UnexpectedError{Op: "wait for execution slot", Err: err}
	}
	return nil
}
