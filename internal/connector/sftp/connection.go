package sftp

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eugenetaranov/sftpconn/internal/connector"
	"github.com/eugenetaranov/sftpconn/internal/connector/process"
)

// Connector runs SFTP batches for one connection definition. It keeps no
// session open between calls.
type Connector struct {
	def  *Definition
	cmd  CommandSpec
	exec *BatchExecutor
	now  func() time.Time
}

// Option configures the SFTP connector.
type Option func(*options)

type options struct {
	runner  process.Runner
	seq     *Sequence
	timeout time.Duration
	tempDir string
	logger  *zap.Logger
	now     func() time.Time
}

// WithRunner sets the process runner used to invoke the client.
func WithRunner(r process.Runner) Option {
	return func(o *options) {
		o.runner = r
	}
}

// WithSequence shares a command-number sequence with the connector. A nil
// sequence is ignored.
func WithSequence(seq *Sequence) Option {
	return func(o *options) {
		if seq != nil {
			o.seq = seq
		}
	}
}

// WithTimeout bounds each execution. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithTempDir sets where batch files are created. Empty means os.TempDir.
func WithTempDir(dir string) Option {
	return func(o *options) {
		o.tempDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock sets the time source used for ping correlation ids.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a connector for an already validated definition.
func New(def *Definition, opts ...Option) *Connector {
	o := &options{
		runner: process.New(),
		seq:    &Sequence{},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	cmd := BuildCommand(def)
	return &Connector{
		def: def,
		cmd: cmd,
		exec: &BatchExecutor{
			def:     def,
			cmd:     cmd,
			seq:     o.seq,
			runner:  o.runner,
			timeout: o.timeout,
			tempDir: o.tempDir,
			logger:  o.logger.Named("sftp"),
		},
		now: o.now,
	}
}

// Open validates cfg and creates a connector for it.
func Open(cfg Config, opts ...Option) (*Connector, error) {
	def, err := NewDefinition(cfg)
	if err != nil {
		return nil, err
	}
	return New(def, opts...), nil
}

// FactoryFunc builds a connector from a configuration and the command-number
// sequence it should continue.
type FactoryFunc func(cfg Config, seq *Sequence) (*Connector, error)

// NewFactory returns a FactoryFunc applying opts to every connector it builds.
func NewFactory(opts ...Option) FactoryFunc {
	return func(cfg Config, seq *Sequence) (*Connector, error) {
		all := append(append([]Option(nil), opts...), WithSequence(seq))
		return Open(cfg, all...)
	}
}

// Definition returns the definition the connector was built from.
func (c *Connector) Definition() *Definition {
	return c.def
}

// Command returns the baked command.
func (c *Connector) Command() CommandSpec {
	return c.cmd
}

// Connect pings the remote end. There is no session to establish.
func (c *Connector) Connect(ctx context.Context) error {
	_, err := c.Ping(ctx)
	return err
}

// Execute runs a batch of newline-separated sftp commands.
func (c *Connector) Execute(ctx context.Context, cid, data string) (*connector.Output, error) {
	return c.exec.Execute(ctx, cid, data)
}

// Ping runs the configured ping command under a synthesized correlation id.
func (c *Connector) Ping(ctx context.Context) (*connector.Output, error) {
	cid := "ping-" + c.now().UTC().Format(time.RFC3339Nano)
	return c.exec.Execute(ctx, cid, c.def.PingCommand())
}

// Close is a no-op; executions do not hold resources between calls.
func (c *Connector) Close() error {
	return nil
}

// String returns a description of the connection.
func (c *Connector) String() string {
	if c.def.Host() == "" {
		return fmt.Sprintf("sftp://%s", c.def.Name())
	}
	desc := fmt.Sprintf("sftp://%s", destination(c.def))
	if c.def.Port() != 0 {
		desc = fmt.Sprintf("%s:%d", desc, c.def.Port())
	}
	return desc
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)
