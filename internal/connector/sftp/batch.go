package sftp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eugenetaranov/sftpconn/internal/connector"
	"github.com/eugenetaranov/sftpconn/internal/connector/process"
)

// batchFilePattern is the os.CreateTemp pattern for batch files.
const batchFilePattern = "*-sftpconn-batch.txt"

// Sequence hands out command numbers. The first call to Next returns 1.
type Sequence struct {
	n atomic.Int64
}

// Next returns the next command number.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last number handed out, or 0.
func (s *Sequence) Current() int64 {
	return s.n.Load()
}

// BatchExecutor runs batches of sub-commands through a baked command.
type BatchExecutor struct {
	def     *Definition
	cmd     CommandSpec
	seq     *Sequence
	runner  process.Runner
	timeout time.Duration
	tempDir string
	logger  *zap.Logger
}

// Execute writes data to a fresh batch file, runs the client against it and
// returns the captured output. The batch file is removed before Execute returns.
func (b *BatchExecutor) Execute(ctx context.Context, cid, data string) (*connector.Output, error) {
	if cid == "" {
		return nil, &connector.ConfigurationError{Field: "cid", Reason: "is required"}
	}
	if strings.TrimSpace(data) == "" {
		return nil, &connector.ConfigurationError{Field: "data", Reason: "is required"}
	}

	commandNo := b.seq.Next()
	logger := b.logger.With(
		zap.Int("connection_id", b.def.ID()),
		zap.String("cid", cid),
		zap.Int64("command_no", commandNo),
	)
	logger.Info("Executing batch")
	logger.Debug("Batch data", zap.String("data", data))

	path, err := writeBatchFile(b.tempDir, data)
	if err != nil {
		return nil, &connector.UnexpectedError{Op: "write batch file", Err: err}
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Could not remove batch file", zap.String("path", path), zap.Error(err))
		}
	}()

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	args := b.cmd.With(b.batchArgs(path)...)
	commandLine := process.CommandLine(b.cmd.Name(), args)

	start := time.Now()
	res, err := b.runner.Run(ctx, b.cmd.Name(), args...)
	if err != nil {
		execErr := &connector.ExecutionError{Command: commandLine, ExitCode: -1, Err: err}
		if res != nil {
			execErr.Stdout = res.Stdout
			execErr.Stderr = res.Stderr
		}
		logger.Error("Batch could not be executed", zap.Error(err))
		return nil, execErr
	}

	if res.ExitCode != 0 {
		logger.Warn("Batch failed",
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", strings.TrimSpace(res.Stderr)),
			zap.Duration("took", time.Since(start)))
		return nil, &connector.ExecutionError{
			Command:  commandLine,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}

	logger.Info("Batch finished", zap.Duration("took", time.Since(start)))

	return &connector.Output{
		CID:       cid,
		CommandNo: commandNo,
		Command:   commandLine,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
	}, nil
}

// batchArgs returns the per-execution arguments. The destination, when there
// is one, must come last.
func (b *BatchExecutor) batchArgs(path string) []string {
	args := []string{"-b", path}
	if dest := destination(b.def); dest != "" {
		args = append(args, dest)
	}
	return args
}

// destination returns user@host, host, or "" when the host is left to the ssh config.
func destination(d *Definition) string {
	if d.Host() == "" {
		return ""
	}
	if d.Username() != "" {
		return fmt.Sprintf("%s@%s", d.Username(), d.Host())
	}
	return d.Host()
}

// writeBatchFile stores data in a new temporary file and returns its path.
func writeBatchFile(dir, data string) (string, error) {
	f, err := os.CreateTemp(dir, batchFilePattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()

	if _, err := f.WriteString(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	return path, nil
}
