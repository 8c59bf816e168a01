package sftp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/sftpconn/internal/connector"
	"github.com/eugenetaranov/sftpconn/internal/connector/process"
	"github.com/eugenetaranov/sftpconn/internal/connector/process/processtest"
)

func TestPing(t *testing.T) {
	runner := newRecordingRunner("sftp> ls .\n", "", 0)
	now := time.Date(2024, 3, 1, 12, 30, 0, 123456000, time.FixedZone("CET", 3600))
	conn := newTestConnector(t, testConfig(), runner, WithClock(func() time.Time { return now }))

	out, err := conn.Ping(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ping-2024-03-01T11:30:00.123456Z", out.CID)
	assert.True(t, strings.HasPrefix(out.CID, "ping-"))
	assert.Equal(t, []string{"ls ."}, runner.batches)
	assert.Equal(t, int64(1), out.CommandNo)
}

func TestConnect(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		runner := newRecordingRunner("", "", 0)
		conn := newTestConnector(t, testConfig(), runner)

		require.NoError(t, conn.Connect(context.Background()))
		assert.Len(t, runner.Calls(), 1)
		assert.Equal(t, []string{"ls ."}, runner.batches)
	})

	t.Run("unreachable", func(t *testing.T) {
		runner := newRecordingRunner("", "ssh: connect to host localhost port 22: Connection refused\n", 255)
		conn := newTestConnector(t, testConfig(), runner)

		err := conn.Connect(context.Background())
		require.Error(t, err)
		assert.True(t, connector.IsReachability(err))
	})
}

func TestClose(t *testing.T) {
	runner := &processtest.Runner{}
	conn := newTestConnector(t, testConfig(), runner)

	assert.NoError(t, conn.Close())
	assert.Empty(t, runner.Calls())

	// Still usable after Close
	_, err := conn.Execute(context.Background(), "cid", "pwd")
	assert.NoError(t, err)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = 9
	runner := &processtest.Runner{}

	conn, err := Open(cfg, WithRunner(runner))
	require.Error(t, err)
	assert.Nil(t, conn)

	var cfgErr *connector.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, runner.Calls())
}

func TestNewFactory(t *testing.T) {
	runner := newRecordingRunner("", "", 0)
	factory := NewFactory(WithRunner(runner), WithTempDir(t.TempDir()))
	seq := &Sequence{}

	first, err := factory(testConfig(), seq)
	require.NoError(t, err)
	_, err = first.Execute(context.Background(), "a", "pwd")
	require.NoError(t, err)

	// A rebuilt connector continues the same sequence
	second, err := factory(testConfig(), seq)
	require.NoError(t, err)
	out, err := second.Execute(context.Background(), "b", "pwd")
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.CommandNo)

	// A nil sequence starts over
	third, err := factory(testConfig(), nil)
	require.NoError(t, err)
	out, err = third.Execute(context.Background(), "c", "pwd")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.CommandNo)
}

func TestConnectorString(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"host and port", func(c *Config) {}, "sftp://localhost:22"},
		{"user", func(c *Config) { c.Username = "alice"; c.Port = 0 }, "sftp://alice@localhost"},
		{"no host", func(c *Config) { c.Host = "" }, "sftp://My SFTP connection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			conn := newTestConnector(t, cfg, &processtest.Runner{})
			assert.Equal(t, tt.want, conn.String())
		})
	}
}

// TestExecuteWithScriptClient drives a real subprocess standing in for sftp.
func TestExecuteWithScriptClient(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-sftp")
	body := `#!/bin/sh
# Prints its arguments, then the batch file given with -b.
echo "args: $*"
while [ $# -gt 0 ]; do
  if [ "$1" = "-b" ]; then cat "$2"; fi
  shift
done
echo "done" >&2
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	cfg := testConfig()
	cfg.SFTPCommand = script
	cfg.Username = "alice"
	tmp := t.TempDir()
	conn := newTestConnector(t, cfg, process.New(), WithTempDir(tmp))

	out, err := conn.Execute(context.Background(), "abc", "cd /in\nget a.txt\n")
	require.NoError(t, err)

	assert.Contains(t, out.Stdout, "args: -B 32678 -l 80000 -vvvv -p -f -C -P 22 -b ")
	assert.True(t, strings.Contains(out.Stdout, " alice@localhost\n"))
	assert.True(t, strings.HasSuffix(out.Stdout, "cd /in\nget a.txt\n"))
	assert.Equal(t, "done\n", out.Stderr)
	assert.True(t, strings.HasPrefix(out.Command, script+" -B 32678"))
	assert.True(t, strings.HasSuffix(out.Command, " alice@localhost"))

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
