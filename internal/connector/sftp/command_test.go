package sftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDefinition(t *testing.T, cfg Config) *Definition {
	t.Helper()
	def, err := NewDefinition(cfg)
	require.NoError(t, err)
	return def
}

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "reference scenario",
			mutate: func(c *Config) { c.ShouldPreserveMeta = false },
			want:   []string{"-B", "32678", "-l", "80000", "-vvvv", "-f", "-C", "-P", "22"},
		},
		{
			name: "minimal",
			mutate: func(c *Config) {
				*c = Config{Name: "min", SFTPCommand: "sftp", PingCommand: "pwd", BufferSize: 1024}
			},
			want: []string{"-B", "1024", "-l", "0"},
		},
		{
			name: "all flags in order",
			mutate: func(c *Config) {
				c.LogLevel = LogLevel1
				c.ForceIPType = IPTypeIPv4
				c.IdentityFile = "/keys/id_ed25519"
				c.SSHConfigFile = "/etc/sftpconn/ssh_config"
			},
			want: []string{
				"-B", "32678", "-l", "80000", "-v", "-p", "-f", "-C", "-4",
				"-P", "22", "-i", "/keys/id_ed25519", "-F", "/etc/sftpconn/ssh_config",
			},
		},
		{
			name: "ipv6 without port",
			mutate: func(c *Config) {
				c.Port = 0
				c.LogLevel = LogLevel0
				c.ShouldFlush = false
				c.IsCompressionEnabled = false
				c.ShouldPreserveMeta = false
				c.ForceIPType = IPTypeIPv6
			},
			want: []string{"-B", "32678", "-l", "80000", "-6"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			cmd := BuildCommand(mustDefinition(t, cfg))
			assert.Equal(t, "sftp", cmd.Name())
			assert.Equal(t, tt.want, cmd.Args())
		})
	}
}

func TestBuildCommandVerbosity(t *testing.T) {
	want := map[LogLevel][]string{
		LogLevel0: nil,
		LogLevel1: {"-v"},
		LogLevel2: {"-vv"},
		LogLevel3: {"-vvv"},
		LogLevel4: {"-vvvv"},
	}

	for level, flags := range want {
		cfg := Config{Name: "v", SFTPCommand: "sftp", PingCommand: "pwd", BufferSize: 1, LogLevel: level}
		args := BuildCommand(mustDefinition(t, cfg)).Args()
		assert.Equal(t, append([]string{"-B", "1", "-l", "0"}, flags...), args, "level %d", level)
	}
}

func TestCommandSpecIsImmutable(t *testing.T) {
	cmd := BuildCommand(mustDefinition(t, testConfig()))

	args := cmd.Args()
	args[0] = "-X"
	assert.Equal(t, "-B", cmd.Args()[0])

	first := cmd.With("-b", "/tmp/one")
	second := cmd.With("-b", "/tmp/two")
	assert.Equal(t, "/tmp/one", first[len(first)-1])
	assert.Equal(t, "/tmp/two", second[len(second)-1])
	assert.Len(t, cmd.Args(), len(first)-2)
}

func TestCommandSpecString(t *testing.T) {
	cfg := testConfig()
	cfg.SFTPCommand = "/usr/bin/sftp"
	cfg.IdentityFile = "/keys/my key"

	cmd := BuildCommand(mustDefinition(t, cfg))
	assert.Equal(t, "/usr/bin/sftp -B 32678 -l 80000 -vvvv -p -f -C -P 22 -i '/keys/my key'", cmd.String())
}
