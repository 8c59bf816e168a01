package sftp

import (
	"strconv"

	"github.com/eugenetaranov/sftpconn/internal/connector/process"
)

var logLevelFlags = map[LogLevel]string{
	LogLevel0: "",
	LogLevel1: "-v",
	LogLevel2: "-vv",
	LogLevel3: "-vvv",
	LogLevel4: "-vvvv",
}

var ipTypeFlags = map[IPType]string{
	IPTypeIPv4: "-4",
	IPTypeIPv6: "-6",
}

// CommandSpec is the client binary plus the fixed arguments derived from a
// definition. It is reused for every execution against that definition.
type CommandSpec struct {
	name string
	args []string
}

// BuildCommand derives the ordered argument list for d. The batch file and the
// destination are not part of it; they are appended per execution.
func BuildCommand(d *Definition) CommandSpec {
	cfg := d.cfg

	args := []string{
		"-B", strconv.Itoa(cfg.BufferSize),
		"-l", strconv.FormatInt(d.kbit, 10),
	}

	// Level 0 maps to no flag at all
	if flag := logLevelFlags[cfg.LogLevel]; flag != "" {
		args = append(args, flag)
	}

	if cfg.ShouldPreserveMeta {
		args = append(args, "-p")
	}
	if cfg.ShouldFlush {
		args = append(args, "-f")
	}
	if cfg.IsCompressionEnabled {
		args = append(args, "-C")
	}
	if flag, ok := ipTypeFlags[cfg.ForceIPType]; ok {
		args = append(args, flag)
	}

	if cfg.Port != 0 {
		args = append(args, "-P", strconv.Itoa(cfg.Port))
	}
	if cfg.IdentityFile != "" {
		args = append(args, "-i", cfg.IdentityFile)
	}
	if cfg.SSHConfigFile != "" {
		args = append(args, "-F", cfg.SSHConfigFile)
	}

	return CommandSpec{name: cfg.SFTPCommand, args: args}
}

// Name returns the client binary.
func (c CommandSpec) Name() string {
	return c.name
}

// Args returns a copy of the fixed arguments.
func (c CommandSpec) Args() []string {
	return append([]string(nil), c.args...)
}

// With returns the fixed arguments followed by extra, without modifying c.
func (c CommandSpec) With(extra ...string) []string {
	out := make([]string, 0, len(c.args)+len(extra))
	out = append(out, c.args...)
	return append(out, extra...)
}

// String renders the baked command line.
func (c CommandSpec) String() string {
	return process.CommandLine(c.name, c.args)
}
