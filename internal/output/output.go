// Package output provides formatted terminal output for the CLI subcommands.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/eugenetaranov/sftpconn/internal/connector"
	"github.com/eugenetaranov/sftpconn/internal/router"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Output handles formatted output.
type Output struct {
	w        io.Writer
	useColor bool
	debug    bool
}

// New creates a new output handler.
func New(w io.Writer) *Output {
	return &Output{
		w:        w,
		useColor: true,
	}
}

// SetColor enables or disables color output.
func (o *Output) SetColor(enabled bool) {
	o.useColor = enabled
}

// SetDebug enables or disables debug output.
func (o *Output) SetDebug(enabled bool) {
	o.debug = enabled
}

// color returns the string wrapped in color codes if enabled.
func (o *Output) color(c, s string) string {
	if !o.useColor {
		return s
	}
	return c + s + colorReset
}

// Response prints the outcome of a dispatched message.
func (o *Output) Response(resp *router.Response) {
	if !resp.OK() {
		o.Failure(resp)
		return
	}

	switch data := resp.Data.(type) {
	case *connector.Output:
		o.Result(data)
	case *router.ConnectionInfo:
		o.Connection(data)
	default:
		o.printf("  %s %s\n", o.color(colorGreen, "✓"), o.color(colorGray, fmt.Sprintf("(%d)", resp.Status)))
	}
}

// Result prints a successful execution.
// Format: ✓ #command_no cid, followed by stdout.
func (o *Output) Result(out *connector.Output) {
	o.printf("  %s %s %s\n",
		o.color(colorGreen, "✓"),
		o.color(colorCyan, fmt.Sprintf("#%d", out.CommandNo)),
		out.CID)

	if o.debug {
		o.printf("    %s %s\n", o.color(colorGray, "→"), out.Command)
	}
	o.stream("stdout", out.Stdout, true)
	o.stream("stderr", out.Stderr, o.debug)
}

// Failure prints a failed message with the captured output, if any.
func (o *Output) Failure(resp *router.Response) {
	o.printf("  %s %s %s\n",
		o.color(colorRed, "✗"),
		o.color(colorRed, fmt.Sprintf("FAILED (%d)", resp.Status)),
		resp.Message)

	data, ok := resp.Data.(map[string]any)
	if !ok {
		return
	}
	if cmd, ok := data["command"].(string); ok && o.debug {
		o.printf("    %s %s\n", o.color(colorGray, "→"), cmd)
	}
	if s, ok := data["stdout"].(string); ok {
		o.stream("stdout", s, o.debug)
	}
}

// Connection prints a registered or transient connection.
func (o *Output) Connection(info *router.ConnectionInfo) {
	state := o.color(colorGreen, "active")
	if !info.IsActive {
		state = o.color(colorYellow, "inactive")
	}
	o.printf("  %s %s %s %s\n",
		o.color(colorGray, fmt.Sprintf("[%d]", info.ID)),
		info.Name,
		o.color(colorGray, fmt.Sprintf("(%s)", info.Address)),
		state)

	if o.debug {
		o.printf("    %s %s\n", o.color(colorGray, "→"), info.Command)
	}
}

// Validated prints the outcome of validating one definitions file.
func (o *Output) Validated(path string, connections int, err error) {
	if err != nil {
		o.printf("  %s %s\n", o.color(colorRed, "✗"), path)
		o.printf("    %s\n", err)
		return
	}
	o.printf("  %s %s %s\n",
		o.color(colorGreen, "✓"),
		path,
		o.color(colorGray, fmt.Sprintf("(%d connections)", connections)))
}

// Actions prints the supported message kinds under a section header.
func (o *Output) Actions(kinds []router.Kind) {
	o.Section("ACTIONS")
	for _, k := range kinds {
		o.printf("  - %s\n", k)
	}
	o.printf("\n")
	o.Info("%d actions supported", len(kinds))
}

// Section prints a section header.
func (o *Output) Section(name string) {
	o.printf("\n%s\n", o.color(colorBold, name))
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorBlue, "INFO"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (o *Output) Warn(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Debug prints a debug message (only in debug mode).
func (o *Output) Debug(format string, args ...any) {
	if o.debug {
		o.printf("%s %s\n", o.color(colorGray, "DEBUG"), fmt.Sprintf(format, args...))
	}
}

// stream prints captured process output indented under a label.
func (o *Output) stream(label, s string, show bool) {
	s = strings.TrimRight(s, "\n")
	if !show || s == "" {
		return
	}
	o.printf("    %s\n", o.color(colorGray, label+":"))
	for _, line := range strings.Split(s, "\n") {
		o.printf("      %s\n", line)
	}
}

func (o *Output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}
