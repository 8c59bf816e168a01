// Package main is the entrypoint for the sftpconn CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/eugenetaranov/sftpconn/internal/config"
	"github.com/eugenetaranov/sftpconn/internal/connector/process"
	"github.com/eugenetaranov/sftpconn/internal/connector/sftp"
	"github.com/eugenetaranov/sftpconn/internal/definitions"
	"github.com/eugenetaranov/sftpconn/internal/logging"
	"github.com/eugenetaranov/sftpconn/internal/output"
	"github.com/eugenetaranov/sftpconn/internal/registry"
	"github.com/eugenetaranov/sftpconn/internal/router"
	"github.com/eugenetaranov/sftpconn/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configFile string
	debug      bool
	noColor    bool
)

// Set up by the root command before any subcommand runs.
var (
	settings  *config.Config
	logger    *zap.Logger
	logCloser io.Closer
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		errOut := output.New(os.Stderr)
		errOut.SetColor(!noColor)
		errOut.Error("%v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sftpconn",
	Short: "sftpconn - SFTP connector driven by control messages",
	Long: `sftpconn manages named SFTP connection definitions and runs batches of
sftp commands against them through the system sftp client.

It serves control messages over a local HTTP endpoint and can also ping
or execute against connections from a definitions file directly.`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this file, rotated by size")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output and debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().Duration("exec-timeout", 0, "Abort a batch after this long (0 means no limit)")
	rootCmd.PersistentFlags().String("temp-dir", "", "Directory for batch files (default is the system temp dir)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(actionsCmd)
}

// setup loads the settings and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(configFile)
	if err != nil {
		return err
	}

	flags := map[string]*pflag.Flag{
		config.KeyLogLevel:        cmd.Flags().Lookup("log-level"),
		config.KeyLogFile:         cmd.Flags().Lookup("log-file"),
		config.KeyExecTimeout:     cmd.Flags().Lookup("exec-timeout"),
		config.KeyTempDir:         cmd.Flags().Lookup("temp-dir"),
		config.KeyListen:          cmd.Flags().Lookup("listen"),
		config.KeyMaxConcurrent:   cmd.Flags().Lookup("max-concurrent"),
		config.KeyDefinitionsFile: cmd.Flags().Lookup("definitions"),
	}
	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}
	if debug {
		v.Set(config.KeyLogLevel, "debug")
	}

	settings, err = config.Load(v)
	if err != nil {
		return err
	}

	logger, logCloser, err = logging.New(settings.Log)
	if err != nil {
		return err
	}
	logger.Debug("Loaded settings", zap.Any("settings", settings))
	return nil
}

// newRouter builds the registry and router shared by all subcommands.
func newRouter() *router.Router {
	factory := sftp.NewFactory(
		sftp.WithRunner(process.New(process.WithEnv("LC_ALL", "C"))),
		sftp.WithTimeout(settings.ExecTimeout),
		sftp.WithTempDir(settings.TempDir),
		sftp.WithLogger(logger),
	)
	reg := registry.New(factory, logger)
	return router.New(reg, factory,
		router.WithMaxConcurrent(settings.MaxConcurrent),
		router.WithLogger(logger))
}

func newOutput() *output.Output {
	out := output.New(os.Stdout)
	out.SetColor(!noColor)
	out.SetDebug(debug)
	return out
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			warn := output.New(os.Stderr)
			warn.SetColor(!noColor)
			warn.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// serveCmd runs the control message endpoint
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve control messages over HTTP",
	Long: `Listen for control messages on a local HTTP endpoint.

Messages are POSTed as JSON to /api/v1/messages. Connections from the
definitions file, if one is given, are registered before serving.

Examples:
  sftpconn serve
  sftpconn serve --listen 127.0.0.1:9000 --definitions definitions.yaml
  SFTPCONN_MAX_CONCURRENT=4 sftpconn serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "127.0.0.1:17020", "Address to listen on")
	serveCmd.Flags().Int64("max-concurrent", router.DefaultMaxConcurrent, "Maximum number of sftp processes running at once")
	serveCmd.Flags().String("definitions", "", "Definitions file to register at start-up")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt := newRouter()

	if settings.DefinitionsFile != "" {
		f, err := definitions.ParseFile(settings.DefinitionsFile)
		if err != nil {
			return err
		}
		n, err := f.Load(rt.Registry())
		if err != nil {
			return err
		}
		logger.Info("Registered connections from definitions file",
			zap.String("path", settings.DefinitionsFile), zap.Int("count", n))
	}

	ctx, cancel := signalContext()
	defer cancel()

	return server.New(settings.Listen, rt, logger).ListenAndServe(ctx)
}

// pingCmd checks that a connection is reachable
var pingCmd = &cobra.Command{
	Use:   "ping <definitions.yaml> <id>",
	Short: "Run the ping command of a connection",
	Long: `Run the configured ping command against one connection from a
definitions file. The connection does not need to be active.

Examples:
  sftpconn ping definitions.yaml 1
  sftpconn ping definitions.yaml 1 --debug`,
	Args: cobra.ExactArgs(2),
	RunE: runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := lookupDefinition(args[0], args[1])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	resp := newRouter().Dispatch(ctx, &router.Message{Action: router.KindPing, Config: cfg})
	return report(resp)
}

// execCmd runs a batch against a connection
var execCmd = &cobra.Command{
	Use:   "exec <definitions.yaml> <id> <batch-file|->",
	Short: "Execute a batch of sftp commands",
	Long: `Execute a batch of sftp commands against one connection from a
definitions file. The batch is read from a file, or from stdin when "-"
is given. A connection that is unreachable is rebuilt and retried once.

Examples:
  sftpconn exec definitions.yaml 1 upload.batch
  printf 'cd /upload\nput report.csv\n' | sftpconn exec definitions.yaml 1 -`,
	Args: cobra.ExactArgs(3),
	RunE: runExec,
}

func init() {
	execCmd.Flags().String("cid", "", "Correlation id reported with the result (default cli-<pid>)")
}

func runExec(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[1])
	if err != nil {
		return err
	}

	var data []byte
	if args[2] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[2])
	}
	if err != nil {
		return fmt.Errorf("failed to read batch: %w", err)
	}

	cid, _ := cmd.Flags().GetString("cid")
	if cid == "" {
		cid = fmt.Sprintf("cli-%d", os.Getpid())
	}

	f, err := definitions.ParseFile(args[0])
	if err != nil {
		return err
	}
	rt := newRouter()
	n, err := f.Load(rt.Registry())
	if err != nil {
		return err
	}
	newOutput().Debug("Registered %d connections from %s", n, f.Path)

	ctx, cancel := signalContext()
	defer cancel()

	resp := rt.Dispatch(ctx, &router.Message{
		Action: router.KindExecute,
		CID:    cid,
		Data:   string(data),
		Config: sftp.Config{ID: id},
	})
	return report(resp)
}

// validateCmd validates definitions files without running anything
var validateCmd = &cobra.Command{
	Use:   "validate <definitions.yaml> [definitions2.yaml ...]",
	Short: "Validate one or more definitions files",
	Long: `Parse and validate definitions files without running anything.

This checks for:
  - Valid YAML syntax
  - Required fields (name, sftp_command, ping_command, buffer_size)
  - Known log levels and IP types
  - Unique connection ids

Examples:
  sftpconn validate definitions.yaml
  sftpconn validate *.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateDefinitions,
}

func validateDefinitions(cmd *cobra.Command, args []string) error {
	out := newOutput()
	var hasErrors bool

	for _, path := range args {
		f, err := definitions.ParseFile(path)
		if err != nil {
			out.Validated(path, 0, err)
			hasErrors = true
			continue
		}
		out.Validated(path, len(f.Connections), nil)
	}

	if hasErrors {
		return fmt.Errorf("one or more definitions files failed validation")
	}

	out.Info("All %d definitions file(s) valid.", len(args))
	return nil
}

// actionsCmd lists the control messages understood by the router
var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List supported control message actions",
	Run: func(cmd *cobra.Command, args []string) {
		newOutput().Actions(newRouter().Kinds())
	},
}

// lookupDefinition returns the connection with the given id from a
// definitions file.
func lookupDefinition(path, rawID string) (sftp.Config, error) {
	id, err := parseID(rawID)
	if err != nil {
		return sftp.Config{}, err
	}

	f, err := definitions.ParseFile(path)
	if err != nil {
		return sftp.Config{}, err
	}
	for _, cfg := range f.Connections {
		if cfg.ID == id {
			return cfg, nil
		}
	}
	return sftp.Config{}, fmt.Errorf("connection %d not found in %s", id, path)
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid connection id %q", raw)
	}
	return id, nil
}

// report prints resp and turns a failed response into an error so the
// process exits non-zero.
func report(resp *router.Response) error {
	newOutput().Response(resp)
	if !resp.OK() {
		return fmt.Errorf("request failed with status %d", resp.Status)
	}
	return nil
}
