package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/byteowlz/pagext/internal/api"
	"github.com/byteowlz/pagext/internal/config"
	"github.com/byteowlz/pagext/internal/format"
	"github.com/byteowlz/pagext/internal/logger"
	"github.com/byteowlz/pagext/internal/orchestrator"
	"github.com/byteowlz/pagext/pkg/extractor"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitFatal        = 1
	ExitInvalidInput = 3
	ExitConfigError  = 4
)

const version = "0.1.0"

var (
	cfgFile      string
	verbose      bool
	port         int
	outputFormat string
	jsonOutput   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitInvalidInput)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pagext",
		Short: "Extract the readable content of web pages",
		Long: `pagext fetches a web page, finds its main content and renders it as
html, markdown or plain text. Pages that cannot be extracted locally are
handed to a reader service.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/pagext/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(newServeCmd(), newExtractCmd(), newConfigCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP extraction service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	return cmd
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Extract one URL and print the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format (html|markdown|text, default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full JSON envelope")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write an example config file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	})
	return cmd
}

func setup() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, exitError(ExitConfigError, "failed to load config: %v", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, File: cfg.Logging.File, Development: verbose})
	if err != nil {
		return nil, nil, exitError(ExitConfigError, "failed to create logger: %v", err)
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if port != 0 {
		cfg.Server.Port = port
	}

	ext, err := extractor.New(cfg, extractor.Options{Logger: log})
	if err != nil {
		return exitError(ExitConfigError, "%v", err)
	}

	srv := api.NewServer(api.Config{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Debug:           cfg.Server.Debug,
		DefaultFormat:   format.Format(cfg.Output.DefaultFormat),
	}, ext, ext.Metrics(), log)

	if err := srv.Run(cmd.Context()); err != nil {
		log.Error("server stopped", logger.Error(err))
		return exitError(ExitFatal, "%v", err)
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	raw := outputFormat
	if raw == "" {
		raw = cfg.Output.DefaultFormat
	}
	f, ok := format.Parse(raw)
	if !ok {
		return exitError(ExitInvalidInput, "invalid format %q (want html, markdown or text)", raw)
	}

	ext, err := extractor.New(cfg, extractor.Options{Logger: log})
	if err != nil {
		return exitError(ExitConfigError, "%v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := ext.Extract(ctx, args[0], f)
	if err != nil {
		return exitError(ExitFatal, "extraction failed: %v", err)
	}

	return writeResult(cmd.OutOrStdout(), resp, jsonOutput)
}

func writeResult(w io.Writer, resp *orchestrator.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	_, err := fmt.Fprintln(w, resp.Content)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return exitError(ExitConfigError, "%v", err)
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		return exitError(ExitInvalidInput, "config file already exists: %s", path)
	}
	if err := config.Default().CreateExampleConfig(path); err != nil {
		return exitError(ExitConfigError, "failed to write config: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", path)
	return nil
}

type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string {
	return e.msg
}

func exitError(code int, tmpl string, args ...any) *exitErr {
	msg := fmt.Sprintf(tmpl, args...)
	if msg != "" {
		fmt.Fprintf(os.Stderr, "%s\n", msg)
	}
	return &exitErr{code: code, msg: msg}
}
