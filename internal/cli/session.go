package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/migrant/internal/config"
	"github.com/roach88/migrant/internal/engine"
	"github.com/roach88/migrant/internal/logger"
)

// session is one CLI invocation: the loaded engine and its output.
type session struct {
	engine    *engine.Engine
	logger    *slog.Logger
	formatter *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Logs and errors go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// overrides turns the global flags into configuration overrides.
func (opts *RootOptions) overrides() (map[string]any, error) {
	out := map[string]any{}
	for _, kv := range opts.Sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, &config.Error{Key: kv, Message: "--set wants key=value"}
		}
		out[strings.TrimSpace(key)] = value
	}
	if opts.ChangesDir != "" {
		out["changes.dir"] = opts.ChangesDir
	}
	if opts.Environment != "" {
		out["environment"] = opts.Environment
	}
	if opts.LogFormat != "" {
		out["log.format"] = opts.LogFormat
	}
	if opts.Verbose {
		out["log.level"] = "debug"
	}
	return out, nil
}

// open loads the configuration and builds the engine. Errors are reported
// through the formatter.
func open(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	f := newFormatter(opts, cmd)

	overrides, err := opts.overrides()
	if err != nil {
		return nil, fail(f, "invalid flags", err, nil)
	}
	cfg, err := config.Load(config.LoadOptions{
		File:      opts.ConfigFile,
		Dir:       opts.ProjectDir,
		Overrides: overrides,
	})
	if err != nil {
		return nil, fail(f, "failed to load configuration", err, nil)
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, fail(f, "invalid configuration", err, nil)
	}

	l, err := logger.New(settings.Log.Level, settings.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, fail(f, "invalid configuration", &config.Error{Key: "log", Message: "invalid logging settings", Err: err}, nil)
	}

	e, err := engine.New(cfg, append([]engine.Option{engine.WithLogger(l)}, opts.EngineOptions...)...)
	if err != nil {
		return nil, fail(f, "invalid configuration", err, nil)
	}
	if cfg.File != "" {
		l.Debug("configuration loaded", "file", cfg.File)
	}
	return &session{engine: e, logger: l, formatter: f}, nil
}

// signalContext returns the command context canceled on SIGINT or SIGTERM.
func (s *session) signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Warn("received signal, stopping after the current change", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// finish writes the metrics textfile when one is configured.
func (s *session) finish() {
	path := s.engine.Settings().Metrics.Textfile
	if path == "" {
		return
	}
	if err := s.engine.Metrics().WriteTextfile(path); err != nil {
		s.logger.Error("failed to write metrics textfile", "path", path, "error", err)
		return
	}
	s.logger.Debug("metrics written", "path", path)
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
