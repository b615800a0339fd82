package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/migrant/internal/change"
)

// DefaultShell runs shell change files when none is configured.
const DefaultShell = "/bin/sh"

// maxOutput caps how much script output is quoted in an error.
const maxOutput = 4 << 10

// waitDelay bounds how long Execute waits for output after the script was
// killed, in case a detached descendant still holds its pipes.
const waitDelay = 2 * time.Second

// Shell runs a change file as a script: <shell> <file>, from the file's
// directory. The script sees MIGRANT_ENVIRONMENT and MIGRANT_CHANGE_ID.
type Shell struct {
	shell  string
	logger *slog.Logger
}

// NewShell is the Factory for TypeShell.
func NewShell(_ context.Context, cfg Config, logger *slog.Logger) (Connector, error) {
	shell := cfg.Shell
	if shell == "" {
		shell = DefaultShell
	}
	return &Shell{shell: shell, logger: logger}, nil
}

func (s *Shell) Execute(ctx context.Context, f change.File, env string) error {
	cmd := exec.CommandContext(ctx, s.shell, f.Path())
	cmd.Dir = filepath.Dir(f.Path())
	cmd.Env = append(os.Environ(),
		"MIGRANT_ENVIRONMENT="+env,
		"MIGRANT_CHANGE_ID="+f.ID().String(),
	)
	killGroupOnCancel(cmd)
	cmd.WaitDelay = waitDelay

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if out.Len() > 0 {
		s.logger.Debug("script output", "change", f.ID().String(), "output", strings.TrimSpace(out.String()))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("run %s with %s: %w", f.RelPath(), s.shell, errors.Join(ctxErr, err))
		}
		return fmt.Errorf("run %s with %s: %w\n%s", f.RelPath(), s.shell, err, tail(out.Bytes()))
	}
	return nil
}

func (s *Shell) Close() error { return nil }

func tail(b []byte) string {
	if len(b) > maxOutput {
		b = b[len(b)-maxOutput:]
	}
	return strings.TrimSpace(string(b))
}
