package ocr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"
)

// Runner executes the tesseract binary. Tests swap in a stub.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

const stderrLogLimit = 4 << 10

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		r.logger.Debug("ocr.exec.ok", "cmd", name, "argc", len(args), "elapsed_ms", elapsed, "stdout_bytes", stdout.Len())
	case errors.As(err, &exitErr):
		r.logger.Error("ocr.exec.exit",
			"cmd", name,
			"code", exitErr.ExitCode(),
			"elapsed_ms", elapsed,
			"stderr", clip(stderr.String(), stderrLogLimit),
		)
	default:
		r.logger.Error("ocr.exec.failed", "cmd", name, "elapsed_ms", elapsed, "error", err)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
