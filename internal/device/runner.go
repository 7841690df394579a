package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ToolResult captures one external tool invocation.
type ToolResult struct {
	Cmd      string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ToolRunner executes an external command with a hard timeout. A nonzero exit
// is reported through ToolResult.ExitCode, not the error; the error is
// reserved for spawn failures and timeouts. Injectable so tests can substitute
// a deterministic fake without a toolchain or a device.
type ToolRunner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (ToolResult, error)
}

type execRunner struct{}

// NewExecRunner returns the os/exec-backed ToolRunner used in production.
func NewExecRunner() ToolRunner { return execRunner{} }

func (execRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (ToolResult, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := ToolResult{
		Cmd:      name + " " + strings.Join(args, " "),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("timeout running %s after %s", res.Cmd, timeout)
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.ExitCode = ee.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("run %s: %w", name, err)
	}
	return res, nil
}

// idfArgs builds the idf.py argument list for this manager's project and port.
func (m *Manager) idfArgs(args ...string) []string {
	base := []string{
		"-C", m.cfg.ProjectDir,
		"-p", m.cfg.SerialPort,
		"-b", fmt.Sprintf("%d", m.cfg.IDFBaud),
	}
	return append(base, args...)
}

// runIDFLocked invokes idf.py and converts a nonzero exit into a
// ToolFailureError carrying the captured output. Callers hold mu.
func (m *Manager) runIDFLocked(ctx context.Context, timeout time.Duration, args ...string) (ToolResult, error) {
	full := m.idfArgs(args...)
	m.log.Info().Strs("args", full).Msg("running idf.py")
	res, err := m.runner.Run(ctx, timeout, "idf.py", full...)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, &ToolFailureError{Cmd: res.Cmd, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	m.log.Info().Dur("took", res.Duration).Str("op", strings.Join(args, " ")).Msg("idf.py done")
	return res, nil
}

// outputTail returns the last chunk of combined tool output for reports.
func outputTail(res ToolResult) string {
	const keep = 4096
	out := strings.TrimSpace(res.Stdout + "\n" + res.Stderr)
	if len(out) > keep {
		out = out[len(out)-keep:]
	}
	return out
}
