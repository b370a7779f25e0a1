package health

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecChecker runs a host command, such as a device listing, and treats a
// zero exit status as healthy
type ExecChecker struct {
	Command []string
	Timeout time.Duration
}

// NewExecChecker creates a new exec checker
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Check runs the command
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if len(e.Command) == 0 {
		return Result{Message: "no command specified", CheckedAt: start, Duration: time.Since(start)}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.Command[0], e.Command[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("%s: %v", e.Command[0], err)
		if s := strings.TrimSpace(stderr.String()); s != "" {
			message += ": " + truncate(s, 200)
		}
		return Result{Message: message, CheckedAt: start, Duration: time.Since(start)}
	}

	message := e.Command[0] + " ok"
	if s := strings.TrimSpace(stdout.String()); s != "" {
		message += ": " + truncate(s, 100)
	}
	return Result{
		Healthy:   true,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Type returns the check type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	if timeout > 0 {
		e.Timeout = timeout
	}
	return e
}
