package source

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrTimeout is returned by Runner when the command did not finish in time.
var ErrTimeout = errors.New("command timed out")

// Runner runs an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec. The process is killed once ctx
// is done.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// Do not wait forever for grandchildren holding the pipes open.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	out, err := cmd.Output()
	logrus.WithFields(logrus.Fields{
		"command": name,
		"args":    strings.Join(args, " "),
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}).Trace("external command finished")

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("%s: %w", name, ErrTimeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// runWithTimeout runs the command under its own deadline.
func runWithTimeout(ctx context.Context, run Runner, timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return run(ctx, name, args...)
}
