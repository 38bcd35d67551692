package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result of a finished (or killed) process. Output holds stdout and stderr
// interleaved in the order the process wrote them.
type Result struct {
	Output []byte
	Code   int
}

var ErrTimeout = errors.New("command timed out")

// Env is the fixed environment handed to child processes.
var Env = []string{"PATH=/usr/sbin:/usr/bin:/sbin:/bin", "LANG=C", "LC_ALL=C"}

// Run executes name with args without a shell and returns merged output.
// A timeout <= 0 means no deadline beyond ctx. On deadline the process is
// killed and ErrTimeout is returned. Code is -1 when the process could not be
// started or did not exit normally.
func Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Env = Env
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	res := Result{Output: out.Bytes(), Code: exitCode(err)}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return res, ErrTimeout
	}
	return res, err
}

// IsExit reports whether err only means the process exited non-zero, as
// opposed to a spawn failure or a kill.
func IsExit(err error) bool {
	var ee *exec.ExitError
	return errors.As(err, &ee) && ee.Exited()
}

// IsSignal reports whether the process started but was ended by a signal.
func IsSignal(err error) bool {
	var ee *exec.ExitError
	return errors.As(err, &ee) && !ee.Exited()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
