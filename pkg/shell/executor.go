package shell

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrOutputOverflow is returned by RunBounded when the process exceeds its
// output cap and gets killed for it.
var ErrOutputOverflow = errors.New("output is too big")

type Command struct {
	Cmd *exec.Cmd
}

func NewCommand(ctx context.Context, command string, args ...string) *Command {
	return &Command{Cmd: exec.CommandContext(ctx, command, args...)}
}

func (c *Command) RunAndCollectStdout() (string, error) {
	data, err := c.Cmd.Output()
	return strings.TrimSpace(string(data)), err
}

// RunBounded runs the command to completion, capturing stdout and stderr.
// Once either stream exceeds maxOutput bytes the process is killed and
// ErrOutputOverflow is returned along with whatever was captured so far. A
// maxOutput of zero means unbounded.
func (c *Command) RunBounded(maxOutput int64) (string, string, error) {
	stdoutPipe, err := c.Cmd.StdoutPipe()
	if err != nil {
		return "", "", errors.Wrap(err, "failed to open stdout pipe")
	}
	stderrPipe, err := c.Cmd.StderrPipe()
	if err != nil {
		return "", "", errors.Wrap(err, "failed to open stderr pipe")
	}

	if err := c.Cmd.Start(); err != nil {
		return "", "", errors.Wrap(err, "failed to start process")
	}

	var stdout, stderr bytes.Buffer
	var overflowed atomic.Bool
	wg := &sync.WaitGroup{}
	wg.Add(2)
	go c.drain(wg, stdoutPipe, &stdout, maxOutput, &overflowed)
	go c.drain(wg, stderrPipe, &stderr, maxOutput, &overflowed)
	wg.Wait()

	err = c.Cmd.Wait()
	if overflowed.Load() {
		err = ErrOutputOverflow
	}
	return stdout.String(), stderr.String(), err
}

func (c *Command) drain(wg *sync.WaitGroup, pipe io.Reader, out *bytes.Buffer, maxSize int64, overflowed *atomic.Bool) {
	defer wg.Done()
	var copied int64
	for {
		n, err := io.CopyN(out, pipe, 1024)
		copied += n
		if maxSize > 0 && copied > maxSize {
			overflowed.Store(true)
			c.Cmd.Process.Kill()
			return
		}
		if err != nil {
			return
		}
	}
}
