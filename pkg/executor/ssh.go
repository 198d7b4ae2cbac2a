package executor

import (
	"context"
	"time"

	"example.com/mtui/pkg/ssh"
)

// Runner is the part of *ssh.Client the executor needs.
type Runner interface {
	Run(ctx context.Context, cmd string) (ssh.Output, error)
}

// SSHExecutor 包装 ssh.Client 以满足 Executor 接口
type SSHExecutor struct {
	client  Runner
	timeout time.Duration
}

// NewSSHExecutor wraps client. A positive timeout bounds every command.
func NewSSHExecutor(client Runner, timeout time.Duration) *SSHExecutor {
	return &SSHExecutor{client: client, timeout: timeout}
}

func (e *SSHExecutor) Run(ctx context.Context, cmd string) (Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := e.client.Run(ctx, cmd)
	res := Result{
		Command:  cmd,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: out.ExitCode,
		Start:    start,
		Duration: time.Since(start),
		Err:      err,
	}
	return res, err
}
