package executor

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/bitfield/script"
)

// LocalExecutor 本地执行器
type LocalExecutor struct {
	Shell string
	Env   []string
}

func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{Shell: "/usr/bin/env bash"}
}

func (e *LocalExecutor) Run(ctx context.Context, cmd string) (Result, error) {
	start := time.Now()
	res := Result{Command: cmd, Start: start, ExitCode: -1}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res, err
	}

	// 使用 bash -c 执行以支持复杂的 shell 语法
	full := e.Shell + " -c " + shellQuote(cmd)

	type outcome struct {
		stdout, stderr string
		code           int
	}
	done := make(chan outcome, 1)
	go func() {
		var stdout, stderr bytes.Buffer
		pipe := script.NewPipe().WithEnv(e.Env).WithStderr(&stderr).Exec(full).WithStdout(&stdout)
		_, _ = pipe.Stdout()
		done <- outcome{stdout.String(), stderr.String(), pipe.ExitStatus()}
	}()

	select {
	case <-ctx.Done():
		res.Err = ctx.Err()
		res.Duration = time.Since(start)
		return res, res.Err
	case o := <-done:
		res.Stdout, res.Stderr, res.ExitCode = o.stdout, o.stderr, o.code
		res.Duration = time.Since(start)
		return res, nil
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
