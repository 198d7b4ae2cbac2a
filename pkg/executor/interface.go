package executor

import (
	"context"
	"time"
)

// Result 记录一次命令执行的结果
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Start    time.Time
	Duration time.Duration
	// Err is set when the command could not be run at all.
	Err error
}

// Failed reports whether the command did not complete with status 0.
func (r Result) Failed() bool {
	return r.Err != nil || r.ExitCode != 0
}

type Executor interface {
	// Run 执行命令; 非零退出码记录在 Result 中而不是作为 error 返回
	Run(ctx context.Context, cmd string) (Result, error)
}
