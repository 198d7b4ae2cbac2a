package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DryRunExecutor logs commands instead of running them.
type DryRunExecutor struct {
	Host string
	Log  zerolog.Logger
}

func (e *DryRunExecutor) Run(ctx context.Context, cmd string) (Result, error) {
	e.Log.Info().Str("host", e.Host).Str("command", cmd).Msg("dryrun")
	return Result{Command: cmd, Start: time.Now()}, nil
}
