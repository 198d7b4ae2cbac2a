package target

import (
	"context"
	"strings"
	"sync"

	"example.com/mtui/pkg/executor"
)

// fakeHost interprets the handful of commands a target issues for
// bookkeeping and answers everything else from replies.
type fakeHost struct {
	mu       sync.Mutex
	lockFile string
	history  []string
	replies  map[string]executor.Result
	commands []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{replies: map[string]executor.Result{}}
}

func echoed(cmd string) string {
	start := strings.Index(cmd, "echo '") + len("echo '")
	end := strings.LastIndex(cmd, "' >")
	return cmd[start:end]
}

func (f *fakeHost) Run(ctx context.Context, cmd string) (executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	r := executor.Result{Command: cmd}

	switch {
	case strings.HasPrefix(cmd, "cat "+LockFile):
		r.Stdout = f.lockFile
	case strings.HasPrefix(cmd, "(set -C; echo"):
		if f.lockFile != "" {
			r.ExitCode = 1
			r.Stderr = "cannot overwrite existing file"
			break
		}
		f.lockFile = echoed(cmd) + "\n"
	case strings.HasPrefix(cmd, "echo") && strings.HasSuffix(cmd, "> "+LockFile):
		f.lockFile = echoed(cmd) + "\n"
	case cmd == "rm -f "+LockFile:
		f.lockFile = ""
	case strings.HasSuffix(cmd, ">> "+HistoryFile):
		f.history = append(f.history, echoed(cmd))
	default:
		for prefix, reply := range f.replies {
			if strings.HasPrefix(cmd, prefix) {
				reply.Command = cmd
				return reply, nil
			}
		}
	}
	return r, nil
}

func (f *fakeHost) ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}
