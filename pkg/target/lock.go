package target

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"example.com/mtui/pkg/executor"
	"github.com/google/uuid"
)

// LockFile holds "<unix-ts>:<user>:<session>:<comment>" while a host is
// reserved by an operator.
const LockFile = "/var/lock/mtui.lock"

// Session identifies this console instance as a lock owner.
type Session struct {
	User string
	ID   string
}

func NewSession(user string) Session {
	return Session{User: user, ID: uuid.NewString()}
}

// Status is the parsed content of the lock file.
type Status struct {
	Locked  bool
	Mine    bool
	Owner   string
	Session string
	Since   time.Time
	Comment string
}

type LockedError struct {
	Host   string
	Status Status
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("host %s is locked by %s since %s", e.Host, e.Status.Owner, e.Status.Since.Format(time.DateTime))
}

func parseLock(content string, s Session) Status {
	content = strings.TrimSpace(content)
	if content == "" {
		return Status{}
	}
	parts := strings.SplitN(content, ":", 4)
	st := Status{Locked: true}
	if ts, err := strconv.ParseInt(parts[0], 10, 64); err == nil {
		st.Since = time.Unix(ts, 0)
	}
	if len(parts) > 1 {
		st.Owner = parts[1]
	}
	if len(parts) > 2 {
		st.Session = parts[2]
	}
	if len(parts) > 3 {
		st.Comment = parts[3]
	}
	st.Mine = st.Owner == s.User && st.Session == s.ID
	return st
}

func formatLock(s Session, now time.Time, comment string) string {
	comment = strings.Join(strings.Fields(comment), " ")
	return fmt.Sprintf("%d:%s:%s:%s", now.Unix(), s.User, s.ID, comment)
}

// lock 通过远程命令读写锁文件, 不记录到命令日志
type lock struct {
	host    string
	session Session
	run     func(ctx context.Context, cmd string) (executor.Result, error)
	now     func() time.Time
}

func (l *lock) status(ctx context.Context) (Status, error) {
	r, err := l.run(ctx, "cat "+LockFile+" 2>/dev/null || true")
	if err != nil {
		return Status{}, fmt.Errorf("read lock on %s: %w", l.host, err)
	}
	return parseLock(r.Stdout, l.session), nil
}

func (l *lock) acquire(ctx context.Context, comment string) error {
	st, err := l.status(ctx)
	if err != nil {
		return err
	}
	if st.Locked && !st.Mine {
		return &LockedError{Host: l.host, Status: st}
	}
	line := shellQuote(formatLock(l.session, l.now(), comment))
	cmd := "(set -C; echo " + line + " > " + LockFile + ")"
	if st.Mine {
		cmd = "echo " + line + " > " + LockFile
	}
	r, err := l.run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("write lock on %s: %w", l.host, err)
	}
	if r.ExitCode != 0 {
		// 另一个会话抢先创建了锁文件
		if st, err := l.status(ctx); err == nil && st.Locked && !st.Mine {
			return &LockedError{Host: l.host, Status: st}
		}
		return fmt.Errorf("write lock on %s: %s", l.host, strings.TrimSpace(r.Stderr))
	}
	return nil
}

func (l *lock) release(ctx context.Context, force bool) error {
	st, err := l.status(ctx)
	if err != nil {
		return err
	}
	if !st.Locked {
		return nil
	}
	if !st.Mine && !force {
		return &LockedError{Host: l.host, Status: st}
	}
	if _, err := l.run(ctx, "rm -f "+LockFile); err != nil {
		return fmt.Errorf("remove lock on %s: %w", l.host, err)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
