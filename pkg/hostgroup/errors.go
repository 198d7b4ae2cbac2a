package hostgroup

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/mtui/pkg/target"
)

var (
	ErrHostsLocked = errors.New("hosts locked")
	ErrCancelled   = errors.New("operation cancelled")
)

type HostNotConnectedError struct {
	Host string
}

func (e *HostNotConnectedError) Error() string {
	return fmt.Sprintf("host %s is not connected", e.Host)
}

// LockedHost is a host update_lock could not reserve. Err is set when the
// lock state could not be read at all.
type LockedHost struct {
	Host   string
	Status target.Status
	Err    error
}

// HostsLockedError aborts a batch when any host could not be locked.
type HostsLockedError struct {
	Hosts []LockedHost
}

func (e *HostsLockedError) Error() string {
	parts := make([]string, 0, len(e.Hosts))
	for _, h := range e.Hosts {
		switch {
		case h.Err != nil:
			parts = append(parts, fmt.Sprintf("%s (%v)", h.Host, h.Err))
		default:
			parts = append(parts, fmt.Sprintf("%s (by %s since %s)", h.Host, h.Status.Owner, h.Status.Since.Format(time.DateTime)))
		}
	}
	return "hosts locked: " + strings.Join(parts, ", ")
}

func (e *HostsLockedError) Is(target error) bool {
	return target == ErrHostsLocked
}

// RepoSetupError reports a host whose repository staging wrote to stderr
// or did not run at all. It stops prepare; other workflows only leave the
// host out.
type RepoSetupError struct {
	Host    string
	Command string
	Output  string
	Err     error
}

func (e *RepoSetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to prepare host %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("failed to prepare host %s: %s", e.Host, e.Command)
}

func (e *RepoSetupError) Unwrap() error {
	return e.Err
}
