package target

import (
	"fmt"
	"strings"

	"example.com/mtui/pkg/executor"
	"example.com/mtui/pkg/logger"
)

// Validator interprets the result of a workflow command on one host. It
// logs informational outcomes and returns a *ValidationError for failures.
type Validator func(host string, r executor.Result) error

type ValidationError struct {
	Host     string
	Kind     Kind
	ExitCode int
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s on %s failed (exit %d): %s", e.Kind, e.Host, e.ExitCode, e.Message)
}

// zypper 的信息性退出码
var zypperInfo = map[int]string{
	100: "updates are needed",
	101: "security updates are needed",
	102: "reboot is needed",
	103: "package manager restart is needed",
	105: "interrupted by signal",
	106: "some repositories were skipped",
}

const zypperNotFound = 104

// 软件包缺失，prepare 时只告警
var notFoundMarkers = []string{
	"No provider of",
	"not found in package names",
}

var stderrErrors = []string{
	"Problem retrieving files",
	"Error:",
}

// markerLine returns the stderr line starting at the first marker found.
func markerLine(stderr string, markers []string) string {
	for _, marker := range markers {
		if i := strings.Index(stderr, marker); i >= 0 {
			return firstLine(stderr[i:])
		}
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func check(kind Kind, tool string, notFoundFatal bool) Validator {
	log := logger.Logger.With("validate")
	return func(host string, r executor.Result) error {
		fail := func(msg string) error {
			return &ValidationError{Host: host, Kind: kind, ExitCode: r.ExitCode, Message: msg}
		}
		if r.Err != nil {
			return fail(r.Err.Error())
		}
		if line := markerLine(r.Stderr, notFoundMarkers); line != "" || r.ExitCode == zypperNotFound {
			if line == "" {
				line = "package not found"
			}
			if notFoundFatal {
				return fail(line)
			}
			if r.ExitCode == 0 || r.ExitCode == zypperNotFound {
				log.Warn().Str("host", host).Str("kind", kind.String()).Msg(line)
				return nil
			}
		}
		if line := markerLine(r.Stderr, stderrErrors); line != "" {
			return fail(line)
		}

		switch code := r.ExitCode; {
		case code == 0:
		case code >= 100 && code <= 106:
			log.Warn().Str("host", host).Str("kind", kind.String()).Int("exit", code).
				Msgf("%s: %s", tool, zypperInfo[code])
		default:
			msg := firstLine(r.Stderr)
			if msg == "" {
				msg = tool + " failed"
			}
			return fail(msg)
		}

		if r.Stderr != "" {
			log.Warn().Str("host", host).Str("kind", kind.String()).Msg(firstLine(r.Stderr))
		}
		return nil
	}
}

func zypperCheck(kind Kind) Validator {
	return check(kind, "zypper", kind != Prepare)
}

func transactionalCheck(kind Kind) Validator {
	return check(kind, "transactional-update", kind != Prepare)
}
