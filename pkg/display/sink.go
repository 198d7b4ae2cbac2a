// Package display renders host reports on the operator's terminal.
package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"example.com/mtui/pkg/executor"
	"example.com/mtui/pkg/models"
	"example.com/mtui/pkg/target"
	"github.com/charmbracelet/lipgloss"
)

// Sink writes reports to w. Colours are used only when w is a terminal.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
	st styles
}

func New(w io.Writer) *Sink {
	return &Sink{w: w, st: newStyles(lipgloss.NewRenderer(w))}
}

func (s *Sink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

// Println writes one plain line.
func (s *Sink) Println(line string) {
	s.printf("%s\n", line)
}

func (s *Sink) Warn(line string) {
	s.printf("%s\n", s.st.warn.Render(line))
}

func (s *Sink) Error(line string) {
	s.printf("%s\n", s.st.err.Render(line))
}

func (s *Sink) header(host string) {
	s.printf("%s:\n", s.st.host.Render(host))
}

func (s *Sink) ListHost(h target.HostInfo) {
	state := string(h.State)
	switch h.State {
	case target.Enabled:
		state = s.st.ok.Render(state)
	case target.Disabled:
		state = s.st.err.Render(state)
	case target.DryRun:
		state = s.st.warn.Render(state)
	}
	line := fmt.Sprintf("%-30s (%s) %s", s.st.host.Render(h.Hostname), h.System, state)
	if h.Transactional {
		line += " " + s.st.muted.Render("transactional")
	}
	s.printf("%s\n", line)
}

// ListHistory prints history entries "<ts>:<user>:<event>:..." with
// readable dates.
func (s *Sink) ListHistory(host string, lines []string) {
	s.header(host)
	for _, line := range lines {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			s.printf("  %s\n", line)
			continue
		}
		when := parts[0]
		if ts, err := strconv.ParseInt(parts[0], 10, 64); err == nil {
			when = time.Unix(ts, 0).Format(time.DateTime)
		}
		s.printf("  %s %s %s\n", s.st.muted.Render(when), parts[1], parts[2])
	}
}

func (s *Sink) ListLocks(host string, st target.Status, err error) {
	name := s.st.host.Render(host)
	switch {
	case err != nil:
		s.printf("%s: %s\n", name, s.st.err.Render("unknown lock state: "+err.Error()))
	case !st.Locked:
		s.printf("%s: %s\n", name, s.st.ok.Render("not locked"))
	case st.Mine:
		s.printf("%s: locked by this session since %s\n", name, st.Since.Format(time.DateTime))
	default:
		msg := fmt.Sprintf("locked by %s since %s", st.Owner, st.Since.Format(time.DateTime))
		if st.Comment != "" {
			msg += ": " + st.Comment
		}
		s.printf("%s: %s\n", name, s.st.warn.Render(msg))
	}
}

func (s *Sink) ListTimeout(host string, d time.Duration) {
	s.printf("%-30s: %s\n", s.st.host.Render(host), d)
}

func (s *Sink) ListSessions(host string, lines []string) {
	s.header(host)
	if len(lines) == 0 {
		s.printf("  %s\n", s.st.muted.Render("no sessions"))
	}
	for _, line := range lines {
		s.printf("  %s\n", line)
	}
}

func (s *Sink) ShowLog(host string, results []executor.Result) {
	s.header(host)
	for _, r := range results {
		s.printf("%s\n", s.st.command.Render("# "+r.Command))
		if out := strings.TrimRight(r.Stdout, "\n"); out != "" {
			s.printf("%s\n", out)
		}
		if errOut := strings.TrimRight(r.Stderr, "\n"); errOut != "" {
			s.printf("%s\n", s.st.warn.Render(errOut))
		}
		code := fmt.Sprintf("return code: %d", r.ExitCode)
		if r.Failed() {
			code = s.st.err.Render(code)
		} else {
			code = s.st.muted.Render(code)
		}
		s.printf("%s %s\n", code, s.st.muted.Render("("+r.Duration.Round(time.Millisecond).String()+")"))
	}
}

func (s *Sink) ListProducts(host string, products []models.Product) {
	s.header(host)
	for _, p := range products {
		s.printf("  %s\n", p)
	}
}

var _ target.Sink = (*Sink)(nil)
