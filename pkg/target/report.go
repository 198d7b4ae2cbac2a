package target

import (
	"context"
	"strings"
	"time"

	"example.com/mtui/pkg/executor"
	"example.com/mtui/pkg/models"
)

// HostInfo is the summary line of list_hosts.
type HostInfo struct {
	Hostname      string
	Address       string
	System        string
	State         State
	Transactional bool
	Timeout       time.Duration
}

// Sink receives per host reports. Groups call it in hostname order.
type Sink interface {
	ListHost(h HostInfo)
	ListHistory(host string, lines []string)
	ListLocks(host string, st Status, err error)
	ListTimeout(host string, d time.Duration)
	ListSessions(host string, lines []string)
	ShowLog(host string, results []executor.Result)
	ListProducts(host string, products []models.Product)
}

// SessionsCommand lists the established ssh sessions of a host.
const SessionsCommand = "ss -H -tn state established '( sport = :ssh )'"

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func (t *Target) ReportSelf(sink Sink) {
	sink.ListHost(HostInfo{
		Hostname:      t.hostname,
		Address:       t.address,
		System:        t.system,
		State:         t.State(),
		Transactional: t.transactional,
		Timeout:       t.Timeout(),
	})
}

// ReportHistory shows the output of the last command, which the group
// sets to a history query.
func (t *Target) ReportHistory(sink Sink) {
	sink.ListHistory(t.hostname, lines(t.LastResult().Stdout))
}

func (t *Target) ReportLocks(ctx context.Context, sink Sink) {
	st, err := t.LockStatus(ctx)
	sink.ListLocks(t.hostname, st, err)
}

func (t *Target) ReportTimeout(sink Sink) {
	sink.ListTimeout(t.hostname, t.Timeout())
}

func (t *Target) ReportSessions(ctx context.Context, sink Sink) {
	r, err := t.runQuiet(ctx, SessionsCommand)
	if err != nil {
		t.log.Warn().Err(err).Msg("cannot list sessions")
	}
	sink.ListSessions(t.hostname, lines(r.Stdout))
}

// ReportLog shows the last count entries of the command log, all of them
// when count is not positive.
func (t *Target) ReportLog(sink Sink, count int) {
	log := t.CommandLog()
	if count > 0 && len(log) > count {
		log = log[len(log)-count:]
	}
	sink.ShowLog(t.hostname, log)
}

func (t *Target) ReportProducts(sink Sink) {
	sink.ListProducts(t.hostname, t.Products())
}
