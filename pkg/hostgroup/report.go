package hostgroup

import (
	"cmp"
	"context"
	"slices"

	"example.com/mtui/pkg/target"
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, cmp.Compare[string])
	return keys
}

func (g *HostsGroup) ReportSelf(sink target.Sink) {
	for _, t := range g.Targets() {
		t.ReportSelf(sink)
	}
}

// ReportHistory queries the history file on every member first, then
// reports each host's output.
func (g *HostsGroup) ReportHistory(ctx context.Context, sink target.Sink, count int, events []string) error {
	if err := g.Run(ctx, target.HistoryCommand(count, events)); err != nil {
		return err
	}
	for _, t := range g.Targets() {
		t.ReportHistory(sink)
	}
	return nil
}

func (g *HostsGroup) ReportLocks(ctx context.Context, sink target.Sink) {
	for _, t := range g.Targets() {
		t.ReportLocks(ctx, sink)
	}
}

func (g *HostsGroup) ReportTimeout(sink target.Sink) {
	for _, t := range g.Targets() {
		t.ReportTimeout(sink)
	}
}

func (g *HostsGroup) ReportSessions(ctx context.Context, sink target.Sink) {
	for _, t := range g.Targets() {
		t.ReportSessions(ctx, sink)
	}
}

func (g *HostsGroup) ReportLog(sink target.Sink, count int) {
	for _, t := range g.Targets() {
		t.ReportLog(sink, count)
	}
}

func (g *HostsGroup) ReportProducts(sink target.Sink) {
	for _, t := range g.Targets() {
		t.ReportProducts(sink)
	}
}
