package target

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// HistoryFile is the per host log of operator actions.
const HistoryFile = "/var/log/mtui.log"

// AddHistory appends "<unix-ts>:<user>:<event>:..." to the history file.
func (t *Target) AddHistory(ctx context.Context, events ...string) error {
	fields := append([]string{strconv.FormatInt(time.Now().Unix(), 10), t.lock.session.User}, events...)
	line := strings.Join(fields, ":")
	_, err := t.runQuiet(ctx, "echo "+shellQuote(line)+" >> "+HistoryFile)
	return err
}

// HistoryCommand builds the command listing the last count entries,
// optionally only those of the given events.
func HistoryCommand(count int, events []string) string {
	if len(events) == 0 {
		return "tail -n " + strconv.Itoa(count) + " " + HistoryFile
	}
	patterns := make([]string, 0, len(events))
	for _, e := range events {
		patterns = append(patterns, `-e ":`+e+`"`)
	}
	return "tac " + HistoryFile + " | grep -m " + strconv.Itoa(count) + " " + strings.Join(patterns, " ") + " | tac"
}
