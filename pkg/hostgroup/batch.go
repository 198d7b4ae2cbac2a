package hostgroup

import (
	"context"
	"errors"
	"slices"
	"sync"

	"example.com/mtui/pkg/logger"
	"example.com/mtui/pkg/target"
)

// batch is one workflow run over the group. Hosts taken out by an
// interrupt or by a failed repository setup get no further commands.
type batch struct {
	g *HostsGroup

	mu          sync.Mutex
	interrupted map[string]bool
	failed      map[string]error
}

func (g *HostsGroup) newBatch() *batch {
	return &batch{g: g, interrupted: map[string]bool{}, failed: map[string]error{}}
}

func (b *batch) skip(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interrupted[name] = true
	b.g.log.Warn().Str("host", name).Msg("interrupted, skipping host")
}

func (b *batch) fail(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed[name] = err
}

func (b *batch) failure(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failed[name]
}

func (b *batch) dropped(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interrupted[name] || b.failed[name] != nil
}

// active returns the names still taking part, sorted.
func (b *batch) active(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !b.dropped(name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func (b *batch) runEach(ctx context.Context, cmds map[string]string) error {
	live := make(map[string]string, len(cmds))
	for name, cmd := range cmds {
		if !b.dropped(name) {
			live[name] = cmd
		}
	}
	interrupted, err := b.g.runStep(ctx, live)
	for _, name := range interrupted {
		b.skip(name)
	}
	return err
}

// validate checks the last result of the named hosts still taking part,
// all members when names is nil.
func (b *batch) validate(wf map[string]target.Workflow, names []string) []error {
	if names == nil {
		names = b.g.Names()
	}
	var errs []error
	for _, name := range b.active(names) {
		w := wf[name]
		if w.Validate == nil {
			continue
		}
		if err := w.Validate(name, b.g.targets[name].LastResult()); err != nil {
			logger.Critical(&b.g.log).Str("host", name).Err(err).Msg("validation failed")
			errs = append(errs, err)
		}
	}
	return errs
}

// result joins the setup failures, in host order, with errs.
func (b *batch) result(errs []error) error {
	var all []error
	for _, name := range b.g.Names() {
		if err := b.failure(name); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(append(all, errs...)...)
}

// reboot restarts the transactional hosts still taking part and waits for
// them to come back. Reconnect failures leave the host degraded and are
// only logged.
func (b *batch) reboot(ctx context.Context, wf map[string]target.Workflow) error {
	cmds := b.g.transactionalCommands(wf, func(w target.Workflow) target.Template { return w.Reboot })
	hosts := b.active(sortedKeys(cmds))
	if len(hosts) == 0 {
		return nil
	}
	b.g.log.Info().Strs("hosts", hosts).Msg("rebooting transactional hosts")
	if err := b.runEach(ctx, cmds); err != nil {
		return err
	}
	for _, name := range b.active(hosts) {
		if err := b.g.targets[name].Reconnect(ctx, reconnectRetries, true); err != nil {
			b.g.log.Error().Err(err).Str("host", name).Msg("host did not come back")
		}
	}
	return cancelled(ctx)
}
