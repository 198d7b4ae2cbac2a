package hostgroup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"slices"
	"sync"

	"example.com/mtui/pkg/executor"
	"example.com/mtui/pkg/hooks"
	"example.com/mtui/pkg/logger"
	"example.com/mtui/pkg/models"
	"example.com/mtui/pkg/rpmver"
	"example.com/mtui/pkg/target"
	"example.com/mtui/pkg/workqueue"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Target is what the group needs from one host. *target.Target
// implements it.
type Target interface {
	Hostname() string
	State() target.State
	Transactional() bool

	Run(ctx context.Context, cmd string) (executor.Result, error)
	LastResult() executor.Result
	Record(r executor.Result)

	Put(ctx context.Context, local, remote string) error
	Get(ctx context.Context, remote, local string) error
	Remove(ctx context.Context, remote string) error

	LockStatus(ctx context.Context) (target.Status, error)
	Lock(ctx context.Context, comment string) error
	Unlock(ctx context.Context, force bool) error

	Reconnect(ctx context.Context, retry int, backoff bool) error
	Workflow(kind target.Kind, o target.PrepareOptions) target.Workflow

	SetPackages(required map[string]string)
	Packages() []*models.Package
	QueryVersions(ctx context.Context) (map[string]rpmver.Version, error)
	AddHistory(ctx context.Context, events ...string) error

	ReportSelf(sink target.Sink)
	ReportHistory(sink target.Sink)
	ReportLocks(ctx context.Context, sink target.Sink)
	ReportTimeout(sink target.Sink)
	ReportSessions(ctx context.Context, sink target.Sink)
	ReportLog(sink target.Sink, count int)
	ReportProducts(sink target.Sink)
}

// Report is the loaded update the workflows act on.
type Report interface {
	PackageList() []string
	RequiredVersions() map[string]string
	// RepoAlias returns ":p=<maintenance id>:<review id>".
	RepoAlias() string
	SetRepo(ctx context.Context, t Target, op target.RepoOp) error
	RunScripts(ctx context.Context, kind hooks.Kind, g *HostsGroup) error
	Auto() bool
}

// HostsGroup addresses a set of targets as one unit. A group lives for
// one operator command and assumes its members stay enabled meanwhile.
type HostsGroup struct {
	targets   map[string]Target
	queue     *workqueue.Queue
	progress  io.Writer
	interrupt <-chan struct{}
	log       zerolog.Logger
}

type Option func(*HostsGroup)

// WithQueue shares q between groups. Repository staging runs on it.
func WithQueue(q *workqueue.Queue) Option {
	return func(g *HostsGroup) { g.queue = q }
}

// WithProgress sets where the queue drain spinner is drawn.
func WithProgress(w io.Writer) Option {
	return func(g *HostsGroup) { g.progress = w }
}

// WithInterrupt delivers operator interrupts. Each value received while
// commands are running abandons the hosts still busy; the workflow goes on
// with the others.
func WithInterrupt(ch <-chan struct{}) Option {
	return func(g *HostsGroup) { g.interrupt = ch }
}

func New(targets []Target, opts ...Option) *HostsGroup {
	g := &HostsGroup{
		targets:  make(map[string]Target, len(targets)),
		progress: io.Discard,
		log:      logger.Logger.With("hostgroup"),
	}
	for _, t := range targets {
		g.targets[t.Hostname()] = t
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.queue == nil {
		g.queue = workqueue.New(64)
	}
	return g
}

func (g *HostsGroup) derive(targets []Target) *HostsGroup {
	return New(targets, WithQueue(g.queue), WithProgress(g.progress), WithInterrupt(g.interrupt))
}

// Select returns the members named in hosts, every member when hosts is
// empty. With enabled, disabled members are left out. Naming a host that
// is not a member fails with *HostNotConnectedError.
func (g *HostsGroup) Select(hosts []string, enabled bool) (*HostsGroup, error) {
	if len(hosts) == 0 && !enabled {
		return g, nil
	}
	for _, h := range hosts {
		if _, ok := g.targets[h]; !ok {
			return nil, &HostNotConnectedError{Host: h}
		}
	}
	var out []Target
	for name, t := range g.targets {
		if len(hosts) > 0 && !slices.Contains(hosts, name) {
			continue
		}
		if enabled && t.State() == target.Disabled {
			continue
		}
		out = append(out, t)
	}
	return g.derive(out), nil
}

// Names returns the member hostnames sorted.
func (g *HostsGroup) Names() []string {
	names := make([]string, 0, len(g.targets))
	for name := range g.targets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (g *HostsGroup) Len() int {
	return len(g.targets)
}

func (g *HostsGroup) Get(name string) (Target, bool) {
	t, ok := g.targets[name]
	return t, ok
}

// Targets returns the members in hostname order.
func (g *HostsGroup) Targets() []Target {
	out := make([]Target, 0, len(g.targets))
	for _, name := range g.Names() {
		out = append(out, g.targets[name])
	}
	return out
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}

// Run sends cmd to every member.
func (g *HostsGroup) Run(ctx context.Context, cmd string) error {
	cmds := make(map[string]string, len(g.targets))
	for name := range g.targets {
		cmds[name] = cmd
	}
	return g.RunEach(ctx, cmds)
}

// RunEach sends each member its own command concurrently. Hosts missing
// from cmds are left alone. A failing or interrupted host never stops the
// others; only cancellation of ctx is returned.
func (g *HostsGroup) RunEach(ctx context.Context, cmds map[string]string) error {
	interrupted, err := g.runStep(ctx, cmds)
	for _, name := range interrupted {
		g.log.Warn().Str("host", name).Msg("interrupted, skipping host")
	}
	return err
}

// runStep runs cmds concurrently and returns the hosts whose command was
// abandoned by an interrupt, sorted.
func (g *HostsGroup) runStep(ctx context.Context, cmds map[string]string) ([]string, error) {
	step, stop := g.interruptible(ctx)
	defer stop()

	var (
		eg          errgroup.Group
		mu          sync.Mutex
		interrupted []string
	)
	for name, cmd := range cmds {
		t, ok := g.targets[name]
		if !ok {
			continue
		}
		eg.Go(func() error {
			_, err := t.Run(step, cmd)
			switch {
			case err == nil:
			case step.Err() != nil && ctx.Err() == nil:
				mu.Lock()
				interrupted = append(interrupted, name)
				mu.Unlock()
			default:
				g.log.Error().Err(err).Str("host", name).Str("command", cmd).Msg("command failed")
			}
			return nil
		})
	}
	_ = eg.Wait()
	slices.Sort(interrupted)
	return interrupted, cancelled(ctx)
}

// interruptible derives a context for one step that an operator interrupt
// cancels without touching ctx.
func (g *HostsGroup) interruptible(ctx context.Context) (context.Context, func()) {
	step, cancel := context.WithCancel(ctx)
	if g.interrupt == nil {
		return step, cancel
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-g.interrupt:
			g.log.Warn().Msg("interrupt received, abandoning running hosts")
			cancel()
		case <-done:
		case <-step.Done():
		}
	}()
	return step, func() {
		close(done)
		cancel()
	}
}

// each runs fn for every member concurrently and joins the per host
// errors.
func (g *HostsGroup) each(fn func(name string, t Target) error) error {
	var eg errgroup.Group
	errs := make([]error, len(g.targets))
	for i, name := range g.Names() {
		t := g.targets[name]
		eg.Go(func() error {
			if err := fn(name, t); err != nil {
				errs[i] = fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}

func (g *HostsGroup) SFTPPut(ctx context.Context, local, remote string) error {
	return g.each(func(_ string, t Target) error {
		return t.Put(ctx, local, remote)
	})
}

// SFTPGet downloads remote from every member into dir as
// <basename>.<hostname>.
func (g *HostsGroup) SFTPGet(ctx context.Context, remote, dir string) error {
	return g.each(func(name string, t Target) error {
		return t.Get(ctx, remote, filepath.Join(dir, path.Base(remote)+"."+name))
	})
}

func (g *HostsGroup) SFTPRemove(ctx context.Context, remote string) error {
	return g.each(func(_ string, t Target) error {
		return t.Remove(ctx, remote)
	})
}

// QueryVersions returns the installed versions per host.
func (g *HostsGroup) QueryVersions(ctx context.Context) map[string]map[string]rpmver.Version {
	out := make(map[string]map[string]rpmver.Version, len(g.targets))
	for _, name := range g.Names() {
		v, err := g.targets[name].QueryVersions(ctx)
		if err != nil {
			g.log.Warn().Err(err).Str("host", name).Msg("cannot query package versions")
			continue
		}
		out[name] = v
	}
	return out
}

func (g *HostsGroup) AddHistory(ctx context.Context, events ...string) {
	for _, name := range g.Names() {
		if err := g.targets[name].AddHistory(ctx, events...); err != nil {
			g.log.Warn().Err(err).Str("host", name).Msg("cannot write history")
		}
	}
}

var _ Target = (*target.Target)(nil)
