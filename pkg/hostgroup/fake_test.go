package hostgroup

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"example.com/mtui/pkg/executor"
	"example.com/mtui/pkg/hooks"
	"example.com/mtui/pkg/models"
	"example.com/mtui/pkg/rpmver"
	"example.com/mtui/pkg/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trace struct {
	mu     sync.Mutex
	events []string
}

func (tr *trace) add(e string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, e)
}

func (tr *trace) all() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return slices.Clone(tr.events)
}

// matching returns the events starting with prefix, in order.
func (tr *trace) matching(prefix string) []string {
	var out []string
	for _, e := range tr.all() {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// assertBatches checks events is the concatenation of batches, where
// order inside one batch does not matter.
func assertBatches(t *testing.T, events []string, batches ...[]string) {
	t.Helper()
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	require.Len(t, events, total, "events: %v", events)
	i := 0
	for _, b := range batches {
		got := slices.Clone(events[i : i+len(b)])
		want := slices.Clone(b)
		slices.Sort(got)
		slices.Sort(want)
		assert.Equal(t, want, got, "events: %v", events)
		i += len(b)
	}
}

type fakeTarget struct {
	name          string
	transactional bool
	tr            *trace

	mu           sync.Mutex
	state        target.State
	last         executor.Result
	owner        string
	replies      map[string]executor.Result
	onRun        func(cmd string)
	failValidate bool
	failKinds    map[target.Kind]bool
	// commands starting with block wait for ctx; blocked is closed then
	block   string
	blocked chan struct{}
	pkgs         map[string]*models.Package
	installed    map[string]string
}

func newFake(tr *trace, name string, transactional bool) *fakeTarget {
	return &fakeTarget{
		name:          name,
		transactional: transactional,
		tr:            tr,
		state:         target.Enabled,
		replies:       map[string]executor.Result{},
		pkgs:          map[string]*models.Package{},
		installed:     map[string]string{},
		failKinds:     map[target.Kind]bool{},
		blocked:       make(chan struct{}),
	}
}

func (f *fakeTarget) Hostname() string    { return f.name }
func (f *fakeTarget) Transactional() bool { return f.transactional }

func (f *fakeTarget) State() target.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTarget) Run(ctx context.Context, cmd string) (executor.Result, error) {
	f.tr.add(cmd + "@" + f.name)
	f.mu.Lock()
	onRun := f.onRun
	r := executor.Result{Command: cmd}
	for prefix, reply := range f.replies {
		if strings.HasPrefix(cmd, prefix) {
			r = reply
			r.Command = cmd
		}
	}
	block := f.block != "" && strings.HasPrefix(cmd, f.block)
	if block {
		r.Err = context.Canceled
	}
	f.last = r
	f.mu.Unlock()
	if onRun != nil {
		onRun(cmd)
	}
	if block {
		close(f.blocked)
		<-ctx.Done()
		return r, ctx.Err()
	}
	return r, nil
}

func (f *fakeTarget) LastResult() executor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeTarget) Record(r executor.Result) {}

func (f *fakeTarget) Put(ctx context.Context, local, remote string) error {
	f.tr.add("put " + remote + "@" + f.name)
	return nil
}

func (f *fakeTarget) Get(ctx context.Context, remote, local string) error {
	f.tr.add("get " + local + "@" + f.name)
	return nil
}

func (f *fakeTarget) Remove(ctx context.Context, remote string) error {
	f.tr.add("rm " + remote + "@" + f.name)
	return nil
}

func (f *fakeTarget) setOwner(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owner = owner
}

func (f *fakeTarget) status() target.Status {
	switch f.owner {
	case "":
		return target.Status{}
	case "me":
		return target.Status{Locked: true, Mine: true, Owner: "me"}
	}
	return target.Status{Locked: true, Owner: f.owner, Since: time.Unix(1700000000, 0), Comment: "busy"}
}

func (f *fakeTarget) LockStatus(ctx context.Context) (target.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status(), nil
}

func (f *fakeTarget) Lock(ctx context.Context, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st := f.status(); st.Locked && !st.Mine {
		return &target.LockedError{Host: f.name, Status: st}
	}
	f.owner = "me"
	f.tr.add("lock@" + f.name)
	return nil
}

func (f *fakeTarget) Unlock(ctx context.Context, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status()
	if !st.Locked {
		return nil
	}
	if !st.Mine && !force {
		return &target.LockedError{Host: f.name, Status: st}
	}
	f.owner = ""
	f.tr.add("unlock@" + f.name)
	return nil
}

func (f *fakeTarget) Reconnect(ctx context.Context, retry int, backoff bool) error {
	f.tr.add("reconnect@" + f.name)
	return nil
}

func (f *fakeTarget) validator(kind target.Kind) target.Validator {
	return func(host string, r executor.Result) error {
		return f.validate(kind, host)
	}
}

func (f *fakeTarget) validate(kind target.Kind, host string) error {
	f.tr.add("validate@" + host)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failValidate || f.failKinds[kind] {
		return &target.ValidationError{Host: host, ExitCode: 1, Message: "boom"}
	}
	return nil
}

func (f *fakeTarget) Workflow(kind target.Kind, o target.PrepareOptions) target.Workflow {
	w := target.Workflow{Kind: kind, Validate: f.validator(kind)}
	if f.transactional {
		w.Reboot = "reboot"
	}
	switch kind {
	case target.Install:
		w.Command = "install $packages"
	case target.Uninstall:
		w.Command = "uninstall $packages"
	case target.Prepare:
		w.Command = "prep $package"
		w.InstalledOnly = "prep-installed $package"
		if f.transactional {
			w.StartCommand = "start"
		}
	case target.Downgrade:
		w.ListCommand = "list $packages"
		w.Command = "downgrade $package=$version"
		if f.transactional {
			w.InitSnapshot = "snapshot"
		}
	case target.Update:
		w.Command = "update $repa $packages"
	}
	return w
}

func (f *fakeTarget) SetPackages(required map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pkgs = map[string]*models.Package{}
	for name, v := range required {
		f.pkgs[name] = models.NewPackage(name, v)
	}
}

func (f *fakeTarget) Packages() []*models.Package {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Package
	for _, name := range sortedKeys(f.pkgs) {
		out = append(out, f.pkgs[name])
	}
	return out
}

func (f *fakeTarget) QueryVersions(ctx context.Context) (map[string]rpmver.Version, error) {
	f.tr.add("query@" + f.name)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]rpmver.Version{}
	for name, p := range f.pkgs {
		p.Current = rpmver.Parse(f.installed[name])
		out[name] = p.Current
	}
	return out, nil
}

func (f *fakeTarget) AddHistory(ctx context.Context, events ...string) error {
	f.tr.add("history " + strings.Join(events, ":") + "@" + f.name)
	return nil
}

func (f *fakeTarget) ReportSelf(sink target.Sink) {
	sink.ListHost(target.HostInfo{Hostname: f.name, State: f.State()})
}
func (f *fakeTarget) ReportHistory(sink target.Sink) {
	sink.ListHistory(f.name, []string{f.LastResult().Command})
}
func (f *fakeTarget) ReportLocks(ctx context.Context, sink target.Sink) {
	st, err := f.LockStatus(ctx)
	sink.ListLocks(f.name, st, err)
}
func (f *fakeTarget) ReportTimeout(sink target.Sink) { sink.ListTimeout(f.name, time.Minute) }
func (f *fakeTarget) ReportSessions(ctx context.Context, sink target.Sink) {
	sink.ListSessions(f.name, nil)
}
func (f *fakeTarget) ReportLog(sink target.Sink, count int) { sink.ShowLog(f.name, nil) }
func (f *fakeTarget) ReportProducts(sink target.Sink)       { sink.ListProducts(f.name, nil) }

type fakeReport struct {
	tr       *trace
	packages []string
	required map[string]string
	auto     bool
	onScript func(kind hooks.Kind)
	// failRepo makes SetRepo fail on the named hosts without running
	failRepo map[string]error
}

func (r *fakeReport) PackageList() []string               { return r.packages }
func (r *fakeReport) RequiredVersions() map[string]string { return r.required }
func (r *fakeReport) RepoAlias() string                   { return ":p=1:2" }
func (r *fakeReport) Auto() bool                          { return r.auto }

func (r *fakeReport) SetRepo(ctx context.Context, t Target, op target.RepoOp) error {
	if op != target.RepoAdd && op != target.RepoRemove {
		return target.ErrUnsupportedRepoOp
	}
	if err := r.failRepo[t.Hostname()]; err != nil {
		return err
	}
	_, err := t.Run(ctx, "repo "+string(op))
	return err
}

func (r *fakeReport) RunScripts(ctx context.Context, kind hooks.Kind, g *HostsGroup) error {
	r.tr.add("script-" + string(kind))
	if r.onScript != nil {
		r.onScript(kind)
	}
	return nil
}

type recordingSink struct {
	mu    sync.Mutex
	hosts []string
}

func (s *recordingSink) add(h string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts = append(s.hosts, h)
}

func (s *recordingSink) ListHost(h target.HostInfo)                         { s.add(h.Hostname) }
func (s *recordingSink) ListHistory(host string, lines []string)            { s.add(host) }
func (s *recordingSink) ListLocks(host string, st target.Status, err error) { s.add(host) }
func (s *recordingSink) ListTimeout(host string, d time.Duration)           { s.add(host) }
func (s *recordingSink) ListSessions(host string, lines []string)           { s.add(host) }
func (s *recordingSink) ShowLog(host string, results []executor.Result)     { s.add(host) }
func (s *recordingSink) ListProducts(host string, p []models.Product)       { s.add(host) }

func group(fakes ...*fakeTarget) *HostsGroup {
	return groupWith(nil, fakes...)
}

func groupWith(opts []Option, fakes ...*fakeTarget) *HostsGroup {
	targets := make([]Target, 0, len(fakes))
	for _, f := range fakes {
		targets = append(targets, f)
	}
	return New(targets, opts...)
}
