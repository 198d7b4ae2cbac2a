package target

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"example.com/mtui/pkg/executor"
	"example.com/mtui/pkg/logger"
	"example.com/mtui/pkg/models"
	"example.com/mtui/pkg/sftp"
	"github.com/rs/zerolog"
)

type State string

const (
	Enabled  State = "enabled"
	Disabled State = "disabled"
	DryRun   State = "dryrun"
)

func ParseState(s string) (State, error) {
	switch State(s) {
	case Enabled, Disabled, DryRun:
		return State(s), nil
	}
	return "", fmt.Errorf("unknown host state %q (enabled, disabled, dryrun)", s)
}

var (
	ErrNoTransfer   = errors.New("target has no file transfer channel")
	ErrNotReachable = errors.New("target not reachable")
)

// FileTransfer is implemented by *sftp.Client.
type FileTransfer interface {
	Upload(ctx context.Context, local, remote string, progress sftp.ProgressCallback) error
	Download(ctx context.Context, remote, local string, progress sftp.ProgressCallback) error
	Remove(remote string) error
}

// Dialer re-establishes the channels to a host after a reboot.
type Dialer func(ctx context.Context) (executor.Executor, FileTransfer, error)

// Target is one remote host under test.
type Target struct {
	hostname      string
	address       string
	system        string
	transactional bool
	log           zerolog.Logger

	mu       sync.Mutex
	state    State
	timeout  time.Duration
	exec     executor.Executor
	files    FileTransfer
	last     executor.Result
	history  []executor.Result
	packages map[string]*models.Package
	products []models.Product

	lock           lock
	dial           Dialer
	probe          func(ctx context.Context) error
	reconnectDelay time.Duration
}

type Option func(*Target)

func WithExecutor(e executor.Executor) Option {
	return func(t *Target) { t.exec = e }
}

func WithFiles(f FileTransfer) Option {
	return func(t *Target) { t.files = f }
}

func WithSystem(system string) Option {
	return func(t *Target) { t.system = system }
}

func WithTransactional(v bool) Option {
	return func(t *Target) { t.transactional = v }
}

func WithAddress(addr string) Option {
	return func(t *Target) { t.address = addr }
}

func WithSession(s Session) Option {
	return func(t *Target) { t.lock.session = s }
}

func WithTimeout(d time.Duration) Option {
	return func(t *Target) { t.timeout = d }
}

func WithState(s State) Option {
	return func(t *Target) { t.state = s }
}

func WithProducts(p ...models.Product) Option {
	return func(t *Target) { t.products = p }
}

// WithDialer sets how Reconnect re-establishes the connection and how
// long it waits between attempts.
func WithDialer(d Dialer, delay time.Duration) Option {
	return func(t *Target) {
		t.dial = d
		t.reconnectDelay = delay
	}
}

// WithProbe overrides the reachability check Reconnect runs before
// dialling.
func WithProbe(p func(ctx context.Context) error) Option {
	return func(t *Target) { t.probe = p }
}

func New(hostname string, opts ...Option) *Target {
	t := &Target{
		hostname:       hostname,
		address:        hostname,
		state:          Enabled,
		timeout:        300 * time.Second,
		packages:       map[string]*models.Package{},
		reconnectDelay: 10 * time.Second,
		log:            logger.Logger.With("target").With().Str("host", hostname).Logger(),
	}
	t.lock = lock{host: hostname, session: NewSession("unknown"), run: t.runQuiet, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	if t.probe == nil {
		t.probe = t.defaultProbe
	}
	return t
}

func (t *Target) Hostname() string    { return t.hostname }
func (t *Target) System() string      { return t.system }
func (t *Target) Transactional() bool { return t.transactional }

func (t *Target) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Target) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Target) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

func (t *Target) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

func (t *Target) executor() (executor.Executor, State, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == DryRun || t.exec == nil {
		return &executor.DryRunExecutor{Host: t.hostname, Log: t.log}, t.state, t.timeout
	}
	return t.exec, t.state, t.timeout
}

// Run executes cmd and records the result as the last one. Disabled hosts
// skip the command. A non-zero exit is not an error.
func (t *Target) Run(ctx context.Context, cmd string) (executor.Result, error) {
	exec, state, timeout := t.executor()
	if state == Disabled {
		t.log.Debug().Str("command", cmd).Msg("host disabled, skipping")
		return executor.Result{Command: cmd}, nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.log.Debug().Str("command", cmd).Msg("run")
	r, err := exec.Run(ctx, cmd)
	if err != nil && r.Err == nil {
		r.Err = err
	}

	t.mu.Lock()
	t.last = r
	t.history = append(t.history, r)
	t.mu.Unlock()

	if err != nil {
		t.log.Error().Err(err).Str("command", cmd).Msg("command failed to run")
	}
	return r, err
}

// runQuiet runs bookkeeping commands that must not replace the last
// result.
func (t *Target) runQuiet(ctx context.Context, cmd string) (executor.Result, error) {
	exec, state, _ := t.executor()
	if state == Disabled {
		return executor.Result{Command: cmd}, nil
	}
	return exec.Run(ctx, cmd)
}

func (t *Target) LastResult() executor.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// CommandLog returns every recorded result, oldest first.
func (t *Target) CommandLog() []executor.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.history)
}

// Record appends a result produced elsewhere, e.g. by a local compare
// script, to the command log.
func (t *Target) Record(r executor.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, r)
}

func (t *Target) transfer() (FileTransfer, State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.files == nil && t.state != DryRun && t.state != Disabled {
		return nil, t.state, ErrNoTransfer
	}
	return t.files, t.state, nil
}

func (t *Target) Put(ctx context.Context, local, remote string) error {
	f, state, err := t.transfer()
	if err != nil || state == Disabled {
		return err
	}
	if state == DryRun {
		t.log.Info().Str("local", local).Str("remote", remote).Msg("dryrun put")
		return nil
	}
	return f.Upload(ctx, local, remote, nil)
}

func (t *Target) Get(ctx context.Context, remote, local string) error {
	f, state, err := t.transfer()
	if err != nil || state == Disabled {
		return err
	}
	if state == DryRun {
		t.log.Info().Str("remote", remote).Str("local", local).Msg("dryrun get")
		return nil
	}
	return f.Download(ctx, remote, local, nil)
}

func (t *Target) Remove(ctx context.Context, remote string) error {
	f, state, err := t.transfer()
	if err != nil || state == Disabled {
		return err
	}
	if state == DryRun {
		t.log.Info().Str("remote", remote).Msg("dryrun remove")
		return nil
	}
	return f.Remove(remote)
}

func (t *Target) LockStatus(ctx context.Context) (Status, error) {
	return t.lock.status(ctx)
}

// Lock reserves the host for this session. It fails with *LockedError
// when another session holds the lock.
func (t *Target) Lock(ctx context.Context, comment string) error {
	return t.lock.acquire(ctx, comment)
}

// Unlock releases the lock. Locks of other sessions are only removed
// when force is set.
func (t *Target) Unlock(ctx context.Context, force bool) error {
	return t.lock.release(ctx, force)
}

// Session returns the lock owner identity of this console.
func (t *Target) Session() Session {
	return t.lock.session
}

func (t *Target) Workflow(kind Kind, o PrepareOptions) Workflow {
	return WorkflowFor(kind, t.transactional, o)
}

// SetPackages replaces the package table with the required versions of
// the loaded update.
func (t *Target) SetPackages(required map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.packages = make(map[string]*models.Package, len(required))
	for name, ver := range required {
		t.packages[name] = models.NewPackage(name, ver)
	}
}

// Packages returns the package table sorted by name. The entries are
// shared, callers may update Before and After.
func (t *Target) Packages() []*models.Package {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.Package, 0, len(t.packages))
	for _, p := range t.packages {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *models.Package) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out
}

func (t *Target) Products() []models.Product {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.products)
}

func (t *Target) String() string {
	return t.hostname
}
