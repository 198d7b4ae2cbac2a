package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sync"

	"example.com/mtui/global"
	"example.com/mtui/pkg/config"
	"example.com/mtui/pkg/display"
	"example.com/mtui/pkg/hostgroup"
	"example.com/mtui/pkg/logger"
	"example.com/mtui/pkg/ssh"
	"example.com/mtui/pkg/target"
	"example.com/mtui/pkg/testreport"
	"example.com/mtui/pkg/workqueue"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var errNoReport = errors.New("no test report loaded, use load_template first")

// Console is the state an operator session works on: the connected
// targets and the loaded test report.
type Console struct {
	cfg       *config.Config
	inventory config.ConfigProvider
	connector *ssh.Connector
	session   target.Session
	queue     *workqueue.Queue
	sink      *display.Sink
	out       io.Writer
	dryrun    bool
	log       zerolog.Logger
	// interrupt 把 Ctrl-C 转给正在运行的步骤
	interrupt chan struct{}

	mu      sync.Mutex
	targets map[string]*target.Target
	report  *testreport.Report
}

// NewConsole loads the reference host inventory and prepares an empty
// session.
func NewConsole(cfg *config.Config, dryrun bool, out io.Writer) (*Console, error) {
	store, err := config.OpenStore(cfg.RefhostsPath)
	if err != nil {
		return nil, err
	}
	inv, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load refhosts %s: %w", cfg.RefhostsPath, err)
	}
	provider := config.NewProvider(inv)
	return newConsole(cfg, provider, ssh.NewConnector(provider), dryrun, out), nil
}

func newConsole(cfg *config.Config, inv config.ConfigProvider, c *ssh.Connector, dryrun bool, out io.Writer) *Console {
	return &Console{
		cfg:       cfg,
		inventory: inv,
		connector: c,
		session:   target.NewSession(cfg.SessionUser),
		queue:     workqueue.New(64, workqueue.WithMaxWorkers(cfg.Concurrency)),
		sink:      display.New(out),
		out:       out,
		dryrun:    dryrun,
		log:       logger.Logger.With("console"),
		targets:   map[string]*target.Target{},
		interrupt: make(chan struct{}),
	}
}

func (c *Console) settings() target.Settings {
	s := target.Settings{
		Session:        c.session,
		Timeout:        c.cfg.Timeout(),
		ReconnectDelay: c.cfg.ReconnectDelay,
		Transfers:      c.cfg.Concurrency,
	}
	if c.dryrun {
		s.State = target.DryRun
	}
	return s
}

func (c *Console) Close() {
	c.queue.Close()
	if c.connector != nil {
		c.connector.CloseAll()
	}
}

func (c *Console) add(targets ...*target.Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range targets {
		if _, ok := c.targets[t.Hostname()]; ok {
			c.log.Warn().Str("host", t.Hostname()).Msg("already connected, keeping the existing session")
			continue
		}
		c.targets[t.Hostname()] = t
	}
}

// Group returns the connected targets named in hosts, all of them when
// hosts is empty.
func (c *Console) Group(hosts []string, enabled bool) (*hostgroup.HostsGroup, error) {
	c.mu.Lock()
	all := make([]hostgroup.Target, 0, len(c.targets))
	for _, t := range c.targets {
		all = append(all, t)
	}
	c.mu.Unlock()
	g := hostgroup.New(all, hostgroup.WithQueue(c.queue), hostgroup.WithProgress(global.Progress()),
		hostgroup.WithInterrupt(c.interrupt))
	return g.Select(hosts, enabled)
}

func (c *Console) Target(name string) (*target.Target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.targets[name]
	return t, ok
}

// Hosts returns the connected hostnames sorted.
func (c *Console) Hosts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.targets))
	for name := range c.targets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (c *Console) Report() (*testreport.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.report == nil {
		return nil, errNoReport
	}
	return c.report, nil
}

// Connect adds the given hosts to the session. Inventory aliases are
// resolved, unknown hosts are dialed as root with the ssh agent.
func (c *Console) Connect(ctx context.Context, hosts []string) error {
	var (
		mu       sync.Mutex
		targets  []*target.Target
		failures []error
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.cfg.Concurrency)
	for _, host := range hosts {
		name := c.connector.Resolve(host)
		eg.Go(func() error {
			t, err := target.Connect(ctx, c.connector, name, c.settings())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Errorf("%s: %w", host, err))
				return nil
			}
			targets = append(targets, t)
			return nil
		})
	}
	_ = eg.Wait()
	c.add(targets...)
	return errors.Join(failures...)
}

// Disconnect removes hosts from the session, every host when hosts is
// empty.
func (c *Console) Disconnect(hosts []string) error {
	g, err := c.Group(hosts, false)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range g.Names() {
		delete(c.targets, name)
		if c.connector != nil {
			c.connector.Drop(name)
		}
		if c.report != nil {
			delete(c.report.Systems, name)
		}
	}
	return nil
}

// LoadTemplate loads the test report rrid and connects its reference
// hosts, relocated to the configured location.
func (c *Console) LoadTemplate(ctx context.Context, rrid string) error {
	r, err := testreport.Load(c.cfg.TemplateDir, rrid,
		testreport.WithTargetDir(c.cfg.TargetTempDir),
		testreport.WithAuto(c.cfg.Auto))
	if err != nil {
		return err
	}
	r.Relocate(c.inventory, c.cfg.Location)

	c.mu.Lock()
	c.report = r
	c.mu.Unlock()

	c.add(r.Targets(ctx, c.connector, c.settings(), c.cfg.Concurrency)...)
	c.log.Info().Str("report", r.ID()).Strs("hosts", c.Hosts()).Msg("test report loaded")
	return nil
}

// SetLocation switches the location used to pick reference hosts.
func (c *Console) SetLocation(location string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.cfg.Location
	c.cfg.Location = location
	c.log.Info().Msgf("changed location from %q to %q", old, location)
}

// downloadDir is where files fetched from the targets land.
func (c *Console) downloadDir() string {
	if r, err := c.Report(); err == nil {
		return filepath.Join(r.Dir, "downloads")
	}
	return c.cfg.LocalTempDir
}

// AutoUpdate runs the whole update workflow on every host of the loaded
// report without operator interaction.
func (c *Console) AutoUpdate(ctx context.Context) error {
	r, err := c.Report()
	if err != nil {
		return err
	}
	g, err := c.Group(nil, true)
	if err != nil {
		return err
	}
	if g.Len() == 0 {
		return errors.New("no reference host could be connected")
	}
	return g.PerformUpdate(ctx, r, hostgroup.UpdateOptions{})
}
