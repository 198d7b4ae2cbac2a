package hostgroup

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"example.com/mtui/pkg/hooks"
	"example.com/mtui/pkg/logger"
	"example.com/mtui/pkg/rpmver"
	"example.com/mtui/pkg/target"
	"github.com/schollz/progressbar/v3"
)

const (
	brandingUpstream = "branding-upstream"
	reconnectRetries = 5
)

// PrepareOptions selects the prepare variant. Testing stages the testing
// repository instead of removing it.
type PrepareOptions struct {
	Force         bool
	Testing       bool
	InstalledOnly bool
}

// UpdateOptions skips optional steps of PerformUpdate.
type UpdateOptions struct {
	NoPrepare  bool
	NoScript   bool
	NewPackage bool
}

func (g *HostsGroup) workflows(kind target.Kind, o target.PrepareOptions) map[string]target.Workflow {
	wf := make(map[string]target.Workflow, len(g.targets))
	for name, t := range g.targets {
		wf[name] = t.Workflow(kind, o)
	}
	return wf
}

func (g *HostsGroup) substitute(wf map[string]target.Workflow, pick func(target.Workflow) target.Template, vars map[string]string) (map[string]string, error) {
	cmds := make(map[string]string, len(wf))
	for name, w := range wf {
		tmpl := pick(w)
		if tmpl.IsZero() {
			continue
		}
		cmd, err := tmpl.Substitute(vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		cmds[name] = cmd
	}
	return cmds, nil
}

// transactionalCommands renders pick for the transactional members only.
func (g *HostsGroup) transactionalCommands(wf map[string]target.Workflow, pick func(target.Workflow) target.Template) map[string]string {
	cmds := map[string]string{}
	for name, w := range wf {
		if !g.targets[name].Transactional() || pick(w).IsZero() {
			continue
		}
		cmds[name] = pick(w).SafeSubstitute(nil)
	}
	return cmds
}

// stageRepos queues SetRepo for every host of b and waits for the shared
// queue to drain. Hosts whose setup errors are recorded as failed in b.
func (g *HostsGroup) stageRepos(ctx context.Context, b *batch, report Report, op target.RepoOp) error {
	step, stop := g.interruptible(ctx)
	defer stop()

	for _, name := range b.active(g.Names()) {
		t := g.targets[name]
		err := g.queue.Put(ctx, func() {
			err := report.SetRepo(step, t, op)
			switch {
			case err == nil:
			case step.Err() != nil && ctx.Err() == nil:
				b.skip(name)
			default:
				g.log.Error().Err(err).Str("host", name).Str("op", string(op)).Msg("repository setup failed")
				b.fail(name, &RepoSetupError{Host: name, Command: "set_repo " + string(op), Err: err})
			}
		})
		if err != nil {
			return cancelled(ctx)
		}
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(g.progress),
		progressbar.OptionSetDescription("setting up repositories"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	err := g.queue.WaitDrain(ctx, func(done, total int) {
		bar.Describe(fmt.Sprintf("setting up repositories %d/%d", done, total))
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	if err != nil {
		g.log.Warn().Msg("interrupted while waiting for repository setup")
		return cancelled(ctx)
	}
	return nil
}

// PerformInstall installs packages on every member.
func (g *HostsGroup) PerformInstall(ctx context.Context, packages []string) error {
	return g.performSimple(ctx, target.Install, packages)
}

// PerformUninstall removes packages from every member.
func (g *HostsGroup) PerformUninstall(ctx context.Context, packages []string) error {
	return g.performSimple(ctx, target.Uninstall, packages)
}

func (g *HostsGroup) performSimple(ctx context.Context, kind target.Kind, packages []string) error {
	wf := g.workflows(kind, target.PrepareOptions{})
	cmds, err := g.substitute(wf, func(w target.Workflow) target.Template { return w.Command },
		map[string]string{"packages": strings.Join(packages, " ")})
	if err != nil {
		return err
	}

	if err := g.updateLock(ctx, kind.String()); err != nil {
		return err
	}
	defer g.unlockAll(ctx)

	b := g.newBatch()
	if err := b.runEach(ctx, cmds); err != nil {
		return err
	}
	if err := b.result(b.validate(wf, nil)); err != nil {
		return err
	}
	return b.reboot(ctx, wf)
}

// PerformPrepare brings packages to the released (or, with Testing, the
// testing) state on every member. Packages are applied one at a time
// across all hosts.
func (g *HostsGroup) PerformPrepare(ctx context.Context, packages []string, report Report, o PrepareOptions) error {
	op := target.RepoRemove
	if o.Testing {
		op = target.RepoAdd
	}
	var pkgs []string
	for _, p := range packages {
		if p != brandingUpstream {
			pkgs = append(pkgs, p)
		}
	}
	wf := g.workflows(target.Prepare, target.PrepareOptions{Force: o.Force, Testing: o.Testing})
	pick := func(w target.Workflow) target.Template { return w.Command }
	if o.InstalledOnly {
		pick = func(w target.Workflow) target.Template { return w.InstalledOnly }
	}
	start := g.transactionalCommands(wf, func(w target.Workflow) target.Template { return w.StartCommand })

	if err := g.updateLock(ctx, target.Prepare.String()); err != nil {
		return err
	}
	defer g.unlockAll(ctx)

	b := g.newBatch()
	if err := g.stageRepos(ctx, b, report, op); err != nil {
		return err
	}
	if len(start) > 0 {
		if err := b.runEach(ctx, start); err != nil {
			return err
		}
	}

	for _, name := range g.Names() {
		if err := b.failure(name); err != nil {
			logger.Critical(&g.log).Str("host", name).Err(err).Msgf("Failed to prepare host %s. Stopping", name)
			return err
		}
		if b.dropped(name) {
			continue
		}
		last := g.targets[name].LastResult()
		if last.Stderr == "" && last.Err == nil {
			continue
		}
		logger.Critical(&g.log).Str("host", name).Str("command", last.Command).
			Msgf("Failed to prepare host %s. Stopping\n# %s\n%s", name, last.Command, last.Stdout)
		return &RepoSetupError{Host: name, Command: last.Command, Output: last.Stderr, Err: last.Err}
	}

	var errs []error
	for _, pkg := range pkgs {
		cmds, err := g.substitute(wf, pick, map[string]string{"package": pkg})
		if err != nil {
			return err
		}
		if err := b.runEach(ctx, cmds); err != nil {
			return err
		}
		errs = append(errs, b.validate(wf, sortedKeys(cmds))...)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return b.reboot(ctx, wf)
}

// prepareWithin runs PerformPrepare as a step of a larger workflow. A
// lock conflict or cancellation stops the caller; host failures,
// including a failed repository setup, are logged and the caller goes on.
func (g *HostsGroup) prepareWithin(ctx context.Context, packages []string, report Report, o PrepareOptions) error {
	err := g.PerformPrepare(ctx, packages, report, o)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrHostsLocked) || errors.Is(err, ErrCancelled) {
		return fmt.Errorf("prepare: %w", err)
	}
	logger.Critical(&g.log).Err(err).Msg("prepare failed, continuing")
	return nil
}

var versionLine = regexp.MustCompile(`(.*) = (.*)`)

// parseVersionList reads "name = version" lines and keeps the highest
// version per name. Other lines are ignored.
func parseVersionList(out string) map[string]string {
	best := map[string]rpmver.Version{}
	for _, line := range strings.Split(out, "\n") {
		m := versionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, v := strings.TrimSpace(m[1]), rpmver.Parse(strings.TrimSpace(m[2]))
		if cur, ok := best[name]; !ok || cur.Less(v) {
			best[name] = v
		}
	}
	versions := make(map[string]string, len(best))
	for name, v := range best {
		versions[name] = v.String()
	}
	return versions
}

// PerformDowngrade removes the testing repository, discovers the highest
// released version of each package per host and installs it. Hosts where
// a package has no released version are left out of its command.
func (g *HostsGroup) PerformDowngrade(ctx context.Context, packages []string, report Report) error {
	wf := g.workflows(target.Downgrade, target.PrepareOptions{})
	initSnapshot := g.transactionalCommands(wf, func(w target.Workflow) target.Template { return w.InitSnapshot })

	if err := g.updateLock(ctx, target.Downgrade.String()); err != nil {
		return err
	}
	defer g.unlockAll(ctx)

	b := g.newBatch()
	if err := g.stageRepos(ctx, b, report, target.RepoRemove); err != nil {
		return err
	}

	list := map[string]string{}
	for name, w := range wf {
		if !w.ListCommand.IsZero() {
			list[name] = w.ListCommand.SafeSubstitute(map[string]string{"packages": strings.Join(packages, " ")})
		}
	}
	if err := b.runEach(ctx, list); err != nil {
		return err
	}
	versions := make(map[string]map[string]string, len(list))
	for _, name := range b.active(sortedKeys(list)) {
		versions[name] = parseVersionList(g.targets[name].LastResult().Stdout)
	}

	if len(initSnapshot) > 0 {
		if err := b.runEach(ctx, initSnapshot); err != nil {
			return err
		}
	}

	var errs []error
	for _, pkg := range packages {
		cmds := map[string]string{}
		for name, w := range wf {
			if v, ok := versions[name][pkg]; ok {
				cmds[name] = w.Command.SafeSubstitute(map[string]string{"package": pkg, "version": v})
			}
		}
		if len(cmds) == 0 {
			continue
		}
		if err := b.runEach(ctx, cmds); err != nil {
			return err
		}
		errs = append(errs, b.validate(wf, sortedKeys(cmds))...)
	}
	if err := b.result(errs); err != nil {
		return err
	}
	return b.reboot(ctx, wf)
}

// packageCheck snapshots installed versions before (post false) or after
// the update and warns about suspicious ones. It never fails.
func (g *HostsGroup) packageCheck(ctx context.Context, post bool) {
	for _, name := range g.Names() {
		t := g.targets[name]
		if _, err := t.QueryVersions(ctx); err != nil {
			g.log.Warn().Err(err).Str("host", name).Msg("cannot query package versions")
			continue
		}

		var missing []string
		for _, pkg := range t.Packages() {
			var before, after rpmver.Version
			if !post {
				pkg.Before = pkg.Current
				before = pkg.Before
			} else {
				before = pkg.Before
				pkg.After = pkg.Current
				after = pkg.After
			}

			if before.IsZero() {
				missing = append(missing, pkg.Name)
			} else if before.GreaterOrEqual(pkg.Required) {
				g.log.Warn().Str("host", name).Msgf("package is too recent: %s (%s, target version is %s)", pkg, before, pkg.Required)
			}
			if !after.IsZero() && !before.IsZero() && before.Equal(after) {
				g.log.Warn().Str("host", name).Msgf("package was not updated: %s (%s)", pkg, after)
			}
			if !after.IsZero() && after.Less(pkg.Required) {
				g.log.Warn().Str("host", name).Msgf("package does not match required version: %s (%s, required %s)", pkg, after, pkg.Required)
			}
		}
		if len(missing) > 0 {
			g.log.Warn().Str("host", name).Msgf("these packages are missing: %s", strings.Join(missing, ", "))
		}
	}
}

func (g *HostsGroup) runScripts(ctx context.Context, report Report, kind hooks.Kind) {
	if err := report.RunScripts(ctx, kind, g); err != nil {
		g.log.Error().Err(err).Str("kind", string(kind)).Msg("scripts failed")
	}
}

// PerformUpdate runs the full update workflow: prepare, snapshot, pre
// scripts, staging and update under lock, reboot, snapshot and post plus
// compare scripts.
func (g *HostsGroup) PerformUpdate(ctx context.Context, report Report, o UpdateOptions) error {
	packages := report.PackageList()
	required := report.RequiredVersions()
	for _, t := range g.targets {
		t.SetPackages(required)
	}

	if !o.NoPrepare {
		if err := g.prepareWithin(ctx, packages, report, PrepareOptions{}); err != nil {
			return err
		}
	}

	g.packageCheck(ctx, false)

	scripts := !o.NoScript && !report.Auto()
	if scripts {
		g.runScripts(ctx, report, hooks.Pre)
	}
	if err := cancelled(ctx); err != nil {
		return err
	}

	wf := g.workflows(target.Update, target.PrepareOptions{})
	cmds := make(map[string]string, len(wf))
	vars := map[string]string{"repa": report.RepoAlias(), "packages": strings.Join(packages, " ")}
	for name, w := range wf {
		cmds[name] = w.Command.SafeSubstitute(vars)
	}

	if err := g.updateLock(ctx, target.Update.String()); err != nil {
		return err
	}
	err := func() error {
		defer g.unlockAll(ctx)
		b := g.newBatch()
		if err := g.stageRepos(ctx, b, report, target.RepoAdd); err != nil {
			return err
		}
		if err := b.runEach(ctx, cmds); err != nil {
			return err
		}
		if err := b.result(b.validate(wf, nil)); err != nil {
			return err
		}
		return b.reboot(ctx, wf)
	}()
	if err != nil {
		return err
	}

	if o.NewPackage {
		if err := g.prepareWithin(ctx, packages, report, PrepareOptions{Testing: true}); err != nil {
			return err
		}
	}

	g.packageCheck(ctx, true)

	if scripts {
		g.runScripts(ctx, report, hooks.Post)
		g.runScripts(ctx, report, hooks.Compare)
	}
	return cancelled(ctx)
}
