package hostgroup

import (
	"context"
	"slices"
	"testing"

	"example.com/mtui/pkg/executor"
	"example.com/mtui/pkg/hooks"
	"example.com/mtui/pkg/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// on expands one event prefix to "<prefix>@<host>" for every host.
func on(prefix string, hosts ...string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, prefix+"@"+h)
	}
	return out
}

func TestPerformInstallRebootsTransactionalOnly(t *testing.T) {
	tr := &trace{}
	g := group(newFake(tr, "h1", false), newFake(tr, "h2", true))

	require.NoError(t, g.PerformInstall(context.Background(), []string{"foo", "bar"}))
	assertBatches(t, tr.all(),
		on("lock", "h1"), on("lock", "h2"),
		on("install foo bar", "h1", "h2"),
		on("validate", "h1"), on("validate", "h2"),
		on("reboot", "h2"),
		on("reconnect", "h2"),
		on("unlock", "h1"), on("unlock", "h2"),
	)
}

func TestPerformUninstallValidationFailureSkipsReboot(t *testing.T) {
	tr := &trace{}
	h1, h2 := newFake(tr, "h1", false), newFake(tr, "h2", true)
	h1.failValidate = true
	g := group(h1, h2)

	err := g.PerformUninstall(context.Background(), []string{"foo"})
	var ve *target.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "h1", ve.Host)

	assertBatches(t, tr.all(),
		on("lock", "h1"), on("lock", "h2"),
		on("uninstall foo", "h1", "h2"),
		on("validate", "h1"), on("validate", "h2"),
		on("unlock", "h1"), on("unlock", "h2"),
	)
}

func TestPerformInstallLockedHostAbortsBatch(t *testing.T) {
	tr := &trace{}
	h1, h2 := newFake(tr, "h1", false), newFake(tr, "h2", false)
	h1.setOwner("bob")
	g := group(h1, h2)

	err := g.PerformInstall(context.Background(), []string{"foo"})
	require.ErrorIs(t, err, ErrHostsLocked)
	assert.Empty(t, tr.matching("install"))
	assert.Equal(t, []string{"lock@h2", "unlock@h2"}, tr.all())
}

func TestPerformInstallCancelledStillUnlocks(t *testing.T) {
	tr := &trace{}
	h1, h2 := newFake(tr, "h1", false), newFake(tr, "h2", true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h1.onRun = func(cmd string) { cancel() }
	g := group(h1, h2)

	err := g.PerformInstall(ctx, []string{"foo"})
	require.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, tr.matching("reboot"))
	assert.Empty(t, tr.matching("validate"))
	assert.Equal(t, []string{"unlock@h1", "unlock@h2"}, tr.matching("unlock"))
}

func TestPerformInstallInterruptSkipsBusyHost(t *testing.T) {
	tr := &trace{}
	h1, h2, h3 := newFake(tr, "h1", false), newFake(tr, "h2", true), newFake(tr, "h3", true)
	h2.block = "install"
	intr := make(chan struct{})
	g := groupWith([]Option{WithInterrupt(intr)}, h1, h2, h3)
	go func() {
		<-h2.blocked
		intr <- struct{}{}
	}()

	require.NoError(t, g.PerformInstall(context.Background(), []string{"foo"}))
	assertBatches(t, tr.all(),
		on("lock", "h1"), on("lock", "h2"), on("lock", "h3"),
		on("install foo", "h1", "h2", "h3"),
		on("validate", "h1"), on("validate", "h3"),
		on("reboot", "h3"),
		on("reconnect", "h3"),
		on("unlock", "h1"), on("unlock", "h2"), on("unlock", "h3"),
	)
}

func TestRunEachInterruptLeavesOthers(t *testing.T) {
	tr := &trace{}
	h1, h2 := newFake(tr, "h1", false), newFake(tr, "h2", false)
	h1.block = "sleep"
	intr := make(chan struct{})
	g := groupWith([]Option{WithInterrupt(intr)}, h1, h2)
	go func() {
		<-h1.blocked
		intr <- struct{}{}
	}()

	interrupted, err := g.runStep(context.Background(), map[string]string{"h1": "sleep 60", "h2": "true"})
	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, interrupted)
	assert.Equal(t, "true", h2.LastResult().Command)
}

func TestPerformPrepare(t *testing.T) {
	tr := &trace{}
	g := group(newFake(tr, "h1", false), newFake(tr, "h2", false))
	report := &fakeReport{tr: tr}

	err := g.PerformPrepare(context.Background(), []string{"p1", "branding-upstream", "p2"}, report, PrepareOptions{})
	require.NoError(t, err)
	assertBatches(t, tr.all(),
		on("lock", "h1"), on("lock", "h2"),
		on("repo remove", "h1", "h2"),
		on("prep p1", "h1", "h2"),
		on("validate", "h1"), on("validate", "h2"),
		on("prep p2", "h1", "h2"),
		on("validate", "h1"), on("validate", "h2"),
		on("unlock", "h1"), on("unlock", "h2"),
	)
}

func TestPerformPrepareVariants(t *testing.T) {
	tests := []struct {
		name    string
		opts    PrepareOptions
		repo    string
		command string
	}{
		{name: "released", repo: "repo remove", command: "prep foo"},
		{name: "testing", opts: PrepareOptions{Testing: true}, repo: "repo add", command: "prep foo"},
		{name: "installed only", opts: PrepareOptions{InstalledOnly: true}, repo: "repo remove", command: "prep-installed foo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &trace{}
			g := group(newFake(tr, "h1", false))
			require.NoError(t, g.PerformPrepare(context.Background(), []string{"foo"}, &fakeReport{tr: tr}, tt.opts))
			assert.Equal(t, []string{tt.repo + "@h1"}, tr.matching("repo "))
			assert.Equal(t, []string{tt.command + "@h1"}, tr.matching("prep"))
		})
	}
}

func TestPerformPrepareTransactional(t *testing.T) {
	tr := &trace{}
	g := group(newFake(tr, "h1", false), newFake(tr, "h2", true))

	require.NoError(t, g.PerformPrepare(context.Background(), []string{"foo"}, &fakeReport{tr: tr}, PrepareOptions{}))
	assertBatches(t, tr.all(),
		on("lock", "h1"), on("lock", "h2"),
		on("repo remove", "h1", "h2"),
		on("start", "h2"),
		on("prep foo", "h1", "h2"),
		on("validate", "h1"), on("validate", "h2"),
		on("reboot", "h2"),
		on("reconnect", "h2"),
		on("unlock", "h1"), on("unlock", "h2"),
	)
}

func TestPerformPrepareStopsOnRepoFailure(t *testing.T) {
	tr := &trace{}
	h1, h2, h3 := newFake(tr, "h1", false), newFake(tr, "h2", false), newFake(tr, "h3", false)
	bad := executor.Result{ExitCode: 4, Stderr: "Repository 'issue' not found"}
	h3.replies["repo remove"] = bad
	h2.replies["repo remove"] = bad
	g := group(h1, h2, h3)

	err := g.PerformPrepare(context.Background(), []string{"foo"}, &fakeReport{tr: tr}, PrepareOptions{})
	var rse *RepoSetupError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, "h2", rse.Host)
	assert.Equal(t, "repo remove", rse.Command)
	assert.Equal(t, bad.Stderr, rse.Output)

	assert.Empty(t, tr.matching("prep"))
	assert.Equal(t, []string{"unlock@h1", "unlock@h2", "unlock@h3"}, tr.matching("unlock"))
}

func TestPerformPrepareStopsOnRepoSetupError(t *testing.T) {
	tr := &trace{}
	h1, h2 := newFake(tr, "h1", false), newFake(tr, "h2", false)
	report := &fakeReport{tr: tr, failRepo: map[string]error{"h2": target.ErrNotReachable}}
	g := group(h1, h2)

	err := g.PerformPrepare(context.Background(), []string{"foo"}, report, PrepareOptions{})
	var rse *RepoSetupError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, "h2", rse.Host)
	assert.ErrorIs(t, err, target.ErrNotReachable)
	assert.Equal(t, []string{"repo remove@h1"}, tr.matching("repo "))
	assert.Empty(t, tr.matching("prep"))
	assert.Equal(t, []string{"unlock@h1", "unlock@h2"}, tr.matching("unlock"))
}

func TestPerformPrepareStopsOnTransportError(t *testing.T) {
	tr := &trace{}
	h1 := newFake(tr, "h1", false)
	h1.replies["repo remove"] = executor.Result{ExitCode: -1, Err: target.ErrNotReachable}
	g := group(h1)

	err := g.PerformPrepare(context.Background(), []string{"foo"}, &fakeReport{tr: tr}, PrepareOptions{})
	var rse *RepoSetupError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, "repo remove", rse.Command)
	assert.ErrorIs(t, err, target.ErrNotReachable)
	assert.Empty(t, tr.matching("prep"))
}

func TestPerformDowngrade(t *testing.T) {
	tr := &trace{}
	h1, h2 := newFake(tr, "h1", false), newFake(tr, "h2", true)
	h1.replies["list "] = executor.Result{Stdout: "foo = 1.2\nfoo = 1.3\nbar = 2.0\n"}
	h2.replies["list "] = executor.Result{Stdout: "Loading repository data...\nfoo = 1.1\n"}
	g := group(h1, h2)

	require.NoError(t, g.PerformDowngrade(context.Background(), []string{"foo", "bar"}, &fakeReport{tr: tr}))
	assertBatches(t, tr.all(),
		on("lock", "h1"), on("lock", "h2"),
		on("repo remove", "h1", "h2"),
		on("list foo bar", "h1", "h2"),
		on("snapshot", "h2"),
		[]string{"downgrade foo=1.3@h1", "downgrade foo=1.1@h2"},
		on("validate", "h1"), on("validate", "h2"),
		[]string{"downgrade bar=2.0@h1"},
		on("validate", "h1"),
		on("reboot", "h2"),
		on("reconnect", "h2"),
		on("unlock", "h1"), on("unlock", "h2"),
	)
}

func TestParseVersionList(t *testing.T) {
	out := "Reading installed packages...\nfoo = 1.9\nfoo = 1.10\nbar = 2.0-1\nbar = 2.0-0\nno version here\n"
	assert.Equal(t, map[string]string{"foo": "1.10", "bar": "2.0-1"}, parseVersionList(out))
	assert.Empty(t, parseVersionList(""))
}

func TestPackageCheckSnapshots(t *testing.T) {
	tr := &trace{}
	h1 := newFake(tr, "h1", false)
	h1.SetPackages(map[string]string{"foo": "1.1", "bar": "3"})
	h1.installed["foo"] = "1.0"
	g := group(h1)

	g.packageCheck(context.Background(), false)
	h1.installed["foo"] = "1.1"
	g.packageCheck(context.Background(), true)

	pkgs := h1.Packages()
	require.Len(t, pkgs, 2)
	bar, foo := pkgs[0], pkgs[1]
	assert.Equal(t, "1.0", foo.Before.String())
	assert.Equal(t, "1.1", foo.After.String())
	assert.True(t, bar.Before.IsZero())
	assert.True(t, bar.After.IsZero())
}

func TestPerformUpdate(t *testing.T) {
	tr := &trace{}
	g := group(newFake(tr, "h1", false), newFake(tr, "h2", true), newFake(tr, "h3", true))
	report := &fakeReport{tr: tr, packages: []string{"foo"}, required: map[string]string{"foo": "1.1"}}

	require.NoError(t, g.PerformUpdate(context.Background(), report, UpdateOptions{}))
	all := []string{"h1", "h2", "h3"}
	assertBatches(t, tr.all(),
		// prepare
		on("lock", "h1"), on("lock", "h2"), on("lock", "h3"),
		on("repo remove", all...),
		on("start", "h2", "h3"),
		on("prep foo", all...),
		on("validate", "h1"), on("validate", "h2"), on("validate", "h3"),
		on("reboot", "h2", "h3"),
		on("reconnect", "h2"), on("reconnect", "h3"),
		on("unlock", "h1"), on("unlock", "h2"), on("unlock", "h3"),
		// update
		on("query", "h1"), on("query", "h2"), on("query", "h3"),
		[]string{"script-pre"},
		on("lock", "h1"), on("lock", "h2"), on("lock", "h3"),
		on("repo add", all...),
		on("update :p=1:2 foo", all...),
		on("validate", "h1"), on("validate", "h2"), on("validate", "h3"),
		on("reboot", "h2", "h3"),
		on("reconnect", "h2"), on("reconnect", "h3"),
		on("unlock", "h1"), on("unlock", "h2"), on("unlock", "h3"),
		on("query", "h1"), on("query", "h2"), on("query", "h3"),
		[]string{"script-post"},
		[]string{"script-compare"},
	)
}

func TestPerformUpdateSkipsScripts(t *testing.T) {
	for _, tt := range []struct {
		name string
		auto bool
		opts UpdateOptions
	}{
		{name: "no script", opts: UpdateOptions{NoPrepare: true, NoScript: true}},
		{name: "auto", auto: true, opts: UpdateOptions{NoPrepare: true}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tr := &trace{}
			g := group(newFake(tr, "h1", false))
			report := &fakeReport{tr: tr, packages: []string{"foo"}, auto: tt.auto}
			require.NoError(t, g.PerformUpdate(context.Background(), report, tt.opts))
			assert.Empty(t, tr.matching("script-"))
			assert.Empty(t, tr.matching("prep"))
			assert.Equal(t, []string{"update :p=1:2 foo@h1"}, tr.matching("update"))
		})
	}
}

func TestPerformUpdateNewPackagePreparesTesting(t *testing.T) {
	tr := &trace{}
	g := group(newFake(tr, "h1", false))
	report := &fakeReport{tr: tr, packages: []string{"foo"}}

	require.NoError(t, g.PerformUpdate(context.Background(), report, UpdateOptions{NoPrepare: true, NewPackage: true}))
	assert.Equal(t, []string{"repo add@h1", "repo add@h1"}, tr.matching("repo "))
	assert.Equal(t, []string{"prep foo@h1"}, tr.matching("prep"))
}

func TestPerformUpdateLockLostAfterPreScripts(t *testing.T) {
	tr := &trace{}
	h1, h2 := newFake(tr, "h1", false), newFake(tr, "h2", false)
	report := &fakeReport{tr: tr, packages: []string{"foo"}}
	report.onScript = func(kind hooks.Kind) {
		if kind == hooks.Pre {
			h2.setOwner("bob")
		}
	}
	g := group(h1, h2)

	err := g.PerformUpdate(context.Background(), report, UpdateOptions{NoPrepare: true})
	require.ErrorIs(t, err, ErrHostsLocked)
	assert.Empty(t, tr.matching("repo "))
	assert.Empty(t, tr.matching("update "))
	assert.Empty(t, tr.matching("script-post"))
	assert.Equal(t, []string{"lock@h1", "unlock@h1"}, append(tr.matching("lock@"), tr.matching("unlock@")...))
}

func TestPerformUpdateContinuesAfterPrepareRepoFailure(t *testing.T) {
	tr := &trace{}
	h1 := newFake(tr, "h1", false)
	h1.replies["repo remove"] = executor.Result{Stderr: "boom"}
	g := group(h1)

	require.NoError(t, g.PerformUpdate(context.Background(), &fakeReport{tr: tr, packages: []string{"foo"}}, UpdateOptions{}))
	assert.Empty(t, tr.matching("prep"))
	assert.Equal(t, []string{"update :p=1:2 foo@h1"}, tr.matching("update "))
	assert.Equal(t, []string{"script-pre", "script-post", "script-compare"}, tr.matching("script-"))
}

func TestPerformUpdateContinuesAfterPrepareValidationFailure(t *testing.T) {
	tr := &trace{}
	h1, h2 := newFake(tr, "h1", false), newFake(tr, "h2", false)
	h1.failKinds[target.Prepare] = true
	g := group(h1, h2)
	report := &fakeReport{tr: tr, packages: []string{"foo"}}

	require.NoError(t, g.PerformUpdate(context.Background(), report, UpdateOptions{NoScript: true}))
	assert.Equal(t, []string{"prep foo@h1", "prep foo@h2"}, sorted(tr.matching("prep")))
	assert.Equal(t, []string{"update :p=1:2 foo@h1", "update :p=1:2 foo@h2"}, sorted(tr.matching("update ")))
	assert.Len(t, tr.matching("validate"), 4)
}

func TestPerformUpdatePrepareLockConflictStops(t *testing.T) {
	tr := &trace{}
	h1 := newFake(tr, "h1", false)
	h1.setOwner("bob")
	g := group(h1)

	err := g.PerformUpdate(context.Background(), &fakeReport{tr: tr, packages: []string{"foo"}}, UpdateOptions{})
	require.ErrorIs(t, err, ErrHostsLocked)
	assert.Contains(t, err.Error(), "prepare: ")
	assert.Empty(t, tr.matching("update "))
	assert.Empty(t, tr.matching("script-"))
}

func TestPerformUpdateDropsHostWithoutRepo(t *testing.T) {
	tr := &trace{}
	h1, h2 := newFake(tr, "h1", false), newFake(tr, "h2", true)
	report := &fakeReport{tr: tr, packages: []string{"foo"}, failRepo: map[string]error{"h2": target.ErrNotReachable}}
	g := group(h1, h2)

	err := g.PerformUpdate(context.Background(), report, UpdateOptions{NoPrepare: true, NoScript: true})
	var rse *RepoSetupError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, "h2", rse.Host)
	assert.Equal(t, []string{"update :p=1:2 foo@h1"}, tr.matching("update "))
	assert.Empty(t, tr.matching("reboot"))
	assert.Equal(t, []string{"unlock@h1", "unlock@h2"}, tr.matching("unlock"))
}

func sorted(events []string) []string {
	slices.Sort(events)
	return events
}
