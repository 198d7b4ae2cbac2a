package testreport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"example.com/mtui/pkg/config"
	"example.com/mtui/pkg/executor"
	"example.com/mtui/pkg/hooks"
	"example.com/mtui/pkg/hostgroup"
	"example.com/mtui/pkg/models"
	"example.com/mtui/pkg/sftp"
	"example.com/mtui/pkg/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "rrid": "SUSE:Maintenance:1234:567890",
  "id": "1234",
  "packager": "jdoe",
  "rating": "moderate",
  "repository": "http://download/ibs/SUSE:/Maintenance:/1234/",
  "category": "recommended",
  "products": ["SLES 15-SP5", "SLES 15-SP6"],
  "packages": {
    "SLES 15-SP5": ["libfoo1 = 1.2-3.1", "foo = 1.2-3.1"],
    "SLES 15-SP6": ["foo = 1.2-10.1"]
  },
  "repositories": [
    "http://download/ibs/SUSE:/Maintenance:/1234/SUSE_Updates_SLE-Module-Basesystem_15-SP6_x86_64/",
    "http://download/ibs/SUSE:/Maintenance:/1234/SUSE_Updates_SLE-Module-Basesystem_15-SP5_x86_64/",
    "http://download/ibs/SUSE:/Maintenance:/1234/SUSE_Updates_SLE-Module-Basesystem_15-SP5_aarch64/"
  ],
  "bugs": ["1000"],
  "jira": [],
  "systems": {"sle15sp6": "sles15sp6-x86_64", "sle15sp5": "sles15sp5-x86_64"}
}`

type recorder struct {
	mu   sync.Mutex
	cmds []string
}

func (r *recorder) Run(ctx context.Context, cmd string) (executor.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return executor.Result{Command: cmd, Stdout: "ok\n"}, nil
}

type uploads struct {
	mu    sync.Mutex
	paths []string
}

func (u *uploads) Upload(ctx context.Context, local, remote string, _ sftp.ProgressCallback) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, remote)
	return nil
}

func (u *uploads) Download(ctx context.Context, remote, local string, _ sftp.ProgressCallback) error {
	return nil
}

func (u *uploads) Remove(remote string) error { return nil }

func parsed(t *testing.T) *Report {
	t.Helper()
	r, err := Parse([]byte(sample))
	require.NoError(t, err)
	return r
}

func TestParse(t *testing.T) {
	r := parsed(t)

	assert.Equal(t, "SUSE:Maintenance:1234:567890", r.ID())
	assert.Equal(t, ":p=1234:567890", r.RepoAlias())
	assert.Equal(t, []string{"foo", "libfoo1"}, r.PackageList())
	assert.Equal(t, map[string]string{"foo": "1.2-10.1", "libfoo1": "1.2-3.1"}, r.RequiredVersions())
	assert.Equal(t, []string{"sle15sp5", "sle15sp6"}, r.Hosts())
	assert.Len(t, r.Repositories, 3)
	assert.False(t, r.Auto())
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"not json":          `{`,
		"bad rrid":          `{"rrid": "1234"}`,
		"malformed package": `{"rrid": "SUSE:Maintenance:1:2", "packages": {"p": ["foo-1.0"]}}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	reportDir := filepath.Join(dir, "SUSE:Maintenance:1234:567890")
	require.NoError(t, os.MkdirAll(reportDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reportDir, MetadataFile), []byte(sample), 0o644))

	r, err := Load(dir, "SUSE:Maintenance:1234:567890", WithAuto(true))
	require.NoError(t, err)
	assert.Equal(t, reportDir, r.Dir)
	assert.True(t, r.Auto())

	_, err = Load(dir, "SUSE:Maintenance:1:1")
	assert.Error(t, err)
	_, err = Load(dir, "garbage")
	assert.Error(t, err)
}

func TestSetRepo(t *testing.T) {
	r := parsed(t)
	rec := &recorder{}
	h := target.New("sle15sp5", target.WithExecutor(rec),
		target.WithProducts(models.Product{Name: "SLES", Version: "15-SP5", Arch: "x86_64"}))

	require.NoError(t, r.SetRepo(context.Background(), h, target.RepoAdd))
	require.NoError(t, r.SetRepo(context.Background(), h, target.RepoRemove))
	assert.ErrorIs(t, r.SetRepo(context.Background(), h, target.RepoOp("flip")), target.ErrUnsupportedRepoOp)

	require.Len(t, rec.cmds, 2)
	assert.Equal(t,
		"zypper -n rr 'issue:p=1234:567890' >/dev/null 2>&1; zypper -n ar -ckn 'issue:p=1234:567890' "+
			"'http://download/ibs/SUSE:/Maintenance:/1234/SUSE_Updates_SLE-Module-Basesystem_15-SP5_x86_64/' 'issue:p=1234:567890'",
		rec.cmds[0])
	assert.Equal(t,
		"if zypper -n lr 'issue:p=1234:567890' >/dev/null 2>&1; then zypper -n rr 'issue:p=1234:567890'; fi",
		rec.cmds[1])
	assert.Equal(t, rec.cmds[1], h.LastResult().Command)
}

func TestSetRepoNoMatchingProduct(t *testing.T) {
	r := parsed(t)
	rec := &recorder{}
	h := target.New("sle12", target.WithExecutor(rec),
		target.WithProducts(models.Product{Name: "SLES", Version: "12-SP5", Arch: "x86_64"}))

	err := r.SetRepo(context.Background(), h, target.RepoAdd)
	assert.ErrorIs(t, err, ErrNoRepository)
	assert.Empty(t, rec.cmds)

	r.Repositories = r.Repositories[:1]
	require.NoError(t, r.SetRepo(context.Background(), h, target.RepoAdd))
	assert.Len(t, rec.cmds, 1)
}

func TestMatchScore(t *testing.T) {
	repo := "http://x/SUSE_Updates_SLE-Module-Basesystem_15-SP5_x86_64/"
	assert.Equal(t, 0, matchScore(repo, models.Product{Name: "SLES", Version: "15-SP6", Arch: "x86_64"}))
	assert.Equal(t, 3, matchScore(repo, models.Product{Name: "SLES", Version: "15-SP5", Arch: "x86_64"}))
	assert.Equal(t, 4, matchScore(repo, models.Product{Name: "sle", Version: "15-sp5", Arch: "x86_64"}))
	assert.Equal(t, 0, matchScore(repo, models.Product{Name: "SLES"}))
}

func TestListUpdateCommands(t *testing.T) {
	r := parsed(t)
	g := hostgroup.New([]hostgroup.Target{
		target.New("b", target.WithExecutor(&recorder{}), target.WithTransactional(true)),
		target.New("a", target.WithExecutor(&recorder{})),
	})

	var lines []string
	r.ListUpdateCommands(g, func(s string) { lines = append(lines, s) })
	require.Len(t, lines, 2)
	assert.Equal(t, "a - commands: \nzypper -n ref -r issue:p=1234:567890 && zypper -n up -y -l -r issue:p=1234:567890 foo libfoo1", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "b - commands: \ntransactional-update"))
}

func TestRunScripts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts", "pre"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", "pre", "check_foo.sh"), []byte("#!/bin/sh\n"), 0o755))

	r := parsed(t)
	r.Dir = dir
	r.targetDir = "/var/tmp/mtui"
	rec, files := &recorder{}, &uploads{}
	g := hostgroup.New([]hostgroup.Target{target.New("h1", target.WithExecutor(rec), target.WithFiles(files))})

	require.NoError(t, r.RunScripts(context.Background(), hooks.Pre, g))

	list, err := os.ReadFile(filepath.Join(dir, "package-list.txt"))
	require.NoError(t, err)
	assert.Equal(t, "foo\nlibfoo1\n", string(list))
	assert.Equal(t, []string{"/var/tmp/mtui/pre.check_foo", "/var/tmp/mtui/package-list.txt"}, files.paths)
	assert.Contains(t, rec.cmds,
		"/var/tmp/mtui/pre.check_foo -r http://download/ibs/SUSE:/Maintenance:/1234/ -p /var/tmp/mtui/package-list.txt SUSE:Maintenance:1234:567890")

	out, err := os.ReadFile(filepath.Join(dir, "output", "scripts", "pre.check_foo.h1"))
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(out))
}

func TestRelocate(t *testing.T) {
	inv := config.NewConfiguration()
	inv.Nodes.Set("prg-sp5a", models.Node{System: "sles15sp5-x86_64", Location: "prg"})
	inv.Nodes.Set("prg-sp5b", models.Node{System: "sles15sp5-x86_64", Location: "prg"})
	inv.Nodes.Set("nue-sp6", models.Node{System: "sles15sp6-x86_64", Location: "nue"})
	p := config.NewProvider(inv)

	r := parsed(t)
	r.Relocate(p, "default")
	assert.Equal(t, []string{"sle15sp5", "sle15sp6"}, r.Hosts())

	r.Relocate(p, "prg")
	assert.Equal(t, []string{"prg-sp5a", "sle15sp6"}, r.Hosts())
	assert.Equal(t, "sles15sp5-x86_64", r.Systems["prg-sp5a"])
}
