// Package hooks runs the verification scripts shipped with an update's
// test report: pre and post scripts on the targets, compare scripts on
// the operator's machine.
package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"example.com/mtui/pkg/executor"
	"example.com/mtui/pkg/logger"
	"github.com/rs/zerolog"
)

const (
	// OutputDir holds the captured script output, relative to the report
	// directory.
	OutputDir = "output/scripts"

	packageListName = "package-list.txt"
)

// Host is one target as seen by a script.
type Host interface {
	Hostname() string
	LastResult() executor.Result
	Record(r executor.Result)
}

// Group is the set of targets a script runs on.
type Group interface {
	Hosts() []Host
	Put(ctx context.Context, local, remote string) error
	Run(ctx context.Context, cmd string) error
}

// Env describes the update the scripts verify.
type Env struct {
	// ReportDir is the local checkout of the test report.
	ReportDir string
	// TargetDir is the working directory on the targets.
	TargetDir string
	// PackageList is the local file listing the update's packages.
	PackageList string
	Repository  string
	ID          string
}

func (e Env) targetPath(name string) string {
	return strings.TrimSuffix(e.TargetDir, "/") + "/" + name
}

// OutputPath is where the output of kind's script name is kept for host.
func (e Env) OutputPath(kind Kind, name, host string) string {
	return filepath.Join(e.ReportDir, OutputDir, fileName(kind, name, host))
}

func fileName(kind Kind, name, host string) string {
	parts := []string{string(kind), strings.TrimSuffix(name, filepath.Ext(name))}
	if host != "" {
		parts = append(parts, host)
	}
	return strings.Join(parts, ".")
}

// Script is one executable below <report>/scripts/<kind>/.
type Script struct {
	Kind Kind
	Path string

	// Local runs compare scripts. Defaults to executor.NewLocalExecutor.
	Local executor.Executor
	log   zerolog.Logger
}

func New(kind Kind, path string) *Script {
	return &Script{
		Kind:  kind,
		Path:  path,
		Local: executor.NewLocalExecutor(),
		log:   logger.Logger.With("hooks"),
	}
}

func (s *Script) Name() string {
	return filepath.Base(s.Path)
}

func (s *Script) String() string {
	return fmt.Sprintf("%s script %s", s.Kind, s.Name())
}

// Discover returns the scripts of kind below dir, sorted by name. A
// missing directory means no scripts.
func Discover(dir string, kind Kind) ([]*Script, error) {
	entries, err := os.ReadDir(filepath.Join(dir, kind.Dir()))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var scripts []*Script
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		scripts = append(scripts, New(kind, filepath.Join(dir, kind.Dir(), e.Name())))
	}
	slices.SortFunc(scripts, func(a, b *Script) int { return strings.Compare(a.Name(), b.Name()) })
	return scripts, nil
}

// Run executes the script against g. An interrupted script is skipped
// with a warning.
func (s *Script) Run(ctx context.Context, env Env, g Group) error {
	if ctx.Err() != nil {
		s.log.Warn().Msgf("skipping %s", s)
		return nil
	}
	s.log.Info().Msgf("running %s", s)

	var err error
	if s.Kind == Compare {
		err = s.compare(ctx, env, g)
	} else {
		err = s.remote(ctx, env, g)
	}
	if ctx.Err() != nil {
		s.log.Warn().Msgf("skipping %s", s)
		return nil
	}
	return err
}

func (s *Script) remote(ctx context.Context, env Env, g Group) error {
	exe := env.targetPath(fileName(s.Kind, s.Name(), ""))
	pkgList := env.targetPath(packageListName)

	if err := g.Put(ctx, s.Path, exe); err != nil {
		return fmt.Errorf("upload %s: %w", s, err)
	}
	if err := g.Put(ctx, env.PackageList, pkgList); err != nil {
		return fmt.Errorf("upload package list: %w", err)
	}
	cmd := fmt.Sprintf("%s -r %s -p %s %s", exe, env.Repository, pkgList, env.ID)
	if err := g.Run(ctx, cmd); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(env.ReportDir, OutputDir), 0o755); err != nil {
		return err
	}
	for _, h := range g.Hosts() {
		out := env.OutputPath(s.Kind, s.Name(), h.Hostname())
		r := h.LastResult()
		if err := os.WriteFile(out, []byte(r.Stdout+r.Stderr), 0o644); err != nil {
			s.log.Error().Err(err).Str("file", out).Msg("failed to write script result")
		}
	}
	return nil
}

// compareInputs returns the pre and post result files a compare script
// reads for host. compare_foo pairs with check_foo.
func (s *Script) compareInputs(env Env, host string) (string, string) {
	name := strings.Replace(s.Name(), "compare_", "check_", 1)
	return env.OutputPath(Pre, name, host), env.OutputPath(Post, name, host)
}

func (s *Script) compare(ctx context.Context, env Env, g Group) error {
	for _, h := range g.Hosts() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pre, post := s.compareInputs(env, h.Hostname())
		cmd := strings.Join([]string{quote(s.Path), quote(pre), quote(post)}, " ")
		s.log.Debug().Str("host", h.Hostname()).Msgf("running %s", cmd)

		r, err := s.Local.Run(ctx, cmd)
		h.Record(r)
		if err != nil {
			return err
		}

		ev := s.log.Warn()
		msg := "compare script failed"
		switch r.ExitCode {
		case 0:
			continue
		case 2:
			ev, msg = logger.Critical(&s.log), "compare script crashed"
		case 126, 127:
			ev, msg = logger.Critical(&s.log), "cannot start compare script"
		}
		ev.Str("host", h.Hostname()).Str("command", cmd).Int("exitcode", r.ExitCode).
			Str("stdout", r.Stdout).Str("stderr", r.Stderr).Msg(msg)
	}
	return nil
}

// RunAll discovers and runs every script of kind below dir. Failing
// scripts are logged and the remaining ones still run.
func RunAll(ctx context.Context, dir string, kind Kind, env Env, g Group) error {
	scripts, err := Discover(dir, kind)
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if err := s.Run(ctx, env, g); err != nil {
			s.log.Error().Err(err).Msgf("%s failed", s)
		}
	}
	return nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
