// Package testreport loads the metadata of a maintenance update checked
// out below the template directory and drives the repository setup and
// verification scripts the host workflows need.
package testreport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"example.com/mtui/pkg/config"
	"example.com/mtui/pkg/hooks"
	"example.com/mtui/pkg/hostgroup"
	"example.com/mtui/pkg/logger"
	"example.com/mtui/pkg/models"
	"example.com/mtui/pkg/rpmver"
	"example.com/mtui/pkg/target"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MetadataFile is the report's machine readable metadata.
const MetadataFile = "log.json"

var ErrNoRepository = errors.New("no update repository matches host")

// metadata is the layout of log.json.
type metadata struct {
	RRID          string              `json:"rrid"`
	ID            string              `json:"id"`
	Packager      string              `json:"packager"`
	Rating        string              `json:"rating"`
	Repository    string              `json:"repository"`
	Category      string              `json:"category"`
	TestPlatforms []string            `json:"testplatform"`
	Products      []string            `json:"products"`
	Packages      map[string][]string `json:"packages"`
	Repositories  []string            `json:"repositories"`
	Bugs          []string            `json:"bugs"`
	Jira          []string            `json:"jira"`
	Systems       map[string]string   `json:"systems"`
	GiteaPR       string              `json:"gitea_pr"`
	GiteaPRAPI    string              `json:"gitea_pr_api"`
}

// Report is a loaded update. It satisfies hostgroup.Report.
type Report struct {
	RRID          models.RequestReviewID
	RealID        string
	Packager      string
	Rating        string
	Repository    string
	Category      string
	TestPlatforms []string
	Products      []string
	// Packages maps product to package name to shipped version.
	Packages     map[string]map[string]string
	Repositories []string
	Bugs         []string
	Jira         []string
	// Systems maps reference host to system name.
	Systems    map[string]string
	GiteaPR    string
	GiteaPRAPI string

	// Dir is <template dir>/<rrid>.
	Dir       string
	targetDir string
	auto      bool
	log       zerolog.Logger
}

type Option func(*Report)

// WithTargetDir sets where scripts are uploaded on the targets.
func WithTargetDir(dir string) Option {
	return func(r *Report) { r.targetDir = dir }
}

// WithAuto marks an unattended run. Verification scripts are skipped.
func WithAuto(auto bool) Option {
	return func(r *Report) { r.auto = auto }
}

// Load reads <templateDir>/<rrid>/log.json.
func Load(templateDir, rrid string, opts ...Option) (*Report, error) {
	id, err := models.ParseRequestReviewID(rrid)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(templateDir, id.String())
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, errors.Wrapf(err, "load test report %s", id)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", filepath.Join(dir, MetadataFile))
	}
	r.Dir = dir
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Parse decodes log.json content.
func Parse(data []byte) (*Report, error) {
	var m metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "decode metadata")
	}
	id, err := models.ParseRequestReviewID(m.RRID)
	if err != nil {
		return nil, err
	}

	packages := make(map[string]map[string]string, len(m.Packages))
	for product, lines := range m.Packages {
		pkgs := map[string]string{}
		for _, line := range lines {
			fields := strings.Fields(line)
			if len(fields) != 3 {
				return nil, errors.Errorf("malformed package entry %q of %s", line, product)
			}
			pkgs[fields[0]] = fields[2]
		}
		packages[product] = pkgs
	}

	repos := slices.Clone(m.Repositories)
	slices.Sort(repos)
	repos = slices.Compact(repos)

	return &Report{
		RRID:          id,
		RealID:        m.ID,
		Packager:      m.Packager,
		Rating:        m.Rating,
		Repository:    m.Repository,
		Category:      m.Category,
		TestPlatforms: m.TestPlatforms,
		Products:      m.Products,
		Packages:      packages,
		Repositories:  repos,
		Bugs:          m.Bugs,
		Jira:          m.Jira,
		Systems:       m.Systems,
		GiteaPR:       m.GiteaPR,
		GiteaPRAPI:    m.GiteaPRAPI,
		targetDir:     "/tmp",
		log:           logger.Logger.With("testreport"),
	}, nil
}

func (r *Report) ID() string {
	return r.RRID.String()
}

func (r *Report) Auto() bool {
	return r.auto
}

// PackageList returns the update's package names sorted and unique.
func (r *Report) PackageList() []string {
	var names []string
	for _, pkgs := range r.Packages {
		for name := range pkgs {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// RequiredVersions returns the highest shipped version of each package
// over all products.
func (r *Report) RequiredVersions() map[string]string {
	all := map[string][]string{}
	for _, pkgs := range r.Packages {
		for name, v := range pkgs {
			all[name] = append(all[name], v)
		}
	}
	out := make(map[string]string, len(all))
	for name, vs := range all {
		out[name] = rpmver.Max(vs...).String()
	}
	return out
}

func (r *Report) RepoAlias() string {
	return fmt.Sprintf(":p=%s:%s", r.RRID.MaintenanceID, r.RRID.ReviewID)
}

func (r *Report) alias() string {
	return "issue" + r.RepoAlias()
}

type productLister interface {
	Products() []models.Product
}

// repositoryFor picks the update repository matching the host's base
// product. A report with a single repository serves every host.
func (r *Report) repositoryFor(t hostgroup.Target) (string, error) {
	if len(r.Repositories) == 1 {
		return r.Repositories[0], nil
	}
	var products []models.Product
	if pl, ok := t.(productLister); ok {
		products = pl.Products()
	}
	best, score := "", 0
	for _, repo := range r.Repositories {
		for _, p := range products {
			if s := matchScore(repo, p); s > score {
				best, score = repo, s
			}
		}
	}
	if best == "" {
		return "", errors.Wrap(ErrNoRepository, t.Hostname())
	}
	return best, nil
}

// matchScore rates how well an update repository url fits product.
// The version must appear, name and arch refine the choice.
func matchScore(repo string, p models.Product) int {
	lower := strings.ToLower(repo)
	if p.Version == "" || !strings.Contains(lower, strings.ToLower(p.Version)) {
		return 0
	}
	score := 2
	if p.Name != "" && strings.Contains(lower, strings.ToLower(p.Name)) {
		score++
	}
	if p.Arch != "" && strings.Contains(lower, strings.ToLower(p.Arch)) {
		score++
	}
	return score
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// SetRepo adds or removes the update's testing repository on t. The
// command result is left as t's last result.
func (r *Report) SetRepo(ctx context.Context, t hostgroup.Target, op target.RepoOp) error {
	alias := quote(r.alias())
	var cmd string
	switch op {
	case target.RepoAdd:
		repo, err := r.repositoryFor(t)
		if err != nil {
			return err
		}
		cmd = fmt.Sprintf("zypper -n rr %s >/dev/null 2>&1; zypper -n ar -ckn %s %s %s", alias, alias, quote(repo), alias)
	case target.RepoRemove:
		cmd = fmt.Sprintf("if zypper -n lr %s >/dev/null 2>&1; then zypper -n rr %s; fi", alias, alias)
	default:
		return errors.Wrapf(target.ErrUnsupportedRepoOp, "%q", op)
	}
	_, err := t.Run(ctx, cmd)
	return err
}

// packageListFile writes the package names, one per line, next to the
// report.
func (r *Report) packageListFile() (string, error) {
	path := filepath.Join(r.Dir, "package-list.txt")
	content := strings.Join(r.PackageList(), "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrap(err, "write package list")
	}
	return path, nil
}

// RunScripts runs the scripts of kind found below <report>/scripts.
func (r *Report) RunScripts(ctx context.Context, kind hooks.Kind, g *hostgroup.HostsGroup) error {
	pkgList, err := r.packageListFile()
	if err != nil {
		return err
	}
	env := hooks.Env{
		ReportDir:   r.Dir,
		TargetDir:   r.targetDir,
		PackageList: pkgList,
		Repository:  r.Repository,
		ID:          r.ID(),
	}
	return hooks.RunAll(ctx, filepath.Join(r.Dir, "scripts"), kind, env, scriptGroup{g})
}

// ListUpdateCommands shows the update command each host would run.
func (r *Report) ListUpdateCommands(g *hostgroup.HostsGroup, display func(string)) {
	vars := map[string]string{"repa": r.RepoAlias(), "packages": strings.Join(r.PackageList(), " ")}
	for _, t := range g.Targets() {
		w := t.Workflow(target.Update, target.PrepareOptions{})
		display(fmt.Sprintf("%s - commands: \n%s", t.Hostname(), w.Command.SafeSubstitute(vars)))
	}
}

// Hosts returns the report's reference hosts sorted.
func (r *Report) Hosts() []string {
	hosts := make([]string, 0, len(r.Systems))
	for h := range r.Systems {
		hosts = append(hosts, h)
	}
	slices.Sort(hosts)
	return hosts
}

var _ hostgroup.Report = (*Report)(nil)

// Relocate replaces each reference host with the first inventory node
// running the same system at location. The default location keeps the
// report's hosts.
func (r *Report) Relocate(p config.ConfigProvider, location string) {
	if location == "" || location == "default" {
		return
	}
	systems := make(map[string]string, len(r.Systems))
	for host, system := range r.Systems {
		if nodes := p.GetNodesBySystem(system, location); len(nodes) > 0 {
			r.log.Debug().Str("system", system).Str("host", nodes[0]).Msgf("replacing %s", host)
			host = nodes[0]
		}
		systems[host] = system
	}
	r.Systems = systems
}
