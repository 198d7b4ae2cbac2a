package target

import (
	"context"
	"strings"

	"example.com/mtui/pkg/rpmver"
)

const rpmQueryFormat = `%{NAME} %|EPOCH?{%{EPOCH}:}:{}|%{VERSION}-%{RELEASE}\n`

// parseRPMQuery reads "name version" lines. Multiple installed versions of
// one package reduce to the highest.
func parseRPMQuery(out string) map[string]rpmver.Version {
	found := map[string]rpmver.Version{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] == "package" {
			continue
		}
		v := rpmver.Parse(fields[1])
		if cur, ok := found[fields[0]]; !ok || cur.Less(v) {
			found[fields[0]] = v
		}
	}
	return found
}

// QueryVersions refreshes Current for every package in the table. Packages
// that are not installed get the zero version.
func (t *Target) QueryVersions(ctx context.Context) (map[string]rpmver.Version, error) {
	pkgs := t.Packages()
	if len(pkgs) == 0 {
		return map[string]rpmver.Version{}, nil
	}
	names := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		names = append(names, p.Name)
	}
	r, err := t.runQuiet(ctx, "rpm -q --queryformat '"+rpmQueryFormat+"' "+strings.Join(names, " "))
	if err != nil {
		return nil, err
	}
	found := parseRPMQuery(r.Stdout)

	versions := make(map[string]rpmver.Version, len(pkgs))
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range pkgs {
		p.Current = found[p.Name]
		versions[p.Name] = p.Current
	}
	return versions, nil
}
