// Package rpmver orders package versions the way rpm does
// (epoch, then version, then release, segment by segment).
package rpmver

import (
	"strings"

	version "github.com/knqyf263/go-rpm-version"
)

// Version is an rpm EVR string. The zero value means "not installed".
type Version struct {
	raw string
	v   version.Version
}

func Parse(s string) Version {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}
	}
	return Version{raw: s, v: version.NewVersion(s)}
}

func (v Version) IsZero() bool { return v.raw == "" }

func (v Version) String() string { return v.raw }

// Compare returns -1, 0 or 1. An unknown version sorts before any known one.
func (v Version) Compare(o Version) int {
	switch {
	case v.IsZero() && o.IsZero():
		return 0
	case v.IsZero():
		return -1
	case o.IsZero():
		return 1
	}
	return v.v.Compare(o.v)
}

func (v Version) Less(o Version) bool           { return v.Compare(o) < 0 }
func (v Version) Equal(o Version) bool          { return v.Compare(o) == 0 }
func (v Version) GreaterOrEqual(o Version) bool { return v.Compare(o) >= 0 }

// Max returns the highest of the given version strings.
func Max(vs ...string) Version {
	var best Version
	for _, s := range vs {
		if c := Parse(s); best.IsZero() || c.Compare(best) > 0 {
			best = c
		}
	}
	return best
}
