package models

import (
	"fmt"
	"strings"

	"example.com/mtui/pkg/rpmver"
)

// Package tracks one package of an update on one host: the version the
// update ships, what is installed now, and the snapshots taken around
// the update.
type Package struct {
	Name     string
	Required rpmver.Version
	Current  rpmver.Version
	Before   rpmver.Version
	After    rpmver.Version
}

func NewPackage(name, required string) *Package {
	return &Package{Name: name, Required: rpmver.Parse(required)}
}

func (p *Package) String() string { return p.Name }

// RequestReviewID identifies a maintenance request, e.g.
// SUSE:Maintenance:1234:567890.
type RequestReviewID struct {
	Project       string
	Kind          string
	MaintenanceID string
	ReviewID      string
}

func ParseRequestReviewID(s string) (RequestReviewID, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 || parts[2] == "" || parts[3] == "" {
		return RequestReviewID{}, fmt.Errorf("invalid request review id %q", s)
	}
	return RequestReviewID{
		Project:       parts[0],
		Kind:          parts[1],
		MaintenanceID: parts[2],
		ReviewID:      parts[3],
	}, nil
}

func (r RequestReviewID) String() string {
	return strings.Join([]string{r.Project, r.Kind, r.MaintenanceID, r.ReviewID}, ":")
}

// Product is an installed base product of a host.
type Product struct {
	Name    string
	Version string
	Arch    string
}

func (p Product) String() string {
	if p.Version == "" {
		return p.Name + " " + p.Arch
	}
	return p.Name + " " + p.Version + " " + p.Arch
}
