package testreport

import (
	"context"

	"example.com/mtui/pkg/hooks"
	"example.com/mtui/pkg/hostgroup"
)

// scriptGroup lets verification scripts drive a host group.
type scriptGroup struct {
	g *hostgroup.HostsGroup
}

func (s scriptGroup) Hosts() []hooks.Host {
	targets := s.g.Targets()
	hosts := make([]hooks.Host, 0, len(targets))
	for _, t := range targets {
		hosts = append(hosts, t)
	}
	return hosts
}

func (s scriptGroup) Put(ctx context.Context, local, remote string) error {
	return s.g.SFTPPut(ctx, local, remote)
}

func (s scriptGroup) Run(ctx context.Context, cmd string) error {
	return s.g.Run(ctx, cmd)
}
