package testreport

import (
	"context"
	"sync"

	"example.com/mtui/pkg/hostgroup"
	"example.com/mtui/pkg/ssh"
	"example.com/mtui/pkg/target"
	"golang.org/x/sync/errgroup"
)

// Targets connects the report's reference hosts, at most limit at a
// time. Unreachable hosts are logged and left out.
func (r *Report) Targets(ctx context.Context, c *ssh.Connector, s target.Settings, limit int) []hostgroup.Target {
	var (
		mu  sync.Mutex
		out []hostgroup.Target
	)
	eg, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for _, host := range r.Hosts() {
		name := c.Resolve(host)
		if node, ok := c.Config.GetNode(name); ok && node.System == "" {
			node.System = r.Systems[host]
			c.Config.AddNode(name, node)
		}
		eg.Go(func() error {
			t, err := target.Connect(ctx, c, name, s)
			if err != nil {
				r.log.Error().Err(err).Str("host", host).Str("system", r.Systems[host]).Msg("cannot connect")
				return nil
			}
			mu.Lock()
			out = append(out, t)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return out
}
