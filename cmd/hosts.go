package cmd

import (
	"strconv"
	"time"

	"example.com/mtui/pkg/target"
	"github.com/spf13/cobra"
)

func addTargetFlag(cmd *cobra.Command, hosts *[]string) {
	cmd.Flags().StringSliceVarP(hosts, "target", "t", nil, "hosts to act on, comma separated (default all)")
}

func NewCmdAddHost(c *Console) *cobra.Command {
	return &cobra.Command{
		Use:   "add_host host [host...]",
		Short: "Connect to additional hosts",
		Long: `Connect to additional hosts. Hosts are looked up in the refhosts
inventory by name, alias or address. Unknown hosts are dialed as root
using the ssh agent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Connect(cmd.Context(), args)
		},
	}
}

func NewCmdRemoveHost(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "remove_host",
		Short: "Disconnect hosts and drop their command log",
		Long:  "Disconnect hosts and drop their command log. Without -t every host is removed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Disconnect(hosts)
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdListHosts(c *Console) *cobra.Command {
	return &cobra.Command{
		Use:   "list_hosts",
		Short: "List connected hosts with system and state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(nil, false)
			if err != nil {
				return err
			}
			g.ReportSelf(c.sink)
			return nil
		},
	}
}

func NewCmdListLocks(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "list_locks",
		Short: "Show the lock state of hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			g.ReportLocks(cmd.Context(), c.sink)
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdListHistory(c *Console) *cobra.Command {
	var (
		hosts []string
		count int
	)
	cmd := &cobra.Command{
		Use:   "list_history [event...]",
		Short: "Show the mtui history of hosts",
		Long: `Show the last entries of the mtui history on each host, optionally
only entries of the given events (install, update, downgrade...).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			return g.ReportHistory(cmd.Context(), c.sink, count, args)
		},
	}
	addTargetFlag(cmd, &hosts)
	cmd.Flags().IntVarP(&count, "count", "n", 10, "number of entries")
	return cmd
}

func NewCmdListTimeout(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "list_timeout",
		Short: "Show the command timeout of hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, false)
			if err != nil {
				return err
			}
			g.ReportTimeout(c.sink)
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdListSessions(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "list_sessions",
		Short: "Show the ssh sessions established on hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			g.ReportSessions(cmd.Context(), c.sink)
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdListProducts(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "list_products",
		Short: "Show the installed base products of hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, false)
			if err != nil {
				return err
			}
			g.ReportProducts(c.sink)
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdShowLog(c *Console) *cobra.Command {
	var (
		hosts []string
		count int
	)
	cmd := &cobra.Command{
		Use:   "show_log",
		Short: "Show the commands run on hosts and their output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, false)
			if err != nil {
				return err
			}
			g.ReportLog(c.sink, count)
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	cmd.Flags().IntVarP(&count, "count", "n", 0, "only the last n commands")
	return cmd
}

func NewCmdSetHostState(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:       "set_host_state enabled|disabled|dryrun",
		Short:     "Enable, disable or dry run hosts",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(target.Enabled), string(target.Disabled), string(target.DryRun)},
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := target.ParseState(args[0])
			if err != nil {
				return err
			}
			g, err := c.Group(hosts, false)
			if err != nil {
				return err
			}
			for _, name := range g.Names() {
				if t, ok := c.Target(name); ok {
					t.SetState(state)
				}
			}
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdSetTimeout(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "set_timeout seconds",
		Short: "Set the command timeout of hosts, 0 disables it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secs, err := strconv.Atoi(args[0])
			if err != nil || secs < 0 {
				return &invalidArgError{arg: args[0], want: "a number of seconds"}
			}
			g, err := c.Group(hosts, false)
			if err != nil {
				return err
			}
			for _, name := range g.Names() {
				if t, ok := c.Target(name); ok {
					t.SetTimeout(time.Duration(secs) * time.Second)
				}
			}
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdSetLocation(c *Console) *cobra.Command {
	return &cobra.Command{
		Use:   "set_location location",
		Short: "Change the location reference hosts are picked from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.SetLocation(args[0])
			return nil
		},
	}
}

type invalidArgError struct {
	arg  string
	want string
}

func (e *invalidArgError) Error() string {
	return "invalid argument " + strconv.Quote(e.arg) + ", expected " + e.want
}
