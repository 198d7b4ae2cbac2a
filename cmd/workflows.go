package cmd

import (
	"strings"

	"example.com/mtui/pkg/hostgroup"
	"github.com/spf13/cobra"
)

func NewCmdLoadTemplate(c *Console) *cobra.Command {
	return &cobra.Command{
		Use:   "load_template rrid",
		Short: "Load a test report and connect its reference hosts",
		Long: `Load the test report SUSE:Maintenance:<id>:<review> from the template
directory and connect the reference hosts it lists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.LoadTemplate(cmd.Context(), args[0])
		},
	}
}

func NewCmdLock(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "lock [comment...]",
		Short: "Lock hosts for this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			return g.Lock(cmd.Context(), strings.Join(args, " "))
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdUnlock(c *Console) *cobra.Command {
	var (
		hosts []string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Release the locks of this session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			return g.Unlock(cmd.Context(), force)
		},
	}
	addTargetFlag(cmd, &hosts)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "also release locks of other sessions")
	return cmd
}

func NewCmdInstall(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "install package [package...]",
		Short: "Install packages on hosts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			if err := g.PerformInstall(cmd.Context(), args); err != nil {
				return err
			}
			g.AddHistory(cmd.Context(), append([]string{"install"}, args...)...)
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdUninstall(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "uninstall package [package...]",
		Short: "Remove packages from hosts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			if err := g.PerformUninstall(cmd.Context(), args); err != nil {
				return err
			}
			g.AddHistory(cmd.Context(), append([]string{"uninstall"}, args...)...)
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdPrepare(c *Console) *cobra.Command {
	var (
		hosts []string
		o     hostgroup.PrepareOptions
	)
	cmd := &cobra.Command{
		Use:   "prepare [package...]",
		Short: "Install the released versions of the update's packages",
		Long: `Install the released versions of the update's packages, or of the
given ones. With --testing the versions from the update repository are
installed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.Report()
			if err != nil {
				return err
			}
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			packages := args
			if len(packages) == 0 {
				packages = r.PackageList()
			}
			if err := g.PerformPrepare(cmd.Context(), packages, r, o); err != nil {
				return err
			}
			g.AddHistory(cmd.Context(), "prepare", r.ID())
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	cmd.Flags().BoolVarP(&o.Force, "force", "f", false, "let zypper resolve conflicts by itself")
	cmd.Flags().BoolVarP(&o.InstalledOnly, "installed", "i", false, "only packages already installed")
	cmd.Flags().BoolVar(&o.Testing, "testing", false, "install from the update repository")
	return cmd
}

func NewCmdDowngrade(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "downgrade",
		Short: "Go back to the released versions of the update's packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.Report()
			if err != nil {
				return err
			}
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			if err := g.PerformDowngrade(cmd.Context(), r.PackageList(), r); err != nil {
				return err
			}
			g.AddHistory(cmd.Context(), "downgrade", r.ID())
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdUpdate(c *Console) *cobra.Command {
	var (
		hosts []string
		o     hostgroup.UpdateOptions
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply the update to hosts",
		Long: `Apply the update to hosts: prepare the released packages, run the pre
scripts, install from the update repository, reboot transactional
hosts, then run the post and compare scripts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.Report()
			if err != nil {
				return err
			}
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			if err := g.PerformUpdate(cmd.Context(), r, o); err != nil {
				return err
			}
			g.AddHistory(cmd.Context(), "update", r.ID())
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	cmd.Flags().BoolVar(&o.NoPrepare, "noprepare", false, "skip prepare")
	cmd.Flags().BoolVar(&o.NoScript, "noscript", false, "skip the pre, post and compare scripts")
	cmd.Flags().BoolVar(&o.NewPackage, "newpackage", false, "install new packages from the update repository afterwards")
	return cmd
}

func NewCmdListUpdateCommands(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "list_update_commands",
		Short: "Show the commands update would run on each host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.Report()
			if err != nil {
				return err
			}
			g, err := c.Group(hosts, false)
			if err != nil {
				return err
			}
			r.ListUpdateCommands(g, c.sink.Println)
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}
