package cmd

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"example.com/mtui/pkg/executor"
	"github.com/spf13/cobra"
)

func NewCmdRun(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "run command...",
		Short: "Run a shell command on hosts",
		Long: `Run a shell command on hosts and show its output. Quote commands that
use pipes or redirections.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			if err := g.Run(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}
			for _, t := range g.Targets() {
				c.sink.ShowLog(t.Hostname(), []executor.Result{t.LastResult()})
			}
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	// 命令本身的参数不作为 flag 解析
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func NewCmdPut(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "put local-file",
		Short: "Upload a file into the target temp directory of hosts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			remote := path.Join(c.cfg.TargetTempDir, filepath.Base(args[0]))
			if err := g.SFTPPut(cmd.Context(), args[0], remote); err != nil {
				return err
			}
			c.sink.Println("uploaded to " + remote)
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}

func NewCmdGet(c *Console) *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "get remote-file",
		Short: "Download a file from hosts as <name>.<host>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.Group(hosts, true)
			if err != nil {
				return err
			}
			dir := c.downloadDir()
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			if err := g.SFTPGet(cmd.Context(), args[0], dir); err != nil {
				return err
			}
			c.sink.Println("downloaded to " + dir)
			return nil
		},
	}
	addTargetFlag(cmd, &hosts)
	return cmd
}
