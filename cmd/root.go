package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"example.com/mtui/cmd/version"
	"example.com/mtui/global"
	"example.com/mtui/pkg/config"
	"example.com/mtui/pkg/logger"
	"github.com/spf13/cobra"
)

type RootOptions struct {
	ConfigFile  string
	TemplateDir string
	Location    string
	Timeout     int
	DryRun      bool
	Debug       bool
	Update      string
	Auto        bool
	Version     bool
}

var rootOpts = &RootOptions{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mtui [flags]",
	Short: "mtui is an operator console for testing maintenance updates",
	Long: `mtui connects to the reference hosts of a maintenance update and drives
the install, prepare, update and downgrade workflows on all of them at
once, running the update's verification scripts along the way.

Without --auto an interactive shell is started. With --auto and
--update the update is applied to every reference host and mtui exits.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if rootOpts.Version {
			version.PrintFullVersion(cmd.OutOrStdout())
			return nil
		}
		return rootOpts.Run(cmd.Context())
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if rootOpts.Debug {
			// 开启调试模式
			logger.Logger.SetLogLevel("debug")
		}
	},
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.MergeFlags(config.Overrides{
		Location:    o.Location,
		TemplateDir: o.TemplateDir,
		Timeout:     o.Timeout,
		Auto:        o.Auto,
	})
	return cfg, nil
}

func (o *RootOptions) Run(ctx context.Context) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auto && o.Update == "" {
		return errors.New("--auto needs --update")
	}

	console, err := NewConsole(cfg, o.DryRun, os.Stdout)
	if err != nil {
		return err
	}
	defer console.Close()

	if cfg.Auto {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
		if err := console.LoadTemplate(ctx, o.Update); err != nil {
			return err
		}
		return console.AutoUpdate(ctx)
	}

	if o.Update != "" {
		if err := console.LoadTemplate(ctx, o.Update); err != nil {
			console.sink.Error(err.Error())
		}
	}
	if global.IsTerminal {
		console.sink.Println(version.Short() + ", type help for the list of commands")
	}
	return console.Shell(ctx, os.Stdin)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Logger.Error().Err(err).Msg("mtui failed")
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&rootOpts.ConfigFile, "config", "c", "", "config file (default /etc/mtui.yaml and ~/.mtui.yaml)")
	f.BoolVar(&rootOpts.Debug, "debug", false, "enable debug logging")

	rootCmd.Flags().StringVarP(&rootOpts.TemplateDir, "template-dir", "T", "", "directory holding the test reports")
	rootCmd.Flags().StringVarP(&rootOpts.Location, "location", "l", "", "location to pick reference hosts from")
	rootCmd.Flags().IntVarP(&rootOpts.Timeout, "timeout", "w", 0, "command timeout in seconds")
	rootCmd.Flags().BoolVarP(&rootOpts.DryRun, "dryrun", "d", false, "log commands instead of running them")
	rootCmd.Flags().StringVarP(&rootOpts.Update, "update", "u", "", "load the test report of this request review id")
	rootCmd.Flags().BoolVarP(&rootOpts.Auto, "auto", "a", false, "apply the update unattended and exit")
	rootCmd.Flags().BoolVarP(&rootOpts.Version, "version", "v", false, "print version information")
}

func NewCmdShellVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version.PrintFullVersion(cmd.OutOrStdout())
		},
	}
}
