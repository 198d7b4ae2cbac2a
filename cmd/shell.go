package cmd

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"mvdan.cc/sh/v3/shell"
)

const prompt = "mtui> "

var errQuit = errors.New("quit")

// splitLine splits an operator line into words with shell quoting rules.
// Variables are kept literally so they expand on the targets.
func splitLine(line string) ([]string, error) {
	return shell.Fields(line, func(name string) string {
		return "$" + name
	})
}

// Execute runs one shell line. Ctrl-C while hosts are busy skips those
// hosts and the command goes on with the rest; Ctrl-C between steps
// cancels the command. The shell itself keeps running.
func (c *Console) Execute(ctx context.Context, line string) error {
	args, err := splitLine(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go c.forwardInterrupts(ctx, sig, cancel)

	root := newShellCommand(c)
	root.SetArgs(args)
	root.SetOut(c.out)
	root.SetErr(c.out)
	return root.ExecuteContext(ctx)
}

func (c *Console) forwardInterrupts(ctx context.Context, sig <-chan os.Signal, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			select {
			case c.interrupt <- struct{}{}:
			default:
				c.log.Warn().Msg("interrupted")
				cancel()
			}
		}
	}
}

type lineReader interface {
	ReadLine() (string, error)
}

type scannerReader struct{ *bufio.Scanner }

func (s scannerReader) ReadLine() (string, error) {
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.Text(), nil
}

// rawTerminal puts the terminal into raw mode only while a line is read,
// so Ctrl-C reaches running commands as a signal.
type rawTerminal struct {
	fd int
	t  *term.Terminal
}

func (r rawTerminal) ReadLine() (string, error) {
	state, err := term.MakeRaw(r.fd)
	if err != nil {
		return "", err
	}
	defer term.Restore(r.fd, state)
	return r.t.ReadLine()
}

// Shell reads commands from in until EOF or quit.
func (c *Console) Shell(ctx context.Context, in *os.File) error {
	var lr lineReader = scannerReader{bufio.NewScanner(in)}
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		lr = rawTerminal{fd: fd, t: term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{in, c.out}, prompt)}
	}
	return c.loop(ctx, lr)
}

func (c *Console) loop(ctx context.Context, lr lineReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := lr.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		err = c.Execute(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			c.sink.Error(err.Error())
		}
	}
}

// newShellCommand builds the command tree for one shell line.
func newShellCommand(c *Console) *cobra.Command {
	root := &cobra.Command{
		Use:           "mtui>",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(
		NewCmdLoadTemplate(c),
		NewCmdAddHost(c),
		NewCmdRemoveHost(c),
		NewCmdListHosts(c),
		NewCmdListLocks(c),
		NewCmdListHistory(c),
		NewCmdListTimeout(c),
		NewCmdListSessions(c),
		NewCmdListProducts(c),
		NewCmdShowLog(c),
		NewCmdSetHostState(c),
		NewCmdSetTimeout(c),
		NewCmdSetLocation(c),
		NewCmdRun(c),
		NewCmdPut(c),
		NewCmdGet(c),
		NewCmdLock(c),
		NewCmdUnlock(c),
		NewCmdInstall(c),
		NewCmdUninstall(c),
		NewCmdPrepare(c),
		NewCmdDowngrade(c),
		NewCmdUpdate(c),
		NewCmdListUpdateCommands(c),
		NewCmdShellVersion(),
		NewCmdQuit(),
	)
	return root
}

func NewCmdQuit() *cobra.Command {
	return &cobra.Command{
		Use:     "quit",
		Aliases: []string{"exit", "EOF"},
		Short:   "Leave the console",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errQuit
		},
	}
}
